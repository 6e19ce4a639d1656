// Package agent implements the Agent Registry and Runtime (spec.md §4.3):
// agent configuration, the lifecycle state machine, and the Adapter
// boundary to concrete model/tool providers. Structurally grounded on the
// teacher's internal/agent/lifecycle.Manager (instance maps guarded by a
// single mutex, a publishEvent helper, status/progress setters).
package agent

import (
	"context"
	"time"
)

// Status is a position in the agent lifecycle state machine of spec.md §4.3.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusInitializing  Status = "initializing"
	StatusReady         Status = "ready"
	StatusProcessing    Status = "processing"
	StatusError         Status = "error"
	StatusShutdown      Status = "shutdown"
)

// validTransitions enumerates the only transitions the state machine
// allows; any other From/To pair is rejected.
var validTransitions = map[Status]map[Status]bool{
	StatusUninitialized: {StatusInitializing: true, StatusShutdown: true},
	StatusInitializing:  {StatusReady: true, StatusError: true, StatusShutdown: true},
	StatusReady:         {StatusProcessing: true, StatusShutdown: true, StatusError: true},
	StatusProcessing:    {StatusReady: true, StatusError: true, StatusShutdown: true},
	StatusError:         {StatusInitializing: true, StatusShutdown: true},
	StatusShutdown:      {},
}

// CanTransition reports whether from->to is a legal state machine edge.
func CanTransition(from, to Status) bool {
	return validTransitions[from][to]
}

// Capabilities describes what an adapter supports, surfaced to the
// Orchestrator and the hub layer so callers can route work appropriately.
type Capabilities struct {
	SupportsStreaming bool
	SupportsTools     bool
	MaxContextTokens  int
	SupportedModels   []string
}

// Config is the static configuration an Agent is created from.
type Config struct {
	Name         string
	ProviderType string // "echo", "anthropic", ...
	Model        string
	SystemPrompt string
	Temperature  float64
	Tools        []string
}

// Agent is a registered, running agent runtime entity.
type Agent struct {
	ID           string
	Config       Config
	Status       Status
	CreatedAt    time.Time
	LastActiveAt time.Time
	ErrorMessage string
}

// Response is the result of a non-streaming SendMessage call.
type Response struct {
	Content   string
	ToolCalls []ToolCallRequest
	Usage     Usage
}

// Usage reports token accounting for a single exchange, when the provider
// reports it; zero values mean "unknown", not "free".
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// ToolCallRequest is a tool invocation an adapter asks its caller to run.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// StreamChunk is one piece of a streamed response, per spec.md §4.3's
// SendMessageStream contract: content deltas, then optional tool calls,
// terminated by a chunk with Done set.
type StreamChunk struct {
	Content   string
	ToolCalls []ToolCallRequest
	Done      bool
	Err       error
}

// Adapter is the boundary between the Agent Runtime and a concrete model
// or tool provider (spec.md §4.3). Implementations must honor ctx
// cancellation within the configured stream-cancel grace period.
type Adapter interface {
	SendMessage(ctx context.Context, history []Message, tools []ToolSpec) (Response, error)
	SendMessageStream(ctx context.Context, history []Message, tools []ToolSpec) (<-chan StreamChunk, error)
	ExecuteTool(ctx context.Context, call ToolCallRequest) (ToolResult, error)
	Capabilities() Capabilities
}

// Message is the Adapter-facing view of a conversation entry, decoupled
// from session.Message so adapters never import the session package.
type Message struct {
	Role    string
	Content string
}

// ToolSpec describes a tool an adapter may call, with a JSON Schema for
// its parameters (validated by internal/tools before execution).
type ToolSpec struct {
	Name        string
	Description string
	ParamSchema []byte // raw JSON Schema document
}

// ToolResult is what ExecuteTool returns.
type ToolResult struct {
	Output string
	Error  string
}

// ToolHandler is the spec.md §6 Tool Handler collaborator: a named,
// independently executable tool with a declared JSON Schema for its
// arguments. internal/tools provides the concrete registry and built-in
// tools implementing this interface.
type ToolHandler interface {
	Name() string
	Description() string
	RequiresApproval() bool
	ParameterSchema() []byte
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

// ApprovalDecision is the outcome of an ApprovalCollaborator.RequestApproval
// call.
type ApprovalDecision struct {
	Approved bool
	Reason   string
}

// ApprovalCollaborator is the spec.md §6 Approval Collaborator: the gate a
// tool call requiring approval must pass before it runs.
// internal/agent/approval provides the concrete implementation.
type ApprovalCollaborator interface {
	RequestApproval(ctx context.Context, toolName, command, reason string) (ApprovalDecision, error)
}
