// Package hub implements the Hub Layer (spec.md §4.6): the Agent hub and
// the Orchestrator hub, two wsproto.Dispatcher registrations sharing one
// transport connection per client. Grounded on the teacher's
// pkg/websocket/handler.go request/response shape and
// internal/gateway/websocket/client.go's per-connection group membership,
// generalized from the teacher's single task-oriented hub to the two
// logical endpoints spec.md §4.6 names.
package hub

import (
	"time"

	"github.com/kandev/orchmesh/internal/agent"
	"github.com/kandev/orchmesh/internal/orchestrator"
	"github.com/kandev/orchmesh/internal/session"
)

// AgentMessageRequest is the Agent hub's SendAgentMessage payload.
type AgentMessageRequest struct {
	SessionID   string              `json:"sessionId"`
	AgentID     string              `json:"agentId"`
	Content     string              `json:"content"`
	Attachments []session.Attachment `json:"attachments,omitempty"`
	CommandID   string              `json:"commandId,omitempty"`
}

// AgentResponseDto is pushed to the agent and session groups for every
// streamed chunk. The aggregated response is appended to the session's
// message log, not pushed as a separate AgentResponseDto.
type AgentResponseDto struct {
	AgentID   string `json:"agentId"`
	SessionID string `json:"sessionId"`
	Response  string `json:"response"`
	CommandID string `json:"commandId,omitempty"`
	Done      bool   `json:"done"`
}

// ToolExecutionRequest is the Agent hub's ExecuteTool payload.
type ToolExecutionRequest struct {
	SessionID string         `json:"sessionId"`
	AgentID   string         `json:"agentId"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolExecutionResponse is ExecuteTool's response, and also what is
// pushed as a ToolExecutionUpdate to the agent/session groups.
type ToolExecutionResponse struct {
	Success       bool          `json:"success"`
	Output        string        `json:"output,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"executionTimeNs"`
}

// AgentStatusDto describes an agent's current lifecycle state and
// adapter capabilities, pushed on subscribe and on every status change.
type AgentStatusDto struct {
	AgentID      string              `json:"agentId"`
	Status       agent.Status        `json:"status"`
	Capabilities agent.Capabilities  `json:"capabilities"`
}

// CreateSessionRequest is the Orchestrator hub's CreateSession payload.
type CreateSessionRequest struct {
	Name             string        `json:"name"`
	Type             session.Type  `json:"type,omitempty"`
	AgentIDs         []string      `json:"agentIds,omitempty"`
	WorkingDirectory string        `json:"workingDirectory,omitempty"`
}

// SessionCreatedResponse is CreateSession's response.
type SessionCreatedResponse struct {
	Success   bool             `json:"success"`
	SessionID string           `json:"sessionId,omitempty"`
	Session   *session.Session `json:"session,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// SessionJoined is pushed to the caller on a successful JoinSession.
type SessionJoined struct {
	SessionID string           `json:"sessionId"`
	Session   *session.Session `json:"session"`
}

// OrchestrationMessageRequest is the Orchestrator hub's
// SendOrchestrationMessage payload.
type OrchestrationMessageRequest struct {
	SessionID string                `json:"sessionId"`
	Message   string                `json:"message"`
	AgentIDs  []string              `json:"agentIds"`
	Strategy  orchestrator.Strategy `json:"strategy,omitempty"`
}

// ReceiveError is pushed to the caller whenever a void hub method fails,
// per spec.md §4.6's error propagation rule.
type ReceiveError struct {
	Error     string `json:"error"`
	AgentID   string `json:"agentId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Connected is pushed to a newly-upgraded connection by the Orchestrator
// hub.
type Connected struct {
	ConnectionID string    `json:"connectionId"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// OrchestrationPlanCreated is pushed to the session group once CreatePlan
// succeeds, before execution begins.
type OrchestrationPlanCreated struct {
	Plan *orchestrator.Plan `json:"plan"`
}

// OrchestrationCompleted is pushed to the session group once a plan
// reaches a terminal state.
type OrchestrationCompleted struct {
	Result *orchestrator.Result `json:"result"`
}
