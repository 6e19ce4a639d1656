// Package tools implements the Tool Handler collaborator of spec.md §6: a
// small built-in registry of illustrative tools, each carrying a JSON
// Schema for its parameters validated via santhosh-tekuri/jsonschema/v6,
// grounded on goadesign-goa-ai/registry/service.go's
// validatePayloadJSONAgainstSchema (NewCompiler/AddResource/Compile), and
// on the RequiresApproval bool field idiom from the teacher's
// internal/workflow/engine.Action.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kandev/orchmesh/internal/agent"
	"github.com/kandev/orchmesh/internal/apperr"
)

// Handler is an alias for agent.ToolHandler, kept local so tool
// implementations in this package need not import internal/agent directly.
type Handler = agent.ToolHandler

// Registry holds a fixed set of Handlers, validates ToolCall arguments
// against each tool's declared schema, and gates approval-requiring tools
// through an agent.ApprovalCollaborator before executing them.
type Registry struct {
	approver agent.ApprovalCollaborator

	mu       sync.RWMutex
	handlers map[string]Handler
	schemas  map[string]*jsonschema.Schema
}

// NewRegistry constructs an empty Registry. approver may be nil if no
// registered tool ever sets RequiresApproval.
func NewRegistry(approver agent.ApprovalCollaborator) *Registry {
	return &Registry{
		approver: approver,
		handlers: make(map[string]Handler),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Register adds h to the registry, compiling its parameter schema eagerly
// so a malformed schema fails at startup rather than at first call.
func (r *Registry) Register(h Handler) error {
	schema, err := compileSchema(h.Name(), h.ParameterSchema())
	if err != nil {
		return fmt.Errorf("registering tool %q: %w", h.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = h
	r.schemas[h.Name()] = schema
	return nil
}

// List returns every registered tool as an agent.ToolSpec, for handing to
// an Adapter.
func (r *Registry) List() []agent.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]agent.ToolSpec, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, agent.ToolSpec{
			Name:        h.Name(),
			Description: h.Description(),
			ParamSchema: h.ParameterSchema(),
		})
	}
	return out
}

// Execute validates call.Arguments against the tool's declared schema,
// obtains approval if the tool requires it, then runs the tool.
//
// Fails NotFound if the tool is not registered, InvalidArgument if the
// arguments don't validate, and PermissionDenied if approval is refused.
func (r *Registry) Execute(ctx context.Context, call agent.ToolCallRequest) (agent.ToolResult, error) {
	r.mu.RLock()
	h, ok := r.handlers[call.Name]
	schema := r.schemas[call.Name]
	r.mu.RUnlock()
	if !ok {
		return agent.ToolResult{}, apperr.NotFound("tool", call.Name)
	}

	if err := schema.Validate(call.Arguments); err != nil {
		return agent.ToolResult{}, apperr.InvalidArgument(fmt.Sprintf("tool %q arguments: %v", call.Name, err))
	}

	if h.RequiresApproval() {
		if r.approver == nil {
			return agent.ToolResult{}, apperr.PermissionDenied(fmt.Sprintf("tool %q requires approval but no approver is configured", call.Name))
		}
		decision, err := r.approver.RequestApproval(ctx, call.Name, fmt.Sprintf("%v", call.Arguments), "tool invocation")
		if err != nil {
			return agent.ToolResult{}, err
		}
		if !decision.Approved {
			return agent.ToolResult{}, apperr.PermissionDenied(fmt.Sprintf("tool %q: %s", call.Name, decision.Reason))
		}
	}

	return h.Execute(ctx, call.Arguments)
}

func compileSchema(name string, schemaBytes []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schemaBytes, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	resourceName := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(resourceName)
}
