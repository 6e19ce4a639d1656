package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/orchmesh/internal/agent"
	"github.com/kandev/orchmesh/internal/apperr"
)

type approveOrDeny struct {
	approved bool
	reason   string
	calls    int
}

func (a *approveOrDeny) RequestApproval(ctx context.Context, toolName, command, reason string) (agent.ApprovalDecision, error) {
	a.calls++
	return agent.ApprovalDecision{Approved: a.approved, Reason: a.reason}, nil
}

var guardedSchema = []byte(`{
	"type": "object",
	"properties": {"value": {"type": "string"}},
	"required": ["value"],
	"additionalProperties": false
}`)

type guardedTool struct{}

func (guardedTool) Name() string            { return "guarded" }
func (guardedTool) Description() string     { return "requires approval" }
func (guardedTool) RequiresApproval() bool  { return true }
func (guardedTool) ParameterSchema() []byte { return guardedSchema }
func (guardedTool) Execute(ctx context.Context, args map[string]any) (agent.ToolResult, error) {
	return agent.ToolResult{Output: args["value"].(string)}, nil
}

func TestRegisterAndExecuteEcho(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(Echo{}))

	result, err := r.Execute(context.Background(), agent.ToolCallRequest{
		Name:      "echo",
		Arguments: map[string]any{"text": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Output)
}

func TestExecuteUnregisteredToolIsNotFound(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Execute(context.Background(), agent.ToolCallRequest{Name: "missing"})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestExecuteRejectsInvalidArguments(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(Echo{}))

	_, err := r.Execute(context.Background(), agent.ToolCallRequest{
		Name:      "echo",
		Arguments: map[string]any{},
	})
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestExecuteApprovalRequiredWithNoApproverIsDenied(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(guardedTool{}))

	_, err := r.Execute(context.Background(), agent.ToolCallRequest{
		Name:      "guarded",
		Arguments: map[string]any{"value": "x"},
	})
	assert.Equal(t, apperr.CodePermissionDenied, apperr.CodeOf(err))
}

func TestExecuteApprovalDeniedPropagates(t *testing.T) {
	approver := &approveOrDeny{approved: false, reason: "nope"}
	r := NewRegistry(approver)
	require.NoError(t, r.Register(guardedTool{}))

	_, err := r.Execute(context.Background(), agent.ToolCallRequest{
		Name:      "guarded",
		Arguments: map[string]any{"value": "x"},
	})
	assert.Equal(t, apperr.CodePermissionDenied, apperr.CodeOf(err))
	assert.Equal(t, 1, approver.calls)
}

func TestExecuteApprovalGrantedRuns(t *testing.T) {
	approver := &approveOrDeny{approved: true}
	r := NewRegistry(approver)
	require.NoError(t, r.Register(guardedTool{}))

	result, err := r.Execute(context.Background(), agent.ToolCallRequest{
		Name:      "guarded",
		Arguments: map[string]any{"value": "ok"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Output)
}

func TestListReturnsEveryRegisteredTool(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(Echo{}))
	require.NoError(t, r.Register(Clock{}))

	specs := r.List()
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	assert.ElementsMatch(t, []string{"echo", "clock"}, names)
}

func TestClockUsesDefaultLayoutWhenUnset(t *testing.T) {
	c := Clock{}
	result, err := c.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Output)
	_, err = time.Parse(time.RFC3339, result.Output)
	assert.NoError(t, err)
}
