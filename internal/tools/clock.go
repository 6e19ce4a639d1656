package tools

import (
	"context"
	"time"

	"github.com/kandev/orchmesh/internal/agent"
)

var clockSchema = []byte(`{
	"type": "object",
	"properties": {
		"layout": {"type": "string"}
	},
	"additionalProperties": false
}`)

// Clock returns the current UTC time, formatted with the optional "layout"
// argument (Go reference-time layout), defaulting to RFC3339.
type Clock struct{}

var _ Handler = Clock{}

func (Clock) Name() string            { return "clock" }
func (Clock) Description() string     { return "Returns the current UTC time." }
func (Clock) RequiresApproval() bool  { return false }
func (Clock) ParameterSchema() []byte { return clockSchema }

func (Clock) Execute(ctx context.Context, args map[string]any) (agent.ToolResult, error) {
	layout := time.RFC3339
	if v, ok := args["layout"].(string); ok && v != "" {
		layout = v
	}
	return agent.ToolResult{Output: time.Now().UTC().Format(layout)}, nil
}
