package tools

import (
	"context"

	"github.com/kandev/orchmesh/internal/agent"
)

var echoSchema = []byte(`{
	"type": "object",
	"properties": {
		"text": {"type": "string"}
	},
	"required": ["text"],
	"additionalProperties": false
}`)

// Echo is a zero-side-effect tool that returns its "text" argument
// unchanged, useful for exercising the tool-call path end to end.
type Echo struct{}

var _ Handler = Echo{}

func (Echo) Name() string            { return "echo" }
func (Echo) Description() string     { return "Returns the given text unchanged." }
func (Echo) RequiresApproval() bool  { return false }
func (Echo) ParameterSchema() []byte { return echoSchema }

func (Echo) Execute(ctx context.Context, args map[string]any) (agent.ToolResult, error) {
	text, _ := args["text"].(string)
	return agent.ToolResult{Output: text}, nil
}
