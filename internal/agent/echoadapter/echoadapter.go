// Package echoadapter is the reference agent.Adapter implementation used
// for tests and local development, grounded on the teacher's
// MockAgentManagerClient: a logging stand-in with no external dependency.
package echoadapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/orchmesh/internal/agent"
	"github.com/kandev/orchmesh/internal/logging"
)

// Adapter echoes the last user message back, optionally split into
// streamed chunks, with no external calls.
type Adapter struct {
	logger    *logging.Logger
	chunkSize int
}

var _ agent.Adapter = (*Adapter)(nil)

// New constructs an echo Adapter. chunkSize <= 0 selects a default of 8
// characters per streamed chunk.
func New(log *logging.Logger, chunkSize int) *Adapter {
	if log == nil {
		log = logging.Default()
	}
	if chunkSize <= 0 {
		chunkSize = 8
	}
	return &Adapter{
		logger:    log.WithFields(zap.String("component", "echo_adapter")),
		chunkSize: chunkSize,
	}
}

func lastUserContent(history []agent.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	return ""
}

// SendMessage echoes the last user message.
func (a *Adapter) SendMessage(ctx context.Context, history []agent.Message, tools []agent.ToolSpec) (agent.Response, error) {
	content := lastUserContent(history)
	a.logger.Debug("echoing message", zap.Int("length", len(content)))
	return agent.Response{
		Content: fmt.Sprintf("echo: %s", content),
		Usage:   agent.Usage{PromptTokens: len(strings.Fields(content)), CompletionTokens: len(strings.Fields(content))},
	}, nil
}

// SendMessageStream echoes the last user message in fixed-size chunks,
// observing ctx cancellation between chunks.
func (a *Adapter) SendMessageStream(ctx context.Context, history []agent.Message, tools []agent.ToolSpec) (<-chan agent.StreamChunk, error) {
	content := "echo: " + lastUserContent(history)
	out := make(chan agent.StreamChunk)

	go func() {
		defer close(out)
		for i := 0; i < len(content); i += a.chunkSize {
			end := i + a.chunkSize
			if end > len(content) {
				end = len(content)
			}
			select {
			case out <- agent.StreamChunk{Content: content[i:end]}:
			case <-ctx.Done():
				return
			}
			select {
			case <-time.After(time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- agent.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// ExecuteTool always reports success, echoing the arguments it received.
func (a *Adapter) ExecuteTool(ctx context.Context, call agent.ToolCallRequest) (agent.ToolResult, error) {
	return agent.ToolResult{Output: fmt.Sprintf("tool %s invoked with %v", call.Name, call.Arguments)}, nil
}

// Capabilities reports streaming support and no token limit.
func (a *Adapter) Capabilities() agent.Capabilities {
	return agent.Capabilities{
		SupportsStreaming: true,
		SupportsTools:     true,
		MaxContextTokens:  0,
		SupportedModels:   []string{"echo-1"},
	}
}
