// Package anthropicadapter implements agent.Adapter over the real
// Anthropic SDK, grounded on the teacher pack's
// internal/agent/providers.AnthropicProvider (haasonsaas-nexus): SSE
// stream processing, text/tool_use content blocks, and retry-on-transient
// classification, scoped down to this module's Adapter surface.
package anthropicadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kandev/orchmesh/internal/agent"
)

// Config configures an Adapter.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	SystemPrompt string
	MaxRetries   int
	RetryDelay   time.Duration
}

// Adapter implements agent.Adapter against Anthropic's Messages API.
type Adapter struct {
	client       anthropic.Client
	model        string
	maxTokens    int
	systemPrompt string
	maxRetries   int
	retryDelay   time.Duration
}

var _ agent.Adapter = (*Adapter)(nil)

// New constructs an Adapter. An empty APIKey fails fast since every call
// would otherwise fail at request time with a less actionable error.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropicadapter: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Adapter{
		client:       anthropic.NewClient(opts...),
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: cfg.SystemPrompt,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (a *Adapter) convertMessages(history []agent.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func (a *Adapter) convertTools(tools []agent.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.ParamSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

func (a *Adapter) buildParams(history []agent.Message, tools []agent.ToolSpec) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		Messages:  a.convertMessages(history),
		MaxTokens: int64(a.maxTokens),
	}
	if a.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: a.systemPrompt}}
	}
	if len(tools) > 0 {
		converted, err := a.convertTools(tools)
		if err != nil {
			return params, err
		}
		params.Tools = converted
	}
	return params, nil
}

// SendMessage sends a non-streaming request, retrying transient failures
// with exponential backoff.
func (a *Adapter) SendMessage(ctx context.Context, history []agent.Message, tools []agent.ToolSpec) (agent.Response, error) {
	params, err := a.buildParams(history, tools)
	if err != nil {
		return agent.Response{}, err
	}

	var msg *anthropic.Message
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		msg, err = a.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		if !isRetryable(err) || attempt == a.maxRetries {
			return agent.Response{}, fmt.Errorf("anthropic request failed: %w", err)
		}
		backoff := a.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return agent.Response{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	resp := agent.Response{
		Usage: agent.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			var args map[string]any
			_ = json.Unmarshal(b.Input, &args)
			resp.ToolCalls = append(resp.ToolCalls, agent.ToolCallRequest{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	resp.Content = text.String()
	return resp, nil
}

// SendMessageStream streams content_block_delta text and finalized
// tool_use blocks, closing with a Done chunk on message_stop.
func (a *Adapter) SendMessageStream(ctx context.Context, history []agent.Message, tools []agent.ToolSpec) (<-chan agent.StreamChunk, error) {
	params, err := a.buildParams(history, tools)
	if err != nil {
		return nil, err
	}

	out := make(chan agent.StreamChunk)
	go func() {
		defer close(out)

		stream := a.client.Messages.NewStreaming(ctx, params)
		var currentToolID, currentToolName string
		var currentToolInput strings.Builder
		inToolUse := false

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_start":
				block := event.AsContentBlockStart().ContentBlock
				if block.Type == "tool_use" {
					use := block.AsToolUse()
					currentToolID, currentToolName = use.ID, use.Name
					currentToolInput.Reset()
					inToolUse = true
				}
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				if delta.Type == "text_delta" && delta.Text != "" {
					select {
					case out <- agent.StreamChunk{Content: delta.Text}:
					case <-ctx.Done():
						return
					}
				}
				if delta.Type == "input_json_delta" && delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
				}
			case "content_block_stop":
				if inToolUse {
					var args map[string]any
					_ = json.Unmarshal([]byte(currentToolInput.String()), &args)
					select {
					case out <- agent.StreamChunk{ToolCalls: []agent.ToolCallRequest{{ID: currentToolID, Name: currentToolName, Arguments: args}}}:
					case <-ctx.Done():
						return
					}
					inToolUse = false
				}
			case "message_stop":
				select {
				case out <- agent.StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			case "error":
				select {
				case out <- agent.StreamChunk{Err: errors.New("anthropic stream error"), Done: true}:
				case <-ctx.Done():
				}
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case out <- agent.StreamChunk{Err: fmt.Errorf("anthropic stream: %w", err), Done: true}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

// ExecuteTool is not implemented by the Anthropic adapter itself: tool
// execution is the caller's responsibility (internal/tools), since the
// model only requests tool calls, it does not run them.
func (a *Adapter) ExecuteTool(ctx context.Context, call agent.ToolCallRequest) (agent.ToolResult, error) {
	return agent.ToolResult{}, fmt.Errorf("anthropicadapter: tool execution delegated to internal/tools, got %q", call.Name)
}

// Capabilities reports streaming and tool support with no fixed model list
// since the caller selects the model via Config.
func (a *Adapter) Capabilities() agent.Capabilities {
	return agent.Capabilities{
		SupportsStreaming: true,
		SupportsTools:     true,
		MaxContextTokens:  200000,
		SupportedModels:   []string{a.model},
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	msg := err.Error()
	for _, s := range []string{"rate_limit", "429", "timeout", "deadline exceeded", "connection reset", "connection refused"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
