package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/orchmesh/internal/agent"
	"github.com/kandev/orchmesh/internal/apperr"
	"github.com/kandev/orchmesh/internal/events"
	"github.com/kandev/orchmesh/internal/logging"
	"github.com/kandev/orchmesh/internal/router"
	"github.com/kandev/orchmesh/internal/session"
	"github.com/kandev/orchmesh/internal/tools"
	"github.com/kandev/orchmesh/internal/wsproto"
)

// AgentHub is the Agent hub of spec.md §4.6: subscribe/unsubscribe to an
// agent's group, send a message and stream the response, and execute a
// single tool call request/response.
type AgentHub struct {
	sessions *session.Manager
	registry *agent.Registry
	runtime  *agent.Runtime
	toolReg  *tools.Registry
	router   *router.Router
	conns    ConnectionSender
	logger   *logging.Logger
}

// NewAgentHub constructs an AgentHub and subscribes it to AgentStatusChanged
// events so status transitions are forwarded to each agent's group.
func NewAgentHub(sessions *session.Manager, registry *agent.Registry, runtime *agent.Runtime, toolReg *tools.Registry, rtr *router.Router, conns ConnectionSender, bus *events.Bus, log *logging.Logger) *AgentHub {
	if log == nil {
		log = logging.Default()
	}
	h := &AgentHub{
		sessions: sessions,
		registry: registry,
		runtime:  runtime,
		toolReg:  toolReg,
		router:   rtr,
		conns:    conns,
		logger:   log.WithFields(zap.String("component", "agent_hub")),
	}

	if _, err := events.Subscribe(bus, h.onAgentStatusChanged); err != nil {
		h.logger.Error("subscribing to AgentStatusChanged failed", zap.Error(err))
	}
	return h
}

// Register wires every Agent hub action onto d.
func (h *AgentHub) Register(d *wsproto.Dispatcher) {
	d.RegisterFunc(wsproto.ActionSendAgentMessage, h.handleSendAgentMessage)
	d.RegisterFunc(wsproto.ActionExecuteTool, h.handleExecuteTool)
	d.RegisterFunc(wsproto.ActionSubscribeAgent, h.handleSubscribe)
	d.RegisterFunc(wsproto.ActionUnsubscribeAgent, h.handleUnsubscribe)
}

func (h *AgentHub) onAgentStatusChanged(ctx context.Context, evt events.AgentStatusChanged) error {
	ag, err := h.registry.GetAgent(evt.AgentID)
	if err != nil {
		return nil // agent already removed; nothing to report.
	}
	adapter, err := h.registry.GetAdapter(evt.AgentID)
	caps := agent.Capabilities{}
	if err == nil {
		caps = adapter.Capabilities()
	}
	msg, merr := wsproto.NewNotification(wsproto.ActionAgentStatusUpdate, AgentStatusDto{
		AgentID:      evt.AgentID,
		Status:       ag.Status,
		Capabilities: caps,
	})
	if merr != nil {
		return merr
	}
	h.router.BroadcastToAgent(ctx, evt.AgentID, msg)
	return nil
}

func (h *AgentHub) handleSubscribe(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var agentID string
	if err := msg.ParsePayload(&agentID); err != nil {
		return nil, err
	}
	connID, ok := wsproto.ConnID(ctx)
	if !ok {
		return nil, apperr.Internal("no connection id in context", nil)
	}

	ag, err := h.registry.GetAgent(agentID)
	if err != nil {
		pushError(h.conns, connID, ReceiveError{Error: err.Error(), AgentID: agentID})
		return nil, nil
	}
	h.conns.JoinGroupByID(connID, router.AgentGroup(agentID))

	caps := agent.Capabilities{}
	if adapter, aerr := h.registry.GetAdapter(agentID); aerr == nil {
		caps = adapter.Capabilities()
	}
	push(h.conns, connID, wsproto.ActionAgentStatusUpdate, AgentStatusDto{
		AgentID:      agentID,
		Status:       ag.Status,
		Capabilities: caps,
	})
	return nil, nil
}

func (h *AgentHub) handleUnsubscribe(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var agentID string
	if err := msg.ParsePayload(&agentID); err != nil {
		return nil, err
	}
	connID, ok := wsproto.ConnID(ctx)
	if !ok {
		return nil, apperr.Internal("no connection id in context", nil)
	}
	h.conns.LeaveGroupByID(connID, router.AgentGroup(agentID))
	return nil, nil
}

func (h *AgentHub) handleExecuteTool(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req ToolExecutionRequest
	if err := msg.ParsePayload(&req); err != nil {
		return wsproto.NewResponse(msg.ID, msg.Action, ToolExecutionResponse{Success: false, Error: err.Error()})
	}

	started := time.Now()
	result, err := h.toolReg.Execute(ctx, agent.ToolCallRequest{Name: req.Name, Arguments: req.Arguments})
	elapsed := time.Since(started)

	resp := ToolExecutionResponse{ExecutionTime: elapsed}
	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
	} else {
		resp.Success = true
		resp.Output = result.Output
	}

	if req.SessionID != "" {
		update, merr := wsproto.NewNotification(wsproto.ActionToolExecutionUpdate, resp)
		if merr == nil {
			h.router.RouteToolExecutionUpdate(ctx, req.SessionID, req.AgentID, update)
		}
	}

	return wsproto.NewResponse(msg.ID, msg.Action, resp)
}

func (h *AgentHub) handleSendAgentMessage(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req AgentMessageRequest
	if err := msg.ParsePayload(&req); err != nil {
		return nil, err
	}
	connID, ok := wsproto.ConnID(ctx)
	if !ok {
		return nil, apperr.Internal("no connection id in context", nil)
	}

	sess, err := h.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		pushError(h.conns, connID, ReceiveError{Error: err.Error(), SessionID: req.SessionID})
		return nil, nil
	}
	if sess == nil {
		pushError(h.conns, connID, ReceiveError{Error: apperr.NotFound("session", req.SessionID).Error(), SessionID: req.SessionID})
		return nil, nil
	}
	if _, err := h.registry.GetAgent(req.AgentID); err != nil {
		pushError(h.conns, connID, ReceiveError{Error: err.Error(), AgentID: req.AgentID, SessionID: req.SessionID})
		return nil, nil
	}

	if _, err := h.sessions.AddMessage(ctx, sess.ID, &session.Message{
		ID:          newMessageID(),
		AgentID:     session.UserAgentID,
		Role:        session.RoleUser,
		Content:     req.Content,
		Attachments: req.Attachments,
	}); err != nil {
		pushError(h.conns, connID, ReceiveError{Error: err.Error(), SessionID: req.SessionID})
		return nil, nil
	}

	history, err := h.sessions.ListMessages(ctx, req.SessionID)
	if err != nil {
		pushError(h.conns, connID, ReceiveError{Error: err.Error(), SessionID: req.SessionID})
		return nil, nil
	}

	stream, err := h.runtime.SendMessageStream(ctx, req.AgentID, history, h.toolReg.List())
	if err != nil {
		pushError(h.conns, connID, ReceiveError{Error: err.Error(), AgentID: req.AgentID, SessionID: req.SessionID})
		return nil, nil
	}

	go h.consumeStream(ctx, sess.ID, req, stream)
	return nil, nil
}

// consumeStream drains an agent's streamed response, routing each chunk
// to the agent and session groups, then appends the aggregated final
// message (with any tool calls collected along the way) to the session
// log as one record, per spec.md §4.6.
func (h *AgentHub) consumeStream(ctx context.Context, sessionID string, req AgentMessageRequest, stream <-chan agent.StreamChunk) {
	var content string
	var toolCalls []session.ToolCall

	for chunk := range stream {
		if chunk.Err != nil {
			h.logger.Error("agent stream error", zap.String("agent_id", req.AgentID), zap.Error(chunk.Err))
			continue
		}
		content += chunk.Content
		for _, tc := range chunk.ToolCalls {
			toolCalls = append(toolCalls, session.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}

		// A terminal chunk with no content and no tool calls is a pure
		// end-of-stream sentinel; it carries nothing new to push.
		if chunk.Done && chunk.Content == "" && len(chunk.ToolCalls) == 0 {
			continue
		}

		dto := AgentResponseDto{
			AgentID:   req.AgentID,
			SessionID: sessionID,
			Response:  chunk.Content,
			CommandID: req.CommandID,
			Done:      chunk.Done,
		}
		out, err := wsproto.NewNotification(wsproto.ActionReceiveAgentResponse, dto)
		if err != nil {
			continue
		}
		h.router.RouteAgentMessage(ctx, sessionID, req.AgentID, out)
	}

	if _, err := h.sessions.AddMessage(ctx, sessionID, &session.Message{
		ID:        newMessageID(),
		AgentID:   req.AgentID,
		Role:      session.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	}); err != nil {
		h.logger.Error("appending aggregated agent response failed", zap.Error(err))
	}
}
