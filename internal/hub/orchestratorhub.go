package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/orchmesh/internal/apperr"
	"github.com/kandev/orchmesh/internal/connmgr"
	"github.com/kandev/orchmesh/internal/logging"
	"github.com/kandev/orchmesh/internal/orchestrator"
	"github.com/kandev/orchmesh/internal/router"
	"github.com/kandev/orchmesh/internal/session"
	"github.com/kandev/orchmesh/internal/wsproto"
)

// OrchestratorHub is the Orchestrator hub of spec.md §4.6: session
// lifecycle entry points plus SendOrchestrationMessage, which drives plan
// creation and execution. It also owns the Connection Manager (spec.md
// §4.4), since connect/disconnect and session join/leave are exactly the
// events this hub already observes.
type OrchestratorHub struct {
	sessions *session.Manager
	executor *orchestrator.Executor
	router   *router.Router
	conns    ConnectionSender
	connMgr  *connmgr.Manager
	logger   *logging.Logger
}

// NewOrchestratorHub constructs an OrchestratorHub.
func NewOrchestratorHub(sessions *session.Manager, executor *orchestrator.Executor, rtr *router.Router, conns ConnectionSender, connMgr *connmgr.Manager, log *logging.Logger) *OrchestratorHub {
	if log == nil {
		log = logging.Default()
	}
	return &OrchestratorHub{
		sessions: sessions,
		executor: executor,
		router:   rtr,
		conns:    conns,
		connMgr:  connMgr,
		logger:   log.WithFields(zap.String("component", "orchestrator_hub")),
	}
}

// Register wires every Orchestrator hub action onto d.
func (h *OrchestratorHub) Register(d *wsproto.Dispatcher) {
	d.RegisterFunc(wsproto.ActionCreateSession, h.handleCreateSession)
	d.RegisterFunc(wsproto.ActionJoinSession, h.handleJoinSession)
	d.RegisterFunc(wsproto.ActionLeaveSession, h.handleLeaveSession)
	d.RegisterFunc(wsproto.ActionSendOrchestrationMessage, h.handleSendOrchestrationMessage)
}

// OnConnect registers connID under userID with the Connection Manager and
// pushes the spec.md §4.6 on-connect notification. Wired as the transport
// gateway's OnClientConnected hook.
func (h *OrchestratorHub) OnConnect(connID, userID string) {
	h.connMgr.AddConnection(connID, userID)
	push(h.conns, connID, wsproto.ActionConnected, Connected{
		ConnectionID: connID,
		ConnectedAt:  time.Now().UTC(),
	})
}

// OnDisconnect deregisters connID from the Connection Manager. Wired as
// the transport gateway's OnClientDisconnected hook.
func (h *OrchestratorHub) OnDisconnect(connID string) {
	h.connMgr.RemoveConnection(connID)
}

func (h *OrchestratorHub) handleCreateSession(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req CreateSessionRequest
	if err := msg.ParsePayload(&req); err != nil {
		return wsproto.NewResponse(msg.ID, msg.Action, SessionCreatedResponse{Success: false, Error: err.Error()})
	}

	sess, err := h.sessions.CreateSession(ctx, session.CreateRequest{
		Name:             req.Name,
		Type:             req.Type,
		AgentIDs:         req.AgentIDs,
		WorkingDirectory: req.WorkingDirectory,
	})
	if err != nil {
		return wsproto.NewResponse(msg.ID, msg.Action, SessionCreatedResponse{Success: false, Error: err.Error()})
	}

	connID, ok := wsproto.ConnID(ctx)
	if ok {
		h.conns.JoinGroupByID(connID, router.SessionGroup(sess.ID))
		h.connMgr.AddUserToSession(connID, sess.ID)
	}

	if created, cerr := wsproto.NewNotification(wsproto.ActionSessionCreated, sess); cerr == nil {
		h.router.BroadcastToSession(ctx, sess.ID, created)
	}

	return wsproto.NewResponse(msg.ID, msg.Action, SessionCreatedResponse{Success: true, SessionID: sess.ID, Session: sess})
}

func (h *OrchestratorHub) handleJoinSession(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var sessionID string
	if err := msg.ParsePayload(&sessionID); err != nil {
		return nil, err
	}
	connID, ok := wsproto.ConnID(ctx)
	if !ok {
		return nil, apperr.Internal("no connection id in context", nil)
	}

	sess, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		pushError(h.conns, connID, ReceiveError{Error: err.Error(), SessionID: sessionID})
		return nil, nil
	}
	if sess == nil {
		pushError(h.conns, connID, ReceiveError{Error: apperr.NotFound("session", sessionID).Error(), SessionID: sessionID})
		return nil, nil
	}

	h.conns.JoinGroupByID(connID, router.SessionGroup(sessionID))
	h.connMgr.AddUserToSession(connID, sessionID)
	push(h.conns, connID, wsproto.ActionSessionJoined, SessionJoined{SessionID: sessionID, Session: sess})
	return nil, nil
}

func (h *OrchestratorHub) handleLeaveSession(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var sessionID string
	if err := msg.ParsePayload(&sessionID); err != nil {
		return nil, err
	}
	connID, ok := wsproto.ConnID(ctx)
	if !ok {
		return nil, apperr.Internal("no connection id in context", nil)
	}
	h.conns.LeaveGroupByID(connID, router.SessionGroup(sessionID))
	h.connMgr.RemoveUserFromSession(connID, sessionID)
	return nil, nil
}

func (h *OrchestratorHub) handleSendOrchestrationMessage(ctx context.Context, msg *wsproto.Message) (*wsproto.Message, error) {
	var req OrchestrationMessageRequest
	if err := msg.ParsePayload(&req); err != nil {
		return nil, err
	}
	connID, ok := wsproto.ConnID(ctx)
	if !ok {
		return nil, apperr.Internal("no connection id in context", nil)
	}

	if sess, err := h.sessions.GetSession(ctx, req.SessionID); err != nil {
		pushError(h.conns, connID, ReceiveError{Error: err.Error(), SessionID: req.SessionID})
		return nil, nil
	} else if sess == nil {
		pushError(h.conns, connID, ReceiveError{Error: apperr.NotFound("session", req.SessionID).Error(), SessionID: req.SessionID})
		return nil, nil
	}

	plan, err := orchestrator.CreatePlan(orchestrator.CreateRequest{
		SessionID: req.SessionID,
		Goal:      req.Message,
		AgentIDs:  req.AgentIDs,
		Strategy:  req.Strategy,
	})
	if err != nil {
		pushError(h.conns, connID, ReceiveError{Error: err.Error(), SessionID: req.SessionID})
		return nil, nil
	}

	if created, cerr := wsproto.NewNotification(wsproto.ActionOrchestrationPlanCreated, OrchestrationPlanCreated{Plan: plan}); cerr == nil {
		h.router.BroadcastToSession(ctx, req.SessionID, created)
	}

	go h.runPlan(ctx, req.SessionID, plan)
	return nil, nil
}

func (h *OrchestratorHub) runPlan(ctx context.Context, sessionID string, plan *orchestrator.Plan) {
	sink := orchestrator.ProgressSinkFunc(func(ctx context.Context, p orchestrator.Progress) {
		out, err := wsproto.NewNotification(wsproto.ActionOrchestrationProgress, p)
		if err != nil {
			return
		}
		h.router.RouteOrchestrationUpdate(ctx, sessionID, out)
	})

	result, err := h.executor.ExecutePlan(ctx, plan, sink)
	if err != nil {
		h.logger.Error("plan execution failed", zap.String("plan_id", plan.ID), zap.Error(err))
		return
	}

	if out, cerr := wsproto.NewNotification(wsproto.ActionOrchestrationCompleted, OrchestrationCompleted{Result: result}); cerr == nil {
		h.router.BroadcastToSession(ctx, sessionID, out)
	}
}
