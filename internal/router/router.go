// Package router implements the Message Router (spec.md §4.5): given a
// logical addressing intent (a session or an agent), deliver a wsproto
// Message to the correct transport group, never propagating a delivery
// failure back to the producer (spec.md §7's propagation rule). Grounded
// on the teacher's gateway/websocket.Hub's taskSubscribers fan-out map
// (BroadcastToTask), generalized from one group kind (task) to the two
// group kinds spec.md §4.5 names: `agent-{agentId}` / `session-{sessionId}`.
package router

import (
	"context"

	"go.uber.org/zap"

	"github.com/kandev/orchmesh/internal/logging"
	"github.com/kandev/orchmesh/internal/wsproto"
)

// GroupBroadcaster delivers a Message to every transport connection
// currently a member of a named group. Implementations (the WebSocket
// gateway) must isolate per-connection send failures internally; a
// group with no members is a silent no-op, not an error.
type GroupBroadcaster interface {
	BroadcastToGroup(ctx context.Context, group string, msg *wsproto.Message)
}

// Router translates spec.md §4.5's addressing intents into named-group
// broadcasts.
type Router struct {
	broadcaster GroupBroadcaster
	logger      *logging.Logger
}

// New constructs a Router over broadcaster.
func New(broadcaster GroupBroadcaster, log *logging.Logger) *Router {
	if log == nil {
		log = logging.Default()
	}
	return &Router{
		broadcaster: broadcaster,
		logger:      log.WithFields(zap.String("component", "message_router")),
	}
}

// AgentGroup returns the transport group name for agentID.
func AgentGroup(agentID string) string { return "agent-" + agentID }

// SessionGroup returns the transport group name for sessionID.
func SessionGroup(sessionID string) string { return "session-" + sessionID }

// RouteAgentMessage delivers a streamed chunk or final response to every
// connection subscribed to either agentID's group or sessionID's group,
// per spec.md §4.5.
func (r *Router) RouteAgentMessage(ctx context.Context, sessionID, agentID string, msg *wsproto.Message) {
	r.broadcaster.BroadcastToGroup(ctx, AgentGroup(agentID), msg)
	r.broadcaster.BroadcastToGroup(ctx, SessionGroup(sessionID), msg)
}

// RouteToolExecutionUpdate delivers a tool execution update to both
// agentID's group and sessionID's group.
func (r *Router) RouteToolExecutionUpdate(ctx context.Context, sessionID, agentID string, msg *wsproto.Message) {
	r.broadcaster.BroadcastToGroup(ctx, AgentGroup(agentID), msg)
	r.broadcaster.BroadcastToGroup(ctx, SessionGroup(sessionID), msg)
}

// RouteOrchestrationUpdate delivers an orchestration progress/completion
// push to every connection in sessionID's group.
func (r *Router) RouteOrchestrationUpdate(ctx context.Context, sessionID string, msg *wsproto.Message) {
	r.broadcaster.BroadcastToGroup(ctx, SessionGroup(sessionID), msg)
}

// BroadcastToSession delivers msg to every connection currently a member
// of sessionID's group.
func (r *Router) BroadcastToSession(ctx context.Context, sessionID string, msg *wsproto.Message) {
	r.broadcaster.BroadcastToGroup(ctx, SessionGroup(sessionID), msg)
}

// BroadcastToAgent delivers msg to every connection currently subscribed
// to agentID's group only (e.g. agent status updates, which have no
// session to also fan out to).
func (r *Router) BroadcastToAgent(ctx context.Context, agentID string, msg *wsproto.Message) {
	r.broadcaster.BroadcastToGroup(ctx, AgentGroup(agentID), msg)
}
