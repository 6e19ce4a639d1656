// Package wsgateway is the WebSocket transport gateway: HTTP upgrade via
// gin, per-connection read/write pumps via gorilla/websocket, and named
// transport groups (agent-{agentId} / session-{sessionId}) that the
// Message Router broadcasts into. Grounded on the teacher's
// internal/gateway/websocket/{hub,client,setup,handler}.go, generalized
// from the teacher's single task-id group kind to the two group kinds
// spec.md §4.5 names.
package wsgateway

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/orchmesh/internal/logging"
	"github.com/kandev/orchmesh/internal/router"
	"github.com/kandev/orchmesh/internal/wsproto"
)

var _ router.GroupBroadcaster = (*Hub)(nil)

// Hub manages every registered connection and its named-group memberships.
type Hub struct {
	clients     map[*Client]struct{}
	clientsByID map[string]*Client
	groups      map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan groupBroadcast

	dispatcher *wsproto.Dispatcher

	mu     sync.RWMutex
	logger *logging.Logger
}

type groupBroadcast struct {
	group string
	msg   *wsproto.Message
}

// NewHub constructs a Hub dispatching inbound messages through dispatcher.
func NewHub(dispatcher *wsproto.Dispatcher, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Default()
	}
	return &Hub{
		clients:     make(map[*Client]struct{}),
		clientsByID: make(map[string]*Client),
		groups:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan groupBroadcast, 256),
		dispatcher: dispatcher,
		logger:     log.WithFields(zap.String("component", "ws_hub")),
	}
}

// Run drives the hub's registration and broadcast loop until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")
	defer h.logger.Info("websocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.clientsByID[client.ID] = client
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("client_id", client.ID))
		case client := <-h.unregister:
			h.removeClient(client)
		case gb := <-h.broadcast:
			h.deliverToGroup(gb.group, gb.msg)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
	h.clientsByID = make(map[string]*Client)
	h.groups = make(map[string]map[*Client]struct{})
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	delete(h.clientsByID, client.ID)
	client.closeSend()

	for group := range client.memberOf {
		if members, ok := h.groups[group]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.groups, group)
			}
		}
	}
	h.logger.Debug("client unregistered", zap.String("client_id", client.ID))
}

// Register adds client to the hub.
func (h *Hub) Register(client *Client) { h.register <- client }

// Unregister removes client from the hub.
func (h *Hub) Unregister(client *Client) { h.unregister <- client }

// JoinGroup adds client to group.
func (h *Hub) JoinGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.groups[group]; !ok {
		h.groups[group] = make(map[*Client]struct{})
	}
	h.groups[group][client] = struct{}{}
	client.memberOf[group] = struct{}{}
}

// LeaveGroup removes client from group.
func (h *Hub) LeaveGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.memberOf, group)
	if members, ok := h.groups[group]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// GroupMembers returns the connection ids currently in group.
func (h *Hub) GroupMembers(group string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.groups[group]))
	for c := range h.groups[group] {
		out = append(out, c.ID)
	}
	return out
}

// BroadcastToGroup implements router.GroupBroadcaster: it enqueues msg for
// asynchronous delivery to group's current members.
func (h *Hub) BroadcastToGroup(ctx context.Context, group string, msg *wsproto.Message) {
	select {
	case h.broadcast <- groupBroadcast{group: group, msg: msg}:
	case <-ctx.Done():
	}
}

func (h *Hub) deliverToGroup(group string, msg *wsproto.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal group broadcast", zap.Error(err))
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.groups[group]))
	for c := range h.groups[group] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.sendBytes(data) {
			h.logger.Warn("client send buffer full, dropping group message",
				zap.String("client_id", c.ID), zap.String("group", group))
		}
	}
}

// JoinGroupByID adds the connection identified by connID to group.
// Returns false if connID is not currently registered.
func (h *Hub) JoinGroupByID(connID, group string) bool {
	h.mu.RLock()
	client, ok := h.clientsByID[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	h.JoinGroup(client, group)
	return true
}

// LeaveGroupByID removes the connection identified by connID from group.
// Returns false if connID is not currently registered.
func (h *Hub) LeaveGroupByID(connID, group string) bool {
	h.mu.RLock()
	client, ok := h.clientsByID[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	h.LeaveGroup(client, group)
	return true
}

// SendToConnection delivers msg to exactly one connection, bypassing
// groups. Returns false if connID is not registered or its send buffer is
// full.
func (h *Hub) SendToConnection(connID string, msg *wsproto.Message) bool {
	h.mu.RLock()
	client, ok := h.clientsByID[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return false
	}
	return client.sendBytes(data)
}

// ClientCount returns the number of currently registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
