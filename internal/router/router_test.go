package router

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kandev/orchmesh/internal/wsproto"
)

type recordedBroadcast struct {
	group string
	msg   *wsproto.Message
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []recordedBroadcast
}

func (f *fakeBroadcaster) BroadcastToGroup(ctx context.Context, group string, msg *wsproto.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, recordedBroadcast{group: group, msg: msg})
}

func (f *fakeBroadcaster) groups() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, r := range f.sent {
		out[i] = r.group
	}
	return out
}

func newTestMessage(t *testing.T) *wsproto.Message {
	t.Helper()
	msg, err := wsproto.NewNotification("test.action", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("building test message: %v", err)
	}
	return msg
}

func TestRouteAgentMessageFansToBothGroups(t *testing.T) {
	fb := &fakeBroadcaster{}
	r := New(fb, nil)

	r.RouteAgentMessage(context.Background(), "sess-1", "agent-1", newTestMessage(t))

	assert.ElementsMatch(t, []string{AgentGroup("agent-1"), SessionGroup("sess-1")}, fb.groups())
}

func TestRouteToolExecutionUpdateFansToBothGroups(t *testing.T) {
	fb := &fakeBroadcaster{}
	r := New(fb, nil)

	r.RouteToolExecutionUpdate(context.Background(), "sess-1", "agent-1", newTestMessage(t))

	assert.ElementsMatch(t, []string{AgentGroup("agent-1"), SessionGroup("sess-1")}, fb.groups())
}

func TestRouteOrchestrationUpdateFansToSessionOnly(t *testing.T) {
	fb := &fakeBroadcaster{}
	r := New(fb, nil)

	r.RouteOrchestrationUpdate(context.Background(), "sess-1", newTestMessage(t))

	assert.Equal(t, []string{SessionGroup("sess-1")}, fb.groups())
}

func TestBroadcastToAgentFansToAgentOnly(t *testing.T) {
	fb := &fakeBroadcaster{}
	r := New(fb, nil)

	r.BroadcastToAgent(context.Background(), "agent-1", newTestMessage(t))

	assert.Equal(t, []string{AgentGroup("agent-1")}, fb.groups())
}

func TestBroadcastToSessionFansToSessionOnly(t *testing.T) {
	fb := &fakeBroadcaster{}
	r := New(fb, nil)

	r.BroadcastToSession(context.Background(), "sess-1", newTestMessage(t))

	assert.Equal(t, []string{SessionGroup("sess-1")}, fb.groups())
}

func TestGroupNameFormat(t *testing.T) {
	assert.Equal(t, "agent-abc", AgentGroup("abc"))
	assert.Equal(t, "session-xyz", SessionGroup("xyz"))
}
