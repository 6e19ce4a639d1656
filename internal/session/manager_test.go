package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/orchmesh/internal/events"
	"github.com/kandev/orchmesh/internal/session"
	"github.com/kandev/orchmesh/internal/session/memstore"
)

func newTestManager() *session.Manager {
	return session.New(memstore.New(), events.New(nil, nil), nil)
}

func TestCreateSessionDefaultsTypeAndStatus(t *testing.T) {
	m := newTestManager()
	sess, err := m.CreateSession(context.Background(), session.CreateRequest{Name: "s1"})
	require.NoError(t, err)

	assert.Equal(t, session.TypeSingleAgent, sess.Type)
	assert.Equal(t, session.StatusActive, sess.Status)
	assert.NotEmpty(t, sess.ID)
}

func TestCreateSessionAcceptsEmptyName(t *testing.T) {
	m := newTestManager()
	sess, err := m.CreateSession(context.Background(), session.CreateRequest{})
	require.NoError(t, err)
	assert.Empty(t, sess.Name)
	assert.NotEmpty(t, sess.ID)
}

func TestAddMessageAssignsIncrementingSequenceNumbers(t *testing.T) {
	m := newTestManager()
	sess, err := m.CreateSession(context.Background(), session.CreateRequest{Name: "s1"})
	require.NoError(t, err)

	msg1, err := m.AddMessage(context.Background(), sess.ID, &session.Message{ID: "m1", Role: session.RoleUser, Content: "hi"})
	require.NoError(t, err)
	msg2, err := m.AddMessage(context.Background(), sess.ID, &session.Message{ID: "m2", Role: session.RoleAssistant, Content: "hello"})
	require.NoError(t, err)

	assert.Equal(t, 1, msg1.SequenceNumber)
	assert.Equal(t, 2, msg2.SequenceNumber)

	history, err := m.ListMessages(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, "hello", history[1].Content)
}

func TestEndSessionIsIdempotent(t *testing.T) {
	m := newTestManager()
	sess, err := m.CreateSession(context.Background(), session.CreateRequest{Name: "s1"})
	require.NoError(t, err)

	assert.True(t, m.EndSession(context.Background(), sess.ID))
	assert.True(t, m.EndSession(context.Background(), sess.ID))

	got, err := m.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, got.Status)
}

func TestEndSessionRejectsEmptyID(t *testing.T) {
	m := newTestManager()
	assert.False(t, m.EndSession(context.Background(), ""))
}

func TestEndSessionReportsUnknownSession(t *testing.T) {
	m := newTestManager()
	assert.False(t, m.EndSession(context.Background(), "nope"))
}

func TestUpdateSessionContextMerges(t *testing.T) {
	m := newTestManager()
	sess, err := m.CreateSession(context.Background(), session.CreateRequest{Name: "s1"})
	require.NoError(t, err)

	updated, err := m.UpdateSessionContext(context.Background(), sess.ID, map[string]any{"k1": "v1"})
	require.NoError(t, err)
	assert.Equal(t, "v1", updated.Context["k1"])

	updated, err = m.UpdateSessionContext(context.Background(), sess.ID, map[string]any{"k2": "v2"})
	require.NoError(t, err)
	assert.Equal(t, "v1", updated.Context["k1"])
	assert.Equal(t, "v2", updated.Context["k2"])
}

func TestGetCurrentSessionReturnsLastCreated(t *testing.T) {
	m := newTestManager()
	_, err := m.CreateSession(context.Background(), session.CreateRequest{Name: "s1"})
	require.NoError(t, err)
	s2, err := m.CreateSession(context.Background(), session.CreateRequest{Name: "s2"})
	require.NoError(t, err)

	current, err := m.GetCurrentSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s2.ID, current.ID)
}

func TestGetCurrentSessionAbsentBeforeAnyCreate(t *testing.T) {
	m := newTestManager()
	current, err := m.GetCurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestSetCurrentSwitchesCurrentSession(t *testing.T) {
	m := newTestManager()
	s1, err := m.CreateSession(context.Background(), session.CreateRequest{Name: "s1"})
	require.NoError(t, err)
	_, err = m.CreateSession(context.Background(), session.CreateRequest{Name: "s2"})
	require.NoError(t, err)

	current, err := m.SetCurrent(context.Background(), s1.ID)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, current.ID)

	got, err := m.GetCurrentSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s1.ID, got.ID)
}

func TestGetSessionAbsentForEmptyID(t *testing.T) {
	m := newTestManager()
	got, err := m.GetSession(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetRecentSessionsEmptyForNonPositiveLimit(t *testing.T) {
	m := newTestManager()
	_, err := m.CreateSession(context.Background(), session.CreateRequest{Name: "s1"})
	require.NoError(t, err)

	got, err := m.GetRecentSessions(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = m.GetRecentSessions(context.Background(), -1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCreateAndRestoreSnapshot(t *testing.T) {
	m := newTestManager()
	sess, err := m.CreateSession(context.Background(), session.CreateRequest{Name: "s1"})
	require.NoError(t, err)

	snap, err := m.CreateSnapshot(context.Background(), sess.ID, "checkpoint", map[string]any{"agent-1": "ready"})
	require.NoError(t, err)

	restored, err := m.RestoreSnapshot(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, restored.SessionID)
	assert.Equal(t, "checkpoint", restored.Description)
}
