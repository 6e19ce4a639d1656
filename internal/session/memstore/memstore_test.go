package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/orchmesh/internal/apperr"
	"github.com/kandev/orchmesh/internal/session"
)

func TestCreateAndGetSessionRoundTrips(t *testing.T) {
	s := New()
	sess := &session.Session{Name: "s1"}
	require.NoError(t, s.CreateSession(context.Background(), sess))
	require.NotEmpty(t, sess.ID)

	got, err := s.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.Name)
}

func TestGetSessionNotFound(t *testing.T) {
	s := New()
	_, err := s.GetSession(context.Background(), "missing")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestUpdateSessionNotFound(t *testing.T) {
	s := New()
	err := s.UpdateSession(context.Background(), &session.Session{ID: "missing"})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestListRecentSessionsOrdersByLastActivityDescending(t *testing.T) {
	s := New()
	older := &session.Session{Name: "older"}
	require.NoError(t, s.CreateSession(context.Background(), older))
	newer := &session.Session{Name: "newer"}
	require.NoError(t, s.CreateSession(context.Background(), newer))

	newer.LastActivityAt = time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.UpdateSession(context.Background(), newer))

	out, err := s.ListRecentSessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "newer", out[0].Name)
}

func TestListRecentSessionsRespectsLimit(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateSession(context.Background(), &session.Session{Name: "s"}))
	}
	out, err := s.ListRecentSessions(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDeleteSessionRemovesMessagesAndSequence(t *testing.T) {
	s := New()
	sess := &session.Session{Name: "s1"}
	require.NoError(t, s.CreateSession(context.Background(), sess))
	_, err := s.AppendMessage(context.Background(), &session.Message{SessionID: sess.ID, Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(context.Background(), sess.ID))
	_, err = s.GetSession(context.Background(), sess.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, err = s.ListMessages(context.Background(), sess.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestAppendMessageAssignsSequentialNumbers(t *testing.T) {
	s := New()
	sess := &session.Session{Name: "s1"}
	require.NoError(t, s.CreateSession(context.Background(), sess))

	seq1, err := s.AppendMessage(context.Background(), &session.Message{SessionID: sess.ID, Content: "a"})
	require.NoError(t, err)
	seq2, err := s.AppendMessage(context.Background(), &session.Message{SessionID: sess.ID, Content: "b"})
	require.NoError(t, err)

	assert.Equal(t, 1, seq1)
	assert.Equal(t, 2, seq2)
}

func TestAppendMessageUnknownSessionFails(t *testing.T) {
	s := New()
	_, err := s.AppendMessage(context.Background(), &session.Message{SessionID: "missing"})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestCreateAndGetSnapshot(t *testing.T) {
	s := New()
	sess := &session.Session{Name: "s1"}
	require.NoError(t, s.CreateSession(context.Background(), sess))

	snap := &session.Snapshot{SessionID: sess.ID, Description: "checkpoint"}
	require.NoError(t, s.CreateSnapshot(context.Background(), snap))
	require.NotEmpty(t, snap.ID)

	got, err := s.GetSnapshot(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "checkpoint", got.Description)
}

func TestListSnapshotsOrdersByCreatedAtAscending(t *testing.T) {
	s := New()
	sess := &session.Session{Name: "s1"}
	require.NoError(t, s.CreateSession(context.Background(), sess))

	first := &session.Snapshot{SessionID: sess.ID, Description: "first"}
	require.NoError(t, s.CreateSnapshot(context.Background(), first))
	second := &session.Snapshot{SessionID: sess.ID, Description: "second", CreatedAt: time.Now().UTC().Add(time.Hour)}
	require.NoError(t, s.CreateSnapshot(context.Background(), second))

	out, err := s.ListSnapshots(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Description)
	assert.Equal(t, "second", out[1].Description)
}
