// Package memstore provides an in-memory session.Repository, grounded on
// the teacher's task/repository.MemoryRepository: mutex-guarded maps,
// UUID defaults, UTC timestamps.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kandev/orchmesh/internal/apperr"
	"github.com/kandev/orchmesh/internal/session"
)

// Store implements session.Repository entirely in process memory.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*session.Session
	messages  map[string][]*session.Message
	snapshots map[string]*session.Snapshot
	nextSeq   map[string]int
}

var _ session.Repository = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions:  make(map[string]*session.Session),
		messages:  make(map[string][]*session.Message),
		snapshots: make(map[string]*session.Snapshot),
		nextSeq:   make(map[string]int),
	}
}

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.LastActivityAt = now

	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session", id)
	}
	return sess.Clone(), nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return apperr.NotFound("session", sess.ID)
	}
	sess.LastActivityAt = time.Now().UTC()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *Store) ListRecentSessions(ctx context.Context, limit int) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	// Ties broken by CreatedAt descending, then Id ascending, per spec.md
	// §4.2, so equal-activity sessions order deterministically.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return apperr.NotFound("session", id)
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	delete(s.nextSeq, id)
	return nil
}

// AppendMessage assigns the next SequenceNumber for msg.SessionID under
// the store lock, so concurrent appends to the same session can never
// observe or assign a duplicate or out-of-order sequence number.
func (s *Store) AppendMessage(ctx context.Context, msg *session.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[msg.SessionID]; !ok {
		return 0, apperr.NotFound("session", msg.SessionID)
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	s.nextSeq[msg.SessionID]++
	msg.SequenceNumber = s.nextSeq[msg.SessionID]

	stored := *msg
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], &stored)

	if sess, ok := s.sessions[msg.SessionID]; ok {
		sess.LastActivityAt = msg.Timestamp
		sess.Messages = append(sess.Messages, &stored)
	}

	return msg.SequenceNumber, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]*session.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, apperr.NotFound("session", sessionID)
	}
	msgs := s.messages[sessionID]
	out := make([]*session.Message, len(msgs))
	for i, m := range msgs {
		mc := *m
		out[i] = &mc
	}
	return out, nil
}

func (s *Store) CreateSnapshot(ctx context.Context, snap *session.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[snap.SessionID]; !ok {
		return apperr.NotFound("session", snap.SessionID)
	}
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	s.snapshots[snap.ID] = snap
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, id string) (*session.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return nil, apperr.NotFound("snapshot", id)
	}
	return snap, nil
}

func (s *Store) ListSnapshots(ctx context.Context, sessionID string) ([]*session.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*session.Snapshot, 0)
	for _, snap := range s.snapshots {
		if snap.SessionID == sessionID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
