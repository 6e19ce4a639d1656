package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/orchmesh/internal/apperr"
	"github.com/kandev/orchmesh/internal/events"
	"github.com/kandev/orchmesh/internal/logging"
)

// Manager is the Session Manager of spec.md §4.2: session lifecycle, the
// ordered message log, and context, backed by a pluggable Repository and
// publishing domain events for every state change.
type Manager struct {
	repo   Repository
	bus    *events.Bus
	logger *logging.Logger

	// current is the process-wide "current session" pointer (spec.md
	// §4.2, §9), set on every CreateSession and explicit SetCurrent
	// call. Single-user assumption at this layer: multi-user
	// deployments should not rely on it.
	current atomic.Pointer[Session]
}

// New constructs a Manager over repo, publishing events on bus.
func New(repo Repository, bus *events.Bus, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		repo:   repo,
		bus:    bus,
		logger: log.WithFields(zap.String("component", "session_manager")),
	}
}

// CreateSession creates a new Active session and publishes SessionCreated.
// An empty Name is accepted as-is; the caller defines name semantics.
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (*Session, error) {
	typ := req.Type
	if typ == "" {
		typ = TypeSingleAgent
	}

	sess := &Session{
		ID:                  uuid.New().String(),
		Name:                req.Name,
		Type:                typ,
		Status:              StatusActive,
		ParticipantAgentIDs: append([]string(nil), req.AgentIDs...),
		Context:             make(map[string]any),
		WorkingDirectory:    req.WorkingDirectory,
	}
	if err := m.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	if err := events.Publish(ctx, m.bus, "session_manager", events.SessionCreated{
		Base:      events.Base{ID: uuid.New().String(), Timestamp: time.Now().UTC(), Source: "session_manager"},
		SessionID: sess.ID,
		Name:      sess.Name,
	}); err != nil {
		m.logger.Error("publishing SessionCreated failed", zap.Error(err))
	}

	created, err := m.repo.GetSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	m.current.Store(created)
	return created, nil
}

// GetSession retrieves a session by id. A null/empty id returns absent
// (nil, nil) without calling the repository.
func (m *Manager) GetSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	return m.repo.GetSession(ctx, id)
}

// GetCurrentSession returns the last session created or explicitly switched
// to by this process (via SetCurrent), or absent (nil, nil) if neither has
// ever happened.
func (m *Manager) GetCurrentSession(ctx context.Context) (*Session, error) {
	return m.current.Load(), nil
}

// SetCurrent switches the process-wide current session pointer to
// sessionID, returning the session it now points to.
func (m *Manager) SetCurrent(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m.current.Store(sess)
	return sess, nil
}

// GetRecentSessions returns up to limit sessions ordered most-recent-first.
// limit <= 0 returns empty without calling the repository.
func (m *Manager) GetRecentSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		return nil, nil
	}
	return m.repo.ListRecentSessions(ctx, limit)
}

// AddMessage appends msg to the session's log, assigning it the next
// monotone SequenceNumber for that session, and publishes MessageAdded.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, msg *Message) (*Message, error) {
	if sessionID == "" {
		return nil, apperr.InvalidArgument("session id must not be empty")
	}
	if msg == nil {
		return nil, apperr.InvalidArgument("message must not be nil")
	}
	msg.SessionID = sessionID

	seq, err := m.repo.AppendMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.SequenceNumber = seq

	if err := events.Publish(ctx, m.bus, "session_manager", events.MessageAdded{
		Base:           events.Base{ID: uuid.New().String(), Timestamp: time.Now().UTC(), Source: "session_manager"},
		SessionID:      sessionID,
		MessageID:      msg.ID,
		AgentID:        msg.AgentID,
		SequenceNumber: seq,
	}); err != nil {
		m.logger.Error("publishing MessageAdded failed", zap.Error(err))
	}

	return msg, nil
}

// ListMessages returns a session's full message log in sequence order.
func (m *Manager) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	return m.repo.ListMessages(ctx, sessionID)
}

// UpdateSessionContext merges updates into the session's Context map.
func (m *Manager) UpdateSessionContext(ctx context.Context, sessionID string, updates map[string]any) (*Session, error) {
	sess, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Context == nil {
		sess.Context = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		sess.Context[k] = v
	}
	if err := m.repo.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// EndSession transitions a session to Completed and publishes SessionEnded,
// returning whether a session was found and ended. A null/empty sessionID,
// or one naming no session, returns false without further side effects.
// Ending an already-terminal session is idempotent, per spec.md §5 edge cases.
func (m *Manager) EndSession(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}
	sess, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return false
	}
	if sess.Status == StatusCompleted || sess.Status == StatusFailed || sess.Status == StatusArchived {
		return true
	}
	sess.Status = StatusCompleted
	if err := m.repo.UpdateSession(ctx, sess); err != nil {
		return false
	}

	if err := events.Publish(ctx, m.bus, "session_manager", events.SessionEnded{
		Base:      events.Base{ID: uuid.New().String(), Timestamp: time.Now().UTC(), Source: "session_manager"},
		SessionID: sessionID,
	}); err != nil {
		m.logger.Error("publishing SessionEnded failed", zap.Error(err))
	}
	return true
}

// CreateSnapshot persists a point-in-time Snapshot of a session plus
// caller-supplied agent runtime state.
func (m *Manager) CreateSnapshot(ctx context.Context, sessionID, description string, agentStates map[string]any) (*Snapshot, error) {
	sess, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		CreatedAt:    time.Now().UTC(),
		Description:  description,
		SessionState: sess,
		AgentStates:  agentStates,
	}
	if err := m.repo.CreateSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RestoreSnapshot returns the session state captured by a prior snapshot.
func (m *Manager) RestoreSnapshot(ctx context.Context, snapshotID string) (*Snapshot, error) {
	return m.repo.GetSnapshot(ctx, snapshotID)
}

// ListSnapshots returns snapshots for a session, oldest first.
func (m *Manager) ListSnapshots(ctx context.Context, sessionID string) ([]*Snapshot, error) {
	return m.repo.ListSnapshots(ctx, sessionID)
}
