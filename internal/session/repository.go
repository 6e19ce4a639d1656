package session

import "context"

// Repository persists sessions and their message logs. Implementations
// (memstore, pgstore) must make AppendMessage atomic with assigning the
// next SequenceNumber for that session.
type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error
	ListRecentSessions(ctx context.Context, limit int) ([]*Session, error)
	DeleteSession(ctx context.Context, id string) error

	// AppendMessage assigns the next SequenceNumber for msg.SessionID and
	// stores msg, returning the assigned value.
	AppendMessage(ctx context.Context, msg *Message) (int, error)
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)

	CreateSnapshot(ctx context.Context, snap *Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
	ListSnapshots(ctx context.Context, sessionID string) ([]*Snapshot, error)
}

// ErrNotFound-style sentinel lookups go through apperr.NotFound instead of
// a package-level sentinel error, matching the teacher's repository style.
