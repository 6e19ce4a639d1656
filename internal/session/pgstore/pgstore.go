// Package pgstore implements session.Repository on PostgreSQL via pgx,
// grounded on the teacher's internal/common/database.DB (pgxpool wrapper
// with WithTx) and internal/task/repository/sqlite's JSON-metadata
// marshaling idiom, adapted from sqlite's "?" placeholders to pgx's "$N".
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kandev/orchmesh/internal/apperr"
	"github.com/kandev/orchmesh/internal/config"
	"github.com/kandev/orchmesh/internal/session"
)

// DB wraps a pgxpool.Pool, mirroring the teacher's database.DB surface.
type DB struct {
	pool *pgxpool.Pool
}

// Open creates a connection pool from cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Pool exposes the underlying pgxpool.Pool for migrations and diagnostics.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// Close closes the connection pool.
func (db *DB) Close() { db.pool.Close() }

// Store implements session.Repository against Postgres.
type Store struct {
	db *DB
}

var _ session.Repository = (*Store)(nil)

// New wraps db as a session.Repository.
func New(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	participants, err := json.Marshal(sess.ParticipantAgentIDs)
	if err != nil {
		return fmt.Errorf("marshaling participant agent ids: %w", err)
	}
	sessContext, err := json.Marshal(sess.Context)
	if err != nil {
		return fmt.Errorf("marshaling session context: %w", err)
	}

	return s.db.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO sessions (id, name, type, status, created_at, last_activity_at, participant_agents, context, working_directory)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, sess.ID, sess.Name, string(sess.Type), string(sess.Status), sess.CreatedAt, sess.LastActivityAt, participants, sessContext, sess.WorkingDirectory)
		if err != nil {
			return fmt.Errorf("inserting session: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO session_sequence_counters (session_id, next_value) VALUES ($1, 1)
		`, sess.ID)
		if err != nil {
			return fmt.Errorf("initializing sequence counter: %w", err)
		}
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	sess := &session.Session{}
	var typ, status string
	var participants, sessContext []byte

	err := s.db.pool.QueryRow(ctx, `
		SELECT id, name, type, status, created_at, last_activity_at, participant_agents, context, working_directory
		FROM sessions WHERE id = $1
	`, id).Scan(&sess.ID, &sess.Name, &typ, &status, &sess.CreatedAt, &sess.LastActivityAt, &participants, &sessContext, &sess.WorkingDirectory)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("session", id)
		}
		return nil, fmt.Errorf("querying session: %w", err)
	}
	sess.Type = session.Type(typ)
	sess.Status = session.Status(status)
	if err := json.Unmarshal(participants, &sess.ParticipantAgentIDs); err != nil {
		return nil, fmt.Errorf("unmarshaling participant agent ids: %w", err)
	}
	if err := json.Unmarshal(sessContext, &sess.Context); err != nil {
		return nil, fmt.Errorf("unmarshaling session context: %w", err)
	}

	msgs, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *session.Session) error {
	participants, err := json.Marshal(sess.ParticipantAgentIDs)
	if err != nil {
		return fmt.Errorf("marshaling participant agent ids: %w", err)
	}
	sessContext, err := json.Marshal(sess.Context)
	if err != nil {
		return fmt.Errorf("marshaling session context: %w", err)
	}

	tag, err := s.db.pool.Exec(ctx, `
		UPDATE sessions SET name = $2, type = $3, status = $4, last_activity_at = $5,
			participant_agents = $6, context = $7, working_directory = $8
		WHERE id = $1
	`, sess.ID, sess.Name, string(sess.Type), string(sess.Status), sess.LastActivityAt, participants, sessContext, sess.WorkingDirectory)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("session", sess.ID)
	}
	return nil
}

func (s *Store) ListRecentSessions(ctx context.Context, limit int) ([]*session.Session, error) {
	query := `
		SELECT id, name, type, status, created_at, last_activity_at, participant_agents, context, working_directory
		FROM sessions ORDER BY last_activity_at DESC, created_at DESC, id ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess := &session.Session{}
		var typ, status string
		var participants, sessContext []byte
		if err := rows.Scan(&sess.ID, &sess.Name, &typ, &status, &sess.CreatedAt, &sess.LastActivityAt, &participants, &sessContext, &sess.WorkingDirectory); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sess.Type = session.Type(typ)
		sess.Status = session.Status(status)
		_ = json.Unmarshal(participants, &sess.ParticipantAgentIDs)
		_ = json.Unmarshal(sessContext, &sess.Context)
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.db.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("session", id)
	}
	return nil
}

// AppendMessage assigns the next SequenceNumber inside the transaction
// that increments session_sequence_counters, so concurrent writers
// serialize on the per-session counter row rather than the whole table.
func (s *Store) AppendMessage(ctx context.Context, msg *session.Message) (int, error) {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return 0, fmt.Errorf("marshaling attachments: %w", err)
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshaling metadata: %w", err)
	}
	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return 0, fmt.Errorf("marshaling tool calls: %w", err)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	var seq int
	err = s.db.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE session_sequence_counters SET next_value = next_value + 1
			WHERE session_id = $1
			RETURNING next_value - 1
		`, msg.SessionID).Scan(&seq)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apperr.NotFound("session", msg.SessionID)
			}
			return fmt.Errorf("incrementing sequence counter: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO session_messages (id, session_id, agent_id, role, content, "timestamp", attachments, metadata, tool_calls, sequence_number)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, msg.ID, msg.SessionID, msg.AgentID, string(msg.Role), msg.Content, msg.Timestamp, attachments, metadata, toolCalls, seq)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}

		_, err = tx.Exec(ctx, `UPDATE sessions SET last_activity_at = $2 WHERE id = $1`, msg.SessionID, msg.Timestamp)
		return err
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]*session.Message, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT id, session_id, agent_id, role, content, "timestamp", attachments, metadata, tool_calls, sequence_number
		FROM session_messages WHERE session_id = $1 ORDER BY sequence_number ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []*session.Message
	for rows.Next() {
		msg := &session.Message{}
		var role string
		var attachments, metadata, toolCalls []byte
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.AgentID, &role, &msg.Content, &msg.Timestamp, &attachments, &metadata, &toolCalls, &msg.SequenceNumber); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.Role = session.Role(role)
		_ = json.Unmarshal(attachments, &msg.Attachments)
		_ = json.Unmarshal(metadata, &msg.Metadata)
		_ = json.Unmarshal(toolCalls, &msg.ToolCalls)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *Store) CreateSnapshot(ctx context.Context, snap *session.Snapshot) error {
	sessionState, err := json.Marshal(snap.SessionState)
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}
	agentStates, err := json.Marshal(snap.AgentStates)
	if err != nil {
		return fmt.Errorf("marshaling agent states: %w", err)
	}

	_, err = s.db.pool.Exec(ctx, `
		INSERT INTO session_snapshots (id, session_id, created_at, description, session_state, agent_states)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, snap.ID, snap.SessionID, snap.CreatedAt, snap.Description, sessionState, agentStates)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, id string) (*session.Snapshot, error) {
	snap := &session.Snapshot{}
	var sessionState, agentStates []byte

	err := s.db.pool.QueryRow(ctx, `
		SELECT id, session_id, created_at, description, session_state, agent_states
		FROM session_snapshots WHERE id = $1
	`, id).Scan(&snap.ID, &snap.SessionID, &snap.CreatedAt, &snap.Description, &sessionState, &agentStates)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("snapshot", id)
		}
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	if err := json.Unmarshal(sessionState, &snap.SessionState); err != nil {
		return nil, fmt.Errorf("unmarshaling session state: %w", err)
	}
	if err := json.Unmarshal(agentStates, &snap.AgentStates); err != nil {
		return nil, fmt.Errorf("unmarshaling agent states: %w", err)
	}
	return snap, nil
}

func (s *Store) ListSnapshots(ctx context.Context, sessionID string) ([]*session.Snapshot, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT id, session_id, created_at, description, session_state, agent_states
		FROM session_snapshots WHERE session_id = $1 ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []*session.Snapshot
	for rows.Next() {
		snap := &session.Snapshot{}
		var sessionState, agentStates []byte
		if err := rows.Scan(&snap.ID, &snap.SessionID, &snap.CreatedAt, &snap.Description, &sessionState, &agentStates); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		_ = json.Unmarshal(sessionState, &snap.SessionState)
		_ = json.Unmarshal(agentStates, &snap.AgentStates)
		out = append(out, snap)
	}
	return out, rows.Err()
}
