package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sagars2004/Flowstate/core"
)

// ErrSessionNotFound is returned when a session ID has no row.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists session lifecycle state.
type SessionStore struct {
	conn *sql.DB
}

// NewSessionStore creates a store over the database.
func NewSessionStore(database *Database) *SessionStore {
	return &SessionStore{conn: database.Conn()}
}

// Create inserts a new session row. An empty status defaults to active.
func (s *SessionStore) Create(ctx context.Context, session core.Session) error {
	status := session.Status
	if status == "" {
		status = core.SessionActive
	}

	var endTime interface{}
	if session.EndTime != nil {
		endTime = formatTime(*session.EndTime)
	}

	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO sessions (id, start_time, end_time, status) VALUES (?, ?, ?, ?)",
		session.ID, formatTime(session.StartTime), endTime, status)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get returns one session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (core.Session, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT id, start_time, end_time, status FROM sessions WHERE id = ?", id)
	return scanSession(row)
}

// GetOrCreate returns the session, creating an active one started at
// startTime if it does not exist yet. The ingestion path uses this so
// the first event of a session implicitly opens it.
func (s *SessionStore) GetOrCreate(ctx context.Context, id string, startTime time.Time) (core.Session, error) {
	session, err := s.Get(ctx, id)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return core.Session{}, err
	}

	session = core.Session{
		ID:        id,
		StartTime: startTime,
		Status:    core.SessionActive,
	}
	if err := s.Create(ctx, session); err != nil {
		return core.Session{}, err
	}
	return session, nil
}

// End marks an active session completed at endTime and returns the
// updated row. Ending an already-completed session is a no-op that
// returns the stored row, so the endpoint stays idempotent.
func (s *SessionStore) End(ctx context.Context, id string, endTime time.Time) (core.Session, error) {
	_, err := s.conn.ExecContext(ctx,
		"UPDATE sessions SET end_time = ?, status = ? WHERE id = ? AND status = ?",
		formatTime(endTime), core.SessionCompleted, id, core.SessionActive)
	if err != nil {
		return core.Session{}, fmt.Errorf("failed to end session: %w", err)
	}
	return s.Get(ctx, id)
}

// ListActive returns all sessions still marked active, oldest first.
func (s *SessionStore) ListActive(ctx context.Context) ([]core.Session, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, start_time, end_time, status FROM sessions WHERE status = ? ORDER BY start_time ASC",
		core.SessionActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []core.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read active sessions: %w", err)
	}
	return sessions, nil
}

// scannable covers both sql.Row and sql.Rows.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scannable) (core.Session, error) {
	var (
		session   core.Session
		startTime string
		endTime   sql.NullString
	)
	err := row.Scan(&session.ID, &startTime, &endTime, &session.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("failed to scan session: %w", err)
	}

	if session.StartTime, err = parseTime(startTime); err != nil {
		return core.Session{}, fmt.Errorf("failed to parse session start time: %w", err)
	}
	if endTime.Valid {
		parsed, err := parseTime(endTime.String)
		if err != nil {
			return core.Session{}, fmt.Errorf("failed to parse session end time: %w", err)
		}
		session.EndTime = &parsed
	}
	return session, nil
}
