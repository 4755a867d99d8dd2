package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagars2004/Flowstate/core"
)

// InterventionStore persists delivered coaching messages so session
// history can show what was said and when.
type InterventionStore struct {
	conn *sql.DB
}

// NewInterventionStore creates a store over the database.
func NewInterventionStore(database *Database) *InterventionStore {
	return &InterventionStore{conn: database.Conn()}
}

// Insert records a delivered intervention.
func (s *InterventionStore) Insert(ctx context.Context, msg core.InterventionMessage) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO interventions (
			id, session_id, pattern_type, severity,
			message, urgency, style, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.SessionID,
		string(msg.Pattern.Type),
		string(msg.Pattern.Severity),
		msg.Message,
		msg.Urgency,
		msg.Style,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert intervention: %w", err)
	}
	return nil
}

// FindBySessionID returns a session's interventions oldest first.
// Only the pattern type and severity are stored, so the returned
// Pattern carries those two fields without the original description.
func (s *InterventionStore) FindBySessionID(ctx context.Context, sessionID string) ([]core.InterventionMessage, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, session_id, pattern_type, severity,
		       message, urgency, style, created_at
		FROM interventions
		WHERE session_id = ?
		ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interventions: %w", err)
	}
	defer rows.Close()

	var messages []core.InterventionMessage
	for rows.Next() {
		msg, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interventions: %w", err)
	}
	return messages, nil
}

func scanIntervention(rows *sql.Rows) (core.InterventionMessage, error) {
	var (
		msg         core.InterventionMessage
		patternType string
		severity    string
		createdAt   string
	)
	err := rows.Scan(
		&msg.ID,
		&msg.SessionID,
		&patternType,
		&severity,
		&msg.Message,
		&msg.Urgency,
		&msg.Style,
		&createdAt,
	)
	if err != nil {
		return core.InterventionMessage{}, fmt.Errorf("failed to scan intervention: %w", err)
	}

	msg.Pattern = core.DistractionPattern{
		Type:     core.PatternType(patternType),
		Severity: core.Severity(severity),
	}
	if msg.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.InterventionMessage{}, fmt.Errorf("failed to parse intervention timestamp: %w", err)
	}
	return msg, nil
}
