package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sagars2004/Flowstate/core"
)

// ActivityFilter narrows a session's event query.
type ActivityFilter struct {
	// Types restricts results to these event types; empty means all
	Types []core.EventType

	// Limit, when positive, returns only the most recent N events.
	// Results are still in ascending timestamp order, so a limited
	// query yields the tail of the session, which is what the
	// realtime analysis window wants.
	Limit int
}

// ActivityStore persists and reads back behavioral events. Inserts go
// through the async writer when one is attached so ingestion never
// waits on disk; reads always hit the connection directly.
type ActivityStore struct {
	conn   *sql.DB
	writer *AsyncWriter
}

// NewActivityStore creates a store over the database. writer may be
// nil, in which case all inserts are synchronous.
func NewActivityStore(database *Database, writer *AsyncWriter) *ActivityStore {
	return &ActivityStore{conn: database.Conn(), writer: writer}
}

const insertActivityQuery = `
	INSERT INTO activity_events (
		id, session_id, timestamp, event_type, url,
		typing_velocity, idle_duration, metadata
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Insert records one activity event. With an async writer attached
// the write is queued and the call returns immediately; a full queue
// falls back to a synchronous write rather than dropping the event.
func (s *ActivityStore) Insert(ctx context.Context, event core.ActivityEvent) error {
	metadata, err := marshalMeta(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode event metadata: %w", err)
	}

	args := []interface{}{
		event.ID,
		event.SessionID,
		formatTime(event.Timestamp),
		string(event.Type),
		event.URL,
		event.TypingVelocity,
		event.IdleDuration,
		metadata,
	}

	if s.writer != nil && s.writer.enqueue(insertActivityQuery, args) {
		return nil
	}

	if _, err := s.conn.ExecContext(ctx, insertActivityQuery, args...); err != nil {
		return fmt.Errorf("failed to insert activity event: %w", err)
	}
	return nil
}

// Flush blocks until writes queued on the async writer have landed,
// so a query that follows sees them. No-op for a synchronous store.
func (s *ActivityStore) Flush() {
	if s.writer != nil {
		s.writer.Flush()
	}
}

// FindBySessionID returns a session's events in ascending timestamp
// order, optionally filtered by type and limited to the most recent N.
func (s *ActivityStore) FindBySessionID(ctx context.Context, sessionID string, filter ActivityFilter) ([]core.ActivityEvent, error) {
	var query strings.Builder
	query.WriteString(`
		SELECT id, session_id, timestamp, event_type, url,
		       typing_velocity, idle_duration, metadata
		FROM activity_events
		WHERE session_id = ?`)
	args := []interface{}{sessionID}

	if len(filter.Types) > 0 {
		query.WriteString(" AND event_type IN (?" + strings.Repeat(", ?", len(filter.Types)-1) + ")")
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}

	// A limited query selects the newest rows first, then the slice
	// is reversed back into chronological order below.
	if filter.Limit > 0 {
		query.WriteString(" ORDER BY timestamp DESC LIMIT ?")
		args = append(args, filter.Limit)
	} else {
		query.WriteString(" ORDER BY timestamp ASC")
	}

	rows, err := s.conn.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity events: %w", err)
	}
	defer rows.Close()

	var events []core.ActivityEvent
	for rows.Next() {
		event, err := scanActivityEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read activity events: %w", err)
	}

	if filter.Limit > 0 {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}
	return events, nil
}

// CountBySessionID returns the number of recorded events for a session.
func (s *ActivityStore) CountBySessionID(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM activity_events WHERE session_id = ?", sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count activity events: %w", err)
	}
	return count, nil
}

func scanActivityEvent(rows *sql.Rows) (core.ActivityEvent, error) {
	var (
		event     core.ActivityEvent
		timestamp string
		eventType string
		metadata  string
	)
	err := rows.Scan(
		&event.ID,
		&event.SessionID,
		&timestamp,
		&eventType,
		&event.URL,
		&event.TypingVelocity,
		&event.IdleDuration,
		&metadata,
	)
	if err != nil {
		return core.ActivityEvent{}, fmt.Errorf("failed to scan activity event: %w", err)
	}

	event.Type = core.EventType(eventType)
	if event.Timestamp, err = parseTime(timestamp); err != nil {
		return core.ActivityEvent{}, fmt.Errorf("failed to parse event timestamp: %w", err)
	}
	if event.Metadata, err = unmarshalMeta(metadata); err != nil {
		return core.ActivityEvent{}, fmt.Errorf("failed to decode event metadata: %w", err)
	}
	return event, nil
}

func marshalMeta(meta core.Meta) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalMeta(raw string) (core.Meta, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var meta core.Meta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}
