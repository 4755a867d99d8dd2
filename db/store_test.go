package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sagars2004/Flowstate/core"
	"github.com/sagars2004/Flowstate/logging"
)

var storeEpoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func openTestDatabase(t *testing.T) *Database {
	t.Helper()

	database, err := Open(filepath.Join(t.TempDir(), "flowstate.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func mustCreateSession(t *testing.T, store *SessionStore, id string) core.Session {
	t.Helper()

	session := core.Session{ID: id, StartTime: storeEpoch, Status: core.SessionActive}
	if err := store.Create(context.Background(), session); err != nil {
		t.Fatalf("Create(%s) error = %v", id, err)
	}
	return session
}

func testEvent(sessionID, id string, eventType core.EventType, offset time.Duration) core.ActivityEvent {
	return core.ActivityEvent{
		ID:        id,
		SessionID: sessionID,
		Timestamp: storeEpoch.Add(offset),
		Type:      eventType,
	}
}

// TestOpen_AppliesMigrations tests that a fresh database comes up at
// the latest schema version.
func TestOpen_AppliesMigrations(t *testing.T) {
	database := openTestDatabase(t)

	version, dirty, err := SchemaVersion(database.Conn())
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if dirty {
		t.Error("schema is dirty after Open")
	}
	if version == 0 {
		t.Error("schema version = 0, want migrations applied")
	}
}

// TestSessionStore_Lifecycle tests create, read, and idempotent end.
func TestSessionStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(openTestDatabase(t))
	mustCreateSession(t, store, "session-1")

	got, err := store.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != core.SessionActive {
		t.Errorf("status = %q, want %q", got.Status, core.SessionActive)
	}
	if !got.StartTime.Equal(storeEpoch) {
		t.Errorf("start time = %v, want %v", got.StartTime, storeEpoch)
	}

	end := storeEpoch.Add(30 * time.Minute)
	ended, err := store.End(ctx, "session-1", end)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != core.SessionCompleted {
		t.Errorf("status after End = %q, want %q", ended.Status, core.SessionCompleted)
	}
	if ended.EndTime == nil || !ended.EndTime.Equal(end) {
		t.Errorf("end time = %v, want %v", ended.EndTime, end)
	}

	// A second End must not move the recorded end time
	again, err := store.End(ctx, "session-1", end.Add(time.Hour))
	if err != nil {
		t.Fatalf("End() second call error = %v", err)
	}
	if !again.EndTime.Equal(end) {
		t.Errorf("end time after repeat End = %v, want %v", again.EndTime, end)
	}
}

// TestSessionStore_GetMissing tests the not-found sentinel.
func TestSessionStore_GetMissing(t *testing.T) {
	store := NewSessionStore(openTestDatabase(t))

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrSessionNotFound", err)
	}
}

// TestSessionStore_GetOrCreate tests implicit session opening.
func TestSessionStore_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(openTestDatabase(t))

	created, err := store.GetOrCreate(ctx, "session-1", storeEpoch)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if created.Status != core.SessionActive {
		t.Errorf("status = %q, want %q", created.Status, core.SessionActive)
	}

	same, err := store.GetOrCreate(ctx, "session-1", storeEpoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetOrCreate() second call error = %v", err)
	}
	if !same.StartTime.Equal(storeEpoch) {
		t.Errorf("start time = %v, want original %v", same.StartTime, storeEpoch)
	}
}

// TestActivityStore_FindBySessionIDOrdering tests ascending order and
// session isolation.
func TestActivityStore_FindBySessionIDOrdering(t *testing.T) {
	ctx := context.Background()
	database := openTestDatabase(t)
	sessions := NewSessionStore(database)
	mustCreateSession(t, sessions, "session-1")
	mustCreateSession(t, sessions, "session-2")

	store := NewActivityStore(database, nil)
	// Inserted out of order on purpose
	events := []core.ActivityEvent{
		testEvent("session-1", "e3", core.EventTyping, 3*time.Minute),
		testEvent("session-1", "e1", core.EventTabSwitch, time.Minute),
		testEvent("session-2", "other", core.EventTabSwitch, time.Minute),
		testEvent("session-1", "e2", core.EventURLChange, 2*time.Minute),
	}
	for _, event := range events {
		if err := store.Insert(ctx, event); err != nil {
			t.Fatalf("Insert(%s) error = %v", event.ID, err)
		}
	}

	got, err := store.FindBySessionID(ctx, "session-1", ActivityFilter{})
	if err != nil {
		t.Fatalf("FindBySessionID() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("event count = %d, want 3", len(got))
	}
	for i, wantID := range []string{"e1", "e2", "e3"} {
		if got[i].ID != wantID {
			t.Errorf("events[%d].ID = %q, want %q", i, got[i].ID, wantID)
		}
	}
}

// TestActivityStore_FilterByType tests the event-type filter.
func TestActivityStore_FilterByType(t *testing.T) {
	ctx := context.Background()
	database := openTestDatabase(t)
	mustCreateSession(t, NewSessionStore(database), "session-1")

	store := NewActivityStore(database, nil)
	for i, eventType := range []core.EventType{
		core.EventTabSwitch, core.EventTyping, core.EventAppSwitch, core.EventTyping,
	} {
		event := testEvent("session-1", "e"+string(rune('1'+i)), eventType, time.Duration(i)*time.Minute)
		if err := store.Insert(ctx, event); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	got, err := store.FindBySessionID(ctx, "session-1", ActivityFilter{
		Types: []core.EventType{core.EventTyping},
	})
	if err != nil {
		t.Fatalf("FindBySessionID() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("filtered count = %d, want 2", len(got))
	}
	for _, event := range got {
		if event.Type != core.EventTyping {
			t.Errorf("event type = %q, want %q", event.Type, core.EventTyping)
		}
	}
}

// TestActivityStore_LimitReturnsRecentTail tests that a limited query
// returns the newest events, still in chronological order.
func TestActivityStore_LimitReturnsRecentTail(t *testing.T) {
	ctx := context.Background()
	database := openTestDatabase(t)
	mustCreateSession(t, NewSessionStore(database), "session-1")

	store := NewActivityStore(database, nil)
	for i := 0; i < 10; i++ {
		event := testEvent("session-1", "e"+string(rune('0'+i)), core.EventTabSwitch, time.Duration(i)*time.Minute)
		if err := store.Insert(ctx, event); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	got, err := store.FindBySessionID(ctx, "session-1", ActivityFilter{Limit: 3})
	if err != nil {
		t.Fatalf("FindBySessionID() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("event count = %d, want 3", len(got))
	}
	for i, wantID := range []string{"e7", "e8", "e9"} {
		if got[i].ID != wantID {
			t.Errorf("events[%d].ID = %q, want %q", i, got[i].ID, wantID)
		}
	}
}

// TestActivityStore_RoundTripsOptionalFields tests pointer fields and
// structured metadata survive storage.
func TestActivityStore_RoundTripsOptionalFields(t *testing.T) {
	ctx := context.Background()
	database := openTestDatabase(t)
	mustCreateSession(t, NewSessionStore(database), "session-1")

	velocity := 187.5
	event := core.ActivityEvent{
		ID:             "e1",
		SessionID:      "session-1",
		Timestamp:      storeEpoch.Add(time.Minute),
		Type:           core.EventTyping,
		URL:            "https://github.com/work",
		TypingVelocity: &velocity,
		Metadata: core.Meta{
			"burst_count": core.MetaInt(4),
			"source":      core.MetaString("keyboard"),
		},
	}

	store := NewActivityStore(database, nil)
	if err := store.Insert(ctx, event); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := store.FindBySessionID(ctx, "session-1", ActivityFilter{})
	if err != nil {
		t.Fatalf("FindBySessionID() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("event count = %d, want 1", len(got))
	}

	stored := got[0]
	if stored.TypingVelocity == nil || *stored.TypingVelocity != velocity {
		t.Errorf("typing velocity = %v, want %v", stored.TypingVelocity, velocity)
	}
	if stored.IdleDuration != nil {
		t.Errorf("idle duration = %v, want nil", stored.IdleDuration)
	}
	if count, ok := stored.Metadata["burst_count"].Int(); !ok || count != 4 {
		t.Errorf("metadata burst_count = %v (ok=%v), want 4", count, ok)
	}
	if source, ok := stored.Metadata["source"].String(); !ok || source != "keyboard" {
		t.Errorf("metadata source = %q (ok=%v), want keyboard", source, ok)
	}
	if !stored.Timestamp.Equal(event.Timestamp) {
		t.Errorf("timestamp = %v, want %v", stored.Timestamp, event.Timestamp)
	}
}

// TestActivityStore_AsyncWriterFlushesOnStop tests that queued writes
// land after Stop drains the buffer.
func TestActivityStore_AsyncWriterFlushesOnStop(t *testing.T) {
	ctx := context.Background()
	database := openTestDatabase(t)
	mustCreateSession(t, NewSessionStore(database), "session-1")

	writer := NewAsyncWriter(database, logging.NewNop())
	writer.Start()

	store := NewActivityStore(database, writer)
	for i := 0; i < 5; i++ {
		event := testEvent("session-1", "e"+string(rune('0'+i)), core.EventTabSwitch, time.Duration(i)*time.Second)
		if err := store.Insert(ctx, event); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	writer.Stop()

	count, err := store.CountBySessionID(ctx, "session-1")
	if err != nil {
		t.Fatalf("CountBySessionID() error = %v", err)
	}
	if count != 5 {
		t.Errorf("event count after Stop = %d, want 5", count)
	}
}

// TestActivityStore_FlushMakesWritesVisible tests read-after-write
// through the async path: every windowed read that follows a Flush must
// include the event just inserted.
func TestActivityStore_FlushMakesWritesVisible(t *testing.T) {
	ctx := context.Background()
	database := openTestDatabase(t)
	mustCreateSession(t, NewSessionStore(database), "session-1")

	writer := NewAsyncWriter(database, logging.NewNop())
	writer.Start()
	t.Cleanup(writer.Stop)

	store := NewActivityStore(database, writer)
	for i := 0; i < 50; i++ {
		event := testEvent("session-1", fmt.Sprintf("e%02d", i), core.EventTabSwitch, time.Duration(i)*time.Second)
		if err := store.Insert(ctx, event); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}

		store.Flush()
		window, err := store.FindBySessionID(ctx, "session-1", ActivityFilter{Limit: 50})
		if err != nil {
			t.Fatalf("FindBySessionID() error = %v", err)
		}
		if len(window) != i+1 {
			t.Fatalf("window size after insert %d = %d, want %d", i, len(window), i+1)
		}
		if got := window[len(window)-1].ID; got != event.ID {
			t.Fatalf("window tail = %q, want just-inserted %q", got, event.ID)
		}
	}
}

// TestActivityStore_FlushWithoutWriterIsNoop tests the synchronous
// store path.
func TestActivityStore_FlushWithoutWriterIsNoop(t *testing.T) {
	database := openTestDatabase(t)
	NewActivityStore(database, nil).Flush()
}

// TestInterventionStore_History tests persistence and ordering of
// delivered messages.
func TestInterventionStore_History(t *testing.T) {
	ctx := context.Background()
	database := openTestDatabase(t)
	mustCreateSession(t, NewSessionStore(database), "session-1")

	store := NewInterventionStore(database)
	for i, urgency := range []string{"high", "low"} {
		msg := core.InterventionMessage{
			ID:        "m" + string(rune('1'+i)),
			SessionID: "session-1",
			Pattern: core.DistractionPattern{
				Type:     core.PatternContextSwitching,
				Severity: core.SeverityHigh,
			},
			Message:   "pause before the next switch",
			Urgency:   urgency,
			Style:     "alert",
			CreatedAt: storeEpoch.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Insert(ctx, msg); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	got, err := store.FindBySessionID(ctx, "session-1")
	if err != nil {
		t.Fatalf("FindBySessionID() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("message count = %d, want 2", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m2" {
		t.Errorf("order = [%s %s], want [m1 m2]", got[0].ID, got[1].ID)
	}
	if got[0].Pattern.Type != core.PatternContextSwitching {
		t.Errorf("pattern type = %q, want %q", got[0].Pattern.Type, core.PatternContextSwitching)
	}
	if got[0].Urgency != "high" {
		t.Errorf("urgency = %q, want high", got[0].Urgency)
	}
}

// TestDatabase_Cleanup tests that retention removes old completed
// sessions and leaves active ones alone.
func TestDatabase_Cleanup(t *testing.T) {
	ctx := context.Background()
	database := openTestDatabase(t)
	sessions := NewSessionStore(database)
	activities := NewActivityStore(database, nil)

	// Old completed session with events
	mustCreateSession(t, sessions, "old-session")
	if err := activities.Insert(ctx, testEvent("old-session", "old-e1", core.EventTyping, time.Minute)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := sessions.End(ctx, "old-session", storeEpoch.Add(time.Hour)); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	// Active session that must survive any cutoff
	mustCreateSession(t, sessions, "live-session")

	result, err := database.Cleanup(ctx, storeEpoch.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if result.SessionsDeleted != 1 {
		t.Errorf("SessionsDeleted = %d, want 1", result.SessionsDeleted)
	}
	if result.EventsDeleted != 1 {
		t.Errorf("EventsDeleted = %d, want 1", result.EventsDeleted)
	}

	if _, err := sessions.Get(ctx, "old-session"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(old-session) error = %v, want ErrSessionNotFound", err)
	}
	if _, err := sessions.Get(ctx, "live-session"); err != nil {
		t.Errorf("Get(live-session) error = %v, want survivor", err)
	}
}
