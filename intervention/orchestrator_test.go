package intervention

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sagars2004/Flowstate/analysis"
	"github.com/sagars2004/Flowstate/core"
	"github.com/sagars2004/Flowstate/db"
	"github.com/sagars2004/Flowstate/delivery"
	"github.com/sagars2004/Flowstate/focus"
	"github.com/sagars2004/Flowstate/inference"
	"github.com/sagars2004/Flowstate/logging"
	"github.com/sagars2004/Flowstate/patterns"
	"github.com/sagars2004/Flowstate/ratelimit"
)

var orchestratorNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type captureDeliverer struct {
	mu        sync.Mutex
	envelopes []delivery.Envelope
}

func (c *captureDeliverer) Deliver(envelope delivery.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envelopes = append(c.envelopes, envelope)
}

func (c *captureDeliverer) byType(msgType string) []delivery.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []delivery.Envelope
	for _, e := range c.envelopes {
		if e.Type == msgType {
			matched = append(matched, e)
		}
	}
	return matched
}

type stubGenerator struct {
	fastText  string
	fastErr   error
	deepText  string
	deepErr   error
	fastCalls int
	deepCalls int
}

func (g *stubGenerator) GenerateFast(ctx context.Context, prompt string, opts inference.Options) (string, error) {
	g.fastCalls++
	return g.fastText, g.fastErr
}

func (g *stubGenerator) GenerateDeep(ctx context.Context, prompt string, opts inference.Options) (string, error) {
	g.deepCalls++
	return g.deepText, g.deepErr
}

type fixture struct {
	orchestrator *Orchestrator
	activities   *db.ActivityStore
	sessions     *db.SessionStore
	limiter      *ratelimit.Limiter
	delivered    *captureDeliverer
}

func newFixture(t *testing.T, generator Generator) fixture {
	t.Helper()
	return newFixtureWith(t, generator, false)
}

// newFixtureWith optionally routes activity writes through a started
// background writer, matching production wiring.
func newFixtureWith(t *testing.T, generator Generator, asyncWrites bool) fixture {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "flowstate.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	var writer *db.AsyncWriter
	if asyncWrites {
		writer = db.NewAsyncWriter(database, logging.NewNop())
		writer.Start()
		t.Cleanup(writer.Stop)
	}

	calculator, err := focus.NewCalculator(focus.DefaultConfig())
	if err != nil {
		t.Fatalf("NewCalculator() error = %v", err)
	}

	clock := func() time.Time { return orchestratorNow }
	limiter := ratelimit.NewLimiterWithClock(ratelimit.DefaultConfig(), clock)
	delivered := &captureDeliverer{}

	deps := Deps{
		Sessions:      db.NewSessionStore(database),
		Activities:    db.NewActivityStore(database, writer),
		Interventions: db.NewInterventionStore(database),
		Analyzer: analysis.NewServiceWithClock(
			patterns.NewDetector(patterns.DefaultConfig()), calculator, logging.NewNop(), clock),
		Limiter:   limiter,
		Generator: generator,
		Deliverer: delivered,
		Config: &core.Config{
			RealtimeWindowSize:      50,
			InterventionMinInterval: 10 * time.Minute,
			CoachingTokens:          150,
			InsightTokens:           512,
		},
		Logger: logging.NewNop(),
	}

	return fixture{
		orchestrator: NewWithClock(deps, clock),
		activities:   deps.Activities,
		sessions:     deps.Sessions,
		limiter:      limiter,
		delivered:    delivered,
	}
}

func seedTabSwitches(t *testing.T, f fixture, sessionID string, count int) {
	t.Helper()
	ctx := context.Background()

	if _, err := f.sessions.GetOrCreate(ctx, sessionID, orchestratorNow.Add(-time.Hour)); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	for i := 0; i < count; i++ {
		event := core.ActivityEvent{
			ID:        "seed-" + string(rune('a'+i)),
			SessionID: sessionID,
			Timestamp: orchestratorNow.Add(-time.Duration(count-i) * 10 * time.Second),
			Type:      core.EventTabSwitch,
		}
		if err := f.activities.Insert(ctx, event); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
}

func triggerEvent(sessionID string) core.ActivityEvent {
	return core.ActivityEvent{
		SessionID: sessionID,
		Timestamp: orchestratorNow,
		Type:      core.EventTabSwitch,
	}
}

// TestOrchestrator_DeliversSingleIntervention tests that one event
// producing multiple co-occurring patterns yields exactly one message,
// for the first pattern in detector order.
func TestOrchestrator_DeliversSingleIntervention(t *testing.T) {
	generator := &stubGenerator{fastText: "slow down, one tab at a time"}
	f := newFixture(t, generator)
	ctx := context.Background()

	// Enough switching for context_switching plus a long idle for
	// extended_idle; both fire on the same window
	seedTabSwitches(t, f, "session-1", 9)
	idle := 400.0
	if err := f.activities.Insert(ctx, core.ActivityEvent{
		ID:           "seed-idle",
		SessionID:    "session-1",
		Timestamp:    orchestratorNow.Add(-5 * time.Second),
		Type:         core.EventIdleEnd,
		IdleDuration: &idle,
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	f.orchestrator.HandleEvent(ctx, triggerEvent("session-1"))

	interventions := f.delivered.byType(delivery.MessageTypeIntervention)
	if len(interventions) != 1 {
		t.Fatalf("delivered interventions = %d, want exactly 1", len(interventions))
	}

	msg, ok := interventions[0].Data.(core.InterventionMessage)
	if !ok {
		t.Fatalf("envelope data is %T, want core.InterventionMessage", interventions[0].Data)
	}
	if msg.Pattern.Type != core.PatternContextSwitching {
		t.Errorf("pattern = %q, want %q (first in detector order)", msg.Pattern.Type, core.PatternContextSwitching)
	}
	if msg.Urgency != "high" || msg.Style != "alert" {
		t.Errorf("urgency/style = %s/%s, want high/alert", msg.Urgency, msg.Style)
	}
	if msg.Message != "slow down, one tab at a time" {
		t.Errorf("message = %q, want generator text", msg.Message)
	}
	if msg.ID == "" {
		t.Error("message ID is empty")
	}
	if generator.fastCalls != 1 {
		t.Errorf("fast-tier calls = %d, want 1", generator.fastCalls)
	}
}

// TestOrchestrator_CooldownSilencesFollowups tests that a second
// triggering event inside the per-session interval produces nothing.
func TestOrchestrator_CooldownSilencesFollowups(t *testing.T) {
	f := newFixture(t, &stubGenerator{fastText: "pause"})
	ctx := context.Background()

	seedTabSwitches(t, f, "session-1", 9)
	f.orchestrator.HandleEvent(ctx, triggerEvent("session-1"))
	f.orchestrator.HandleEvent(ctx, triggerEvent("session-1"))

	if got := len(f.delivered.byType(delivery.MessageTypeIntervention)); got != 1 {
		t.Errorf("delivered interventions = %d, want 1 (second throttled)", got)
	}
}

// TestOrchestrator_QuietWindowProducesNothing tests the no-pattern
// early exit while still persisting the event.
func TestOrchestrator_QuietWindowProducesNothing(t *testing.T) {
	f := newFixture(t, &stubGenerator{fastText: "unused"})
	ctx := context.Background()

	f.orchestrator.HandleEvent(ctx, core.ActivityEvent{
		SessionID: "session-1",
		Timestamp: orchestratorNow,
		Type:      core.EventTyping,
	})

	if got := len(f.delivered.envelopes); got != 0 {
		t.Errorf("delivered envelopes = %d, want 0", got)
	}
	count, err := f.activities.CountBySessionID(ctx, "session-1")
	if err != nil {
		t.Fatalf("CountBySessionID() error = %v", err)
	}
	if count != 1 {
		t.Errorf("persisted events = %d, want 1", count)
	}
}

// TestOrchestrator_DegradedModeUsesFallbackText tests rule-based
// coaching when no generator is configured.
func TestOrchestrator_DegradedModeUsesFallbackText(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	seedTabSwitches(t, f, "session-1", 9)
	f.orchestrator.HandleEvent(ctx, triggerEvent("session-1"))

	interventions := f.delivered.byType(delivery.MessageTypeIntervention)
	if len(interventions) != 1 {
		t.Fatalf("delivered interventions = %d, want 1", len(interventions))
	}
	msg := interventions[0].Data.(core.InterventionMessage)
	if msg.Message != fallbackMessage(msg.Pattern) {
		t.Errorf("message = %q, want deterministic fallback", msg.Message)
	}
}

// TestOrchestrator_InferenceFailureDropsMessage tests log-and-drop:
// no envelope, ingestion unharmed, and no cooldown consumed.
func TestOrchestrator_InferenceFailureDropsMessage(t *testing.T) {
	f := newFixture(t, &stubGenerator{fastErr: errors.New("provider down")})
	ctx := context.Background()

	seedTabSwitches(t, f, "session-1", 9)
	f.orchestrator.HandleEvent(ctx, triggerEvent("session-1"))

	if got := len(f.delivered.byType(delivery.MessageTypeIntervention)); got != 0 {
		t.Errorf("delivered interventions = %d, want 0", got)
	}
	// The failed attempt must not start the cooldown
	if !f.limiter.CanSendIntervention("session-1", 10*time.Minute) {
		t.Error("CanSendIntervention() = false after failed generation, want true")
	}
}

// TestOrchestrator_EndSessionDeliversReport tests session close:
// throttle record cleared, analysis plus session_ended delivered, and
// deep-tier insights attached.
func TestOrchestrator_EndSessionDeliversReport(t *testing.T) {
	generator := &stubGenerator{
		fastText: "pause",
		deepText: `{"summary": "steady session", "strengths": ["focus"], "suggestion": "keep it up"}`,
	}
	f := newFixture(t, generator)
	ctx := context.Background()

	seedTabSwitches(t, f, "session-1", 9)
	f.orchestrator.HandleEvent(ctx, triggerEvent("session-1"))
	if f.limiter.TrackedSessions() != 1 {
		t.Fatalf("TrackedSessions() = %d, want 1 before end", f.limiter.TrackedSessions())
	}

	report, err := f.orchestrator.EndSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	if f.limiter.TrackedSessions() != 0 {
		t.Errorf("TrackedSessions() = %d, want 0 after end", f.limiter.TrackedSessions())
	}
	if report.SessionID != "session-1" {
		t.Errorf("report session = %q, want session-1", report.SessionID)
	}
	if report.Insights == nil || report.Insights.Summary != "steady session" {
		t.Errorf("insights = %+v, want deep-tier summary", report.Insights)
	}
	if generator.deepCalls != 1 {
		t.Errorf("deep-tier calls = %d, want 1", generator.deepCalls)
	}

	if got := len(f.delivered.byType(delivery.MessageTypeAnalysis)); got != 1 {
		t.Errorf("analysis envelopes = %d, want 1", got)
	}
	if got := len(f.delivered.byType(delivery.MessageTypeSessionEnded)); got != 1 {
		t.Errorf("session_ended envelopes = %d, want 1", got)
	}

	session, err := f.sessions.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if session.Status != core.SessionCompleted {
		t.Errorf("session status = %q, want %q", session.Status, core.SessionCompleted)
	}
}

// TestOrchestrator_BackgroundWriterSeesTriggeringEvent tests
// read-after-write under production wiring: with activity inserts
// routed through a started background writer, the realtime window must
// still include the event that was just ingested, and the end-of-session
// analysis must cover every buffered event.
func TestOrchestrator_BackgroundWriterSeesTriggeringEvent(t *testing.T) {
	generator := &stubGenerator{fastText: "one tab at a time", deepText: "{}"}
	f := newFixtureWith(t, generator, true)
	ctx := context.Background()

	// 9 seeds plus the trigger all go through the async path; the
	// trigger must be visible to its own analysis pass
	seedTabSwitches(t, f, "session-1", 9)
	f.orchestrator.HandleEvent(ctx, triggerEvent("session-1"))

	if got := len(f.delivered.byType(delivery.MessageTypeIntervention)); got != 1 {
		t.Fatalf("delivered interventions = %d, want 1 on the triggering event", got)
	}

	report, err := f.orchestrator.EndSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if report.Summary.TotalEvents != 10 {
		t.Errorf("analyzed events = %d, want all 10 including buffered tail", report.Summary.TotalEvents)
	}
}

// TestOrchestrator_EndSessionUnknownID tests the not-found error path.
func TestOrchestrator_EndSessionUnknownID(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.orchestrator.EndSession(context.Background(), "ghost"); !errors.Is(err, db.ErrSessionNotFound) {
		t.Errorf("EndSession(ghost) error = %v, want ErrSessionNotFound", err)
	}
}

// TestOrchestrator_NormalizesIncomingEvents tests ID stamping and URL
// sanitization on ingestion.
func TestOrchestrator_NormalizesIncomingEvents(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.orchestrator.HandleEvent(ctx, core.ActivityEvent{
		SessionID: "session-1",
		Timestamp: orchestratorNow,
		Type:      core.EventURLChange,
		URL:       "https://github.com/work?tab=readme#top",
	})

	stored, err := f.activities.FindBySessionID(ctx, "session-1", db.ActivityFilter{})
	if err != nil {
		t.Fatalf("FindBySessionID() error = %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("event count = %d, want 1", len(stored))
	}
	if stored[0].ID == "" {
		t.Error("stored event ID is empty, want generated")
	}
	if stored[0].URL != "https://github.com/work" {
		t.Errorf("stored URL = %q, want query and fragment stripped", stored[0].URL)
	}
}
