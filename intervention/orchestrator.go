// Package intervention is the real-time decision loop: each incoming
// activity event is persisted, the session's recent window is
// re-analyzed, and at most one throttled coaching message goes out to
// the session's listeners. A missed message is acceptable; a blocked
// ingestion path is not, so every failure past persistence is logged
// and swallowed.
package intervention

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sagars2004/Flowstate/analysis"
	"github.com/sagars2004/Flowstate/core"
	"github.com/sagars2004/Flowstate/db"
	"github.com/sagars2004/Flowstate/delivery"
	"github.com/sagars2004/Flowstate/inference"
	"github.com/sagars2004/Flowstate/logging"
	"github.com/sagars2004/Flowstate/ratelimit"
)

// Generator is the inference surface the orchestrator needs. The
// production implementation is *inference.Client.
type Generator interface {
	GenerateFast(ctx context.Context, prompt string, opts inference.Options) (string, error)
	GenerateDeep(ctx context.Context, prompt string, opts inference.Options) (string, error)
}

// Deliverer pushes envelopes to a session's listeners, best-effort.
type Deliverer interface {
	Deliver(envelope delivery.Envelope)
}

// SessionReport is the payload delivered when a session ends: the
// deterministic analysis plus AI insights when the deep tier is
// available and answers in time.
type SessionReport struct {
	analysis.Result
	// Insights is nil in degraded mode or when the deep call failed
	Insights *analysis.Insights `json:"insights,omitempty"`
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Sessions      *db.SessionStore
	Activities    *db.ActivityStore
	Interventions *db.InterventionStore
	Analyzer      *analysis.Service
	Limiter       *ratelimit.Limiter
	Generator     Generator // nil runs rule-based degraded mode
	Deliverer     Deliverer
	Config        *core.Config
	Logger        *logging.Logger
}

// Orchestrator consumes activity events from an inbound channel and
// drives the detection/throttle/generate/deliver loop.
type Orchestrator struct {
	deps   Deps
	parser analysis.InsightParser
	now    func() time.Time

	events chan core.ActivityEvent
	wg     sync.WaitGroup
}

// New creates an orchestrator. Call Start to begin consuming events.
func New(deps Deps) *Orchestrator {
	return NewWithClock(deps, time.Now)
}

// NewWithClock is New with an injected clock for tests.
func NewWithClock(deps Deps, now func() time.Time) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		parser: analysis.DefaultInsightParser(),
		now:    now,
		events: make(chan core.ActivityEvent, 256),
	}
}

// Events is the inbound channel. The ingestion endpoint writes here;
// the orchestrator owns the receive side.
func (o *Orchestrator) Events() chan<- core.ActivityEvent {
	return o.events
}

// Start launches the consume loop. It runs until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.deps.Logger.Info("intervention orchestrator started",
			zap.Bool("degraded_mode", o.deps.Generator == nil))

		for {
			select {
			case <-ctx.Done():
				o.deps.Logger.Info("intervention orchestrator stopped")
				return
			case event := <-o.events:
				o.HandleEvent(ctx, event)
			}
		}
	}()
}

// Wait blocks until the consume loop has exited.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// HandleEvent runs the full per-event loop synchronously. Exported so
// the ingestion path can be driven directly in tests; production
// traffic arrives through the Events channel.
func (o *Orchestrator) HandleEvent(ctx context.Context, event core.ActivityEvent) {
	event = normalize(event, o.now)

	if _, err := o.deps.Sessions.GetOrCreate(ctx, event.SessionID, event.Timestamp); err != nil {
		o.deps.Logger.Errorw("failed to resolve session",
			logging.SessionField(event.SessionID), zap.Error(err))
		return
	}
	if err := o.deps.Activities.Insert(ctx, event); err != nil {
		o.deps.Logger.Errorw("failed to persist activity event",
			logging.SessionField(event.SessionID), zap.Error(err))
		return
	}

	// The window must include the event just inserted, so any queued
	// async writes have to land before the read
	o.deps.Activities.Flush()
	window, err := o.deps.Activities.FindBySessionID(ctx, event.SessionID, db.ActivityFilter{
		Limit: o.deps.Config.RealtimeWindowSize,
	})
	if err != nil {
		o.deps.Logger.Errorw("failed to load recent activity window",
			logging.SessionField(event.SessionID), zap.Error(err))
		return
	}

	detected := o.deps.Analyzer.AnalyzeRealtime(window, o.now())
	if len(detected) == 0 {
		return
	}
	// At most one intervention per event, even when several patterns
	// co-occur; first in detector order wins
	pattern := detected[0]

	if !o.deps.Limiter.CanSendIntervention(event.SessionID, o.deps.Config.InterventionMinInterval) {
		o.deps.Logger.Debug("intervention throttled",
			logging.SessionField(event.SessionID),
			zap.String("pattern", string(pattern.Type)))
		return
	}

	text, err := o.coachingText(ctx, pattern)
	if err != nil {
		o.deps.Logger.Warnw("coaching message generation failed, dropping intervention",
			logging.SessionField(event.SessionID),
			zap.String("pattern", string(pattern.Type)),
			zap.Error(err))
		return
	}

	urgency, style := urgencyFor(pattern.Type)
	msg := core.InterventionMessage{
		ID:        uuid.NewString(),
		SessionID: event.SessionID,
		Pattern:   pattern,
		Message:   text,
		Urgency:   urgency,
		Style:     style,
		CreatedAt: o.now(),
	}

	o.deps.Limiter.RecordIntervention(event.SessionID)
	if err := o.deps.Interventions.Insert(ctx, msg); err != nil {
		o.deps.Logger.Warnw("failed to persist intervention",
			logging.SessionField(event.SessionID), zap.Error(err))
	}
	o.deps.Deliverer.Deliver(delivery.NewInterventionEnvelope(msg))

	fields := append([]zap.Field{logging.SessionField(event.SessionID)},
		logging.PatternFields(string(pattern.Type), string(pattern.Severity))...)
	o.deps.Logger.Info("intervention delivered", fields...)
}

// coachingText asks the fast tier for a message, or falls straight
// back to deterministic text when no inference key is configured.
func (o *Orchestrator) coachingText(ctx context.Context, pattern core.DistractionPattern) (string, error) {
	if o.deps.Generator == nil {
		return fallbackMessage(pattern), nil
	}
	return o.deps.Generator.GenerateFast(ctx, coachingPrompt(pattern), inference.Options{
		MaxTokens:   o.deps.Config.CoachingTokens,
		Temperature: 0.7,
	})
}

// EndSession closes the session, clears its throttle record, runs the
// full analysis, and delivers the report followed by a session_ended
// signal. Ending an unknown session returns db.ErrSessionNotFound.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) (SessionReport, error) {
	session, err := o.deps.Sessions.End(ctx, sessionID, o.now())
	if err != nil {
		return SessionReport{}, err
	}
	o.deps.Limiter.ClearSession(sessionID)

	// Tail events may still sit in the write queue; the final analysis
	// has to cover all of them
	o.deps.Activities.Flush()
	activities, err := o.deps.Activities.FindBySessionID(ctx, sessionID, db.ActivityFilter{})
	if err != nil {
		return SessionReport{}, err
	}

	report := SessionReport{Result: o.deps.Analyzer.AnalyzeSession(session, activities)}
	report.Insights = o.sessionInsights(ctx, report.Result)

	o.deps.Deliverer.Deliver(delivery.NewAnalysisEnvelope(sessionID, report))
	o.deps.Deliverer.Deliver(delivery.NewSessionEndedEnvelope(sessionID))
	return report, nil
}

// sessionInsights asks the deep tier for narrative insights over the
// completed analysis. Any failure degrades to a nil result; the
// deterministic report stands on its own.
func (o *Orchestrator) sessionInsights(ctx context.Context, result analysis.Result) *analysis.Insights {
	if o.deps.Generator == nil {
		return nil
	}

	summary, err := json.Marshal(result)
	if err != nil {
		return nil
	}

	raw, err := o.deps.Generator.GenerateDeep(ctx, insightPrompt(string(summary)), inference.Options{
		MaxTokens:   o.deps.Config.InsightTokens,
		Temperature: 0.4,
	})
	if err != nil {
		o.deps.Logger.Warnw("session insights generation failed",
			logging.SessionField(result.SessionID), zap.Error(err))
		return nil
	}

	insights, err := o.parser.Parse(raw)
	if err != nil {
		o.deps.Logger.Warnw("session insights unparseable",
			logging.SessionField(result.SessionID), zap.Error(err))
		return nil
	}
	return insights
}

// normalize stamps missing IDs and timestamps and strips URL query
// and fragment before anything touches storage.
func normalize(event core.ActivityEvent, now func() time.Time) core.ActivityEvent {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now()
	}
	if event.URL != "" {
		event.URL = core.SanitizeURL(event.URL)
	}
	return event
}
