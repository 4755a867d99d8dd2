// Package analysis orchestrates pattern detection and focus scoring
// into one coherent result for a session, and derives human-facing
// recommendations and trend classification.
package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/sagars2004/Flowstate/core"
	"github.com/sagars2004/Flowstate/focus"
	"github.com/sagars2004/Flowstate/logging"
	"github.com/sagars2004/Flowstate/patterns"
)

// Trend classifications returned by CalculateTrend.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// maxRecommendations bounds the recommendation list.
const maxRecommendations = 4

// URLVisit is one entry in the most-visited list.
type URLVisit struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// SessionSummary aggregates headline numbers for a session.
type SessionSummary struct {
	// DurationMinutes is the session length in minutes
	DurationMinutes float64 `json:"duration_minutes"`
	// TotalEvents is the activity count
	TotalEvents int `json:"total_events"`
	// TabSwitches counts tab and app switches
	TabSwitches int `json:"tab_switches"`
	// TypingBursts counts typing events
	TypingBursts int `json:"typing_bursts"`
	// IdleSeconds is the summed idle time
	IdleSeconds float64 `json:"idle_seconds"`
	// TopURLs are the five most-visited URLs with visit counts
	TopURLs []URLVisit `json:"top_urls"`
}

// Result is the full analysis of one session.
type Result struct {
	SessionID       string                    `json:"session_id"`
	Patterns        []core.DistractionPattern `json:"patterns"`
	Score           core.FocusScoreComponents `json:"score"`
	Summary         SessionSummary            `json:"summary"`
	Recommendations []string                  `json:"recommendations"`
}

// Service runs the detector and calculator over session activity.
type Service struct {
	detector   *patterns.Detector
	calculator *focus.Calculator
	logger     *logging.Logger

	// now is the clock, injectable for deterministic tests
	now func() time.Time
}

// NewService creates a Service using the wall clock.
func NewService(detector *patterns.Detector, calculator *focus.Calculator, logger *logging.Logger) *Service {
	return NewServiceWithClock(detector, calculator, logger, time.Now)
}

// NewServiceWithClock creates a Service with an explicit clock.
func NewServiceWithClock(detector *patterns.Detector, calculator *focus.Calculator, logger *logging.Logger, now func() time.Time) *Service {
	return &Service{
		detector:   detector,
		calculator: calculator,
		logger:     logger,
		now:        now,
	}
}

// AnalyzeSession produces the full result for a completed or still
// active session. Active sessions are measured up to the current time.
func (s *Service) AnalyzeSession(session core.Session, activities []core.ActivityEvent) Result {
	now := s.now()
	duration := session.Duration(now)

	reference := now
	if session.EndTime != nil {
		reference = *session.EndTime
	}

	detected := s.detector.Detect(activities, reference)
	score := s.calculator.Calculate(activities, duration)

	return Result{
		SessionID:       session.ID,
		Patterns:        detected,
		Score:           score,
		Summary:         summarize(activities, duration),
		Recommendations: recommend(detected, score),
	}
}

// AnalyzeRealtime runs only the pattern detector over a recent window.
// Used for per-event checks where recomputing the focus score would be
// wasteful.
func (s *Service) AnalyzeRealtime(recent []core.ActivityEvent, reference time.Time) []core.DistractionPattern {
	return s.detector.Detect(recent, reference)
}

// CalculateTrend classifies the current score against a historical
// average. The caller guards against a zero average.
func CalculateTrend(currentScore, historicalAverage float64) string {
	change := (currentScore - historicalAverage) / historicalAverage * 100
	switch {
	case change >= 10:
		return TrendImproving
	case change <= -10:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// summarize builds the headline numbers and the top-5 URL list.
func summarize(activities []core.ActivityEvent, duration time.Duration) SessionSummary {
	summary := SessionSummary{
		DurationMinutes: duration.Minutes(),
		TotalEvents:     len(activities),
	}

	visits := make(map[string]int)
	for _, a := range activities {
		switch a.Type {
		case core.EventTabSwitch, core.EventAppSwitch:
			summary.TabSwitches++
		case core.EventTyping:
			summary.TypingBursts++
		case core.EventIdleEnd:
			if a.IdleDuration != nil {
				summary.IdleSeconds += *a.IdleDuration
			}
		}
		if a.URL != "" {
			visits[a.URL]++
		}
	}

	urls := make([]URLVisit, 0, len(visits))
	for url, count := range visits {
		urls = append(urls, URLVisit{URL: url, Count: count})
	}
	sort.Slice(urls, func(i, j int) bool {
		if urls[i].Count != urls[j].Count {
			return urls[i].Count > urls[j].Count
		}
		return urls[i].URL < urls[j].URL
	})
	if len(urls) > 5 {
		urls = urls[:5]
	}
	summary.TopURLs = urls

	return summary
}

// recommend derives a ranked, deduplicated recommendation list from
// the fired patterns and weak score components, capped at four. A
// clean session gets positive reinforcement instead of an empty list.
func recommend(detected []core.DistractionPattern, score core.FocusScoreComponents) []string {
	var recommendations []string
	seen := make(map[string]bool)
	add := func(text string) {
		if !seen[text] && len(recommendations) < maxRecommendations {
			seen[text] = true
			recommendations = append(recommendations, text)
		}
	}

	for _, pattern := range detected {
		switch pattern.Type {
		case core.PatternContextSwitching:
			add("Try grouping related tabs and working through one task before switching.")
		case core.PatternSocialMediaSpiral:
			add("Social media keeps pulling you back in. Consider closing those tabs for the rest of the session.")
		case core.PatternExtendedIdle:
			add("Long breaks break momentum. A short timer can help you return on schedule.")
		case core.PatternFragmentedFocus:
			add("You are switching tabs almost as often as you type. Try a few longer uninterrupted stretches.")
		}
	}

	if score.TypingConsistency < 60 {
		add("Your typing rhythm is uneven. Short, regular writing blocks can steady it.")
	}
	if score.MinimalIdle < 60 {
		add("A lot of this session was idle. Schedule breaks deliberately instead of drifting into them.")
	}
	if score.SiteFocus < 60 {
		add("Most of your browsing was off-task. Pin the sites you actually need for this work.")
	}
	if score.LowContextSwitching < 60 {
		add(fmt.Sprintf("Your switch rate pulled the focus score down to %.1f. Fewer open tabs usually helps.", score.Overall))
	}

	if len(recommendations) == 0 {
		recommendations = append(recommendations, "Great focus this session. Keep doing what you are doing.")
	}
	return recommendations
}
