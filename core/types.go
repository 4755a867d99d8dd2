// Package core provides the shared domain types and configuration for
// Flowstate: activity events, distraction patterns, focus scores, and
// intervention messages.
package core

import (
	"net/url"
	"time"
)

// EventType identifies the kind of behavioral observation recorded by
// the browser extension.
type EventType string

// Event type constants for ActivityEvent.
const (
	EventTabSwitch    EventType = "tab_switch"
	EventTabActivated EventType = "tab_activated"
	EventAppSwitch    EventType = "app_switch"
	EventURLChange    EventType = "url_change"
	EventTyping       EventType = "typing"
	EventIdleStart    EventType = "idle_start"
	EventIdleEnd      EventType = "idle_end"
	EventWindowFocus  EventType = "window_focus"
	EventWindowBlur   EventType = "window_blur"
)

// ActivityEvent is one behavioral observation within a session.
// Events are immutable once recorded; ordering within a session is by
// Timestamp ascending.
type ActivityEvent struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// SessionID identifies the owning session (stable for its lifetime)
	SessionID string `json:"session_id"`
	// Timestamp is the instant the event occurred
	Timestamp time.Time `json:"timestamp"`
	// Type is the kind of observation (use Event* constants)
	Type EventType `json:"event_type"`
	// URL is the sanitized location (scheme+host+path, no query/fragment);
	// empty when the event has no URL
	URL string `json:"url,omitempty"`
	// TypingVelocity is characters per minute, set only on typing events
	TypingVelocity *float64 `json:"typing_velocity,omitempty"`
	// IdleDuration is seconds idle, set only on idle_end events
	IdleDuration *float64 `json:"idle_duration,omitempty"`
	// Metadata carries event-specific structured detail
	Metadata Meta `json:"metadata,omitempty"`
}

// PatternType identifies a distraction archetype.
type PatternType string

// Pattern type constants for DistractionPattern, in detector
// evaluation order.
const (
	PatternContextSwitching  PatternType = "context_switching"
	PatternSocialMediaSpiral PatternType = "social_media_spiral"
	PatternExtendedIdle      PatternType = "extended_idle"
	PatternFragmentedFocus   PatternType = "fragmented_focus"
)

// Severity tiers how far a pattern's metric exceeds its threshold.
type Severity string

// Severity constants for DistractionPattern.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// DistractionPattern is a detected behavioral anomaly. Patterns are
// computed on demand from a slice of ActivityEvents and are never
// persisted as their own entity, only embedded in analysis results or
// intervention payloads.
type DistractionPattern struct {
	// Type is the archetype detected (use Pattern* constants)
	Type PatternType `json:"type"`
	// Severity tiers the detection (use Severity* constants)
	Severity Severity `json:"severity"`
	// Description is a human-readable explanation with concrete counts
	Description string `json:"description"`
	// Metadata carries structured supporting data (counts, ratios, window)
	Metadata Meta `json:"metadata,omitempty"`
}

// FocusScoreComponents holds the four named sub-scores (each 0-100)
// and the weighted overall score rounded to one decimal. The overall
// value is always recomputable deterministically from the same
// activity set and session duration.
type FocusScoreComponents struct {
	// TypingConsistency scores typing velocity variability
	TypingConsistency float64 `json:"typing_consistency"`
	// LowContextSwitching scores tab/app switch frequency
	LowContextSwitching float64 `json:"low_context_switching"`
	// MinimalIdle scores idle time as a share of the session
	MinimalIdle float64 `json:"minimal_idle"`
	// SiteFocus scores time on productive vs. distracting domains
	SiteFocus float64 `json:"site_focus"`
	// Overall is the weighted sum, rounded to one decimal place
	Overall float64 `json:"overall"`
}

// InterventionMessage is an AI-generated coaching message tied to one
// detected pattern. Produced by the inference client, consumed
// immediately by the delivery channel, never mutated after creation.
type InterventionMessage struct {
	// ID is the unique identifier for this message
	ID string `json:"id"`
	// SessionID identifies the session the message targets
	SessionID string `json:"session_id"`
	// Pattern is the distraction pattern that triggered the message
	Pattern DistractionPattern `json:"pattern"`
	// Message is the coaching text
	Message string `json:"message"`
	// Urgency is the delivery priority: "high", "medium", or "low"
	Urgency string `json:"urgency"`
	// Style hints at presentation: "alert", "suggestion", or "question"
	Style string `json:"style"`
	// CreatedAt is when the message was generated
	CreatedAt time.Time `json:"created_at"`
}

// Session status constants.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
)

// Session is a bounded period of user activity, the unit over which
// focus is scored. The core never creates or deletes sessions itself;
// it reads them from the session store and triggers focus-score
// computation on end.
type Session struct {
	// ID is the opaque session identifier
	ID string `json:"id"`
	// StartTime is when the session began
	StartTime time.Time `json:"start_time"`
	// EndTime is when the session ended; nil while still active
	EndTime *time.Time `json:"end_time,omitempty"`
	// Status is "active" or "completed"
	Status string `json:"status"`
}

// Duration returns the session length, using now for still-active
// sessions.
func (s Session) Duration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return end.Sub(s.StartTime)
}

// SanitizeURL strips query parameters and fragments from a URL,
// keeping only scheme, host, and path. Returns the input unchanged if
// it does not parse.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}
