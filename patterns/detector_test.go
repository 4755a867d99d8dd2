package patterns

import (
	"fmt"
	"testing"
	"time"

	"github.com/sagars2004/Flowstate/core"
)

var reference = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// event builds an activity event offset backwards from the reference
// time.
func event(eventType core.EventType, ago time.Duration) core.ActivityEvent {
	return core.ActivityEvent{
		SessionID: "session-1",
		Timestamp: reference.Add(-ago),
		Type:      eventType,
	}
}

func urlEvent(url string, ago time.Duration) core.ActivityEvent {
	e := event(core.EventURLChange, ago)
	e.URL = url
	return e
}

func idleEnd(seconds float64, ago time.Duration) core.ActivityEvent {
	e := event(core.EventIdleEnd, ago)
	e.IdleDuration = &seconds
	return e
}

func typing(velocity float64, ago time.Duration) core.ActivityEvent {
	e := event(core.EventTyping, ago)
	e.TypingVelocity = &velocity
	return e
}

func find(patterns []core.DistractionPattern, patternType core.PatternType) *core.DistractionPattern {
	for i := range patterns {
		if patterns[i].Type == patternType {
			return &patterns[i]
		}
	}
	return nil
}

// TestDetector_ContextSwitchingThreshold tests the literal boundary:
// 8 tab switches in 5 minutes fires at low severity, 16 at high.
func TestDetector_ContextSwitchingThreshold(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	var events []core.ActivityEvent
	for i := 0; i < 8; i++ {
		e := event(core.EventTabSwitch, time.Duration(i*10)*time.Second)
		e.URL = fmt.Sprintf("https://site%d.example/page", i)
		events = append(events, e)
	}

	detected := detector.Detect(events, reference)
	if len(detected) != 1 {
		t.Fatalf("Detect() returned %d patterns, want 1", len(detected))
	}
	if detected[0].Type != core.PatternContextSwitching {
		t.Errorf("pattern type = %q, want %q", detected[0].Type, core.PatternContextSwitching)
	}
	if detected[0].Severity != core.SeverityLow {
		t.Errorf("severity at exactly threshold = %q, want %q", detected[0].Severity, core.SeverityLow)
	}

	for i := 8; i < 16; i++ {
		e := event(core.EventTabSwitch, time.Duration(i*10)*time.Second)
		e.URL = fmt.Sprintf("https://site%d.example/page", i)
		events = append(events, e)
	}
	detected = detector.Detect(events, reference)
	pattern := find(detected, core.PatternContextSwitching)
	if pattern == nil {
		t.Fatal("Detect() with 16 switches returned no context_switching pattern")
	}
	if pattern.Severity != core.SeverityHigh {
		t.Errorf("severity at 2x threshold = %q, want %q", pattern.Severity, core.SeverityHigh)
	}
}

// TestDetector_ContextSwitchingBelowThreshold tests that 7 switches do
// not fire.
func TestDetector_ContextSwitchingBelowThreshold(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	var events []core.ActivityEvent
	for i := 0; i < 7; i++ {
		events = append(events, event(core.EventTabSwitch, time.Duration(i)*time.Second))
	}

	if detected := detector.Detect(events, reference); len(detected) != 0 {
		t.Errorf("Detect() = %v, want none", detected)
	}
}

// TestDetector_ContextSwitchingWindowExcludesOldEvents tests that
// switches older than the trailing window do not count.
func TestDetector_ContextSwitchingWindowExcludesOldEvents(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	var events []core.ActivityEvent
	for i := 0; i < 6; i++ {
		events = append(events, event(core.EventTabSwitch, time.Duration(i)*time.Second))
	}
	// Outside the 5 minute window
	for i := 0; i < 6; i++ {
		events = append(events, event(core.EventTabSwitch, 6*time.Minute+time.Duration(i)*time.Second))
	}

	if detected := detector.Detect(events, reference); len(detected) != 0 {
		t.Errorf("Detect() = %v, want none with stale switches excluded", detected)
	}
}

// TestDetector_SocialMediaSpiral tests the literal boundary: 3
// twitter.com events fire at low severity, 10 at high, with the
// dominant domain reported.
func TestDetector_SocialMediaSpiral(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	var events []core.ActivityEvent
	for i := 0; i < 3; i++ {
		events = append(events, urlEvent("https://twitter.com/feed", time.Duration(i*20)*time.Second))
	}

	detected := detector.Detect(events, reference)
	if len(detected) != 1 {
		t.Fatalf("Detect() returned %d patterns, want 1", len(detected))
	}
	pattern := detected[0]
	if pattern.Type != core.PatternSocialMediaSpiral {
		t.Errorf("pattern type = %q, want %q", pattern.Type, core.PatternSocialMediaSpiral)
	}
	if pattern.Severity != core.SeverityLow {
		t.Errorf("severity with 3 visits = %q, want %q", pattern.Severity, core.SeverityLow)
	}
	if dominant, _ := pattern.Metadata["dominant_domain"].String(); dominant != "twitter.com" {
		t.Errorf("dominant_domain = %q, want twitter.com", dominant)
	}

	for i := 3; i < 10; i++ {
		events = append(events, urlEvent("https://twitter.com/feed", time.Duration(i*20)*time.Second))
	}
	detected = detector.Detect(events, reference)
	pattern2 := find(detected, core.PatternSocialMediaSpiral)
	if pattern2 == nil {
		t.Fatal("Detect() with 10 visits returned no social_media_spiral pattern")
	}
	if pattern2.Severity != core.SeverityHigh {
		t.Errorf("severity with 10 visits = %q, want %q", pattern2.Severity, core.SeverityHigh)
	}
}

// TestDetector_SocialMediaDominantDomain tests that the most-visited
// domain wins when several match.
func TestDetector_SocialMediaDominantDomain(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	events := []core.ActivityEvent{
		urlEvent("https://reddit.com/r/golang", 10*time.Second),
		urlEvent("https://reddit.com/r/programming", 20*time.Second),
		urlEvent("https://reddit.com/r/news", 30*time.Second),
		urlEvent("https://twitter.com/feed", 40*time.Second),
	}

	pattern := find(detector.Detect(events, reference), core.PatternSocialMediaSpiral)
	if pattern == nil {
		t.Fatal("Detect() returned no social_media_spiral pattern")
	}
	if dominant, _ := pattern.Metadata["dominant_domain"].String(); dominant != "reddit.com" {
		t.Errorf("dominant_domain = %q, want reddit.com", dominant)
	}
}

// TestDetector_ExtendedIdle tests severity tiers on the most recent
// idle period.
func TestDetector_ExtendedIdle(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    core.Severity
	}{
		{"short report", 45, core.SeverityLow},
		{"medium", 150, core.SeverityMedium},
		{"extended", 400, core.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detector := NewDetector(DefaultConfig())
			detected := detector.Detect([]core.ActivityEvent{idleEnd(tt.seconds, time.Minute)}, reference)
			pattern := find(detected, core.PatternExtendedIdle)
			if pattern == nil {
				t.Fatalf("Detect() with %vs idle returned no extended_idle pattern", tt.seconds)
			}
			if pattern.Severity != tt.want {
				t.Errorf("severity = %q, want %q", pattern.Severity, tt.want)
			}
		})
	}
}

// TestDetector_ExtendedIdleOnlyLatestCounts tests that an older long
// idle period is ignored when the latest one is short.
func TestDetector_ExtendedIdleOnlyLatestCounts(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	events := []core.ActivityEvent{
		idleEnd(600, 10*time.Minute),
		idleEnd(10, time.Minute),
	}

	if detected := detector.Detect(events, reference); find(detected, core.PatternExtendedIdle) != nil {
		t.Error("Detect() reported extended_idle from a stale idle period")
	}
}

// TestDetector_FragmentedFocus tests the switch-to-typing ratio gates.
func TestDetector_FragmentedFocus(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	// 12 switches against 6 typing bursts: ratio 2.0, high severity
	var events []core.ActivityEvent
	for i := 0; i < 12; i++ {
		events = append(events, event(core.EventTabSwitch, time.Duration(i*10)*time.Second))
	}
	for i := 0; i < 6; i++ {
		events = append(events, typing(200, time.Duration(i*30)*time.Second))
	}

	pattern := find(detector.Detect(events, reference), core.PatternFragmentedFocus)
	if pattern == nil {
		t.Fatal("Detect() returned no fragmented_focus pattern at ratio 2.0")
	}
	if pattern.Severity != core.SeverityHigh {
		t.Errorf("severity at ratio 2.0 = %q, want %q", pattern.Severity, core.SeverityHigh)
	}
}

// TestDetector_FragmentedFocusHealthyMultitasking tests that a low
// switch-to-typing ratio does not fire.
func TestDetector_FragmentedFocusHealthyMultitasking(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	// 12 switches against 30 typing bursts: ratio 0.4, healthy
	var events []core.ActivityEvent
	for i := 0; i < 12; i++ {
		events = append(events, event(core.EventTabSwitch, time.Duration(i*10)*time.Second))
	}
	for i := 0; i < 30; i++ {
		events = append(events, typing(200, time.Duration(i*10)*time.Second))
	}

	if pattern := find(detector.Detect(events, reference), core.PatternFragmentedFocus); pattern != nil {
		t.Errorf("Detect() fired fragmented_focus at ratio 0.4: %+v", pattern)
	}
}

// TestDetector_EmptyInput tests that no activities yield no patterns.
func TestDetector_EmptyInput(t *testing.T) {
	detector := NewDetector(DefaultConfig())
	if detected := detector.Detect(nil, reference); detected != nil {
		t.Errorf("Detect(nil) = %v, want nil", detected)
	}
}

// TestDetector_UpdateConfig tests that merged overrides take effect
// without reconstruction.
func TestDetector_UpdateConfig(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	var events []core.ActivityEvent
	for i := 0; i < 4; i++ {
		events = append(events, event(core.EventTabSwitch, time.Duration(i)*time.Second))
	}
	if detected := detector.Detect(events, reference); len(detected) != 0 {
		t.Fatalf("Detect() fired below default threshold: %v", detected)
	}

	threshold := 4
	detector.UpdateConfig(Overrides{ContextSwitchThreshold: &threshold})

	detected := detector.Detect(events, reference)
	if find(detected, core.PatternContextSwitching) == nil {
		t.Error("Detect() did not fire after threshold lowered to 4")
	}
	if got := detector.Config().ContextSwitchWindow; got != DefaultConfig().ContextSwitchWindow {
		t.Errorf("unrelated config field changed: window = %v", got)
	}
}

// TestDetector_MultiplePatternsFireTogether tests that co-occurring
// archetypes are all reported in evaluation order.
func TestDetector_MultiplePatternsFireTogether(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	var events []core.ActivityEvent
	for i := 0; i < 8; i++ {
		events = append(events, event(core.EventTabSwitch, time.Duration(i*5)*time.Second))
	}
	events = append(events, idleEnd(60, time.Minute))

	detected := detector.Detect(events, reference)
	if len(detected) != 2 {
		t.Fatalf("Detect() returned %d patterns, want 2", len(detected))
	}
	if detected[0].Type != core.PatternContextSwitching || detected[1].Type != core.PatternExtendedIdle {
		t.Errorf("pattern order = [%s, %s], want [context_switching, extended_idle]",
			detected[0].Type, detected[1].Type)
	}
}
