package focus

import (
	"reflect"
	"testing"
	"time"

	"github.com/sagars2004/Flowstate/core"
)

var sessionStart = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func mustCalculator(t *testing.T) *Calculator {
	t.Helper()
	calculator, err := NewCalculator(DefaultConfig())
	if err != nil {
		t.Fatalf("NewCalculator() error = %v", err)
	}
	return calculator
}

func typingEvent(velocity float64, offset time.Duration) core.ActivityEvent {
	return core.ActivityEvent{
		SessionID:      "session-1",
		Timestamp:      sessionStart.Add(offset),
		Type:           core.EventTyping,
		TypingVelocity: &velocity,
	}
}

func switchEvent(offset time.Duration) core.ActivityEvent {
	return core.ActivityEvent{
		SessionID: "session-1",
		Timestamp: sessionStart.Add(offset),
		Type:      core.EventTabSwitch,
	}
}

func idleEvent(seconds float64, offset time.Duration) core.ActivityEvent {
	return core.ActivityEvent{
		SessionID:    "session-1",
		Timestamp:    sessionStart.Add(offset),
		Type:         core.EventIdleEnd,
		IdleDuration: &seconds,
	}
}

func urlActivity(url string, offset time.Duration) core.ActivityEvent {
	return core.ActivityEvent{
		SessionID: "session-1",
		Timestamp: sessionStart.Add(offset),
		Type:      core.EventURLChange,
		URL:       url,
	}
}

// TestCalculator_TypingConsistency tests the coefficient-of-variation
// scoring: identical velocities score 100, too few samples neutral.
func TestCalculator_TypingConsistency(t *testing.T) {
	calculator := mustCalculator(t)

	steady := []core.ActivityEvent{
		typingEvent(200, 0),
		typingEvent(200, time.Minute),
		typingEvent(200, 2*time.Minute),
	}
	got := calculator.Calculate(steady, time.Hour)
	if got.TypingConsistency != 100 {
		t.Errorf("TypingConsistency with zero variance = %v, want 100", got.TypingConsistency)
	}

	sparse := steady[:2]
	got = calculator.Calculate(sparse, time.Hour)
	if got.TypingConsistency != 50 {
		t.Errorf("TypingConsistency with 2 samples = %v, want neutral 50", got.TypingConsistency)
	}
}

// TestCalculator_LowContextSwitching tests the piecewise bands.
func TestCalculator_LowContextSwitching(t *testing.T) {
	calculator := mustCalculator(t)

	tests := []struct {
		switches int
		want     float64
	}{
		{3, 100},   // <=5/hr
		{10, 85},   // 100 - (10-5)*3
		{20, 60},   // 70 - (20-15)*2
		{35, 35},   // 40 - (35-30)
		{100, 0},   // floored
	}

	for _, tt := range tests {
		var events []core.ActivityEvent
		for i := 0; i < tt.switches; i++ {
			events = append(events, switchEvent(time.Duration(i)*time.Second))
		}
		got := calculator.Calculate(events, time.Hour)
		if got.LowContextSwitching != tt.want {
			t.Errorf("LowContextSwitching with %d switches/hr = %v, want %v",
				tt.switches, got.LowContextSwitching, tt.want)
		}
	}
}

// TestCalculator_MinimalIdle tests the piecewise idle bands over a
// one-hour session.
func TestCalculator_MinimalIdle(t *testing.T) {
	calculator := mustCalculator(t)

	tests := []struct {
		idleSeconds float64
		want        float64
	}{
		{180, 100}, // 5%
		{540, 95},  // 15% -> 100 - 5
		{1080, 65}, // 30% -> 80 - 10*1.5
		{1800, 37.5}, // 50% -> 50 - 10*1.25
	}

	for _, tt := range tests {
		events := []core.ActivityEvent{idleEvent(tt.idleSeconds, time.Minute)}
		got := calculator.Calculate(events, time.Hour)
		if got.MinimalIdle != tt.want {
			t.Errorf("MinimalIdle with %vs idle = %v, want %v", tt.idleSeconds, got.MinimalIdle, tt.want)
		}
	}
}

// TestCalculator_MinimalIdleMonotonicity tests that increasing idle
// share never increases the component.
func TestCalculator_MinimalIdleMonotonicity(t *testing.T) {
	calculator := mustCalculator(t)

	previous := 101.0
	for pct := 5; pct <= 60; pct += 5 {
		idleSeconds := float64(pct) / 100 * 3600
		events := []core.ActivityEvent{idleEvent(idleSeconds, time.Minute)}
		got := calculator.Calculate(events, time.Hour).MinimalIdle
		if got > previous {
			t.Fatalf("MinimalIdle at %d%% = %v, higher than %v at previous step", pct, got, previous)
		}
		previous = got
	}
}

// TestCalculator_SiteFocus tests the domain classification branches.
func TestCalculator_SiteFocus(t *testing.T) {
	calculator := mustCalculator(t)

	tests := []struct {
		name string
		urls []string
		want float64
	}{
		{
			"all productive",
			[]string{"https://github.com/a", "https://github.com/b", "https://stackoverflow.com/q"},
			100,
		},
		{
			"mostly distracting",
			[]string{"https://twitter.com/x", "https://reddit.com/r", "https://twitter.com/y", "https://github.com/a"},
			7.5, // distracting ratio 0.75 -> 30 * 0.25
		},
		{
			"neutral only",
			[]string{"https://news.example.com/a", "https://blog.example.com/b"},
			50, // productive ratio 0 -> 50 + 0
		},
		{
			"half productive",
			[]string{"https://github.com/a", "https://news.example.com/b"},
			85, // ratio 0.5 -> 70 + 0.5*30
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []core.ActivityEvent
			for i, url := range tt.urls {
				events = append(events, urlActivity(url, time.Duration(i)*time.Minute))
			}
			got := calculator.Calculate(events, time.Hour)
			if got.SiteFocus != tt.want {
				t.Errorf("SiteFocus = %v, want %v", got.SiteFocus, tt.want)
			}
		})
	}
}

// TestCalculator_NoURLsNeutral tests that a session with no URLs at
// all scores neutral site focus.
func TestCalculator_NoURLsNeutral(t *testing.T) {
	calculator := mustCalculator(t)
	events := []core.ActivityEvent{switchEvent(0)}
	if got := calculator.Calculate(events, time.Hour).SiteFocus; got != 50 {
		t.Errorf("SiteFocus with no URLs = %v, want 50", got)
	}
}

// TestCalculator_ZeroDuration tests that duration-dependent components
// fall back to neutral instead of dividing by zero.
func TestCalculator_ZeroDuration(t *testing.T) {
	calculator := mustCalculator(t)

	events := []core.ActivityEvent{switchEvent(0), idleEvent(120, 0)}
	got := calculator.Calculate(events, 0)
	if got.LowContextSwitching != 50 {
		t.Errorf("LowContextSwitching at zero duration = %v, want 50", got.LowContextSwitching)
	}
	if got.MinimalIdle != 50 {
		t.Errorf("MinimalIdle at zero duration = %v, want 50", got.MinimalIdle)
	}
}

// TestCalculator_Determinism tests bit-identical output for identical
// input.
func TestCalculator_Determinism(t *testing.T) {
	calculator := mustCalculator(t)

	events := []core.ActivityEvent{
		typingEvent(180, 0),
		typingEvent(210, time.Minute),
		typingEvent(195, 2*time.Minute),
		switchEvent(3 * time.Minute),
		idleEvent(90, 10*time.Minute),
		urlActivity("https://github.com/sagars2004/Flowstate", 12*time.Minute),
	}

	first := calculator.Calculate(events, 45*time.Minute)
	second := calculator.Calculate(events, 45*time.Minute)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Calculate() not deterministic: %+v vs %+v", first, second)
	}
}

// TestCalculator_OverallWeighting tests the weighted sum and one
// decimal rounding.
func TestCalculator_OverallWeighting(t *testing.T) {
	calculator := mustCalculator(t)

	// No events: typing neutral 50, switching 100, idle 100, site 50
	got := calculator.Calculate(nil, time.Hour)
	want := 50*0.4 + 100*0.3 + 100*0.2 + 50*0.1 // 75.0
	if got.Overall != want {
		t.Errorf("Overall = %v, want %v", got.Overall, want)
	}
}

// TestNewCalculator_RejectsBadWeights tests weight validation.
func TestNewCalculator_RejectsBadWeights(t *testing.T) {
	config := DefaultConfig()
	config.Weights.SiteFocus = 0.5

	_, err := NewCalculator(config)
	if err == nil {
		t.Fatal("NewCalculator() error = nil, want weight validation failure")
	}
	if core.GetErrorCode(err) != core.ErrCodeInvalidWeights {
		t.Errorf("error code = %q, want %q", core.GetErrorCode(err), core.ErrCodeInvalidWeights)
	}
}
