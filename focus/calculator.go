// Package focus computes the 0-100 composite focus score from a
// session's activity events. Calculation is deterministic: the same
// activities and duration always produce bit-identical output, and
// degenerate input (no events, zero duration) yields neutral scores
// instead of errors.
package focus

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sagars2004/Flowstate/core"
)

const neutralScore = 50.0

// Calculator scores sessions. Safe for concurrent use.
type Calculator struct {
	mu     sync.RWMutex
	config Config
}

// NewCalculator creates a Calculator, validating the weights.
func NewCalculator(config Config) (*Calculator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{config: config}, nil
}

// Config returns a copy of the current configuration.
func (c *Calculator) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// UpdateWeights replaces the scoring weights after validating them.
func (c *Calculator) UpdateWeights(weights Weights) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidate := c.config
	candidate.Weights = weights
	if err := candidate.Validate(); err != nil {
		return err
	}
	c.config = candidate
	return nil
}

// Calculate scores the activity set over the given session duration.
func (c *Calculator) Calculate(activities []core.ActivityEvent, sessionDuration time.Duration) core.FocusScoreComponents {
	c.mu.RLock()
	config := c.config
	c.mu.RUnlock()

	components := core.FocusScoreComponents{
		TypingConsistency:   typingConsistency(activities),
		LowContextSwitching: lowContextSwitching(activities, sessionDuration),
		MinimalIdle:         minimalIdle(activities, sessionDuration),
		SiteFocus:           siteFocus(activities, config),
	}

	overall := components.TypingConsistency*config.Weights.TypingConsistency +
		components.LowContextSwitching*config.Weights.LowContextSwitching +
		components.MinimalIdle*config.Weights.MinimalIdle +
		components.SiteFocus*config.Weights.SiteFocus
	components.Overall = math.Round(overall*10) / 10

	return components
}

// typingConsistency scores the coefficient of variation of typing
// velocities. Steady typing scores high; fewer than three samples is
// not enough signal, so the score is neutral.
func typingConsistency(activities []core.ActivityEvent) float64 {
	var velocities []float64
	for _, a := range activities {
		if a.Type == core.EventTyping && a.TypingVelocity != nil {
			velocities = append(velocities, *a.TypingVelocity)
		}
	}
	if len(velocities) < 3 {
		return neutralScore
	}

	mean := 0.0
	for _, v := range velocities {
		mean += v
	}
	mean /= float64(len(velocities))
	if mean == 0 {
		return neutralScore
	}

	variance := 0.0
	for _, v := range velocities {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(velocities))

	cv := math.Sqrt(variance) / mean
	return clamp(0, 100, 100-cv*200)
}

// lowContextSwitching scores tab/app switches per hour on a piecewise
// linear scale.
func lowContextSwitching(activities []core.ActivityEvent, sessionDuration time.Duration) float64 {
	if sessionDuration <= 0 {
		return neutralScore
	}

	switches := 0
	for _, a := range activities {
		if a.Type == core.EventTabSwitch || a.Type == core.EventAppSwitch {
			switches++
		}
	}

	perHour := float64(switches) / sessionDuration.Hours()
	switch {
	case perHour <= 5:
		return 100
	case perHour <= 15:
		return 100 - (perHour-5)*3
	case perHour <= 30:
		return 70 - (perHour-15)*2
	default:
		return math.Max(0, 40-(perHour-30))
	}
}

// minimalIdle scores the idle share of the session on a piecewise
// linear scale.
func minimalIdle(activities []core.ActivityEvent, sessionDuration time.Duration) float64 {
	if sessionDuration <= 0 {
		return neutralScore
	}

	idleSeconds := 0.0
	for _, a := range activities {
		if a.Type == core.EventIdleEnd && a.IdleDuration != nil {
			idleSeconds += *a.IdleDuration
		}
	}

	idlePct := idleSeconds / sessionDuration.Seconds() * 100
	switch {
	case idlePct <= 10:
		return 100
	case idlePct <= 20:
		return 100 - (idlePct - 10)
	case idlePct <= 40:
		return 80 - (idlePct-20)*1.5
	default:
		return math.Max(0, 50-(idlePct-40)*1.25)
	}
}

// siteFocus scores the productive versus distracting mix of visited
// domains. Events without a URL are ignored; a session with no URLs at
// all is neutral.
func siteFocus(activities []core.ActivityEvent, config Config) float64 {
	total, productive, distracting := 0, 0, 0
	for _, a := range activities {
		if a.URL == "" {
			continue
		}
		total++
		switch {
		case matchesAny(a.URL, config.ProductiveDomains):
			productive++
		case matchesAny(a.URL, config.DistractingDomains):
			distracting++
		}
	}
	if total == 0 {
		return neutralScore
	}

	productiveRatio := float64(productive) / float64(total)
	distractingRatio := float64(distracting) / float64(total)

	switch {
	case distractingRatio > 0.5:
		return 30 * (1 - distractingRatio)
	case productiveRatio > 0.7:
		return 100
	case productiveRatio > 0.4:
		return 70 + productiveRatio*30
	default:
		return 50 + productiveRatio*40
	}
}

func matchesAny(url string, domains []string) bool {
	for _, domain := range domains {
		if strings.Contains(url, domain) {
			return true
		}
	}
	return false
}

func clamp(low, high, v float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
