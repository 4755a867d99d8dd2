package focus

import (
	"math"

	"github.com/sagars2004/Flowstate/core"
)

// Weights distribute the overall score across the four components.
// They should sum to 1.0.
type Weights struct {
	TypingConsistency   float64 `yaml:"typing_consistency"`
	LowContextSwitching float64 `yaml:"low_context_switching"`
	MinimalIdle         float64 `yaml:"minimal_idle"`
	SiteFocus           float64 `yaml:"site_focus"`
}

// Config holds the scoring weights and domain classification lists.
// The two lists are disjoint by construction; a domain on both would
// make site focus ambiguous.
type Config struct {
	Weights Weights

	// ProductiveDomains score as focused work when visited
	ProductiveDomains []string

	// DistractingDomains score against site focus when visited
	DistractingDomains []string
}

// DefaultConfig returns the standard weights and domain lists.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			TypingConsistency:   0.4,
			LowContextSwitching: 0.3,
			MinimalIdle:         0.2,
			SiteFocus:           0.1,
		},
		ProductiveDomains: []string{
			"github.com",
			"stackoverflow.com",
			"docs.google.com",
			"notion.so",
			"wikipedia.org",
			"developer.mozilla.org",
		},
		DistractingDomains: []string{
			"twitter.com",
			"x.com",
			"facebook.com",
			"instagram.com",
			"reddit.com",
			"tiktok.com",
			"youtube.com",
			"netflix.com",
		},
	}
}

// Validate checks that the weights sum to 1.0 within tolerance.
func (c Config) Validate() error {
	sum := c.Weights.TypingConsistency +
		c.Weights.LowContextSwitching +
		c.Weights.MinimalIdle +
		c.Weights.SiteFocus
	if math.Abs(sum-1.0) > 0.001 {
		return core.ErrInvalidWeights(sum)
	}
	return nil
}
