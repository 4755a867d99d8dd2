package patterns

import "time"

// Config holds every detection threshold. All values are empirical
// tuning constants, so they live here as overridable configuration
// rather than hard-coded logic.
type Config struct {
	// ContextSwitchThreshold is the tab/app switch count that fires
	// the context-switching detector
	ContextSwitchThreshold int

	// ContextSwitchWindow is the trailing look-back for the
	// context-switching and social-media detectors
	ContextSwitchWindow time.Duration

	// SocialMediaThreshold is the matching-event count that fires the
	// social-media detector
	SocialMediaThreshold int

	// SocialMediaDomains are the domains counted as social media
	SocialMediaDomains []string

	// IdleThresholdShort is the minimum idle period worth reporting
	IdleThresholdShort time.Duration

	// IdleThresholdMedium is the idle period rated medium severity
	IdleThresholdMedium time.Duration

	// IdleThresholdExtended is the idle period rated high severity
	IdleThresholdExtended time.Duration

	// FragmentedFocusThreshold is the minimum tab switch count before
	// the fragmentation detector considers firing
	FragmentedFocusThreshold int

	// FragmentedFocusMinTyping is the minimum typing event count
	// before the fragmentation detector considers firing
	FragmentedFocusMinTyping int

	// FragmentedFocusWindow is the fragmentation look-back
	FragmentedFocusWindow time.Duration

	// FragmentedFocusMinRatio is the switch-to-typing ratio below
	// which switching is treated as healthy multitasking
	FragmentedFocusMinRatio float64
}

// DefaultConfig returns the standard detection thresholds.
func DefaultConfig() Config {
	return Config{
		ContextSwitchThreshold: 8,
		ContextSwitchWindow:    5 * time.Minute,
		SocialMediaThreshold:   3,
		SocialMediaDomains: []string{
			"twitter.com",
			"x.com",
			"facebook.com",
			"instagram.com",
			"reddit.com",
			"tiktok.com",
			"youtube.com",
			"linkedin.com",
		},
		IdleThresholdShort:       30 * time.Second,
		IdleThresholdMedium:      120 * time.Second,
		IdleThresholdExtended:    300 * time.Second,
		FragmentedFocusThreshold: 10,
		FragmentedFocusMinTyping: 5,
		FragmentedFocusWindow:    10 * time.Minute,
		FragmentedFocusMinRatio:  0.5,
	}
}

// Overrides carries partial configuration updates. Nil fields keep the
// current value.
type Overrides struct {
	ContextSwitchThreshold   *int
	ContextSwitchWindow      *time.Duration
	SocialMediaThreshold     *int
	SocialMediaDomains       []string
	IdleThresholdShort       *time.Duration
	IdleThresholdMedium      *time.Duration
	IdleThresholdExtended    *time.Duration
	FragmentedFocusThreshold *int
	FragmentedFocusMinTyping *int
	FragmentedFocusWindow    *time.Duration
	FragmentedFocusMinRatio  *float64
}

// merge applies the non-nil override fields onto c.
func (c Config) merge(o Overrides) Config {
	if o.ContextSwitchThreshold != nil {
		c.ContextSwitchThreshold = *o.ContextSwitchThreshold
	}
	if o.ContextSwitchWindow != nil {
		c.ContextSwitchWindow = *o.ContextSwitchWindow
	}
	if o.SocialMediaThreshold != nil {
		c.SocialMediaThreshold = *o.SocialMediaThreshold
	}
	if o.SocialMediaDomains != nil {
		c.SocialMediaDomains = o.SocialMediaDomains
	}
	if o.IdleThresholdShort != nil {
		c.IdleThresholdShort = *o.IdleThresholdShort
	}
	if o.IdleThresholdMedium != nil {
		c.IdleThresholdMedium = *o.IdleThresholdMedium
	}
	if o.IdleThresholdExtended != nil {
		c.IdleThresholdExtended = *o.IdleThresholdExtended
	}
	if o.FragmentedFocusThreshold != nil {
		c.FragmentedFocusThreshold = *o.FragmentedFocusThreshold
	}
	if o.FragmentedFocusMinTyping != nil {
		c.FragmentedFocusMinTyping = *o.FragmentedFocusMinTyping
	}
	if o.FragmentedFocusWindow != nil {
		c.FragmentedFocusWindow = *o.FragmentedFocusWindow
	}
	if o.FragmentedFocusMinRatio != nil {
		c.FragmentedFocusMinRatio = *o.FragmentedFocusMinRatio
	}
	return c
}
