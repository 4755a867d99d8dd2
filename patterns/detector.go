// Package patterns detects distraction archetypes in a window of
// activity events. Detection is a pure function of the provided events
// and an explicit reference time, so overlapping windows can be
// re-analyzed freely and tests never need to sleep.
package patterns

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sagars2004/Flowstate/core"
)

// Detector evaluates the four distraction archetypes against a slice
// of activity events. Safe for concurrent use; UpdateConfig may be
// called while detections are in flight.
type Detector struct {
	mu     sync.RWMutex
	config Config
}

// NewDetector creates a Detector with the given thresholds.
func NewDetector(config Config) *Detector {
	return &Detector{config: config}
}

// Config returns a copy of the current thresholds.
func (d *Detector) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// UpdateConfig merges the non-nil override fields into the current
// configuration without reconstructing the detector.
func (d *Detector) UpdateConfig(o Overrides) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = d.config.merge(o)
}

// Detect evaluates all four archetypes against activities, using
// reference as "now" for trailing-window calculations. Detectors run
// in a fixed order (context switching, social media, extended idle,
// fragmented focus) and all may fire simultaneously; callers that want
// a single pattern take the first.
func (d *Detector) Detect(activities []core.ActivityEvent, reference time.Time) []core.DistractionPattern {
	if len(activities) == 0 {
		return nil
	}

	d.mu.RLock()
	config := d.config
	d.mu.RUnlock()

	var detected []core.DistractionPattern
	for _, detect := range []func([]core.ActivityEvent, time.Time, Config) *core.DistractionPattern{
		detectContextSwitching,
		detectSocialMediaSpiral,
		detectExtendedIdle,
		detectFragmentedFocus,
	} {
		if pattern := detect(activities, reference, config); pattern != nil {
			detected = append(detected, *pattern)
		}
	}
	return detected
}

// detectContextSwitching fires when tab/app switches in the trailing
// window reach the threshold. Severity scales with how far the count
// exceeds it.
func detectContextSwitching(activities []core.ActivityEvent, reference time.Time, config Config) *core.DistractionPattern {
	cutoff := reference.Add(-config.ContextSwitchWindow)

	count := 0
	for _, a := range activities {
		if a.Timestamp.Before(cutoff) || a.Timestamp.After(reference) {
			continue
		}
		if a.Type == core.EventTabSwitch || a.Type == core.EventAppSwitch {
			count++
		}
	}
	if count < config.ContextSwitchThreshold {
		return nil
	}

	ratio := float64(count) / float64(config.ContextSwitchThreshold)
	severity := core.SeverityLow
	switch {
	case ratio >= 2.0:
		severity = core.SeverityHigh
	case ratio >= 1.5:
		severity = core.SeverityMedium
	}

	windowMinutes := int(config.ContextSwitchWindow.Minutes())
	return &core.DistractionPattern{
		Type:        core.PatternContextSwitching,
		Severity:    severity,
		Description: fmt.Sprintf("%d context switches in the last %d minutes", count, windowMinutes),
		Metadata: core.Meta{
			"count":          core.MetaInt(int64(count)),
			"threshold":      core.MetaInt(int64(config.ContextSwitchThreshold)),
			"ratio":          core.MetaFloat(ratio),
			"window_minutes": core.MetaInt(int64(windowMinutes)),
		},
	}
}

// detectSocialMediaSpiral fires when enough events in the trailing
// window land on a social media domain. Reports the dominant domain.
func detectSocialMediaSpiral(activities []core.ActivityEvent, reference time.Time, config Config) *core.DistractionPattern {
	cutoff := reference.Add(-config.ContextSwitchWindow)

	count := 0
	visits := make(map[string]int)
	for _, a := range activities {
		if a.URL == "" || a.Timestamp.Before(cutoff) || a.Timestamp.After(reference) {
			continue
		}
		for _, domain := range config.SocialMediaDomains {
			if strings.Contains(a.URL, domain) {
				count++
				visits[domain]++
				break
			}
		}
	}
	if count < config.SocialMediaThreshold {
		return nil
	}

	// Dominant domain; ties resolve by configured domain order
	dominant := ""
	best := 0
	for _, domain := range config.SocialMediaDomains {
		if visits[domain] > best {
			dominant = domain
			best = visits[domain]
		}
	}

	severity := core.SeverityLow
	switch {
	case count >= 10:
		severity = core.SeverityHigh
	case count >= 5:
		severity = core.SeverityMedium
	}

	return &core.DistractionPattern{
		Type:        core.PatternSocialMediaSpiral,
		Severity:    severity,
		Description: fmt.Sprintf("%d social media visits recently, mostly %s", count, dominant),
		Metadata: core.Meta{
			"count":           core.MetaInt(int64(count)),
			"dominant_domain": core.MetaString(dominant),
			"window_minutes":  core.MetaInt(int64(config.ContextSwitchWindow.Minutes())),
		},
	}
}

// detectExtendedIdle fires on the single most recent idle period when
// it lasted at least the short threshold. Older idle events are never
// reported.
func detectExtendedIdle(activities []core.ActivityEvent, reference time.Time, config Config) *core.DistractionPattern {
	var latest *core.ActivityEvent
	for i := range activities {
		a := &activities[i]
		if a.Type != core.EventIdleEnd || a.IdleDuration == nil {
			continue
		}
		if latest == nil || a.Timestamp.After(latest.Timestamp) {
			latest = a
		}
	}
	if latest == nil {
		return nil
	}

	idle := time.Duration(*latest.IdleDuration * float64(time.Second))
	if idle < config.IdleThresholdShort {
		return nil
	}

	severity := core.SeverityLow
	switch {
	case idle >= config.IdleThresholdExtended:
		severity = core.SeverityHigh
	case idle >= config.IdleThresholdMedium:
		severity = core.SeverityMedium
	}

	return &core.DistractionPattern{
		Type:        core.PatternExtendedIdle,
		Severity:    severity,
		Description: fmt.Sprintf("idle for %.0f seconds", idle.Seconds()),
		Metadata: core.Meta{
			"idle_seconds":      core.MetaFloat(idle.Seconds()),
			"threshold_seconds": core.MetaFloat(config.IdleThresholdShort.Seconds()),
		},
	}
}

// detectFragmentedFocus fires when tab switching is frequent relative
// to typing in the trailing window. Below the minimum ratio the mix is
// treated as healthy multitasking.
func detectFragmentedFocus(activities []core.ActivityEvent, reference time.Time, config Config) *core.DistractionPattern {
	cutoff := reference.Add(-config.FragmentedFocusWindow)

	switches, typing := 0, 0
	for _, a := range activities {
		if a.Timestamp.Before(cutoff) || a.Timestamp.After(reference) {
			continue
		}
		switch a.Type {
		case core.EventTabSwitch:
			switches++
		case core.EventTyping:
			typing++
		}
	}
	if typing < config.FragmentedFocusMinTyping || switches < config.FragmentedFocusThreshold {
		return nil
	}

	ratio := float64(switches) / float64(typing)
	if ratio < config.FragmentedFocusMinRatio {
		return nil
	}

	severity := core.SeverityLow
	switch {
	case ratio >= 1.5:
		severity = core.SeverityHigh
	case ratio >= 0.8:
		severity = core.SeverityMedium
	}

	return &core.DistractionPattern{
		Type:        core.PatternFragmentedFocus,
		Severity:    severity,
		Description: fmt.Sprintf("%d tab switches against %d typing bursts", switches, typing),
		Metadata: core.Meta{
			"tab_switches":  core.MetaInt(int64(switches)),
			"typing_events": core.MetaInt(int64(typing)),
			"ratio":         core.MetaFloat(ratio),
		},
	}
}
