package intervention

import (
	"fmt"
	"strings"

	"github.com/sagars2004/Flowstate/core"
)

// urgencyFor maps a pattern type to delivery urgency and presentation
// style. Every type resolves; unknown types get the gentlest defaults.
func urgencyFor(patternType core.PatternType) (urgency, style string) {
	switch patternType {
	case core.PatternSocialMediaSpiral, core.PatternContextSwitching:
		return "high", "alert"
	case core.PatternExtendedIdle:
		return "medium", "suggestion"
	case core.PatternFragmentedFocus:
		return "low", "question"
	default:
		return "low", "suggestion"
	}
}

// coachingPrompt builds the fast-tier prompt for one detected pattern.
// The model is asked for a short second-person nudge, not an essay.
func coachingPrompt(pattern core.DistractionPattern) string {
	var b strings.Builder
	b.WriteString("You are a focus coach. The user just showed this distraction pattern:\n")
	fmt.Fprintf(&b, "- pattern: %s (severity %s)\n", pattern.Type, pattern.Severity)
	fmt.Fprintf(&b, "- detail: %s\n", pattern.Description)
	b.WriteString("Write one short, kind, second-person coaching message (under 30 words). ")
	b.WriteString("No preamble, no quotes, no emoji.")
	return b.String()
}

// fallbackMessage is the deterministic coaching text used when no
// inference credentials are configured. The user just gets a plainer
// message, with no mention that the AI tier is off.
func fallbackMessage(pattern core.DistractionPattern) string {
	switch pattern.Type {
	case core.PatternContextSwitching:
		return "You're switching tabs a lot. Try staying with one task for the next ten minutes."
	case core.PatternSocialMediaSpiral:
		return "You've been circling social media. Close those tabs and come back to what matters."
	case core.PatternExtendedIdle:
		return "You've been away a while. Ready to pick your work back up?"
	case core.PatternFragmentedFocus:
		return "Lots of switching, little typing. What's the one thing you want to finish right now?"
	default:
		return "Take a breath and refocus on your main task."
	}
}

// insightPrompt builds the deep-tier prompt for post-session insights.
// Structured output is requested first; the heading shim in analysis
// covers models that answer in markdown anyway.
func insightPrompt(summaryJSON string) string {
	var b strings.Builder
	b.WriteString("You are a focus coach reviewing a completed work session. ")
	b.WriteString("Session data as JSON:\n")
	b.WriteString(summaryJSON)
	b.WriteString("\n\nRespond with a JSON object with keys ")
	b.WriteString(`"summary" (one paragraph), "strengths" (list of strings), `)
	b.WriteString(`"improvements" (list of strings), and "suggestion" (one sentence). `)
	b.WriteString("Respond with JSON only.")
	return b.String()
}
