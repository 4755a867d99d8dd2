package analysis

import (
	"encoding/json"
	"errors"
	"strings"
)

// Insights is the post-session narrative produced by the deep model.
type Insights struct {
	// Summary is a short prose recap of the session
	Summary string `json:"summary"`
	// Strengths are things that went well
	Strengths []string `json:"strengths"`
	// Improvements are concrete things to change
	Improvements []string `json:"improvements"`
	// Suggestion is the single highest-value next step
	Suggestion string `json:"suggestion"`
}

// ErrUnparseableInsights is returned when model output matches no
// known format.
var ErrUnparseableInsights = errors.New("model output matches no known insight format")

// InsightParser turns raw model output into structured insights. The
// parse step is isolated behind this interface so a provider with a
// different output format only needs a new parser, not new
// orchestration.
type InsightParser interface {
	Parse(raw string) (*Insights, error)
}

// JSONInsightParser expects the model to return the Insights schema as
// JSON, optionally wrapped in a markdown code fence. This is the
// primary parser; prompts request structured output.
type JSONInsightParser struct{}

// Parse implements InsightParser.
func (JSONInsightParser) Parse(raw string) (*Insights, error) {
	trimmed := stripCodeFence(strings.TrimSpace(raw))

	var insights Insights
	if err := json.Unmarshal([]byte(trimmed), &insights); err != nil {
		return nil, err
	}
	if insights.Summary == "" {
		return nil, errors.New("insight JSON missing summary")
	}
	return &insights, nil
}

// HeadingInsightParser splits markdown output into sections by heading
// text. Compatibility shim for models that ignore the JSON
// instruction; brittle by nature, so it is only used as a fallback.
type HeadingInsightParser struct{}

// Parse implements InsightParser.
func (HeadingInsightParser) Parse(raw string) (*Insights, error) {
	insights := &Insights{}
	section := ""

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if heading := headingName(trimmed); heading != "" {
			section = heading
			continue
		}

		text := strings.TrimPrefix(strings.TrimPrefix(trimmed, "- "), "* ")
		switch section {
		case "summary":
			if insights.Summary == "" {
				insights.Summary = text
			} else {
				insights.Summary += " " + text
			}
		case "strengths":
			insights.Strengths = append(insights.Strengths, text)
		case "improvements":
			insights.Improvements = append(insights.Improvements, text)
		case "suggestion":
			if insights.Suggestion == "" {
				insights.Suggestion = text
			}
		}
	}

	if insights.Summary == "" {
		return nil, ErrUnparseableInsights
	}
	return insights, nil
}

// ChainInsightParser tries each parser in order, returning the first
// success. The standard chain is JSON first, heading shim second.
type ChainInsightParser []InsightParser

// DefaultInsightParser returns the standard parser chain.
func DefaultInsightParser() InsightParser {
	return ChainInsightParser{JSONInsightParser{}, HeadingInsightParser{}}
}

// Parse implements InsightParser.
func (c ChainInsightParser) Parse(raw string) (*Insights, error) {
	var lastErr error = ErrUnparseableInsights
	for _, parser := range c {
		insights, err := parser.Parse(raw)
		if err == nil {
			return insights, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// headingName normalizes a markdown heading line to a section key,
// or returns empty for non-heading lines.
func headingName(line string) string {
	if !strings.HasPrefix(line, "#") {
		return ""
	}
	heading := strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "#")))
	switch {
	case strings.Contains(heading, "summary"):
		return "summary"
	case strings.Contains(heading, "strength"):
		return "strengths"
	case strings.Contains(heading, "improve"):
		return "improvements"
	case strings.Contains(heading, "suggestion"), strings.Contains(heading, "next step"):
		return "suggestion"
	}
	return ""
}

// stripCodeFence removes a surrounding markdown code fence if present.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
