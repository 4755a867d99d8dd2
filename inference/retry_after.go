package inference

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RetryAfterParser extracts the provider's wait hint from a throttling
// error message. It returns false when the message carries no hint.
//
// The hint format is provider prose, not a stable API surface, so the
// parser is injectable: swapping providers means swapping the parser,
// not the classification logic.
type RetryAfterParser func(message string) (time.Duration, bool)

// Matches the "Please try again in 20s" / "try again in 250ms" phrasing
// used in rate-limit responses.
var retryAfterPattern = regexp.MustCompile(`(?i)try again in\s+(\d+(?:\.\d+)?)\s*(ms|milliseconds?|s|sec|seconds?)?`)

// DefaultRetryAfterParser parses the wait hint out of the provider's
// standard rate-limit prose. A bare number is treated as seconds.
func DefaultRetryAfterParser(message string) (time.Duration, bool) {
	match := retryAfterPattern.FindStringSubmatch(message)
	if match == nil {
		return 0, false
	}

	amount, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}

	unit := time.Second
	switch strings.ToLower(match[2]) {
	case "ms", "millisecond", "milliseconds":
		unit = time.Millisecond
	}
	return time.Duration(amount * float64(unit)), true
}
