package inference

import (
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// RateLimitError indicates the external API refused a call due to
// throttling. The request queue retries these automatically; a caller
// receiving one should not retry synchronously because the queue
// already has.
type RateLimitError struct {
	// Message is the API's error text
	Message string
	// RetryAfter is the API's wait hint, zero if none was supplied
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s", e.Message)
}

// ModelUnavailableError indicates the configured model identifier was
// rejected by the API as retired or unknown. Deep-tier calls fall back
// to the fast tier once; this error only surfaces when the fallback
// also fails.
type ModelUnavailableError struct {
	// Model is the rejected model identifier
	Model string
	// Message is the API's error text
	Message string
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model %q unavailable: %s", e.Model, e.Message)
}

// InferenceError wraps any other failure from the inference boundary.
// Not retried.
type InferenceError struct {
	// Err is the underlying error
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// IsThrottle reports whether err is classified as a throttling
// failure. The request queue uses this to decide on automatic retry.
func IsThrottle(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsModelUnavailable reports whether err is classified as a retired or
// unknown model identifier.
func IsModelUnavailable(err error) bool {
	var mu *ModelUnavailableError
	return errors.As(err, &mu)
}

// Substrings the API uses to signal each failure class when the HTTP
// status alone is ambiguous.
var (
	throttleSignals = []string{"rate limit", "rate_limit", "too many requests", "429"}
	retiredSignals  = []string{"decommissioned", "deprecated", "unknown model", "model_not_found", "does not exist"}
)

// classifyError maps a raw error from the inference boundary into the
// package taxonomy: throttling (HTTP 429 or a rate-limit substring),
// model-unavailable (400/404 with a retirement substring), or opaque.
// The parser extracts the provider's wait hint from throttle messages.
func classifyError(model string, err error, parse RetryAfterParser) error {
	throttled := func(message string) error {
		wait, _ := parse(message)
		return &RateLimitError{Message: message, RetryAfter: wait}
	}

	message := err.Error()
	lower := strings.ToLower(message)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message = apiErr.Message
		lower = strings.ToLower(message)

		if apiErr.HTTPStatusCode == 429 {
			return throttled(message)
		}
		if apiErr.HTTPStatusCode == 400 || apiErr.HTTPStatusCode == 404 {
			if containsAny(lower, retiredSignals) {
				return &ModelUnavailableError{Model: model, Message: message}
			}
		}
	}

	if containsAny(lower, throttleSignals) {
		return throttled(message)
	}
	if containsAny(lower, retiredSignals) {
		return &ModelUnavailableError{Model: model, Message: message}
	}
	return &InferenceError{Err: err}
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
