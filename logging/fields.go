package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CompletionMetrics captures one inference call for structured logging.
// Implements zapcore.ObjectMarshaler so it nests as a JSON object.
type CompletionMetrics struct {
	// Model is the model identifier that served the call
	Model string

	// PromptTokens is the input token count reported by the provider
	PromptTokens int

	// CompletionTokens is the generated token count
	CompletionTokens int

	// TotalTokens is the provider's billed total
	TotalTokens int

	// Duration is wall time from enqueue to response
	Duration time.Duration

	// QueueWait is the portion of Duration spent waiting for admission
	QueueWait time.Duration
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (m CompletionMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("model", m.Model)
	enc.AddInt("prompt_tokens", m.PromptTokens)
	enc.AddInt("completion_tokens", m.CompletionTokens)
	enc.AddInt("total_tokens", m.TotalTokens)
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	enc.AddInt64("queue_wait_ms", m.QueueWait.Milliseconds())
	return nil
}

// CompletionFields wraps CompletionMetrics as a single nested field.
//
// Example:
//
//	logger.Info("completion finished", logging.CompletionFields(metrics))
func CompletionFields(metrics CompletionMetrics) zap.Field {
	return zap.Object("completion", metrics)
}

// SessionField tags an entry with the owning focus session.
func SessionField(sessionID string) zap.Field {
	return zap.String("session_id", sessionID)
}

// PatternFields tags an entry with a detected distraction pattern.
func PatternFields(patternType, severity string) []zap.Field {
	return []zap.Field{
		zap.String("pattern", patternType),
		zap.String("severity", severity),
	}
}
