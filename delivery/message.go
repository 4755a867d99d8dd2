// Package delivery pushes intervention messages and analysis results
// to listeners subscribed by session over WebSocket. Delivery is
// best-effort and fire-and-forget; a slow or dead subscriber never
// blocks the pipeline.
package delivery

import (
	"time"

	"github.com/sagars2004/Flowstate/core"
)

// Message type constants for the outbound envelope.
const (
	// MessageTypeIntervention carries a coaching message
	MessageTypeIntervention = "intervention"

	// MessageTypeAnalysis carries a completed session analysis
	MessageTypeAnalysis = "analysis"

	// MessageTypeSessionEnded signals that the session was closed
	MessageTypeSessionEnded = "session_ended"

	// MessageTypeHealth carries periodic pipeline health stats
	MessageTypeHealth = "health"
)

// Envelope is the wire format for every outbound message.
type Envelope struct {
	// Type identifies the payload kind (use MessageType* constants)
	Type string `json:"type"`

	// SessionID is the session whose listeners receive this message
	SessionID string `json:"session_id"`

	// Timestamp is when the envelope was created
	Timestamp time.Time `json:"timestamp"`

	// Data is the type-specific payload
	Data interface{} `json:"data,omitempty"`
}

// NewEnvelope creates an envelope stamped with the current time.
func NewEnvelope(msgType, sessionID string, data interface{}) Envelope {
	return Envelope{
		Type:      msgType,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewInterventionEnvelope wraps a coaching message for delivery.
func NewInterventionEnvelope(msg core.InterventionMessage) Envelope {
	return NewEnvelope(MessageTypeIntervention, msg.SessionID, msg)
}

// NewAnalysisEnvelope wraps a session analysis result for delivery.
func NewAnalysisEnvelope(sessionID string, result interface{}) Envelope {
	return NewEnvelope(MessageTypeAnalysis, sessionID, result)
}

// NewSessionEndedEnvelope signals session close to listeners.
func NewSessionEndedEnvelope(sessionID string) Envelope {
	return NewEnvelope(MessageTypeSessionEnded, sessionID, nil)
}
