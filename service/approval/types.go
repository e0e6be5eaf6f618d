// Package approval routes Ask decisions to a human (or automated) decider:
// every require_approval action becomes a pending request that the embedding
// runtime resolves before executing the tool call.
package approval

import (
	"time"

	"github.com/viant/phasegate/model"
)

// Standard event topics.
const (
	TopicRequestCreated  = "request.created"
	TopicDecisionCreated = "decision.created"
)

// Event is the envelope published on the approval queue.
type Event struct {
	Topic   string            `json:"topic"`
	Data    interface{}       `json:"data"` // *Request | *Decision
	Headers map[string]string `json:"headers,omitempty"`
}

// Request represents one action awaiting approval.
type Request struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId,omitempty"`
	Category  model.Category `json:"category"`
	Payload   string         `json:"payload"`
	Reason    string         `json:"reason"`
	Phase     model.Phase    `json:"phase,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
}

// Decision resolves a pending request.
type Decision struct {
	ID        string    `json:"id"` // same as request.ID
	Approved  bool      `json:"approved"`
	Reason    string    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decidedAt"`
}
