// Package event fans engine happenings out to observability tooling:
// decisions, phase transitions, checkpoints and anomalies are published as
// typed events over a messaging queue.
package event

import "time"

// Topic identifies the kind of engine event.
type Topic string

const (
	TopicDecisionIssued    Topic = "decision.issued"
	TopicSignalRecorded    Topic = "signal.recorded"
	TopicPhaseAdvanced     Topic = "phase.advanced"
	TopicCheckpointCreated Topic = "checkpoint.created"
	TopicAnomalyDetected   Topic = "anomaly.detected"
)

// Event is the envelope published on every engine happening. Data carries
// the topic-specific payload (a decision, a signal, a checkpoint reference).
type Event struct {
	Topic     Topic             `json:"topic"`
	SessionID string            `json:"sessionId,omitempty"`
	Data      interface{}       `json:"data,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
