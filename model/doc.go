// Package model defines the value types exchanged between the policy engine,
// the backpressure aggregator and the workflow state machine: action
// requests, decisions, diagnostic signals, phases and workflow state
// snapshots. All types are plain data with JSON tags so that they can be
// persisted and inspected by external tooling without conversion.
package model
