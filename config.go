package phasegate

import (
	"fmt"
	"time"
)

// Config is a serialisable representation of the engine configuration. It
// can be populated from JSON or YAML. The zero-value is useful - all nested
// fields inherit their package defaults, and an empty BaseURL keeps every
// store in memory.
type Config struct {
	// BaseURL roots the persisted workflow layout: state document, signal
	// log, checkpoints directory and session lock. Empty keeps everything in
	// memory (tests, ephemeral embedders).
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`

	// PolicyURL locates the policy document. Empty loads the built-in
	// default policy.
	PolicyURL string `json:"policyURL,omitempty" yaml:"policyURL,omitempty"`

	Session   SessionConfig   `json:"session" yaml:"session"`
	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

type SessionConfig struct {
	// StaleLockThreshold is how long a lock marker may go without a
	// heartbeat before a successor session may take the workflow over.
	StaleLockThreshold time.Duration `json:"staleLockThreshold" yaml:"staleLockThreshold"`

	// CoalescingWindow bounds duplicate-signal coalescing in the
	// backpressure log.
	CoalescingWindow time.Duration `json:"coalescingWindow" yaml:"coalescingWindow"`
}

type RetentionConfig struct {
	// MaxCheckpoints bounds how many snapshots survive pruning; zero keeps
	// all.
	MaxCheckpoints int `json:"maxCheckpoints" yaml:"maxCheckpoints"`

	// MaxCheckpointAge drops snapshots older than this; zero keeps all.
	MaxCheckpointAge time.Duration `json:"maxCheckpointAge" yaml:"maxCheckpointAge"`

	// MaxSignals bounds the backpressure log length; zero keeps all.
	MaxSignals int `json:"maxSignals" yaml:"maxSignals"`

	// MaxSignalAge drops signals older than this; zero keeps all.
	MaxSignalAge time.Duration `json:"maxSignalAge" yaml:"maxSignalAge"`
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			StaleLockThreshold: 2 * time.Minute,
			CoalescingWindow:   5 * time.Second,
		},
		Retention: RetentionConfig{
			MaxCheckpoints: 20,
			MaxSignals:     1000,
		},
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Session.StaleLockThreshold < 0 {
		return fmt.Errorf("session.staleLockThreshold must not be negative")
	}
	if c.Session.CoalescingWindow < 0 {
		return fmt.Errorf("session.coalescingWindow must not be negative")
	}
	if c.Retention.MaxCheckpoints < 0 || c.Retention.MaxSignals < 0 {
		return fmt.Errorf("retention limits must not be negative")
	}
	return nil
}
