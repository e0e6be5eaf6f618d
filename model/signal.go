package model

import "time"

// Kind classifies the diagnostic source of a backpressure signal.
type Kind string

const (
	KindLint     Kind = "lint"
	KindType     Kind = "type"
	KindTest     Kind = "test"
	KindSecurity Kind = "security"
	KindCommand  Kind = "command"
)

// IsValid reports whether k is one of the recognised signal kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindLint, KindType, KindTest, KindSecurity, KindCommand:
		return true
	}
	return false
}

// Severity grades a backpressure signal.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether the severity is serious enough to veto a clean
// stop of the workflow.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Signal is a post-execution diagnostic event fed back into the workflow.
// Signals are append-only; a later signal of the same kind supersedes earlier
// ones when answering "is it safe to stop". Clearing marks an explicit
// all-clear (for example a passing re-run of the test suite).
type Signal struct {
	// Seq is the position of the entry in the session log, assigned by the
	// aggregator on append.
	Seq       int64     `json:"seq,omitempty"`
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Clearing  bool      `json:"clearing,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Repeats counts identical signals coalesced into this entry.
	Repeats int `json:"repeats,omitempty"`
}

// SameAs reports whether two signals are identical for coalescing purposes:
// same kind, severity, message and clearing flag.
func (s *Signal) SameAs(other *Signal) bool {
	return s.Kind == other.Kind && s.Severity == other.Severity &&
		s.Message == other.Message && s.Clearing == other.Clearing
}
