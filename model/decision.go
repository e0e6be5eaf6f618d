package model

// Outcome is the verdict of evaluating an ActionRequest, ordered by
// restrictiveness: Allow < Warn < Ask < Block.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeWarn  Outcome = "warn"  // proceed, but surface the message
	OutcomeAsk   Outcome = "ask"   // require approval before proceeding
	OutcomeBlock Outcome = "block" // reject outright
)

// outcomeRank maps outcomes to their restrictiveness index.
var outcomeRank = map[Outcome]int{
	OutcomeAllow: 0,
	OutcomeWarn:  1,
	OutcomeAsk:   2,
	OutcomeBlock: 3,
}

// Rank returns the restrictiveness index of o; unknown outcomes rank as Allow.
func (o Outcome) Rank() int { return outcomeRank[o] }

// MostRestrictive returns the more restrictive of two outcomes.
func MostRestrictive(a, b Outcome) Outcome {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Decision is the synchronous answer to a single ActionRequest. Warn, Ask
// and Block always carry a non-empty human-readable Reason; Rule names the
// matched pattern when one applied.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
	Rule    string  `json:"rule,omitempty"`

	// ApprovalID references the pending approval request created for an Ask
	// decision, when an approval service is wired in.
	ApprovalID string `json:"approvalId,omitempty"`
}

// Allowed reports whether the caller may proceed with the action (possibly
// after surfacing a warning).
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow || d.Outcome == OutcomeWarn
}
