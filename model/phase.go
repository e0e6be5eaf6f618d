package model

import "fmt"

// Phase identifies one stage of the SDLC workflow. Phases are strictly
// ordered; normal transitions advance by exactly one.
type Phase string

const (
	PhaseRequirements   Phase = "requirements"
	PhaseDesign         Phase = "design"
	PhaseImplementation Phase = "implementation"
	PhaseQuality        Phase = "quality"
	PhaseRelease        Phase = "release"
)

// Phases lists all workflow phases in their fixed ordering.
var Phases = []Phase{
	PhaseRequirements,
	PhaseDesign,
	PhaseImplementation,
	PhaseQuality,
	PhaseRelease,
}

var phaseIndex = func() map[Phase]int {
	m := make(map[Phase]int, len(Phases))
	for i, p := range Phases {
		m[p] = i
	}
	return m
}()

// Index returns the ordinal of p within the phase ordering, or -1 when p is
// not a recognised phase.
func (p Phase) Index() int {
	if i, ok := phaseIndex[p]; ok {
		return i
	}
	return -1
}

// IsValid reports whether p is a recognised phase.
func (p Phase) IsValid() bool { return p.Index() >= 0 }

// Next returns the phase following p. The second result is false when p is
// the terminal release phase (or unknown).
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i+1 >= len(Phases) {
		return "", false
	}
	return Phases[i+1], true
}

// Before reports whether p precedes other in the phase ordering.
func (p Phase) Before(other Phase) bool { return p.Index() < other.Index() }

// ParsePhase converts a raw string into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.IsValid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// Status describes the progress of a single phase.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)
