package model

import (
	"sort"
	"time"
)

// PhaseState tracks the progress of a single phase: its status, the agents
// that must report completion before the phase may close, and the set of
// agents that already have.
type PhaseState struct {
	Status          Status          `json:"status"`
	RequiredAgents  []string        `json:"requiredAgents,omitempty"`
	CompletedAgents map[string]bool `json:"completedAgents,omitempty"`
}

// Complete reports whether every required agent has completed. A phase with
// no required agents completes as soon as one completion is recorded.
func (p *PhaseState) Complete() bool {
	if len(p.RequiredAgents) == 0 {
		return len(p.CompletedAgents) > 0
	}
	for _, agent := range p.RequiredAgents {
		if !p.CompletedAgents[agent] {
			return false
		}
	}
	return true
}

// CompletedList returns the completed-agent set as a sorted slice.
func (p *PhaseState) CompletedList() []string {
	out := make([]string, 0, len(p.CompletedAgents))
	for agent := range p.CompletedAgents {
		out = append(out, agent)
	}
	sort.Strings(out)
	return out
}

func (p *PhaseState) clone() *PhaseState {
	if p == nil {
		return nil
	}
	ret := &PhaseState{
		Status:         p.Status,
		RequiredAgents: append([]string(nil), p.RequiredAgents...),
	}
	if p.CompletedAgents != nil {
		ret.CompletedAgents = make(map[string]bool, len(p.CompletedAgents))
		for k, v := range p.CompletedAgents {
			ret.CompletedAgents[k] = v
		}
	}
	return ret
}

// Anomaly records an out-of-band intervention (operator phase override,
// stale-lock takeover, checkpoint restore) in the state's audit trail.
type Anomaly struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Operator  string    `json:"operator,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the single workflow-state document of an active session. It is
// owned by the workflow machine, mutated only through it, and persisted via
// atomic replace after every mutation.
type State struct {
	SessionID    string                 `json:"sessionId"`
	Phase        Phase                  `json:"phase"`
	Phases       map[Phase]*PhaseState  `json:"phases"`
	CheckpointID string                 `json:"checkpointId,omitempty"`
	Anomalies    []Anomaly              `json:"anomalies,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// NewState creates the initial workflow state: requirements phase in
// progress, every other phase pending. requiredAgents may be nil when phases
// close on the first completion.
func NewState(sessionID string, requiredAgents map[Phase][]string, now time.Time) *State {
	ret := &State{
		SessionID: sessionID,
		Phase:     PhaseRequirements,
		Phases:    make(map[Phase]*PhaseState, len(Phases)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, phase := range Phases {
		ps := &PhaseState{Status: StatusPending, CompletedAgents: make(map[string]bool)}
		if agents := requiredAgents[phase]; len(agents) > 0 {
			ps.RequiredAgents = append([]string(nil), agents...)
		}
		ret.Phases[phase] = ps
	}
	ret.Phases[PhaseRequirements].Status = StatusInProgress
	return ret
}

// PhaseStateOf returns the tracked state for a phase, creating an empty
// record for states deserialised from older documents.
func (s *State) PhaseStateOf(phase Phase) *PhaseState {
	ps, ok := s.Phases[phase]
	if !ok {
		ps = &PhaseState{Status: StatusPending, CompletedAgents: make(map[string]bool)}
		if s.Phases == nil {
			s.Phases = make(map[Phase]*PhaseState)
		}
		s.Phases[phase] = ps
	}
	if ps.CompletedAgents == nil {
		ps.CompletedAgents = make(map[string]bool)
	}
	return ps
}

// Ended reports whether the workflow reached its terminal state: release
// phase complete.
func (s *State) Ended() bool {
	return s.Phase == PhaseRelease && s.PhaseStateOf(PhaseRelease).Status == StatusComplete
}

// Clone returns a deep copy of the state, so that checkpoint snapshots never
// alias the live document.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	ret := &State{
		SessionID:    s.SessionID,
		Phase:        s.Phase,
		CheckpointID: s.CheckpointID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Anomalies:    append([]Anomaly(nil), s.Anomalies...),
	}
	if s.Phases != nil {
		ret.Phases = make(map[Phase]*PhaseState, len(s.Phases))
		for k, v := range s.Phases {
			ret.Phases[k] = v.clone()
		}
	}
	return ret
}
