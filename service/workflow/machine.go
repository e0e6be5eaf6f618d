// Package workflow implements the phased state machine of a session:
// requirements, design, implementation, quality and release, each closed by
// its set of required agents, with a checkpoint cut at every phase
// completion. The machine owns the single workflow-state document; every
// mutation is persisted via atomic replace before it is considered
// committed.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"github.com/viant/phasegate/internal/clock"
	"github.com/viant/phasegate/internal/idgen"
	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/service/dao"
	"github.com/viant/phasegate/service/dao/checkpoint"
	cmemory "github.com/viant/phasegate/service/dao/checkpoint/memory"
	"github.com/viant/phasegate/service/dao/state"
	smemory "github.com/viant/phasegate/service/dao/state/memory"
	"github.com/viant/phasegate/service/event"
)

// Machine drives the workflow state of one session. It assumes a single
// mutating caller; concurrent readers are served consistent snapshots
// because every mutation replaces the persisted document atomically.
type Machine struct {
	mu          sync.RWMutex
	state       *model.State
	states      state.Store
	checkpoints checkpoint.Store
	logger      *zap.Logger
	events      *event.Publisher
	required    map[model.Phase][]string
	artifacts   []string
}

// Option customises a Machine.
type Option func(*Machine)

// WithStateStore sets the durable state store.
func WithStateStore(store state.Store) Option {
	return func(m *Machine) { m.states = store }
}

// WithCheckpointStore sets the checkpoint store.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(m *Machine) { m.checkpoints = store }
}

// WithLogger sets the audit logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// WithPublisher sets the event publisher.
func WithPublisher(publisher *event.Publisher) Option {
	return func(m *Machine) { m.events = publisher }
}

// WithRequiredAgents declares the agent set each phase waits for. A phase
// without a declared set completes on its first agent completion.
func WithRequiredAgents(required map[model.Phase][]string) Option {
	return func(m *Machine) { m.required = required }
}

// New creates a machine for the given session. Stores default to in-memory
// implementations, the logger to a no-op.
func New(sessionID string, options ...Option) *Machine {
	ret := &Machine{logger: zap.NewNop()}
	for _, option := range options {
		option(ret)
	}
	if ret.states == nil {
		ret.states = smemory.New()
	}
	if ret.checkpoints == nil {
		ret.checkpoints = cmemory.New()
	}
	ret.state = model.NewState(sessionID, ret.required, clock.Now())
	return ret
}

// Start persists the initial state, or adopts a previously persisted
// document when one exists (crash recovery path).
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	persisted, err := m.states.Load(ctx)
	switch {
	case err == nil:
		m.logger.Info("resuming persisted workflow state",
			zap.String("session", persisted.SessionID),
			zap.String("phase", string(persisted.Phase)))
		m.state = persisted
		return nil
	case errors.Is(err, dao.ErrNotFound):
		return m.commit(ctx, m.state.Clone())
	default:
		return fmt.Errorf("failed to load workflow state: %w", err)
	}
}

// State returns a deep copy of the current workflow state.
func (m *Machine) State() *model.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// Phase returns the current phase.
func (m *Machine) Phase() model.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Phase
}

// AttachArtifact registers an artifact path to be referenced by the next
// checkpoint.
func (m *Machine) AttachArtifact(paths ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts = append(m.artifacts, paths...)
}

// CompleteAgent records that an agent finished its work in a phase. The call
// is idempotent: re-adding a completed agent is a no-op and never re-cuts
// the phase checkpoint. When the last required agent completes, the phase
// status flips to complete exactly once and a checkpoint is produced.
func (m *Machine) CompleteAgent(ctx context.Context, phase model.Phase, agentID string) error {
	if !phase.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, phase)
	}
	if agentID == "" {
		return fmt.Errorf("%w: empty agent id", ErrInvalidPhase)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Ended() {
		return ErrSessionEnded
	}

	current := m.state.PhaseStateOf(phase)
	if current.CompletedAgents[agentID] {
		return nil
	}

	next := m.state.Clone()
	ps := next.PhaseStateOf(phase)
	ps.CompletedAgents[agentID] = true
	if ps.Status == model.StatusPending {
		ps.Status = model.StatusInProgress
	}

	completedNow := ps.Status != model.StatusComplete && ps.Complete()
	var cp *model.Checkpoint
	if completedNow {
		ps.Status = model.StatusComplete
		now := clock.Now()
		id := model.CheckpointIDAt(now, idgen.Short())
		next.CheckpointID = id
		var err error
		if cp, err = model.NewCheckpoint(id, next, m.artifacts, now); err != nil {
			return fmt.Errorf("failed to snapshot checkpoint: %w", err)
		}
		if err = m.checkpoints.Save(ctx, cp); err != nil {
			return fmt.Errorf("%w: checkpoint %s: %v", ErrPersistence, id, err)
		}
	}

	if err := m.commit(ctx, next); err != nil {
		// Remove the just-written snapshot so a failed commit leaves no
		// checkpoint that no committed state references; the retry mints a
		// fresh one.
		if cp != nil {
			_ = m.checkpoints.Delete(ctx, cp.ID)
		}
		return err
	}
	if completedNow {
		m.artifacts = nil
		m.logger.Info("phase complete",
			zap.String("phase", string(phase)),
			zap.String("checkpoint", cp.ID))
		_ = m.events.Publish(ctx, event.TopicCheckpointCreated, cp.ID)
	}
	return nil
}

// AdvancePhase moves the workflow to the next phase. It fails with
// ErrPhaseNotComplete while the current phase has outstanding agents, and
// with ErrSessionEnded once the release phase completed.
func (m *Machine) AdvancePhase(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Ended() {
		return ErrSessionEnded
	}
	current := m.state.PhaseStateOf(m.state.Phase)
	if current.Status != model.StatusComplete {
		return fmt.Errorf("%w: %s", ErrPhaseNotComplete, m.state.Phase)
	}
	nextPhase, ok := m.state.Phase.Next()
	if !ok {
		return ErrSessionEnded
	}

	next := m.state.Clone()
	next.Phase = nextPhase
	next.PhaseStateOf(nextPhase).Status = model.StatusInProgress
	if err := m.commit(ctx, next); err != nil {
		return err
	}
	m.logger.Info("phase advanced", zap.String("phase", string(nextPhase)))
	_ = m.events.Publish(ctx, event.TopicPhaseAdvanced, string(nextPhase))
	return nil
}

// OverrideAdvance jumps the workflow forward to an arbitrary later phase on
// explicit operator request. The jump is recorded as an anomaly in the audit
// trail; backward jumps are rejected (only checkpoint restore may regress).
func (m *Machine) OverrideAdvance(ctx context.Context, target model.Phase, operator string) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, target)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Ended() {
		return ErrSessionEnded
	}
	if !m.state.Phase.Before(target) {
		return fmt.Errorf("%w: override may only move forward, current phase is %s", ErrInvalidPhase, m.state.Phase)
	}

	next := m.state.Clone()
	anomaly := model.Anomaly{
		Kind:      "phase_override",
		Message:   fmt.Sprintf("operator jump from %s to %s", next.Phase, target),
		Operator:  operator,
		Timestamp: clock.Now(),
	}
	next.Anomalies = append(next.Anomalies, anomaly)
	next.Phase = target
	next.PhaseStateOf(target).Status = model.StatusInProgress
	if err := m.commit(ctx, next); err != nil {
		return err
	}
	m.logger.Warn("anomaly: operator phase override",
		zap.String("operator", operator),
		zap.String("target", string(target)))
	_ = m.events.Publish(ctx, event.TopicAnomalyDetected, anomaly)
	return nil
}

// RestoreFromCheckpoint replaces the live state with a checkpoint snapshot.
// This is the single legal way for the phase to regress. The snapshot's
// digest is verified before the swap; the swap itself is persisted
// atomically like any other mutation.
func (m *Machine) RestoreFromCheckpoint(ctx context.Context, id string) error {
	cp, err := m.checkpoints.Load(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) || errors.Is(err, dao.ErrInvalidID) {
			return fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
		}
		return fmt.Errorf("failed to load checkpoint %s: %w", id, err)
	}
	ok, err := cp.Verify()
	if err != nil {
		return fmt.Errorf("failed to verify checkpoint %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s digest mismatch", ErrCheckpointCorrupt, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := cp.State.Clone()
	next.CheckpointID = cp.ID
	anomaly := model.Anomaly{
		Kind:      "checkpoint_restore",
		Message:   fmt.Sprintf("state restored from checkpoint %s (phase %s)", cp.ID, cp.Phase),
		Timestamp: clock.Now(),
	}
	next.Anomalies = append(next.Anomalies, anomaly)

	diff := stateDiff(m.state, next)
	if err = m.commit(ctx, next); err != nil {
		return err
	}
	m.logger.Warn("anomaly: checkpoint restore",
		zap.String("checkpoint", cp.ID),
		zap.String("diff", diff))
	_ = m.events.Publish(ctx, event.TopicAnomalyDetected, anomaly)
	return nil
}

// Checkpoints lists known checkpoints, oldest first.
func (m *Machine) Checkpoints(ctx context.Context) ([]*model.Checkpoint, error) {
	return m.checkpoints.List(ctx)
}

// PruneCheckpoints applies the checkpoint retention policy.
func (m *Machine) PruneCheckpoints(ctx context.Context, maxCount int, maxAge time.Duration) (int, error) {
	return m.checkpoints.Prune(ctx, maxCount, maxAge)
}

// Archive moves the state document to the archive at session end.
func (m *Machine) Archive(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states.Archive(ctx, m.state.SessionID)
}

// commit persists next and only then swaps it in as the live state. On a
// persistence failure the live state is untouched, so the caller can retry
// or abort without the in-memory and durable views diverging.
func (m *Machine) commit(ctx context.Context, next *model.State) error {
	next.UpdatedAt = clock.Now()
	if err := m.states.Save(ctx, next); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	m.state = next
	return nil
}

// stateDiff renders a unified diff between two state documents for the
// audit log.
func stateDiff(before, after *model.State) string {
	beforeJSON, _ := json.MarshalIndent(before, "", "  ")
	afterJSON, _ := json.MarshalIndent(after, "", "  ")
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(beforeJSON)),
		B:        difflib.SplitLines(string(afterJSON)),
		FromFile: "current",
		ToFile:   "restored",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return text
}
