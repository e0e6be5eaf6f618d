package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/phasegate/model"
	smemory "github.com/viant/phasegate/service/dao/state/memory"
)

func newTestMachine(t *testing.T, options ...Option) *Machine {
	t.Helper()
	machine := New("test-session", options...)
	require.NoError(t, machine.Start(context.Background()))
	return machine
}

// completePhase drives every required agent of the machine's current phase
// to completion and advances.
func completePhase(t *testing.T, machine *Machine, phase model.Phase, agents ...string) {
	t.Helper()
	ctx := context.Background()
	if len(agents) == 0 {
		agents = []string{"default-agent"}
	}
	for _, agent := range agents {
		require.NoError(t, machine.CompleteAgent(ctx, phase, agent))
	}
}

func TestCompleteAgent_Idempotent(t *testing.T) {
	// Completing the same agent twice leaves exactly one entry.
	ctx := context.Background()
	machine := newTestMachine(t, WithRequiredAgents(map[model.Phase][]string{
		model.PhaseDesign: {"ui-designer", "architect"},
	}))

	require.NoError(t, machine.CompleteAgent(ctx, model.PhaseDesign, "ui-designer"))
	require.NoError(t, machine.CompleteAgent(ctx, model.PhaseDesign, "ui-designer"))

	state := machine.State()
	assert.Equal(t, []string{"ui-designer"}, state.PhaseStateOf(model.PhaseDesign).CompletedList())
	assert.NotEqual(t, model.StatusComplete, state.PhaseStateOf(model.PhaseDesign).Status)
}

func TestCompleteAgent_CutsCheckpointExactlyOnce(t *testing.T) {
	ctx := context.Background()
	machine := newTestMachine(t, WithRequiredAgents(map[model.Phase][]string{
		model.PhaseRequirements: {"analyst"},
	}))

	require.NoError(t, machine.CompleteAgent(ctx, model.PhaseRequirements, "analyst"))
	checkpoints, err := machine.Checkpoints(ctx)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)
	assert.Equal(t, model.PhaseRequirements, checkpoints[0].Phase)

	// A duplicate completion after the phase closed must not re-cut.
	require.NoError(t, machine.CompleteAgent(ctx, model.PhaseRequirements, "analyst"))
	checkpoints, err = machine.Checkpoints(ctx)
	require.NoError(t, err)
	assert.Len(t, checkpoints, 1)

	state := machine.State()
	assert.Equal(t, model.StatusComplete, state.PhaseStateOf(model.PhaseRequirements).Status)
	assert.Equal(t, checkpoints[0].ID, state.CheckpointID)
}

func TestAdvancePhase(t *testing.T) {
	ctx := context.Background()
	machine := newTestMachine(t)

	// Advancing an incomplete phase fails.
	err := machine.AdvancePhase(ctx)
	assert.ErrorIs(t, err, ErrPhaseNotComplete)
	assert.Equal(t, model.PhaseRequirements, machine.Phase())

	completePhase(t, machine, model.PhaseRequirements)
	require.NoError(t, machine.AdvancePhase(ctx))
	assert.Equal(t, model.PhaseDesign, machine.Phase())
	assert.Equal(t, model.StatusInProgress, machine.State().PhaseStateOf(model.PhaseDesign).Status)
}

func TestAdvancePhase_TerminalRelease(t *testing.T) {
	ctx := context.Background()
	machine := newTestMachine(t)

	for _, phase := range model.Phases[:len(model.Phases)-1] {
		completePhase(t, machine, phase)
		require.NoError(t, machine.AdvancePhase(ctx))
	}
	completePhase(t, machine, model.PhaseRelease)

	assert.True(t, machine.State().Ended())
	assert.ErrorIs(t, machine.AdvancePhase(ctx), ErrSessionEnded)
	assert.ErrorIs(t, machine.CompleteAgent(ctx, model.PhaseRelease, "late-agent"), ErrSessionEnded)
}

func TestRestoreFromCheckpoint_RoundTrip(t *testing.T) {
	ctx := context.Background()
	machine := newTestMachine(t)

	completePhase(t, machine, model.PhaseRequirements)
	require.NoError(t, machine.AdvancePhase(ctx))
	completePhase(t, machine, model.PhaseDesign)
	require.NoError(t, machine.AdvancePhase(ctx))

	checkpoints, err := machine.Checkpoints(ctx)
	require.NoError(t, err)
	require.Len(t, checkpoints, 2)
	designCheckpoint := checkpoints[1]
	assert.Equal(t, model.PhaseDesign, designCheckpoint.Phase)

	// Restoring the design checkpoint regresses the phase - the only legal
	// way the phase index ever decreases.
	assert.Equal(t, model.PhaseImplementation, machine.Phase())
	require.NoError(t, machine.RestoreFromCheckpoint(ctx, designCheckpoint.ID))

	state := machine.State()
	assert.Equal(t, model.PhaseDesign, state.Phase)
	assert.Equal(t, model.StatusComplete, state.PhaseStateOf(model.PhaseDesign).Status)
	assert.Equal(t, designCheckpoint.ID, state.CheckpointID)
	require.NotEmpty(t, state.Anomalies)
	assert.Equal(t, "checkpoint_restore", state.Anomalies[len(state.Anomalies)-1].Kind)
}

func TestRestoreFromCheckpoint_Unknown(t *testing.T) {
	machine := newTestMachine(t)
	err := machine.RestoreFromCheckpoint(context.Background(), "20990101T000000.000-deadbeef")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestOverrideAdvance(t *testing.T) {
	ctx := context.Background()
	machine := newTestMachine(t)

	// Backward (or same-phase) jumps are rejected.
	assert.ErrorIs(t, machine.OverrideAdvance(ctx, model.PhaseRequirements, "oncall"), ErrInvalidPhase)

	require.NoError(t, machine.OverrideAdvance(ctx, model.PhaseQuality, "oncall"))
	state := machine.State()
	assert.Equal(t, model.PhaseQuality, state.Phase)
	require.Len(t, state.Anomalies, 1)
	assert.Equal(t, "phase_override", state.Anomalies[0].Kind)
	assert.Equal(t, "oncall", state.Anomalies[0].Operator)

	assert.ErrorIs(t, machine.OverrideAdvance(ctx, model.PhaseDesign, "oncall"), ErrInvalidPhase)
}

// failingStore wraps the in-memory store and fails every Save once armed.
type failingStore struct {
	*smemory.Service
	fail bool
}

func (s *failingStore) Save(ctx context.Context, state *model.State) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Service.Save(ctx, state)
}

func TestPersistenceFailureDoesNotCommit(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Service: smemory.New()}
	machine := New("test-session", WithStateStore(store))
	require.NoError(t, machine.Start(ctx))

	store.fail = true
	err := machine.CompleteAgent(ctx, model.PhaseRequirements, "analyst")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)

	// The in-memory state must not have the uncommitted mutation, and the
	// checkpoint cut for the failed completion must not survive either.
	state := machine.State()
	assert.Empty(t, state.PhaseStateOf(model.PhaseRequirements).CompletedAgents)
	checkpoints, err := machine.Checkpoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, checkpoints)

	// After the store recovers the same mutation succeeds and mints exactly
	// one checkpoint.
	store.fail = false
	require.NoError(t, machine.CompleteAgent(ctx, model.PhaseRequirements, "analyst"))
	assert.Equal(t, model.StatusComplete, machine.State().PhaseStateOf(model.PhaseRequirements).Status)
	checkpoints, err = machine.Checkpoints(ctx)
	require.NoError(t, err)
	assert.Len(t, checkpoints, 1)
}

func TestStartResumesPersistedState(t *testing.T) {
	ctx := context.Background()
	store := smemory.New()

	first := New("session-1", WithStateStore(store))
	require.NoError(t, first.Start(ctx))
	completePhase(t, first, model.PhaseRequirements)
	require.NoError(t, first.AdvancePhase(ctx))

	// A successor machine over the same store adopts the persisted document.
	second := New("session-1", WithStateStore(store))
	require.NoError(t, second.Start(ctx))
	assert.Equal(t, model.PhaseDesign, second.Phase())
}
