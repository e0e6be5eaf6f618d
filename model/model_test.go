package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseOrdering(t *testing.T) {
	assert.True(t, PhaseRequirements.Before(PhaseDesign))
	assert.True(t, PhaseQuality.Before(PhaseRelease))
	assert.False(t, PhaseRelease.Before(PhaseRequirements))

	next, ok := PhaseRequirements.Next()
	require.True(t, ok)
	assert.Equal(t, PhaseDesign, next)

	_, ok = PhaseRelease.Next()
	assert.False(t, ok)

	_, err := ParsePhase("deployment")
	assert.Error(t, err)
	phase, err := ParsePhase("quality")
	require.NoError(t, err)
	assert.Equal(t, PhaseQuality, phase)
}

func TestOutcomeMostRestrictive(t *testing.T) {
	assert.Equal(t, OutcomeBlock, MostRestrictive(OutcomeWarn, OutcomeBlock))
	assert.Equal(t, OutcomeBlock, MostRestrictive(OutcomeBlock, OutcomeAllow))
	assert.Equal(t, OutcomeAsk, MostRestrictive(OutcomeAsk, OutcomeWarn))
	assert.Equal(t, OutcomeAllow, MostRestrictive(OutcomeAllow, OutcomeAllow))
}

func TestActionRequestValidate(t *testing.T) {
	valid := &ActionRequest{Category: CategoryFileWrite, Payload: "main.go", Timestamp: time.Now()}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, (&ActionRequest{Category: "other", Payload: "x"}).Validate(), ErrInvalidRequest)
	assert.ErrorIs(t, (&ActionRequest{Category: CategoryBashCommand}).Validate(), ErrInvalidRequest)
	var nilRequest *ActionRequest
	assert.ErrorIs(t, nilRequest.Validate(), ErrInvalidRequest)
}

func TestStateCloneIsDeep(t *testing.T) {
	state := NewState("s1", map[Phase][]string{PhaseDesign: {"architect", "ui-designer"}}, time.Now())
	clone := state.Clone()

	clone.Phase = PhaseDesign
	clone.PhaseStateOf(PhaseDesign).CompletedAgents["architect"] = true

	assert.Equal(t, PhaseRequirements, state.Phase)
	assert.Empty(t, state.PhaseStateOf(PhaseDesign).CompletedAgents)
}

func TestPhaseStateComplete(t *testing.T) {
	ps := &PhaseState{RequiredAgents: []string{"a", "b"}, CompletedAgents: map[string]bool{"a": true}}
	assert.False(t, ps.Complete())
	ps.CompletedAgents["b"] = true
	assert.True(t, ps.Complete())

	// Without a declared required set the first completion closes the phase.
	open := &PhaseState{CompletedAgents: map[string]bool{}}
	assert.False(t, open.Complete())
	open.CompletedAgents["solo"] = true
	assert.True(t, open.Complete())
}

func TestCheckpointDigest(t *testing.T) {
	state := NewState("s1", nil, time.Now())
	cp, err := NewCheckpoint(CheckpointIDAt(time.Now(), "abcd1234"), state, []string{"report.md"}, time.Now())
	require.NoError(t, err)

	ok, err := cp.Verify()
	require.NoError(t, err)
	assert.True(t, ok)

	// Tampering with the snapshot must invalidate the digest.
	cp.State.Phase = PhaseRelease
	ok, err = cp.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckpointSnapshotDoesNotAliasLiveState(t *testing.T) {
	state := NewState("s1", nil, time.Now())
	cp, err := NewCheckpoint("cp-1", state, nil, time.Now())
	require.NoError(t, err)

	state.Phase = PhaseQuality
	assert.Equal(t, PhaseRequirements, cp.State.Phase)
	ok, err := cp.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalSameAs(t *testing.T) {
	a := &Signal{Kind: KindLint, Severity: SeverityError, Message: "unused import"}
	b := &Signal{Kind: KindLint, Severity: SeverityError, Message: "unused import"}
	c := &Signal{Kind: KindLint, Severity: SeverityError, Message: "shadowed variable"}
	assert.True(t, a.SameAs(b))
	assert.False(t, a.SameAs(c))
	assert.False(t, a.SameAs(&Signal{Kind: KindTest, Severity: SeverityError, Message: "unused import"}))
}
