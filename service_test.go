package phasegate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/service/session"
)

func startedService(t *testing.T, options ...Option) *Service {
	t.Helper()
	service, err := New(options...)
	require.NoError(t, err)
	require.NoError(t, service.Start(context.Background()))
	return service
}

// advanceTo drives the workflow phase by phase up to (and including entering)
// the target phase.
func advanceTo(t *testing.T, service *Service, target model.Phase) {
	t.Helper()
	ctx := context.Background()
	for service.State().Phase != target {
		phase := service.State().Phase
		require.NoError(t, service.CompleteAgent(ctx, phase, "agent-"+string(phase)))
		require.NoError(t, service.AdvancePhase(ctx))
	}
}

func TestService_EvaluateLifecycle(t *testing.T) {
	ctx := context.Background()
	service := startedService(t, WithSessionID("session-1"))

	// Force push is blocked in every phase.
	decision, err := service.Evaluate(ctx, &model.ActionRequest{
		Category: model.CategoryBashCommand,
		Payload:  "git push --force origin main",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeBlock, decision.Outcome)

	// A plain push is deployment-class: blocked by the phase gate before
	// release, regardless of its require_approval rule.
	decision, err = service.Evaluate(ctx, &model.ActionRequest{
		Category: model.CategoryBashCommand,
		Payload:  "git push origin main",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeBlock, decision.Outcome)
	assert.Contains(t, decision.Reason, "release phase")
	assert.Contains(t, decision.Reason, string(model.PhaseRequirements))

	// In the release phase the same command degrades to an approval gate and
	// a pending request is created.
	advanceTo(t, service, model.PhaseRelease)
	decision, err = service.Evaluate(ctx, &model.ActionRequest{
		Category: model.CategoryBashCommand,
		Payload:  "git push origin main",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAsk, decision.Outcome)
	require.NotEmpty(t, decision.ApprovalID)

	pending, err := service.PendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, decision.ApprovalID, pending[0].ID)
	assert.Equal(t, model.PhaseRelease, pending[0].Phase)

	resolved, err := service.Decide(ctx, decision.ApprovalID, true, "release approved")
	require.NoError(t, err)
	assert.True(t, resolved.Approved)
}

func TestService_EvaluateDefaults(t *testing.T) {
	ctx := context.Background()
	service := startedService(t)

	decision, err := service.Evaluate(ctx, &model.ActionRequest{
		Category: model.CategoryBashCommand,
		Payload:  "go vet ./...",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAllow, decision.Outcome)

	decision, err = service.Evaluate(ctx, &model.ActionRequest{
		Category: model.CategoryFileWrite,
		Payload:  "docs/notes.md",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeWarn, decision.Outcome)

	decision, err = service.Evaluate(ctx, &model.ActionRequest{
		Category: model.CategoryBashCommand,
		Payload:  "rm -rf build/",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAsk, decision.Outcome)

	_, err = service.Evaluate(ctx, &model.ActionRequest{Category: "browser_click", Payload: "x"})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestService_RecordAndCanStop(t *testing.T) {
	ctx := context.Background()
	service := startedService(t)

	require.NoError(t, service.Record(ctx, &model.Signal{
		Kind:     model.KindTest,
		Severity: model.SeverityError,
		Message:  "3 tests failing in pkg/api",
	}))
	verdict := service.CanStop()
	assert.False(t, verdict.Allowed)
	require.Len(t, verdict.Reasons, 1)
	assert.Contains(t, verdict.Reasons[0], "pkg/api")

	// The latest test-kind signal wins: a clean rerun clears the failure.
	require.NoError(t, service.Record(ctx, &model.Signal{
		Kind:     model.KindTest,
		Severity: model.SeverityWarning,
		Message:  "all tests passing",
		Clearing: true,
	}))
	assert.True(t, service.CanStop().Allowed)
	assert.Len(t, service.Signals(), 2)
}

func TestService_CheckpointRestore(t *testing.T) {
	ctx := context.Background()
	service := startedService(t)

	advanceTo(t, service, model.PhaseImplementation)
	checkpoints, err := service.Checkpoints(ctx)
	require.NoError(t, err)
	require.Len(t, checkpoints, 2)

	designCheckpoint := checkpoints[1]
	require.NoError(t, service.RestoreFromCheckpoint(ctx, designCheckpoint.ID))

	state := service.State()
	assert.Equal(t, model.PhaseDesign, state.Phase)
	assert.Equal(t, model.StatusComplete, state.PhaseStateOf(model.PhaseDesign).Status)
}

func TestService_DurableRoundTrip(t *testing.T) {
	ctx := context.Background()
	baseDir := t.TempDir()
	config := DefaultConfig()
	config.BaseURL = baseDir

	service := startedService(t, WithConfig(config), WithSessionID("session-1"))
	advanceTo(t, service, model.PhaseDesign)
	require.NoError(t, service.Record(ctx, &model.Signal{
		Kind:     model.KindLint,
		Severity: model.SeverityError,
		Message:  "undefined variable",
	}))
	require.NoError(t, service.Heartbeat(ctx))

	// A concurrent session against the same workflow directory is refused
	// while the first is live.
	contender, err := New(WithConfig(config), WithSessionID("session-2"))
	require.NoError(t, err)
	assert.ErrorIs(t, contender.Start(ctx), session.ErrSessionActive)

	// The same session restarting resumes phase and signal log from disk.
	resumed, err := New(WithConfig(config), WithSessionID("session-1"))
	require.NoError(t, err)
	require.NoError(t, resumed.Start(ctx))
	assert.Equal(t, model.PhaseDesign, resumed.State().Phase)
	assert.False(t, resumed.CanStop().Allowed)

	require.NoError(t, resumed.Shutdown(ctx))
}

func TestService_OverrideAdvanceAudited(t *testing.T) {
	ctx := context.Background()
	service := startedService(t)

	require.NoError(t, service.OverrideAdvance(ctx, model.PhaseQuality, "oncall"))
	state := service.State()
	assert.Equal(t, model.PhaseQuality, state.Phase)
	require.Len(t, state.Anomalies, 1)
	assert.Equal(t, "oncall", state.Anomalies[0].Operator)
}
