package fs

import (
	"context"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/phasegate/internal/clock"
	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/service/dao"
)

func testCheckpoint(t *testing.T, phase model.Phase, createdAt time.Time, suffix string) *model.Checkpoint {
	t.Helper()
	aState := model.NewState("session-1", nil, createdAt)
	aState.Phase = phase
	aState.PhaseStateOf(phase).Status = model.StatusComplete
	c, err := model.NewCheckpoint(model.CheckpointIDAt(createdAt, suffix), aState, nil, createdAt)
	require.NoError(t, err)
	return c
}

func TestService_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	service, err := New(path.Join(t.TempDir(), "checkpoints"))
	require.NoError(t, err)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := testCheckpoint(t, model.PhaseDesign, created, "aaaa0001")
	require.NoError(t, service.Save(ctx, c))

	loaded, err := service.Load(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseDesign, loaded.Phase)
	ok, err := loaded.Verify()
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, service.Delete(ctx, c.ID))
	_, err = service.Load(ctx, c.ID)
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestService_SaveImmutable(t *testing.T) {
	ctx := context.Background()
	service, err := New(path.Join(t.TempDir(), "checkpoints"))
	require.NoError(t, err)

	c := testCheckpoint(t, model.PhaseDesign, time.Now(), "aaaa0001")
	require.NoError(t, service.Save(ctx, c))
	assert.Error(t, service.Save(ctx, c))
}

func TestService_ListOrdered(t *testing.T) {
	ctx := context.Background()
	service, err := New(path.Join(t.TempDir(), "checkpoints"))
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	phases := []model.Phase{model.PhaseRequirements, model.PhaseDesign, model.PhaseImplementation}
	for i, phase := range phases {
		c := testCheckpoint(t, phase, base.Add(time.Duration(i)*time.Minute), "aaaa000"+string(rune('1'+i)))
		require.NoError(t, service.Save(ctx, c))
	}

	all, err := service.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, phase := range phases {
		assert.Equal(t, phase, all[i].Phase)
	}
}

func TestService_Prune(t *testing.T) {
	ctx := context.Background()
	service, err := New(path.Join(t.TempDir(), "checkpoints"))
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		c := testCheckpoint(t, model.PhaseDesign, base.Add(time.Duration(i)*time.Hour), "aaaa000"+string(rune('1'+i)))
		require.NoError(t, service.Save(ctx, c))
	}

	clock.NowFunc = func() time.Time { return base.Add(5 * time.Hour) }
	defer func() { clock.NowFunc = time.Now }()

	// Count cap keeps the newest three.
	pruned, err := service.Prune(ctx, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	// Age cap drops everything older than two hours.
	pruned, err = service.Prune(ctx, 0, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	all, err := service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
