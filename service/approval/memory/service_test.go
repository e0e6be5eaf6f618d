package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/phasegate/internal/clock"
	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/service/approval"
	"github.com/viant/phasegate/service/dao"
)

func TestService_RequestAndDecide(t *testing.T) {
	ctx := context.Background()
	service := New()

	request := &approval.Request{
		ID:        "req-1",
		SessionID: "session-1",
		Category:  model.CategoryBashCommand,
		Payload:   "git push origin main",
		Reason:    "deployment-class command requires approval",
		Phase:     model.PhaseRelease,
	}
	require.NoError(t, service.RequestApproval(ctx, request))

	pending, err := service.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "req-1", pending[0].ID)

	decision, err := service.Decide(ctx, "req-1", true, "reviewed")
	require.NoError(t, err)
	assert.True(t, decision.Approved)

	pending, err = service.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestService_DecideIdempotent(t *testing.T) {
	ctx := context.Background()
	service := New()
	require.NoError(t, service.RequestApproval(ctx, &approval.Request{ID: "req-1"}))

	first, err := service.Decide(ctx, "req-1", false, "rejected by operator")
	require.NoError(t, err)

	// A conflicting second decision does not overwrite the first.
	second, err := service.Decide(ctx, "req-1", true, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.False(t, second.Approved)
	assert.Equal(t, "rejected by operator", second.Reason)
}

func TestService_DecideUnknown(t *testing.T) {
	service := New()
	_, err := service.Decide(context.Background(), "no-such-request", true, "")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestService_ListPendingOrdered(t *testing.T) {
	ctx := context.Background()
	service := New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	clock.NowFunc = func() time.Time { return base.Add(time.Minute) }
	defer func() { clock.NowFunc = time.Now }()
	require.NoError(t, service.RequestApproval(ctx, &approval.Request{ID: "req-late"}))

	clock.NowFunc = func() time.Time { return base }
	require.NoError(t, service.RequestApproval(ctx, &approval.Request{ID: "req-early"}))

	pending, err := service.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "req-early", pending[0].ID)
	assert.Equal(t, "req-late", pending[1].ID)
}

func TestService_PublishesEvents(t *testing.T) {
	ctx := context.Background()
	service := New()
	require.NoError(t, service.RequestApproval(ctx, &approval.Request{ID: "req-1"}))

	message, err := service.Queue().Consume(ctx)
	require.NoError(t, err)
	event := message.T()
	assert.Equal(t, approval.TopicRequestCreated, event.Topic)
	require.NoError(t, message.Ack())
}
