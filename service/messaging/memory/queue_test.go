package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	Text string
}

func TestQueue_PublishConsumeAck(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue[note](DefaultConfig())

	require.NoError(t, queue.Publish(ctx, &note{Text: "first"}))
	require.NoError(t, queue.Publish(ctx, &note{Text: "second"}))
	assert.Equal(t, 2, queue.Size())

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", message.T().Text)
	require.NoError(t, message.Ack())
	assert.Error(t, message.Ack())
}

func TestQueue_NackRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue[note](Config{MaxRetries: 1, RetryDelay: time.Millisecond, DeadLetter: true, QueueBuffer: 4})

	require.NoError(t, queue.Publish(ctx, &note{Text: "flaky"}))

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, message.Nack(errors.New("transient")))

	// The retry is redelivered after the delay.
	retryCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	message, err = queue.Consume(retryCtx)
	require.NoError(t, err)
	assert.Equal(t, "flaky", message.T().Text)

	// A second failure exhausts the retry budget.
	require.NoError(t, message.Nack(errors.New("still failing")))
	assert.Equal(t, 1, queue.DLQSize())
}

func TestQueue_ConsumeHonoursContext(t *testing.T) {
	queue := NewQueue[note](DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := queue.Consume(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
