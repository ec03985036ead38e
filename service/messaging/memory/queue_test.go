package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	Topic    string
	EntityID string
}

func TestQueuePublishConsume(t *testing.T) {
	config := DefaultConfig()
	config.RetryDelay = 10 * time.Millisecond
	queue := NewQueue[testEvent](config)
	ctx := context.Background()

	event := testEvent{Topic: "approval.request.created", EntityID: "apr-1"}
	require.NoError(t, queue.Publish(ctx, &event))
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, event, *message.T())

	require.NoError(t, message.Ack())
	assert.Error(t, message.Ack())
}

func TestQueueRetriesToDeadLetter(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 1
	config.RetryDelay = 5 * time.Millisecond
	queue := NewQueue[testEvent](config)
	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, &testEvent{Topic: "execution.recorded", EntityID: "exe-1"}))

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, message.Nack(fmt.Errorf("delivery failed")))

	// retried copy arrives after the delay
	consumeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	message, err = queue.Consume(consumeCtx)
	require.NoError(t, err)

	// exceeding MaxRetries parks the message on the dead letter queue
	require.NoError(t, message.Nack(fmt.Errorf("delivery failed again")))
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, 1, queue.DLQSize())
}

func TestQueueConcurrentProducers(t *testing.T) {
	queue := NewQueue[testEvent](DefaultConfig())
	ctx := context.Background()
	const producers, perProducer = 8, 10

	var wg sync.WaitGroup
	wg.Add(producers)
	for i := 0; i < producers; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				event := testEvent{Topic: "audit.event.appended", EntityID: fmt.Sprintf("p%d-e%d", id, j)}
				assert.NoError(t, queue.Publish(ctx, &event))
			}
		}(i)
	}
	wg.Wait()

	consumed := 0
	for queue.Size() > 0 {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		require.NoError(t, message.Ack())
		consumed++
	}
	assert.Equal(t, producers*perProducer, consumed)
}

func TestQueueContextCancellation(t *testing.T) {
	queue := NewQueue[testEvent](DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := queue.Consume(ctx)
	assert.Error(t, err)

	// queue remains usable afterwards
	background := context.Background()
	require.NoError(t, queue.Publish(background, &testEvent{Topic: "t", EntityID: "e"}))
	message, err := queue.Consume(background)
	require.NoError(t, err)
	assert.NotNil(t, message)
}
