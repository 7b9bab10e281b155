package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueRejectsWhenFull(t *testing.T) {
	q := NewMemoryQueue(1, 10*time.Millisecond, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, WorkItem{ExternalID: "a"}))
	assert.Equal(t, 1, q.Depth())

	started := time.Now()
	err := q.Enqueue(ctx, WorkItem{ExternalID: "b"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.GreaterOrEqual(t, time.Since(started), 10*time.Millisecond)
}

func TestMemoryQueueConsumeAndRetry(t *testing.T) {
	q := NewMemoryQueue(8, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	delivered := make(chan string, 8)
	handler := func(_ context.Context, item WorkItem) Disposition {
		n := calls.Add(1)
		delivered <- item.ExternalID
		if n == 1 {
			return retryAfter(item, 5*time.Millisecond)
		}
		return done
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, q.Consume(ctx, 2, handler))
	}()

	require.NoError(t, q.Enqueue(ctx, WorkItem{ExternalID: "tx-1"}))
	for i := 0; i < 2; i++ {
		select {
		case id := <-delivered:
			assert.Equal(t, "tx-1", id)
		case <-time.After(2 * time.Second):
			t.Fatal("item was not redelivered")
		}
	}

	cancel()
	wg.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoryQueueRedeliversAdvancedAttempt(t *testing.T) {
	q := NewMemoryQueue(4, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan int, 4)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_ = q.Consume(ctx, 1, func(_ context.Context, item WorkItem) Disposition {
			attempts <- item.Attempt
			if item.Attempt >= 2 {
				return done
			}
			next := item
			next.Attempt++
			return retryAfter(next, time.Millisecond)
		})
	}()

	require.NoError(t, q.Enqueue(ctx, WorkItem{ExternalID: "tx-1"}))
	var seen []int
	for len(seen) < 3 {
		select {
		case a := <-attempts:
			seen = append(seen, a)
		case <-time.After(2 * time.Second):
			t.Fatalf("retries stalled after attempts %v", seen)
		}
	}
	assert.Equal(t, []int{0, 1, 2}, seen)
	cancel()
	<-finished
}

func TestMemoryQueueDropsPendingRetriesOnShutdown(t *testing.T) {
	q := NewMemoryQueue(4, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())

	handled := make(chan struct{}, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_ = q.Consume(ctx, 1, func(_ context.Context, item WorkItem) Disposition {
			handled <- struct{}{}
			return retryAfter(item, time.Hour)
		})
	}()

	require.NoError(t, q.Enqueue(ctx, WorkItem{ExternalID: "tx-1"}))
	<-handled
	cancel()
	<-finished

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Empty(t, q.timers)
}
