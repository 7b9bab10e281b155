package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/oportunidade/payhook/pkg/logger"
)

// MemoryQueue is a bounded in-process queue. Retries are re-enqueued from timers;
// anything still buffered or waiting at shutdown is left for the sweeper.
type MemoryQueue struct {
	items          chan WorkItem
	enqueueTimeout time.Duration
	logg           *logger.Logger

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

func NewMemoryQueue(size int, enqueueTimeout time.Duration, logg *logger.Logger) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &MemoryQueue{
		items:          make(chan WorkItem, size),
		enqueueTimeout: enqueueTimeout,
		logg:           logg,
		timers:         make(map[*time.Timer]struct{}),
	}
}

// Enqueue blocks for at most the enqueue timeout before reporting ErrQueueFull.
func (q *MemoryQueue) Enqueue(ctx context.Context, item WorkItem) error {
	select {
	case q.items <- item:
		return nil
	default:
	}
	if q.enqueueTimeout <= 0 {
		return ErrQueueFull
	}

	timer := time.NewTimer(q.enqueueTimeout)
	defer timer.Stop()
	select {
	case q.items <- item:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, workers int, handle Handler) error {
	if workers <= 0 {
		workers = 1
	}
	q.mu.Lock()
	q.closed = false
	q.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			workerCtx := q.logg.WithWorker(ctx, worker)
			for {
				select {
				case <-ctx.Done():
					return
				case item := <-q.items:
					if d := handle(workerCtx, item); d.Retry {
						q.schedule(d.Next, d.Delay)
					}
				}
			}
		}(i)
	}
	wg.Wait()
	q.stopTimers()
	return nil
}

func (q *MemoryQueue) Depth() int {
	return len(q.items)
}

func (q *MemoryQueue) schedule(item WorkItem, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()

		select {
		case q.items <- item:
		default:
			ctx := q.logg.WithExternalID(context.Background(), item.ExternalID)
			q.logg.Warn(ctx, "retry dropped, queue full; sweeper will redispatch")
		}
	})
	q.timers[timer] = struct{}{}
}

func (q *MemoryQueue) stopTimers() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
		delete(q.timers, timer)
	}
}
