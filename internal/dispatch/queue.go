package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/oportunidade/payhook/internal/reconcile"
)

// ErrQueueFull is returned when an item cannot be queued within the enqueue timeout.
var ErrQueueFull = errors.New("dispatch queue is full")

// WorkItem is one reconciliation job. Attempt counts failed runs so far.
type WorkItem struct {
	ExternalID string                 `json:"external_id"`
	Event      reconcile.PaymentEvent `json:"event"`
	Attempt    int                    `json:"attempt"`
}

// Disposition tells the queue what to do with an item after handling. On a
// retry, Next is the item to redeliver with its Attempt already advanced.
type Disposition struct {
	Retry bool
	Delay time.Duration
	Next  WorkItem
}

var done = Disposition{}

func retryAfter(next WorkItem, delay time.Duration) Disposition {
	return Disposition{Retry: true, Delay: delay, Next: next}
}

type Handler func(ctx context.Context, item WorkItem) Disposition

// Queue moves work items from intake to workers.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
	// Consume runs handle with up to workers concurrent calls until ctx is
	// canceled, then waits for in-flight calls to return.
	Consume(ctx context.Context, workers int, handle Handler) error
	// Depth is the number of buffered items, or -1 when the backend cannot tell.
	Depth() int
}
