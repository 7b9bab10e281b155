// Package dispatch decouples webhook intake from reconciliation: a queue feeds
// a bounded worker pool that claims each receipt in the ledger before applying it.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/oportunidade/payhook/internal/ledger"
	"github.com/oportunidade/payhook/internal/reconcile"
	"github.com/oportunidade/payhook/pkg/config"
	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
	"github.com/oportunidade/payhook/pkg/logger"
	"github.com/oportunidade/payhook/pkg/metrics"
)

type receiptLedger interface {
	TryClaimForProcessing(ctx context.Context, externalID string) (ledger.ClaimResult, error)
	MarkProcessed(ctx context.Context, externalID string) error
	MarkFailed(ctx context.Context, externalID string, cause error) (int, error)
	MarkDeadLetter(ctx context.Context, externalID string) error
}

type applier interface {
	Apply(ctx context.Context, event reconcile.PaymentEvent) (reconcile.Result, error)
}

type DispatcherParams struct {
	Queue   Queue
	Ledger  receiptLedger
	Engine  applier
	Config  config.DispatchConfig
	Logger  *logger.Logger
	Metrics *metrics.DispatchMetrics
}

type Dispatcher struct {
	queue       Queue
	ledger      receiptLedger
	engine      applier
	workers     int
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	jitter      func(time.Duration) time.Duration
	logg        *logger.Logger
	metrics     *metrics.DispatchMetrics
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Queue == nil {
		return nil, errors.New("dispatch queue is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("receipt ledger is required")
	}
	if params.Engine == nil {
		return nil, errors.New("reconciliation engine is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	cfg := params.Config
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	base := cfg.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < base {
		maxBackoff = base
	}

	return &Dispatcher{
		queue:       params.Queue,
		ledger:      params.Ledger,
		engine:      params.Engine,
		workers:     workers,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: base,
		maxBackoff:  maxBackoff,
		jitter:      withJitter,
		logg:        logg,
		metrics:     params.Metrics,
	}, nil
}

// Enqueue hands an item to the queue. A full queue surfaces as CodeQueueFull.
func (d *Dispatcher) Enqueue(ctx context.Context, item WorkItem) error {
	err := d.queue.Enqueue(ctx, item)
	d.reportDepth()
	if errors.Is(err, ErrQueueFull) {
		d.metrics.Inc(metrics.OutcomeRejected)
		return pkgerrors.Wrap(pkgerrors.CodeQueueFull, err, "dispatch queue is full")
	}
	if err != nil {
		d.metrics.Inc(metrics.OutcomeRejected)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue webhook")
	}
	d.metrics.Inc(metrics.OutcomeEnqueued)
	return nil
}

// Run consumes the queue until ctx is canceled and in-flight items finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logg.Info(d.logg.WithField(ctx, "workers", d.workers), "dispatcher started")
	err := d.queue.Consume(ctx, d.workers, d.handle)
	d.logg.Info(ctx, "dispatcher stopped")
	return err
}

// handle runs one item to completion. Cancellation of ctx does not interrupt
// a claimed item; its receipt must always leave PROCESSING.
func (d *Dispatcher) handle(ctx context.Context, item WorkItem) Disposition {
	ctx = context.WithoutCancel(ctx)
	ctx = d.logg.WithFields(ctx, map[string]any{
		"external_id":             item.ExternalID,
		"merchant_transaction_id": item.Event.MerchantReference,
		"attempt":                 item.Attempt,
	})
	d.reportDepth()

	claim, err := d.ledger.TryClaimForProcessing(ctx, item.ExternalID)
	if err != nil {
		next := item
		next.Attempt++
		delay := d.delay(next.Attempt)
		d.logg.Error(d.logg.WithField(ctx, "retry_in", delay.String()), "claim webhook receipt", err)
		d.metrics.Inc(metrics.OutcomeRetried)
		return retryAfter(next, delay)
	}
	if claim.Outcome != ledger.Claimed {
		d.metrics.Inc(metrics.OutcomeDropped)
		d.logg.Debug(d.logg.WithFields(ctx, map[string]any{
			"claim":  claim.Outcome.String(),
			"status": string(claim.Status),
		}), "work item dropped")
		return done
	}

	d.metrics.TrackInFlight(1)
	defer d.metrics.TrackInFlight(-1)
	started := time.Now()

	result, applyErr := d.engine.Apply(ctx, item.Event)
	if applyErr == nil {
		d.metrics.ObserveProcessing(metrics.OutcomeProcessed, time.Since(started))
		if err := d.ledger.MarkProcessed(ctx, item.ExternalID); err != nil {
			d.logg.Error(ctx, "mark receipt processed", err)
			return done
		}
		d.metrics.Inc(metrics.OutcomeProcessed)
		d.logg.Info(d.logg.WithField(ctx, "outcome", string(result.Outcome)), "webhook processed")
		return done
	}

	d.metrics.ObserveProcessing(metrics.OutcomeFailed, time.Since(started))
	d.metrics.Inc(metrics.OutcomeFailed)
	d.logg.Error(ctx, "webhook processing failed", applyErr)

	retries, err := d.ledger.MarkFailed(ctx, item.ExternalID, applyErr)
	if err != nil {
		d.logg.Error(ctx, "mark receipt failed", err)
		return done
	}
	if retries >= d.maxRetries {
		if err := d.ledger.MarkDeadLetter(ctx, item.ExternalID); err != nil {
			d.logg.Error(ctx, "mark receipt dead-lettered", err)
			return done
		}
		d.metrics.Inc(metrics.OutcomeDeadLettered)
		d.logg.Warn(d.logg.WithField(ctx, "retry_count", retries), "webhook moved to dead letter")
		return done
	}

	next := item
	next.Attempt = retries
	delay := d.delay(retries)
	d.metrics.Inc(metrics.OutcomeRetried)
	d.logg.Info(d.logg.WithFields(ctx, map[string]any{
		"retry_count": retries,
		"retry_in":    delay.String(),
	}), "webhook scheduled for retry")
	return retryAfter(next, delay)
}

func (d *Dispatcher) delay(attempt int) time.Duration {
	return d.jitter(backoffFor(attempt, d.baseBackoff, d.maxBackoff))
}

func (d *Dispatcher) reportDepth() {
	if depth := d.queue.Depth(); depth >= 0 {
		d.metrics.SetQueueDepth(depth)
	}
}
