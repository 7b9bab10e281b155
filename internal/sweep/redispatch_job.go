package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/oportunidade/payhook/internal/dispatch"
	"github.com/oportunidade/payhook/internal/ingest"
	"github.com/oportunidade/payhook/pkg/db/models"
	"github.com/oportunidade/payhook/pkg/logger"
)

const (
	redispatchJobName      = "redispatch"
	defaultRedispatchBatch = 100
)

type redispatchStore interface {
	ListRedispatchable(ctx context.Context, idleSince time.Time, maxRetries, limit int) ([]models.WebhookReceipt, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, item dispatch.WorkItem) error
}

type RedispatchJobParams struct {
	Logger     *logger.Logger
	Ledger     redispatchStore
	Dispatcher enqueuer
	IdleAge    time.Duration
	MaxRetries int
	BatchSize  int
}

// RedispatchJob re-enqueues RECEIVED and FAILED receipts that no worker has
// touched for IdleAge: retries dropped by a full queue, or work lost on restart.
type RedispatchJob struct {
	logg       *logger.Logger
	ledger     redispatchStore
	dispatcher enqueuer
	idleAge    time.Duration
	maxRetries int
	batchSize  int
	now        func() time.Time
}

func NewRedispatchJob(params RedispatchJobParams) (*RedispatchJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if params.IdleAge <= 0 {
		return nil, fmt.Errorf("redispatch age must be positive")
	}
	if params.MaxRetries <= 0 {
		return nil, fmt.Errorf("max retries must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRedispatchBatch
	}
	return &RedispatchJob{
		logg:       params.Logger,
		ledger:     params.Ledger,
		dispatcher: params.Dispatcher,
		idleAge:    params.IdleAge,
		maxRetries: params.MaxRetries,
		batchSize:  batch,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (j *RedispatchJob) Name() string { return redispatchJobName }

func (j *RedispatchJob) Run(ctx context.Context) (int, error) {
	receipts, err := j.ledger.ListRedispatchable(ctx, j.now().Add(-j.idleAge), j.maxRetries, j.batchSize)
	if err != nil {
		return 0, err
	}

	var (
		enqueued int
		errs     error
	)
	for _, receipt := range receipts {
		rctx := j.logg.WithExternalID(ctx, receipt.ExternalID)
		event, err := ingest.DecodeStored(receipt.RawPayload)
		if err != nil {
			j.logg.Error(rctx, "stored payload no longer decodes; skipping", err)
			errs = multierr.Append(errs, fmt.Errorf("decode %s: %w", receipt.ExternalID, err))
			continue
		}
		err = j.dispatcher.Enqueue(ctx, dispatch.WorkItem{
			ExternalID: receipt.ExternalID,
			Event:      event,
			Attempt:    receipt.RetryCount,
		})
		if errors.Is(err, dispatch.ErrQueueFull) {
			j.logg.Warn(rctx, "queue full; deferring remaining receipts to the next sweep")
			break
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("enqueue %s: %w", receipt.ExternalID, err))
			continue
		}
		enqueued++
	}
	return enqueued, errs
}
