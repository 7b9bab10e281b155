package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/oportunidade/payhook/internal/ledger"
	"github.com/oportunidade/payhook/pkg/logger"
)

const staleClaimsJobName = "stale-claims"

type staleClaimStore interface {
	ReclaimStale(ctx context.Context, claimedBefore time.Time, maxRetries int) (ledger.ReclaimResult, error)
}

type StaleClaimsJobParams struct {
	Logger     *logger.Logger
	Ledger     staleClaimStore
	Timeout    time.Duration
	MaxRetries int
}

// StaleClaimsJob releases receipts stuck in PROCESSING by a crashed worker.
// Each release spends one retry, so a payload that keeps killing workers ends
// up dead-lettered.
type StaleClaimsJob struct {
	logg       *logger.Logger
	ledger     staleClaimStore
	timeout    time.Duration
	maxRetries int
	now        func() time.Time
}

func NewStaleClaimsJob(params StaleClaimsJobParams) (*StaleClaimsJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Timeout <= 0 {
		return nil, fmt.Errorf("stale claim timeout must be positive")
	}
	return &StaleClaimsJob{
		logg:       params.Logger,
		ledger:     params.Ledger,
		timeout:    params.Timeout,
		maxRetries: params.MaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (j *StaleClaimsJob) Name() string { return staleClaimsJobName }

func (j *StaleClaimsJob) Run(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.timeout)
	result, err := j.ledger.ReclaimStale(ctx, cutoff, j.maxRetries)
	if err != nil {
		return 0, err
	}
	if result.Reclaimed > 0 || result.DeadLettered > 0 {
		ctx = j.logg.WithFields(ctx, map[string]any{
			"cutoff":        cutoff,
			"reclaimed":     result.Reclaimed,
			"dead_lettered": result.DeadLettered,
		})
		j.logg.Warn(ctx, "released stale processing receipts")
	}
	return int(result.Reclaimed + result.DeadLettered), nil
}
