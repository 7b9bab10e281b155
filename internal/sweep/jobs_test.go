package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/oportunidade/payhook/internal/dispatch"
	"github.com/oportunidade/payhook/internal/ledger"
	"github.com/oportunidade/payhook/pkg/db/models"
	"github.com/oportunidade/payhook/pkg/logger"
)

var sweepNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type fakeStaleStore struct {
	cutoff     time.Time
	maxRetries int
	result     ledger.ReclaimResult
}

func (f *fakeStaleStore) ReclaimStale(_ context.Context, claimedBefore time.Time, maxRetries int) (ledger.ReclaimResult, error) {
	f.cutoff, f.maxRetries = claimedBefore, maxRetries
	return f.result, nil
}

func TestStaleClaimsJobUsesTimeoutCutoff(t *testing.T) {
	store := &fakeStaleStore{result: ledger.ReclaimResult{Reclaimed: 3, DeadLettered: 1}}
	job, err := NewStaleClaimsJob(StaleClaimsJobParams{Logger: logger.Nop(), Ledger: store, Timeout: 5 * time.Minute, MaxRetries: 4})
	require.NoError(t, err)
	job.now = func() time.Time { return sweepNow }

	affected, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, affected)
	assert.Equal(t, sweepNow.Add(-5*time.Minute), store.cutoff)
	assert.Equal(t, 4, store.maxRetries)
	assert.Equal(t, "stale-claims", job.Name())
}

type fakeRedispatchStore struct {
	receipts   []models.WebhookReceipt
	idleSince  time.Time
	maxRetries int
	limit      int
}

func (f *fakeRedispatchStore) ListRedispatchable(_ context.Context, idleSince time.Time, maxRetries, limit int) ([]models.WebhookReceipt, error) {
	f.idleSince, f.maxRetries, f.limit = idleSince, maxRetries, limit
	return f.receipts, nil
}

type fakeEnqueuer struct {
	items  []dispatch.WorkItem
	fullAt int
	err    error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, item dispatch.WorkItem) error {
	if f.fullAt > 0 && len(f.items) == f.fullAt {
		return dispatch.ErrQueueFull
	}
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, item)
	return nil
}

func storedReceipt(id string, retries int) models.WebhookReceipt {
	payload := `{"id":"` + id + `","merchantTransactionId":"ORD-` + id + `","amount":10,"currency":"AOA","status":"Success"}`
	return models.WebhookReceipt{ExternalID: id, RawPayload: datatypes.JSON(payload), RetryCount: retries}
}

func newRedispatchJob(t *testing.T, store redispatchStore, queue enqueuer) *RedispatchJob {
	t.Helper()
	job, err := NewRedispatchJob(RedispatchJobParams{
		Logger:     logger.Nop(),
		Ledger:     store,
		Dispatcher: queue,
		IdleAge:    2 * time.Minute,
		MaxRetries: 3,
		BatchSize:  50,
	})
	require.NoError(t, err)
	job.now = func() time.Time { return sweepNow }
	return job
}

func TestRedispatchJobEnqueuesIdleReceipts(t *testing.T) {
	store := &fakeRedispatchStore{receipts: []models.WebhookReceipt{storedReceipt("a", 0), storedReceipt("b", 2)}}
	queue := &fakeEnqueuer{}
	job := newRedispatchJob(t, store, queue)

	affected, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, affected)
	assert.Equal(t, sweepNow.Add(-2*time.Minute), store.idleSince)
	assert.Equal(t, 3, store.maxRetries)
	assert.Equal(t, 50, store.limit)

	require.Len(t, queue.items, 2)
	assert.Equal(t, "b", queue.items[1].ExternalID)
	assert.Equal(t, 2, queue.items[1].Attempt)
	assert.Equal(t, "ORD-b", queue.items[1].Event.MerchantReference)
}

func TestRedispatchJobStopsWhenQueueFull(t *testing.T) {
	store := &fakeRedispatchStore{receipts: []models.WebhookReceipt{
		storedReceipt("a", 0), storedReceipt("b", 0), storedReceipt("c", 0),
	}}
	queue := &fakeEnqueuer{fullAt: 1}
	job := newRedispatchJob(t, store, queue)

	affected, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, affected)
}

func TestRedispatchJobCollectsErrors(t *testing.T) {
	broken := models.WebhookReceipt{ExternalID: "bad", RawPayload: datatypes.JSON(`{"id":"bad"}`)}
	store := &fakeRedispatchStore{receipts: []models.WebhookReceipt{broken, storedReceipt("a", 0)}}
	queue := &fakeEnqueuer{err: errors.New("broker down")}
	job := newRedispatchJob(t, store, queue)

	affected, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, affected)
	assert.Contains(t, err.Error(), "decode bad")
	assert.Contains(t, err.Error(), "enqueue a")
}
