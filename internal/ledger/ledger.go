// Package ledger is the durable idempotency ledger for webhook deliveries. All
// state changes are single conditional statements so concurrent callers cannot
// both win a check.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
	"github.com/oportunidade/payhook/pkg/db/models"
	"github.com/oportunidade/payhook/pkg/enums"
)

var (
	// ErrNotFound is returned when no receipt exists for the external id.
	ErrNotFound = errors.New("webhook receipt not found")
	// ErrNotClaimed is returned when a mark call finds the receipt outside PROCESSING.
	ErrNotClaimed = errors.New("webhook receipt is not claimed")
	// ErrNotDeadLetter is returned when requeueing a receipt that is not dead-lettered.
	ErrNotDeadLetter = errors.New("webhook receipt is not dead-lettered")
)

const (
	maxErrorLength = 2000
	lostClaimError = "claim abandoned: worker did not finish before the stale claim timeout"
)

// NewReceipt is the input of RecordIfNew.
type NewReceipt struct {
	ExternalID        string
	MerchantReference string
	EventKind         string
	Payload           json.RawMessage
}

// RecordResult is Accepted (ReceiptID set) or AlreadyExists (Status holds the current state).
type RecordResult struct {
	Accepted  bool
	ReceiptID uuid.UUID
	Status    enums.ReceiptStatus
}

// ClaimOutcome is the result of TryClaimForProcessing.
type ClaimOutcome int

const (
	Claimed ClaimOutcome = iota
	AlreadyClaimed
	NotFound
)

func (o ClaimOutcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case AlreadyClaimed:
		return "already_claimed"
	default:
		return "not_found"
	}
}

// ClaimResult carries the receipt's status when the claim was refused.
type ClaimResult struct {
	Outcome ClaimOutcome
	Status  enums.ReceiptStatus
}

// Ledger is the idempotency ledger contract.
type Ledger interface {
	RecordIfNew(ctx context.Context, input NewReceipt) (RecordResult, error)
	TryClaimForProcessing(ctx context.Context, externalID string) (ClaimResult, error)
	MarkProcessed(ctx context.Context, externalID string) error
	MarkFailed(ctx context.Context, externalID string, cause error) (int, error)
	MarkDeadLetter(ctx context.Context, externalID string) error
	Get(ctx context.Context, externalID string) (*models.WebhookReceipt, error)
	ReclaimStale(ctx context.Context, claimedBefore time.Time, maxRetries int) (ReclaimResult, error)
	ListRedispatchable(ctx context.Context, idleSince time.Time, maxRetries, limit int) ([]models.WebhookReceipt, error)
	ListDeadLetters(ctx context.Context, limit int) ([]models.WebhookReceipt, error)
	RequeueDeadLetter(ctx context.Context, externalID string) (*models.WebhookReceipt, error)
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns a gorm-backed Ledger.
func NewRepository(db *gorm.DB) Ledger {
	return &repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *repository) RecordIfNew(ctx context.Context, input NewReceipt) (RecordResult, error) {
	if input.ExternalID == "" {
		return RecordResult{}, pkgerrors.New(pkgerrors.CodeValidation, "external id is required")
	}
	now := r.now()
	receipt := &models.WebhookReceipt{
		ID:                uuid.New(),
		ExternalID:        input.ExternalID,
		MerchantReference: input.MerchantReference,
		EventKind:         input.EventKind,
		RawPayload:        datatypes.JSON(input.Payload),
		Status:            enums.ReceiptStatusReceived,
		ReceivedAt:        now,
		UpdatedAt:         now,
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(receipt)
	if res.Error != nil {
		return RecordResult{}, pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, "record webhook receipt")
	}
	if res.RowsAffected == 1 {
		return RecordResult{Accepted: true, ReceiptID: receipt.ID, Status: enums.ReceiptStatusReceived}, nil
	}

	existing, err := r.Get(ctx, input.ExternalID)
	if err != nil {
		return RecordResult{}, err
	}
	return RecordResult{ReceiptID: existing.ID, Status: existing.Status}, nil
}

func (r *repository) TryClaimForProcessing(ctx context.Context, externalID string) (ClaimResult, error) {
	now := r.now()
	res := r.db.WithContext(ctx).
		Model(&models.WebhookReceipt{}).
		Where("external_id = ? AND status IN ?", externalID, statusValues(enums.ClaimableReceiptStatuses...)).
		Updates(map[string]any{
			"status":     enums.ReceiptStatusProcessing,
			"claimed_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return ClaimResult{}, pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, "claim webhook receipt")
	}
	if res.RowsAffected == 1 {
		return ClaimResult{Outcome: Claimed, Status: enums.ReceiptStatusProcessing}, nil
	}

	existing, err := r.Get(ctx, externalID)
	if errors.Is(err, ErrNotFound) {
		return ClaimResult{Outcome: NotFound}, nil
	}
	if err != nil {
		return ClaimResult{}, err
	}
	return ClaimResult{Outcome: AlreadyClaimed, Status: existing.Status}, nil
}

func (r *repository) MarkProcessed(ctx context.Context, externalID string) error {
	now := r.now()
	return r.transition(ctx, externalID, "mark receipt processed",
		[]enums.ReceiptStatus{enums.ReceiptStatusProcessing},
		map[string]any{
			"status":       enums.ReceiptStatusProcessed,
			"processed_at": now,
			"last_error":   nil,
			"updated_at":   now,
		})
}

// MarkFailed records the failure and returns the incremented retry count.
func (r *repository) MarkFailed(ctx context.Context, externalID string, cause error) (int, error) {
	message := "unknown error"
	if cause != nil {
		message = truncate(cause.Error(), maxErrorLength)
	}
	err := r.transition(ctx, externalID, "mark receipt failed",
		[]enums.ReceiptStatus{enums.ReceiptStatusProcessing},
		map[string]any{
			"status":      enums.ReceiptStatusFailed,
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  message,
			"updated_at":  r.now(),
		})
	if err != nil {
		return 0, err
	}
	receipt, err := r.Get(ctx, externalID)
	if err != nil {
		return 0, err
	}
	return receipt.RetryCount, nil
}

func (r *repository) MarkDeadLetter(ctx context.Context, externalID string) error {
	return r.transition(ctx, externalID, "mark receipt dead-lettered",
		[]enums.ReceiptStatus{enums.ReceiptStatusProcessing, enums.ReceiptStatusFailed},
		map[string]any{
			"status":     enums.ReceiptStatusDeadLetter,
			"updated_at": r.now(),
		})
}

func (r *repository) Get(ctx context.Context, externalID string) (*models.WebhookReceipt, error) {
	var receipt models.WebhookReceipt
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&receipt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load webhook receipt")
	}
	return &receipt, nil
}

// ReclaimResult counts what ReclaimStale did with abandoned claims.
type ReclaimResult struct {
	Reclaimed    int64
	DeadLettered int64
}

// ReclaimStale releases PROCESSING receipts claimed before the cutoff. A lost
// claim counts as a failed attempt: receipts with budget left return to
// RECEIVED, the rest move to DEAD_LETTER.
func (r *repository) ReclaimStale(ctx context.Context, claimedBefore time.Time, maxRetries int) (ReclaimResult, error) {
	var result ReclaimResult
	now := r.now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := func() *gorm.DB {
			return tx.Model(&models.WebhookReceipt{}).
				Where("status = ? AND claimed_at < ?", enums.ReceiptStatusProcessing, claimedBefore)
		}

		res := stale().Where("retry_count + 1 >= ?", maxRetries).
			Updates(map[string]any{
				"status":      enums.ReceiptStatusDeadLetter,
				"retry_count": gorm.Expr("retry_count + 1"),
				"last_error":  lostClaimError,
				"claimed_at":  nil,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		result.DeadLettered = res.RowsAffected

		res = stale().Updates(map[string]any{
			"status":      enums.ReceiptStatusReceived,
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  lostClaimError,
			"claimed_at":  nil,
			"updated_at":  now,
		})
		if res.Error != nil {
			return res.Error
		}
		result.Reclaimed = res.RowsAffected
		return nil
	})
	if err != nil {
		return ReclaimResult{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "reclaim stale receipts")
	}
	return result, nil
}

// ListRedispatchable returns claimable receipts untouched since idleSince that still have
// retry budget, oldest first.
func (r *repository) ListRedispatchable(ctx context.Context, idleSince time.Time, maxRetries, limit int) ([]models.WebhookReceipt, error) {
	var receipts []models.WebhookReceipt
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ? AND retry_count < ?", statusValues(enums.ClaimableReceiptStatuses...), idleSince, maxRetries).
		Order("received_at ASC").
		Limit(limit).
		Find(&receipts).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list redispatchable receipts")
	}
	return receipts, nil
}

func (r *repository) ListDeadLetters(ctx context.Context, limit int) ([]models.WebhookReceipt, error) {
	var receipts []models.WebhookReceipt
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.ReceiptStatusDeadLetter).
		Order("updated_at DESC").
		Limit(limit).
		Find(&receipts).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list dead letters")
	}
	return receipts, nil
}

// RequeueDeadLetter moves a DEAD_LETTER receipt back to RECEIVED with a fresh retry budget.
func (r *repository) RequeueDeadLetter(ctx context.Context, externalID string) (*models.WebhookReceipt, error) {
	err := r.transition(ctx, externalID, "requeue dead letter",
		[]enums.ReceiptStatus{enums.ReceiptStatusDeadLetter},
		map[string]any{
			"status":      enums.ReceiptStatusReceived,
			"retry_count": 0,
			"claimed_at":  nil,
			"updated_at":  r.now(),
		})
	if errors.Is(err, ErrNotClaimed) {
		return nil, ErrNotDeadLetter
	}
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, externalID)
}

// transition applies updates when the receipt is in one of the from states.
func (r *repository) transition(ctx context.Context, externalID, op string, from []enums.ReceiptStatus, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.WebhookReceipt{}).
		Where("external_id = ? AND status IN ?", externalID, statusValues(from...)).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, op)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.Get(ctx, externalID); err != nil {
		return err
	}
	return ErrNotClaimed
}

func statusValues(statuses ...enums.ReceiptStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	for max > 0 && !utf8.RuneStart(value[max]) {
		max--
	}
	return value[:max]
}
