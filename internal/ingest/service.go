// Package ingest records inbound webhooks in the ledger and hands new ones to
// the dispatcher without waiting for reconciliation.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/oportunidade/payhook/internal/dispatch"
	"github.com/oportunidade/payhook/internal/ledger"
	"github.com/oportunidade/payhook/pkg/db/models"
	"github.com/oportunidade/payhook/pkg/enums"
	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
	"github.com/oportunidade/payhook/pkg/logger"
	"github.com/oportunidade/payhook/pkg/metrics"
	"github.com/oportunidade/payhook/pkg/pagination"
)

// Intake results, also used as metric labels.
const (
	ResultAccepted         = "received"
	ResultAlreadyProcessed = "already_processed"
	ResultDeadLetter       = "dead_letter"
	ResultInvalid          = "invalid"
	ResultRejected         = "rejected"
)

type receiptLedger interface {
	RecordIfNew(ctx context.Context, input ledger.NewReceipt) (ledger.RecordResult, error)
	ListDeadLetters(ctx context.Context, limit int) ([]models.WebhookReceipt, error)
	RequeueDeadLetter(ctx context.Context, externalID string) (*models.WebhookReceipt, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, item dispatch.WorkItem) error
}

// Receipt is the synchronous answer to a webhook delivery.
type Receipt struct {
	Status     string
	ReceiptID  uuid.UUID
	ExternalID string
}

type ServiceParams struct {
	Ledger     receiptLedger
	Dispatcher enqueuer
	Logger     *logger.Logger
	Metrics    *metrics.DispatchMetrics
}

type Service struct {
	ledger     receiptLedger
	dispatcher enqueuer
	logg       *logger.Logger
	metrics    *metrics.DispatchMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, errors.New("receipt ledger is required")
	}
	if params.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{ledger: params.Ledger, dispatcher: params.Dispatcher, logg: logg, metrics: params.Metrics}, nil
}

// Receive records the delivery and enqueues it unless the ledger says it is
// already handled. raw is stored verbatim for replay.
func (s *Service) Receive(ctx context.Context, payload Payload, raw json.RawMessage) (Receipt, error) {
	event, err := Normalize(payload)
	if err != nil {
		s.metrics.IncIntake(ResultInvalid)
		return Receipt{}, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"external_id":             event.ExternalID,
		"merchant_transaction_id": event.MerchantReference,
		"event_status":            string(event.Status),
	})
	if c := payload.Customer; c != nil && strings.TrimSpace(c.Email) != "" && event.Customer.Email == "" {
		s.logg.Warn(s.logg.WithField(ctx, "customer_email", c.Email), "invalid customer email ignored")
	}

	recorded, err := s.ledger.RecordIfNew(ctx, ledger.NewReceipt{
		ExternalID:        event.ExternalID,
		MerchantReference: event.MerchantReference,
		EventKind:         payload.EventKind(),
		Payload:           raw,
	})
	if err != nil {
		s.metrics.IncIntake(ResultRejected)
		return Receipt{}, err
	}

	receipt := Receipt{ReceiptID: recorded.ReceiptID, ExternalID: event.ExternalID}
	if !recorded.Accepted {
		switch {
		case recorded.Status.Settled():
			s.metrics.IncIntake(ResultAlreadyProcessed)
			s.logg.Info(ctx, "webhook already processed")
			receipt.Status = ResultAlreadyProcessed
			return receipt, nil
		case recorded.Status == enums.ReceiptStatusDeadLetter:
			s.metrics.IncIntake(ResultDeadLetter)
			s.logg.Warn(ctx, "webhook redelivered while dead-lettered")
			receipt.Status = ResultDeadLetter
			return receipt, nil
		}
		s.logg.Info(s.logg.WithField(ctx, "status", string(recorded.Status)), "webhook redelivered before completion")
	}

	if err := s.dispatcher.Enqueue(ctx, dispatch.WorkItem{ExternalID: event.ExternalID, Event: event}); err != nil {
		s.metrics.IncIntake(ResultRejected)
		s.logg.Warn(ctx, "webhook recorded but not enqueued")
		return Receipt{}, err
	}

	s.metrics.IncIntake(ResultAccepted)
	s.logg.Info(ctx, "webhook queued for processing")
	receipt.Status = ResultAccepted
	return receipt, nil
}

func (s *Service) ListDeadLetters(ctx context.Context, limit int) ([]models.WebhookReceipt, error) {
	return s.ledger.ListDeadLetters(ctx, pagination.NormalizeLimit(limit))
}

// Replay moves a dead-lettered receipt back to RECEIVED and enqueues it.
func (s *Service) Replay(ctx context.Context, externalID string) (Receipt, error) {
	ctx = s.logg.WithExternalID(ctx, externalID)
	stored, err := s.ledger.RequeueDeadLetter(ctx, externalID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return Receipt{}, pkgerrors.New(pkgerrors.CodeNotFound, "webhook receipt not found").
			WithDetails(map[string]any{"external_id": externalID})
	case errors.Is(err, ledger.ErrNotDeadLetter):
		return Receipt{}, pkgerrors.New(pkgerrors.CodeStateConflict, "webhook receipt is not dead-lettered").
			WithDetails(map[string]any{"external_id": externalID})
	case err != nil:
		return Receipt{}, err
	}

	event, err := DecodeStored(stored.RawPayload)
	if err != nil {
		return Receipt{}, err
	}
	if err := s.dispatcher.Enqueue(ctx, dispatch.WorkItem{ExternalID: externalID, Event: event}); err != nil {
		s.logg.Warn(ctx, "replayed receipt not enqueued; sweeper will redispatch")
		return Receipt{}, err
	}

	s.logg.Info(ctx, "dead letter replayed")
	return Receipt{Status: ResultAccepted, ReceiptID: stored.ID, ExternalID: externalID}, nil
}
