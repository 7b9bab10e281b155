package webhooks

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oportunidade/payhook/api/responses"
	"github.com/oportunidade/payhook/api/validators"
	"github.com/oportunidade/payhook/internal/ingest"
	"github.com/oportunidade/payhook/pkg/db/models"
	"github.com/oportunidade/payhook/pkg/enums"
	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
	"github.com/oportunidade/payhook/pkg/logger"
	"github.com/oportunidade/payhook/pkg/pagination"
)

type DeadLetterService interface {
	ListDeadLetters(ctx context.Context, limit int) ([]models.WebhookReceipt, error)
	Replay(ctx context.Context, externalID string) (ingest.Receipt, error)
}

type deadLetterItem struct {
	ExternalID        string              `json:"external_id"`
	MerchantReference string              `json:"merchant_reference"`
	EventKind         string              `json:"event_kind"`
	Status            enums.ReceiptStatus `json:"status"`
	RetryCount        int                 `json:"retry_count"`
	LastError         *string             `json:"last_error,omitempty"`
	ReceivedAt        time.Time           `json:"received_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// ListDeadLetters returns receipts that exhausted their retries.
func ListDeadLetters(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		receipts, err := svc.ListDeadLetters(ctx, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items := make([]deadLetterItem, 0, len(receipts))
		for _, receipt := range receipts {
			items = append(items, deadLetterItem{
				ExternalID:        receipt.ExternalID,
				MerchantReference: receipt.MerchantReference,
				EventKind:         receipt.EventKind,
				Status:            receipt.Status,
				RetryCount:        receipt.RetryCount,
				LastError:         receipt.LastError,
				ReceivedAt:        receipt.ReceivedAt,
				UpdatedAt:         receipt.UpdatedAt,
			})
		}
		responses.WriteList(w, items, len(items), limit)
	}
}

// ReplayDeadLetter puts a dead-lettered receipt back on the queue.
func ReplayDeadLetter(svc DeadLetterService, retryAfterSeconds int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		externalID, err := validators.PathParam(chi.URLParam(r, "externalId"), "externalId", 128)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		receipt, err := svc.Replay(ctx, externalID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeQueueFull) {
				responses.WriteRetryAfter(ctx, logg, w, err, retryAfterSeconds)
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{
			"status":      receipt.Status,
			"external_id": receipt.ExternalID,
			"receipt_id":  receipt.ReceiptID,
		})
	}
}
