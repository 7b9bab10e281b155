package webhooks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/oportunidade/payhook/api/responses"
	"github.com/oportunidade/payhook/api/validators"
	"github.com/oportunidade/payhook/internal/ingest"
	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
	"github.com/oportunidade/payhook/pkg/logger"
)

type IntakeService interface {
	Receive(ctx context.Context, payload ingest.Payload, raw json.RawMessage) (ingest.Receipt, error)
}

// AckResponse is the body returned to the gateway.
type AckResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	EventID string `json:"eventId,omitempty"`
}

// AppyPayWebhook records the delivery and acknowledges it before reconciliation
// runs. A full queue answers 503 with Retry-After so the gateway redelivers.
func AppyPayWebhook(svc IntakeService, retryAfterSeconds int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingest service unavailable"))
			return
		}

		raw, err := validators.ReadBody(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload ingest.Payload
		if err := validators.DecodeJSONBytes(raw, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		receipt, err := svc.Receive(ctx, payload, raw)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeQueueFull) {
				responses.WriteRetryAfter(ctx, logg, w, err, retryAfterSeconds)
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		switch receipt.Status {
		case ingest.ResultAlreadyProcessed:
			responses.WriteJSON(w, http.StatusOK, AckResponse{
				Status:  receipt.Status,
				Message: "webhook already processed",
				EventID: receipt.ExternalID,
			})
		case ingest.ResultDeadLetter:
			responses.WriteJSON(w, http.StatusOK, AckResponse{
				Status:  receipt.Status,
				Message: "webhook is dead-lettered and awaits operator replay",
				EventID: receipt.ExternalID,
			})
		default:
			responses.WriteJSON(w, http.StatusAccepted, AckResponse{
				Status:  ingest.ResultAccepted,
				Message: "webhook accepted for processing",
				EventID: receipt.ExternalID,
			})
		}
	}
}
