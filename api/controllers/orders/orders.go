package orders

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oportunidade/payhook/api/responses"
	"github.com/oportunidade/payhook/api/validators"
	"github.com/oportunidade/payhook/pkg/db/models"
	"github.com/oportunidade/payhook/pkg/logger"
)

type Service interface {
	GetByMerchantTransactionID(ctx context.Context, merchantTransactionID string) (*models.Order, error)
}

// GetOrder returns an order and its payment transactions.
func GetOrder(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.PathParam(chi.URLParam(r, "merchantTransactionId"), "merchantTransactionId", 128)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.GetByMerchantTransactionID(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
