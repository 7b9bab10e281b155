package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oportunidade/payhook/pkg/db/models"
	"github.com/oportunidade/payhook/pkg/enums"
	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
	"github.com/oportunidade/payhook/pkg/logger"
)

type stubOrders struct {
	order *models.Order
	err   error
	asked string
}

func (s *stubOrders) GetByMerchantTransactionID(_ context.Context, id string) (*models.Order, error) {
	s.asked = id
	return s.order, s.err
}

func serve(svc Service, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/api/v1/orders/{merchantTransactionId}", GetOrder(svc, logger.Nop()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestGetOrder(t *testing.T) {
	svc := &stubOrders{order: &models.Order{
		MerchantTransactionID: "ORD-1",
		Amount:                decimal.RequireFromString("1500.00"),
		Currency:              "AOA",
		Status:                enums.OrderStatusPaid,
		Transactions: []models.PaymentTransaction{{
			ExternalTransactionID: "tx-1",
			Status:                enums.TransactionStatusSuccess,
		}},
	}}

	w := serve(svc, "/api/v1/orders/ORD-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ORD-1", svc.asked)

	var body struct {
		Data models.Order `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, enums.OrderStatusPaid, body.Data.Status)
	require.Len(t, body.Data.Transactions, 1)
	assert.Equal(t, "tx-1", body.Data.Transactions[0].ExternalTransactionID)
}

func TestGetOrderNotFound(t *testing.T) {
	w := serve(&stubOrders{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}, "/api/v1/orders/ORD-404")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
