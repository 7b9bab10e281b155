package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oportunidade/payhook/api/controllers"
	"github.com/oportunidade/payhook/internal/accounting"
	"github.com/oportunidade/payhook/internal/dispatch"
	"github.com/oportunidade/payhook/internal/ingest"
	"github.com/oportunidade/payhook/internal/ledger"
	"github.com/oportunidade/payhook/internal/orders"
	"github.com/oportunidade/payhook/internal/reconcile"
	"github.com/oportunidade/payhook/internal/references"
	"github.com/oportunidade/payhook/internal/testutil"
	"github.com/oportunidade/payhook/internal/transactions"
	"github.com/oportunidade/payhook/pkg/config"
	"github.com/oportunidade/payhook/pkg/db/models"
	"github.com/oportunidade/payhook/pkg/enums"
	"github.com/oportunidade/payhook/pkg/logger"
	"github.com/oportunidade/payhook/pkg/metrics"
)

type countingGateway struct {
	calls atomic.Int32
}

func (g *countingGateway) Forward(context.Context, *models.Order, *models.PaymentTransaction) accounting.Result {
	g.calls.Add(1)
	return accounting.Result{Outcome: accounting.Forwarded, ExternalPaymentID: "42"}
}

type harness struct {
	handler http.Handler
	ledger  ledger.Ledger
	gateway *countingGateway
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := testutil.OpenClient(t)
	conn := client.DB()
	reg := prometheus.NewRegistry()
	logg := logger.Nop()
	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		Dispatch: config.DispatchConfig{
			Workers:          2,
			MaxRetries:       3,
			BaseBackoff:      10 * time.Millisecond,
			MaxBackoff:       50 * time.Millisecond,
			RetryAfterSecond: 5,
		},
	}

	l := ledger.NewRepository(conn)
	refRepo := references.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	gateway := &countingGateway{}
	engine, err := reconcile.NewEngine(reconcile.EngineParams{
		Tx:           client,
		Orders:       orderRepo,
		Transactions: transactions.NewRepository(conn),
		References:   refRepo,
		Gateway:      gateway,
		Logger:       logg,
	})
	require.NoError(t, err)

	dispatchMetrics := metrics.NewDispatchMetrics(reg)
	d, err := dispatch.NewDispatcher(dispatch.DispatcherParams{
		Queue:   dispatch.NewMemoryQueue(16, 50*time.Millisecond, logg),
		Ledger:  l,
		Engine:  engine,
		Config:  cfg.Dispatch,
		Logger:  logg,
		Metrics: dispatchMetrics,
	})
	require.NoError(t, err)
	intake, err := ingest.NewService(ingest.ServiceParams{Ledger: l, Dispatcher: d, Logger: logg, Metrics: dispatchMetrics})
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orderRepo)
	require.NoError(t, err)
	refSvc, err := references.NewService(refRepo)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	handler := NewRouter(RouterParams{
		Config:     cfg,
		Logger:     logg,
		Intake:     intake,
		Orders:     orderSvc,
		References: refSvc,
		Readiness:  map[string]controllers.Pinger{metrics.ComponentDatabase: client},
		Health:     metrics.NewHealthGauges(reg),
		Gatherer:   reg,
	})
	return &harness{handler: handler, ledger: l, gateway: gateway}
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func TestPaymentScenarioOverHTTP(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/references", `{"reference_number":"987","entity":"11333","currency":"AOA"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	webhook := `{"id":"tx-1","merchantTransactionId":"ORD-1","amount":1500.00,"currency":"AOA","status":"Success","reference":{"referenceNumber":"987"}}`
	w = h.do(http.MethodPost, "/api/v1/webhooks/appypay", webhook)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		stored, err := h.ledger.Get(context.Background(), "tx-1")
		return err == nil && stored.Status == enums.ReceiptStatusProcessed
	}, 5*time.Second, 10*time.Millisecond)

	w = h.do(http.MethodGet, "/api/v1/orders/ORD-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data models.Order `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, enums.OrderStatusPaid, body.Data.Status)
	assert.NotNil(t, body.Data.ReferenceID)
	require.Len(t, body.Data.Transactions, 1)
	assert.Equal(t, enums.TransactionStatusSuccess, body.Data.Transactions[0].Status)
	assert.Equal(t, int32(1), h.gateway.calls.Load())

	w = h.do(http.MethodPost, "/api/v1/webhooks/appypay", webhook)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already_processed")
	assert.Equal(t, int32(1), h.gateway.calls.Load())
}

func TestDuplicateReferenceConflicts(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/v1/references", `{"reference_number":"1"}`).Code)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/api/v1/references", `{"reference_number":"1"}`).Code)

	w := h.do(http.MethodGet, "/api/v1/references?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestOperationalEndpoints(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health/ready", "").Code)

	w := h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "payhook_health_up")

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/orders/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/api/v1/webhooks/missing/replay", "").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/webhooks/dead-letters", "").Code)
}
