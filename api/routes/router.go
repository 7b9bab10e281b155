package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oportunidade/payhook/api/controllers"
	ordercontrollers "github.com/oportunidade/payhook/api/controllers/orders"
	referencecontrollers "github.com/oportunidade/payhook/api/controllers/references"
	webhookcontrollers "github.com/oportunidade/payhook/api/controllers/webhooks"
	"github.com/oportunidade/payhook/api/middleware"
	"github.com/oportunidade/payhook/pkg/config"
	"github.com/oportunidade/payhook/pkg/logger"
	"github.com/oportunidade/payhook/pkg/metrics"
)

// Intake is the webhook-side service: delivery intake plus dead-letter remediation.
type Intake interface {
	webhookcontrollers.IntakeService
	webhookcontrollers.DeadLetterService
}

type RouterParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	Intake     Intake
	Orders     ordercontrollers.Service
	References referencecontrollers.Service
	Readiness  map[string]controllers.Pinger
	Health     *metrics.HealthGauges
	Gatherer   prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger
	retryAfter := cfg.Dispatch.RetryAfterSecond

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Health, params.Readiness))
	})
	if params.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/appypay", webhookcontrollers.AppyPayWebhook(params.Intake, retryAfter, logg))
			r.Get("/dead-letters", webhookcontrollers.ListDeadLetters(params.Intake, logg))
			r.Post("/{externalId}/replay", webhookcontrollers.ReplayDeadLetter(params.Intake, retryAfter, logg))
		})
		r.Get("/orders/{merchantTransactionId}", ordercontrollers.GetOrder(params.Orders, logg))
		r.Route("/references", func(r chi.Router) {
			r.Post("/", referencecontrollers.CreateReference(params.References, logg))
			r.Get("/", referencecontrollers.ListReferences(params.References, logg))
		})
	})

	return r
}
