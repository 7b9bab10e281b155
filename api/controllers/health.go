package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/oportunidade/payhook/api/responses"
	"github.com/oportunidade/payhook/pkg/config"
	"github.com/oportunidade/payhook/pkg/logger"
	"github.com/oportunidade/payhook/pkg/metrics"
)

const readyCheckTimeout = 2 * time.Second

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Payhook-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings each dependency and records the result on the health
// gauges. Any failure answers 503.
func HealthReady(cfg *config.Config, logg *logger.Logger, gauges *metrics.HealthGauges, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Payhook-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		components := map[string]string{}
		ready := true
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			err := dep.Ping(ctx)
			gauges.Record(name, err == nil)
			if err != nil {
				ready = false
				components[name] = "down"
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{"component": name, "error": err.Error()}), "readiness check failed")
				}
				continue
			}
			components[name] = "up"
		}

		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		responses.WriteSuccessStatus(w, status, map[string]any{"status": state, "components": components})
	}
}
