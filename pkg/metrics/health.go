package metrics

import "github.com/prometheus/client_golang/prometheus"

// Health components.
const (
	ComponentDatabase = "database"
	ComponentRedis    = "redis"
	ComponentQueue    = "queue"
)

// HealthGauges exposes component up/down state plus check counters. Readiness
// probes update it explicitly after every check.
type HealthGauges struct {
	up     *prometheus.GaugeVec
	checks *prometheus.CounterVec
}

func NewHealthGauges(reg prometheus.Registerer) *HealthGauges {
	if reg == nil {
		return &HealthGauges{}
	}
	h := &HealthGauges{
		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_up",
			Help:      "Component health (1=UP, 0=DOWN).",
		}, []string{"component"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Health checks by component and status.",
		}, []string{"component", "status"}),
	}
	reg.MustRegister(h.up, h.checks)
	return h
}

// Record stores the outcome of one check.
func (h *HealthGauges) Record(component string, healthy bool) {
	if h == nil || h.up == nil {
		return
	}
	component = normalizeLabel(component)
	status := "failure"
	value := 0.0
	if healthy {
		status = "success"
		value = 1
	}
	h.up.WithLabelValues(component).Set(value)
	h.checks.WithLabelValues(component, status).Inc()
}
