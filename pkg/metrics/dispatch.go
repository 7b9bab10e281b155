package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "payhook"

// Dispatch outcomes.
const (
	OutcomeEnqueued     = "enqueued"
	OutcomeRejected     = "rejected"
	OutcomeProcessed    = "processed"
	OutcomeFailed       = "failed"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeDropped      = "dropped"
)

// Outbound sync outcomes.
const (
	SyncForwarded      = "forwarded"
	SyncRejected       = "rejected"
	SyncTransportError = "transport_error"
	SyncSkipped        = "skipped"
)

// DispatchMetrics instruments the async pipeline. A nil receiver is a no-op.
type DispatchMetrics struct {
	items    *prometheus.CounterVec
	depth    prometheus.Gauge
	inFlight prometheus.Gauge
	duration *prometheus.HistogramVec
	sync     *prometheus.CounterVec
	intake   *prometheus.CounterVec
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	m := &DispatchMetrics{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_items_total",
			Help:      "Work items by dispatch outcome.",
		}, []string{"outcome"}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_depth",
			Help:      "Items waiting in the in-process queue.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_in_flight",
			Help:      "Items currently being reconciled.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_processing_duration_seconds",
			Help:      "Time spent reconciling one work item.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		sync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_sync_total",
			Help:      "Accounting forward attempts by outcome.",
		}, []string{"outcome"}),
		intake: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_received_total",
			Help:      "Inbound webhook deliveries by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.items, m.depth, m.inFlight, m.duration, m.sync, m.intake)
	return m
}

func (m *DispatchMetrics) Inc(outcome string) {
	if m == nil || m.items == nil {
		return
	}
	m.items.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *DispatchMetrics) SetQueueDepth(n int) {
	if m == nil || m.depth == nil {
		return
	}
	m.depth.Set(float64(n))
}

func (m *DispatchMetrics) TrackInFlight(delta int) {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Add(float64(delta))
}

func (m *DispatchMetrics) ObserveProcessing(outcome string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(outcome)).Observe(d.Seconds())
}

func (m *DispatchMetrics) IncSync(outcome string) {
	if m == nil || m.sync == nil {
		return
	}
	m.sync.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *DispatchMetrics) IncIntake(result string) {
	if m == nil || m.intake == nil {
		return
	}
	m.intake.WithLabelValues(normalizeLabel(result)).Inc()
}
