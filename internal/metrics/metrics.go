// Package metrics exposes Prometheus collectors for the audit trail.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names.
const (
	MetricAuditWrites          = "audit_writes_total"
	MetricAuditWriteDuration   = "audit_write_duration_seconds"
	MetricAuditFallbacks       = "audit_fallback_events_total"
	MetricAuditChainConflicts  = "audit_chain_conflicts_total"
	MetricAuditQueueDepth      = "audit_queue_depth"
	MetricAuditNotifications   = "audit_notifications_total"
	MetricAuditIntegrityIssues = "audit_integrity_findings"
	MetricAuditPurged          = "audit_purged_records_total"
)

// Metrics holds the audit collectors. A nil *Metrics is valid and records
// nothing, so services can run without a registry in tests.
type Metrics struct {
	writes          *prometheus.CounterVec
	writeDuration   *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	chainConflicts  prometheus.Counter
	queueDepth      prometheus.Gauge
	notifications   *prometheus.CounterVec
	integrityIssues prometheus.Gauge
	purged          prometheus.Counter
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAuditWrites,
				Help: "Audit write attempts by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		writeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricAuditWriteDuration,
				Help:    "Time to seal and persist an audit record",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"mode"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAuditFallbacks,
				Help: "Audit events written to the fallback sink by reason",
			},
			[]string{"reason"},
		),
		chainConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricAuditChainConflicts,
				Help: "Appends retried because another writer advanced the chain",
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricAuditQueueDepth,
				Help: "Async audit tasks waiting for a worker",
			},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAuditNotifications,
				Help: "Escalation notifications by outcome",
			},
			[]string{"outcome"},
		),
		integrityIssues: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricAuditIntegrityIssues,
				Help: "Findings reported by the most recent chain verification",
			},
		),
		purged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricAuditPurged,
				Help: "Audit records removed by retention purges",
			},
		),
	}
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.writes,
		m.writeDuration,
		m.fallbacks,
		m.chainConflicts,
		m.queueDepth,
		m.notifications,
		m.integrityIssues,
		m.purged,
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveWrite records one write attempt.
func (m *Metrics) ObserveWrite(mode string, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.writes.WithLabelValues(mode, outcome).Inc()
	m.writeDuration.WithLabelValues(mode).Observe(took.Seconds())
}

// IncFallback counts an event diverted to the fallback sink.
func (m *Metrics) IncFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// IncChainConflict counts an append retry.
func (m *Metrics) IncChainConflict() {
	if m == nil {
		return
	}
	m.chainConflicts.Inc()
}

// SetQueueDepth reports the async queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// IncNotification counts an escalation attempt.
func (m *Metrics) IncNotification(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.notifications.WithLabelValues("failure").Inc()
		return
	}
	m.notifications.WithLabelValues("success").Inc()
}

// SetIntegrityFindings reports the findings of the latest verification.
func (m *Metrics) SetIntegrityFindings(n int) {
	if m == nil {
		return
	}
	m.integrityIssues.Set(float64(n))
}

// AddPurged counts records removed by a purge.
func (m *Metrics) AddPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// NewRegistry returns a registry with the Go and process collectors plus m.
func NewRegistry(m *Metrics) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
