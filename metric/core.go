package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the pipeline-level metrics every run reports.
type Metrics struct {
	BlocksProcessed    *prometheus.CounterVec
	LayersDiscovered   prometheus.Counter
	LiftDepth          prometheus.Histogram
	CRTFailures        *prometheus.CounterVec
	SheafRejections    prometheus.Counter
	TermsResolved      prometheus.Gauge
	ProcessingDuration *prometheus.HistogramVec

	// Stream source metrics
	SourceConnected  prometheus.Gauge
	SourceReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BlocksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semlattice",
				Subsystem: "blocks",
				Name:      "processed_total",
				Help:      "Total number of text blocks processed",
			},
			[]string{"status"},
		),

		LayersDiscovered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "semlattice",
				Subsystem: "solver",
				Name:      "layers_total",
				Help:      "Total number of residue layers accepted by peeling",
			},
		),

		LiftDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "semlattice",
				Subsystem: "lifter",
				Name:      "depth",
				Help:      "p-adic precision depth reached by finalized branches",
				Buckets:   []float64{1, 2, 3, 4, 5, 8, 12},
			},
		),

		CRTFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semlattice",
				Subsystem: "adelic",
				Name:      "failures_total",
				Help:      "Total number of per-term CRT stitching failures",
			},
			[]string{"reason"},
		),

		SheafRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "semlattice",
				Subsystem: "sheaf",
				Name:      "rejections_total",
				Help:      "Total number of rejected sheaf overlap links",
			},
		),

		TermsResolved: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "semlattice",
				Subsystem: "lattice",
				Name:      "terms_resolved",
				Help:      "Number of terms holding a coordinate in the global lattice",
			},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "semlattice",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Per-stage processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		SourceConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "semlattice",
				Subsystem: "source",
				Name:      "connected",
				Help:      "Block source connection status (0=disconnected, 1=connected)",
			},
		),

		SourceReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "semlattice",
				Subsystem: "source",
				Name:      "reconnects_total",
				Help:      "Total number of block source reconnections",
			},
		),
	}
}

// RecordBlockProcessed increments the block counter for a final status.
func (c *Metrics) RecordBlockProcessed(status string) {
	c.BlocksProcessed.WithLabelValues(status).Inc()
}

// RecordLayers adds accepted layers from one solve.
func (c *Metrics) RecordLayers(n int) {
	c.LayersDiscovered.Add(float64(n))
}

// RecordLiftDepth observes the depth a finalized branch reached.
func (c *Metrics) RecordLiftDepth(depth int) {
	c.LiftDepth.Observe(float64(depth))
}

// RecordCRTFailure increments the stitch failure counter for a reason.
func (c *Metrics) RecordCRTFailure(reason string) {
	c.CRTFailures.WithLabelValues(reason).Inc()
}

// RecordSheafRejection increments the rejected overlap link counter.
func (c *Metrics) RecordSheafRejection() {
	c.SheafRejections.Inc()
}

// RecordTermsResolved updates the resolved term gauge.
func (c *Metrics) RecordTermsResolved(n int) {
	c.TermsResolved.Set(float64(n))
}

// RecordProcessingDuration records one stage's elapsed time.
func (c *Metrics) RecordProcessingDuration(stage string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSourceStatus updates the block source connection status.
func (c *Metrics) RecordSourceStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.SourceConnected.Set(value)
}

// RecordSourceReconnect increments the reconnection counter.
func (c *Metrics) RecordSourceReconnect() {
	c.SourceReconnects.Inc()
}
