// Package metrics provides Prometheus collectors for grove structural
// operations.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the collectors and the registry they are registered on.
type Metrics struct {
	Registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	BatchesTotal      *prometheus.CounterVec
	BatchDuration     prometheus.Histogram
	RowsRewritten     *prometheus.HistogramVec
	InvalidatedTotal  prometheus.Counter
	ViolationsTotal   prometheus.Counter
	MirrorWritesTotal *prometheus.CounterVec

	NodesTotal *prometheus.GaugeVec
	TreesTotal *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{Registry: reg}

	m.OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grove_operations_total",
			Help: "Structural operations by kind and outcome",
		},
		[]string{"operation", "status"},
	)

	m.BatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grove_batches_total",
			Help: "Write batches by outcome",
		},
		[]string{"status"},
	)

	m.BatchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grove_batch_duration_seconds",
			Help:    "Duration of write batches including commit",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	m.RowsRewritten = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grove_rows_rewritten",
			Help:    "Rows touched by one interval rewrite statement",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"op"},
	)

	m.InvalidatedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "grove_invalidated_nodes_total",
			Help: "Cached nodes refreshed after a committed batch",
		},
	)

	m.ViolationsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "grove_consistency_violations_total",
			Help: "Batches rolled back by the pre-commit forest check",
		},
	)

	m.MirrorWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grove_mirror_writes_total",
			Help: "JSONL mirror writes by sync strategy",
		},
		[]string{"strategy"},
	)

	m.NodesTotal = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grove_nodes",
			Help: "Nodes per partition",
		},
		[]string{"partition"},
	)

	m.TreesTotal = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grove_trees",
			Help: "Trees per partition",
		},
		[]string{"partition"},
	)

	return m
}

// ObserveRewrite records the row count of one rewrite statement.
func (m *Metrics) ObserveRewrite(op string, rows int64) {
	m.RowsRewritten.WithLabelValues(op).Observe(float64(rows))
}

// RecordOperation counts one structural operation.
func (m *Metrics) RecordOperation(operation string, err error) {
	m.OperationsTotal.WithLabelValues(operation, status(err)).Inc()
}

// RecordBatch counts one batch and its duration.
func (m *Metrics) RecordBatch(duration time.Duration, err error) {
	m.BatchesTotal.WithLabelValues(status(err)).Inc()
	m.BatchDuration.Observe(duration.Seconds())
}

// RecordInvalidated adds the number of refreshed cached nodes.
func (m *Metrics) RecordInvalidated(n int) {
	m.InvalidatedTotal.Add(float64(n))
}

// RecordViolation counts one failed pre-commit check.
func (m *Metrics) RecordViolation() {
	m.ViolationsTotal.Inc()
}

// RecordMirrorWrite counts one JSONL mirror write.
func (m *Metrics) RecordMirrorWrite(strategy string) {
	m.MirrorWritesTotal.WithLabelValues(strategy).Inc()
}

// RecordForest sets the size gauges of one partition.
func (m *Metrics) RecordForest(partition string, nodes, trees int) {
	m.NodesTotal.WithLabelValues(partition).Set(float64(nodes))
	m.TreesTotal.WithLabelValues(partition).Set(float64(trees))
}

// WriteText dumps every collector in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.Registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
