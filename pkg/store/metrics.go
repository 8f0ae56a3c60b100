package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds the Prometheus collectors for a store
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	keys              prometheus.Gauge
	dataSizeBytes     prometheus.Gauge
	loadsTotal        *prometheus.CounterVec
	corruptionTotal   prometheus.Counter
}

// NewMetrics creates the store collectors and registers them with reg.
// A nil reg leaves them unregistered, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actionkv_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"operation", "status"},
		),

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "actionkv_operation_duration_seconds",
				Help:    "Store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		keys: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "actionkv_keys",
				Help: "Number of live keys in the index",
			},
		),

		dataSizeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "actionkv_data_size_bytes",
				Help: "Size of the data file in bytes",
			},
		),

		loadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actionkv_load_total",
				Help: "Index loads by source (replay or snapshot)",
			},
			[]string{"source"},
		),

		corruptionTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "actionkv_corruption_errors_total",
				Help: "Frames that failed to decode",
			},
		),
	}
}

// RecordOperation records a store operation
func (m *Metrics) RecordOperation(operation string, success bool, duration time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateStats updates the key and size gauges
func (m *Metrics) UpdateStats(keys int, dataSize int64) {
	m.keys.Set(float64(keys))
	m.dataSizeBytes.Set(float64(dataSize))
}

// RecordLoad records how the index was loaded
func (m *Metrics) RecordLoad(source LoadSource) {
	m.loadsTotal.WithLabelValues(string(source)).Inc()
}

// RecordCorruption counts a frame that failed to decode
func (m *Metrics) RecordCorruption() {
	m.corruptionTotal.Inc()
}
