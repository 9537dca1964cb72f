// Package metrics provides Prometheus metrics for validation, persistence
// and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/tabload/internal/persist"
)

const namespace = "tabload"

// Collector holds all Prometheus metrics. It implements persist.Recorder
// and core.ValidationRecorder.
type Collector struct {
	// Validation metrics
	Validations        *prometheus.CounterVec
	RowsReceived       *prometheus.CounterVec
	RowsRejected       *prometheus.CounterVec
	ValidationDuration *prometheus.HistogramVec

	// Persistence metrics
	Saves        *prometheus.CounterVec
	RowsSaved    *prometheus.CounterVec
	SaveDuration *prometheus.HistogramVec
	Fallbacks    *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

var _ persist.Recorder = (*Collector)(nil)

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates a collector registered with reg and served from
// g. Tests pass a fresh prometheus.NewRegistry() for both.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		Validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Total number of dataset validations by outcome",
			},
			[]string{"entity", "outcome"},
		),
		RowsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_received_total",
				Help:      "Total number of rows submitted for validation",
			},
			[]string{"entity"},
		),
		RowsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_rejected_total",
				Help:      "Total number of rows excluded by validation",
			},
			[]string{"entity"},
		),
		ValidationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "validation_duration_seconds",
				Help:      "Dataset validation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"entity"},
		),

		Saves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saves_total",
				Help:      "Total number of save attempts by path and outcome",
			},
			[]string{"table", "path", "outcome"},
		),
		RowsSaved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_saved_total",
				Help:      "Total number of rows committed by path",
			},
			[]string{"table", "path"},
		),
		SaveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "save_duration_seconds",
				Help:      "Save attempt duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"table", "path"},
		),
		Fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upsert_fallbacks_total",
				Help:      "Total number of bulk loads that fell back to upsert",
			},
			[]string{"table"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),

		registerer: reg,
		gatherer:   g,
	}
}

// ValidationCompleted records one validation run.
func (c *Collector) ValidationCompleted(entity string, valid bool, rowsReceived, rowsRejected int, elapsed time.Duration) {
	outcome := "valid"
	if !valid {
		outcome = "invalid"
	}
	c.Validations.WithLabelValues(entity, outcome).Inc()
	c.RowsReceived.WithLabelValues(entity).Add(float64(rowsReceived))
	c.RowsRejected.WithLabelValues(entity).Add(float64(rowsRejected))
	c.ValidationDuration.WithLabelValues(entity).Observe(elapsed.Seconds())
}

// SaveCompleted records one bulk or upsert attempt.
func (c *Collector) SaveCompleted(table string, path persist.Path, rows int, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.Saves.WithLabelValues(table, string(path), outcome).Inc()
	c.SaveDuration.WithLabelValues(table, string(path)).Observe(elapsed.Seconds())
	if err == nil {
		c.RowsSaved.WithLabelValues(table, string(path)).Add(float64(rows))
	}
}

// FallbackTriggered records a bulk load that fell back to upsert.
func (c *Collector) FallbackTriggered(table string) {
	c.Fallbacks.WithLabelValues(table).Inc()
}

// ObserveRequest records one HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RegisterIngestGauges exposes the ingest limiter state. Call once.
func (c *Collector) RegisterIngestGauges(active, capacity func() int) {
	factory := promauto.With(c.registerer)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingests_in_flight",
			Help:      "Number of ingests currently validating or saving",
		},
		func() float64 { return float64(active()) },
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingests_max_concurrent",
			Help:      "Maximum number of concurrent ingests",
		},
		func() float64 { return float64(capacity()) },
	)
}

// Handler serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
