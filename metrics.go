package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	detectOutcomes *prometheus.CounterVec
	detectLatency  prometheus.Histogram
	captures       prometheus.Counter
	captureBytes   prometheus.Histogram
	cellsCompleted prometheus.Counter
	wins           prometheus.Counter
	rateLimited    *prometheus.CounterVec
}

// NewMetrics creates a registry with all collectors registered. games
// reports the number of live games.
func NewMetrics(games func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		detectOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photohunt_detect_outcomes_total",
			Help: "Detection attempts by outcome (match, no_match, stale, *_error)",
		}, []string{"outcome"}),
		detectLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photohunt_detect_duration_seconds",
			Help:    "Time spent waiting on the detection backend",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		captures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photohunt_captures_total",
			Help: "Stills captured from live feeds",
		}),
		captureBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photohunt_capture_bytes",
			Help:    "Encoded size of captured stills",
			Buckets: prometheus.ExponentialBuckets(16<<10, 2, 8),
		}),
		cellsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photohunt_cells_completed_total",
			Help: "Cells completed across all games",
		}),
		wins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photohunt_wins_total",
			Help: "Games won",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photohunt_rate_limited_total",
			Help: "Requests rejected by the per-IP rate limiter",
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.detectOutcomes,
		m.detectLatency,
		m.captures,
		m.captureBytes,
		m.cellsCompleted,
		m.wins,
		m.rateLimited,
		collectors.NewGoCollector(),
	)
	if games != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "photohunt_games",
				Help: "Games currently held in memory",
			},
			func() float64 { return float64(games()) },
		))
	}
	return m
}

func (m *Metrics) DetectOutcome(outcome string) {
	if m == nil {
		return
	}
	m.detectOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDetect(d time.Duration) {
	if m == nil {
		return
	}
	m.detectLatency.Observe(d.Seconds())
}

func (m *Metrics) CaptureTaken(size int) {
	if m == nil {
		return
	}
	m.captures.Inc()
	m.captureBytes.Observe(float64(size))
}

func (m *Metrics) CellCompleted() {
	if m == nil {
		return
	}
	m.cellsCompleted.Inc()
}

func (m *Metrics) Won() {
	if m == nil {
		return
	}
	m.wins.Inc()
}

func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
