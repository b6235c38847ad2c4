package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts single HTTP attempts by response code ("error" when none).
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hhscan_http_requests_total",
			Help: "Total number of HTTP attempts against the vacancy API",
		},
		[]string{"code"},
	)

	HTTPLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hhscan_http_request_duration_seconds",
			Help:    "Latency of single HTTP attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Retries counts backoff sleeps by reason ("status" or "network").
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hhscan_retries_total",
			Help: "Total number of retried attempts",
		},
		[]string{"reason"},
	)

	// PageOutcomes counts FetchPage results by outcome kind.
	PageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hhscan_page_outcomes_total",
			Help: "Total number of page fetches by outcome",
		},
		[]string{"outcome"},
	)

	VacanciesNormalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hhscan_vacancies_normalized_total",
			Help: "Total number of raw items normalized into vacancies",
		},
	)

	VacanciesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hhscan_vacancies_dropped_total",
			Help: "Total number of malformed raw items skipped",
		},
	)

	VacanciesKept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hhscan_vacancies_kept_total",
			Help: "Total number of vacancies that passed the salary filter",
		},
	)

	// WalkStops counts finished walks by stop reason.
	WalkStops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hhscan_walk_stops_total",
			Help: "Total number of finished walks by stop reason",
		},
		[]string{"reason"},
	)

	WalkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hhscan_walk_duration_seconds",
			Help:    "Duration of a full pagination walk in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// SinkErrors counts persistence failures per sink.
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hhscan_sink_errors_total",
			Help: "Total number of failed saves by sink",
		},
		[]string{"sink"},
	)
)
