// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SearchDuration tracks end-to-end semantic search duration.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Semantic search duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"index", "status"},
	)

	// EmbeddingDuration tracks query embedding duration.
	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedding_duration_seconds",
			Help:    "Query embedding generation duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"provider", "status"},
	)

	// ChatDuration tracks chat request duration including retrieval and generation.
	ChatDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_duration_seconds",
			Help:    "Chat request duration in seconds",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "status"},
	)

	// CitationsReturned tracks citations attached to chat answers.
	CitationsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_citations_returned",
			Help:    "Citations attached to a chat answer",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 20},
		},
	)

	// BalanceTokensConsumed tracks metered balance tokens deducted from users.
	BalanceTokensConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "balance_tokens_consumed_total",
			Help: "Total metered balance tokens deducted",
		},
	)

	// LoginAttempts tracks login attempts by outcome.
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Total login attempts",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordSearch records metrics for a semantic search.
func RecordSearch(index, status string, duration float64) {
	SearchDuration.WithLabelValues(index, status).Observe(duration)
}

// RecordEmbedding records metrics for an embedding call.
func RecordEmbedding(provider, status string, duration float64) {
	EmbeddingDuration.WithLabelValues(provider, status).Observe(duration)
}

// RecordChat records metrics for a chat request.
func RecordChat(model, status string, duration float64, citations int) {
	ChatDuration.WithLabelValues(model, status).Observe(duration)
	if status == "success" {
		CitationsReturned.Observe(float64(citations))
	}
}
