// Package metrics registers the Prometheus collectors shared across the
// service. Collectors are package-level so any component can record
// without wiring a registry through constructors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "startsmart_pipeline_runs_total",
		Help: "Completed pipeline runs by mode and outcome.",
	}, []string{"mode", "outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "startsmart_stage_duration_seconds",
		Help:    "Per-stage pipeline latency.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})

	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "startsmart_llm_calls_total",
		Help: "Text-generation calls by model and outcome.",
	}, []string{"model", "outcome"})

	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "startsmart_llm_tokens_total",
		Help: "Token usage by model and direction.",
	}, []string{"model", "direction"})

	PlacesLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "startsmart_places_lookups_total",
		Help: "Points-of-interest lookups by outcome.",
	}, []string{"outcome"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "startsmart_breaker_state",
		Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
	}, []string{"name"})

	BatchItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "startsmart_batch_items_total",
		Help: "Batch items processed by outcome.",
	}, []string{"outcome"})
)
