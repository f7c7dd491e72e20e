package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationRetries counts question generation attempts that failed
	// schema validation and were retried.
	GenerationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_generation_retries_total",
		Help: "Generated question sets that failed schema validation and were retried.",
	})

	// LedgerSubmissions counts ledger transaction submissions by entrypoint
	// and outcome.
	LedgerSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_ledger_submissions_total",
		Help: "Ledger transaction submissions by entrypoint and outcome.",
	}, []string{"entrypoint", "outcome"})

	// PassesSettled counts quiz passes settled on the ledger.
	PassesSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_passes_settled_total",
		Help: "Quiz passes settled through the pass entrypoint.",
	})

	// ContentCacheHits counts content store fetches served from cache.
	ContentCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_content_cache_hits_total",
		Help: "Content store fetches served from the redis cache.",
	})
)
