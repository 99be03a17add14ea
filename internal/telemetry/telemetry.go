// Package telemetry holds the engine's business metrics. HTTP-level
// metrics live in the middleware; everything here counts domain events.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutboundCalls counts calls that actually reached the tax service.
	OutboundCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sovostax",
		Name:      "outbound_calls_total",
		Help:      "Outbound calls to the tax service by endpoint.",
	}, []string{"endpoint"})

	// CacheHits counts quote cache hits by the layer that answered.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sovostax",
		Name:      "quote_cache_hits_total",
		Help:      "Quote cache hits by layer (memo, session, shared).",
	}, []string{"layer"})

	// CacheMisses counts quote cache misses across all layers.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sovostax",
		Name:      "quote_cache_misses_total",
		Help:      "Quote cache lookups that missed every layer.",
	})

	// LockWaits counts calculations that found the lock held and polled.
	LockWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sovostax",
		Name:      "quote_lock_waits_total",
		Help:      "Calculations that waited on a competing worker's lock.",
	})

	// LockTimeouts counts waits that exhausted their polling budget.
	LockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sovostax",
		Name:      "quote_lock_wait_timeouts_total",
		Help:      "Lock waits that gave up without a cached result.",
	})

	// Bypasses counts calculations that skipped the outbound call.
	Bypasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sovostax",
		Name:      "bypass_total",
		Help:      "Calculations resolved without an outbound call, by reason.",
	}, []string{"reason"})

	// DeliveryFees counts responses where an automatic delivery fee was
	// extracted and reallocated.
	DeliveryFees = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sovostax",
		Name:      "delivery_fee_reallocations_total",
		Help:      "Responses with an automatic delivery fee reallocated out of product tax.",
	})
)
