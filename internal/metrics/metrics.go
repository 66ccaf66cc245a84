// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// IdentityCallsTotal counts identity-provider round trips by operation
	// (exchange, refresh, revoke, jwks) and outcome (ok, rejected, error).
	IdentityCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_calls_total",
			Help: "Identity provider calls partitioned by operation and outcome.",
		}, []string{"op", "outcome"})

	TokenValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validations_total",
			Help: "Bearer token validations partitioned by result.",
		}, []string{"result"})

	TenantCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_cache_hits_total",
			Help: "Tenant directory lookups served from cache.",
		})

	TenantLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_load_total",
			Help: "Cumulative number of tenant directory queries.",
		})

	TenantLoadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_load_errors_total",
			Help: "Cumulative number of tenant directory query errors.",
		})

	TenantEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_evict_total",
			Help: "Cumulative number of expired tenant cache entries removed.",
		})

	CachedTenants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cached_tenant_entries",
			Help: "Number of tenant directory entries currently cached.",
		})

	CrossTenantDenialsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cross_tenant_denials_total",
			Help: "Mutations rejected because the entity belongs to another tenant.",
		})

	DuplicateRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplicate_rejections_total",
			Help: "Writes rejected by a uniqueness pre-check or constraint, by table.",
		}, []string{"table"})

	EventHandlerFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_handler_failures_total",
			Help: "Domain event handlers that returned an error or panicked.",
		}, []string{"kind"})

	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Open realtime subscription connections.",
		})
)

func init() {
	prometheus.MustRegister(
		IdentityCallsTotal,
		TokenValidationsTotal,
		TenantCacheHitsTotal,
		TenantLoadTotal,
		TenantLoadErrorsTotal,
		TenantEvictTotal,
		CachedTenants,
		CrossTenantDenialsTotal,
		DuplicateRejectionsTotal,
		EventHandlerFailuresTotal,
		RealtimeConnections,
	)
}
