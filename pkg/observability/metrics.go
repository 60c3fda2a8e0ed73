package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDenialsTotal    *prometheus.CounterVec
	RateLimitedTotal     *prometheus.CounterVec
	PermissionCacheHits  prometheus.Counter
	PermissionCacheMiss  prometheus.Counter

	// Audit metrics
	AuditWriteFailures prometheus.Counter

	// Webhook metrics
	WebhookEventsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meridian_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthzDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_authz_denials_total",
				Help: "Authorization pipeline denials by reason",
			},
			[]string{"reason"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_rate_limited_total",
				Help: "Requests rejected by rate limiting",
			},
			[]string{"route"},
		),
		PermissionCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meridian_permission_cache_hits_total",
				Help: "Custom role permission cache hits",
			},
		),
		PermissionCacheMiss: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meridian_permission_cache_misses_total",
				Help: "Custom role permission cache misses",
			},
		),
		AuditWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meridian_audit_write_failures_total",
				Help: "Best-effort audit writes that failed",
			},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_webhook_events_total",
				Help: "Provider webhook events by outcome",
			},
			[]string{"provider", "outcome"},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.AuthzDenialsTotal,
			m.RateLimitedTotal,
			m.PermissionCacheHits,
			m.PermissionCacheMiss,
			m.AuditWriteFailures,
			m.WebhookEventsTotal,
		)
	}

	return m
}

// Handler returns an HTTP handler exposing the registry for scraping.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
