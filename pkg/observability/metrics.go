package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthorizationDecisionsTotal *prometheus.CounterVec
	PrivilegeBypassTotal        *prometheus.CounterVec
	SessionResolutionsTotal     *prometheus.CounterVec
	TenantSwitchesTotal         *prometheus.CounterVec

	// Isolation metrics
	ScopedTxTotal     *prometheus.CounterVec
	ScopedTxDuration  *prometheus.HistogramVec
	WriteDenialsTotal prometheus.Counter
	TxRetriesTotal    prometheus.Counter

	// Audit metrics
	AuditEmittedTotal          *prometheus.CounterVec
	AuditEmissionFailuresTotal *prometheus.CounterVec
	AuditQueueDepth            prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBConnectionsWait   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		AuthorizationDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_authorization_decisions_total",
				Help: "Capability checks by outcome",
			},
			[]string{"capability", "outcome"},
		),
		PrivilegeBypassTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_privilege_bypass_total",
				Help: "Capability checks allowed only through the super admin bypass",
			},
			[]string{"capability"},
		),
		SessionResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_session_resolutions_total",
				Help: "Session context resolutions by auth method and outcome",
			},
			[]string{"method", "outcome"},
		),
		TenantSwitchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_tenant_switches_total",
				Help: "Tenant switch attempts by outcome",
			},
			[]string{"outcome"},
		),

		ScopedTxTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_scoped_transactions_total",
				Help: "Tenant-scoped database transactions by isolation level and outcome",
			},
			[]string{"isolation", "outcome"},
		),
		ScopedTxDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_scoped_transaction_duration_seconds",
				Help:    "Tenant-scoped transaction duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"isolation"},
		),
		WriteDenialsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_rls_write_denials_total",
				Help: "Writes rejected by row-level security policies",
			},
		),
		TxRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_serialization_retries_total",
				Help: "Serializable transactions retried after a serialization failure",
			},
		),

		AuditEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_audit_records_emitted_total",
				Help: "Audit records persisted by action",
			},
			[]string{"action"},
		),
		AuditEmissionFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_audit_emission_failures_total",
				Help: "Audit records that could not be persisted",
			},
			[]string{"reason"},
		),
		AuditQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_audit_queue_depth",
				Help: "Audit records waiting to be persisted",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWait: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthorizationDecisionsTotal,
		m.PrivilegeBypassTotal,
		m.SessionResolutionsTotal,
		m.TenantSwitchesTotal,
		m.ScopedTxTotal,
		m.ScopedTxDuration,
		m.WriteDenialsTotal,
		m.TxRetriesTotal,
		m.AuditEmittedTotal,
		m.AuditEmissionFailuresTotal,
		m.AuditQueueDepth,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWait,
	)

	return m
}

// RecordDBStats copies connection pool statistics into the gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWait.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the matched mux route template so path
// parameters such as tenant IDs never become label values.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
