package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal  *prometheus.CounterVec
	AuthzLookupDuration  prometheus.Histogram
	AuthzLookupErrors    prometheus.Counter
	AdminMutationsTotal  *prometheus.CounterVec
	RegistrarPermissions *prometheus.CounterVec

	// Inventory
	Permissions *prometheus.GaugeVec
	Roles       prometheus.Gauge
	RoleGrants  prometheus.Gauge

	// Database pool
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopfront_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shopfront_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopfront_authz_decisions_total",
				Help: "Authorization verdicts by the rule that produced them",
			},
			[]string{"verdict", "reason"},
		),
		AuthzLookupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shopfront_authz_lookup_duration_seconds",
				Help:    "Time spent loading a caller's role and grants",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		AuthzLookupErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shopfront_authz_lookup_errors_total",
				Help: "Grant lookups that failed and were denied",
			},
		),
		AdminMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopfront_admin_mutations_total",
				Help: "Role-permission administration calls by outcome",
			},
			[]string{"operation", "outcome"},
		),
		RegistrarPermissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopfront_registrar_permissions_total",
				Help: "Endpoints processed by route registration by outcome",
			},
			[]string{"outcome"},
		),

		Permissions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shopfront_permissions",
				Help: "Stored permissions by state",
			},
			[]string{"state"},
		),
		Roles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shopfront_roles",
				Help: "Active roles",
			},
		),
		RoleGrants: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shopfront_role_grants",
				Help: "Role-permission pairs",
			},
		),

		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shopfront_db_connections_open",
				Help: "Open database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shopfront_db_connections_in_use",
				Help: "Database connections in use",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.AuthzLookupDuration,
		m.AuthzLookupErrors,
		m.AdminMutationsTotal,
		m.RegistrarPermissions,
		m.Permissions,
		m.Roles,
		m.RoleGrants,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
	)

	return m
}

// RecordAuthzDecision counts one authorization verdict
func (m *Metrics) RecordAuthzDecision(verdict, reason string) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(verdict, reason).Inc()
}

// ObserveAuthzLookup records a grant lookup and whether it failed
func (m *Metrics) ObserveAuthzLookup(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.AuthzLookupDuration.Observe(d.Seconds())
	if err != nil {
		m.AuthzLookupErrors.Inc()
	}
}

// RecordAdminMutation counts one attach/detach/retire call
func (m *Metrics) RecordAdminMutation(operation, outcome string) {
	if m == nil {
		return
	}
	m.AdminMutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordRegistration counts one endpoint processed by the registrar
func (m *Metrics) RecordRegistration(outcome string) {
	if m == nil {
		return
	}
	m.RegistrarPermissions.WithLabelValues(outcome).Inc()
}

// SetInventory updates the inventory gauges
func (m *Metrics) SetInventory(activePermissions, deletedPermissions, roles, grants int) {
	if m == nil {
		return
	}
	m.Permissions.WithLabelValues("active").Set(float64(activePermissions))
	m.Permissions.WithLabelValues("deleted").Set(float64(deletedPermissions))
	m.Roles.Set(float64(roles))
	m.RoleGrants.Set(float64(grants))
}

// SetDBStats updates the connection pool gauges
func (m *Metrics) SetDBStats(open, inUse int) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.Set(float64(open))
	m.DBConnectionsInUse.Set(float64(inUse))
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

// HTTPMetricsMiddleware instruments matched routes. It must be installed with
// Router.Use so the route template is known and label cardinality stays bounded.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
