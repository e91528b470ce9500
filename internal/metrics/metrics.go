// Package metrics defines the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groupledger"

// Metrics groups every collector the service records.
type Metrics struct {
	registry *prometheus.Registry

	authzDecisions  *prometheus.CounterVec
	operations      *prometheus.CounterVec
	creditsConsumed prometheus.Counter
	creditsGranted  prometheus.Counter
	expensesSettled prometheus.Counter
	auditFailures   prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry along
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_decisions_total",
			Help:      "Authorization decisions by permission and outcome.",
		}, []string{"permission", "outcome"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by name and result.",
		}, []string{"operation", "result"}),
		creditsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_consumed_total",
			Help:      "Credits spent on group creation.",
		}),
		creditsGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_granted_total",
			Help:      "Credits granted after verified purchases.",
		}),
		expensesSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expenses_settled_total",
			Help:      "Expenses flipped to settled.",
		}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_append_failures_total",
			Help:      "Audit entries that could not be written.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency by transport, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport", "route", "status"}),
	}

	reg.MustRegister(
		m.authzDecisions,
		m.operations,
		m.creditsConsumed,
		m.creditsGranted,
		m.expensesSettled,
		m.auditFailures,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for scraping in tests and embedding.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// AuthzDecision counts one allow or deny.
func (m *Metrics) AuthzDecision(permission string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.authzDecisions.WithLabelValues(permission, outcome).Inc()
}

// Operation counts one ledger operation; err == nil is "ok".
func (m *Metrics) Operation(name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(name, result).Inc()
}

// CreditConsumed counts one credit spent.
func (m *Metrics) CreditConsumed() {
	if m == nil {
		return
	}
	m.creditsConsumed.Inc()
}

// CreditsGranted counts n credits granted.
func (m *Metrics) CreditsGranted(n int) {
	if m == nil {
		return
	}
	m.creditsGranted.Add(float64(n))
}

// ExpensesSettled counts n expenses settled.
func (m *Metrics) ExpensesSettled(n int) {
	if m == nil {
		return
	}
	m.expensesSettled.Add(float64(n))
}

// AuditFailure counts one failed audit append.
func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// ObserveRequest records request latency.
func (m *Metrics) ObserveRequest(transport, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(transport, route, strconv.Itoa(status)).Observe(d.Seconds())
}
