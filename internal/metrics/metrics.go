// Package metrics holds the Prometheus collectors of the authentication engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "facegate"

// Result labels.
const (
	ResultOK       = "ok"
	ResultInvalid  = "invalid"
	ResultNoMatch  = "no_match"
	ResultNoAuth   = "unauthorized"
	ResultError    = "error"
	ResultComplete = "completed"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	EnrollmentSteps *prometheus.CounterVec
	LoginAttempts   *prometheus.CounterVec
	MatchDistance   prometheus.Histogram
	SessionsCreated prometheus.Counter
	SessionsRevoked prometheus.Counter
	SessionsExpired prometheus.Counter
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EnrollmentSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollment_steps_total",
			Help:      "Enrollment submissions by result.",
		}, []string{"result"}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Face login attempts by result.",
		}, []string{"result"}),
		MatchDistance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_distance",
			Help:      "Distance of the accepted best match.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1.0},
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions issued.",
		}),
		SessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Sessions removed by logout.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Expired sessions removed on read or by the sweeper.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EnrollmentSteps,
		m.LoginAttempts,
		m.MatchDistance,
		m.SessionsCreated,
		m.SessionsRevoked,
		m.SessionsExpired,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EnrollmentStep(result string) {
	if m == nil {
		return
	}
	m.EnrollmentSteps.WithLabelValues(result).Inc()
}

func (m *Metrics) LoginAttempt(result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveMatch(distance float64) {
	if m == nil {
		return
	}
	m.MatchDistance.Observe(distance)
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

func (m *Metrics) SessionRevoked() {
	if m == nil {
		return
	}
	m.SessionsRevoked.Inc()
}

func (m *Metrics) SessionsExpiredAdd(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsExpired.Add(float64(n))
}
