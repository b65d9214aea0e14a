package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SimpnicServerTeam/scs-openid-bridge/internal/models"
)

// AuthMetrics holds the Prometheus metrics of the authentication pipeline.
// A nil *AuthMetrics records nothing.
type AuthMetrics struct {
	AttemptsTotal    *prometheus.CounterVec
	AttemptDuration  *prometheus.HistogramVec
	UsersProvisioned *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewAuthMetrics creates and registers the metrics on registry.
func NewAuthMetrics(registry *prometheus.Registry) *AuthMetrics {
	m := &AuthMetrics{
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openid_bridge_auth_attempts_total",
				Help: "Total number of OpenID authentication attempts by outcome",
			},
			[]string{"provider", "kind", "reason"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openid_bridge_auth_attempt_duration_seconds",
				Help:    "OpenID authentication attempt duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "kind"},
		),
		UsersProvisioned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openid_bridge_users_provisioned_total",
				Help: "Total number of users provisioned on first sign-in",
			},
			[]string{"provider", "persisted"},
		),
		gatherer: registry,
	}

	registry.MustRegister(
		m.AttemptsTotal,
		m.AttemptDuration,
		m.UsersProvisioned,
	)
	return m
}

// RecordOutcome counts one finished attempt.
func (m *AuthMetrics) RecordOutcome(providerID string, outcome models.AuthOutcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	reason := ""
	if outcome.IsRejected() {
		reason = outcome.Label()
	}
	m.AttemptsTotal.WithLabelValues(providerID, string(outcome.Kind), reason).Inc()
	m.AttemptDuration.WithLabelValues(providerID, string(outcome.Kind)).Observe(elapsed.Seconds())
	if outcome.NewUser {
		persisted := "false"
		if outcome.Persisted {
			persisted = "true"
		}
		m.UsersProvisioned.WithLabelValues(providerID, persisted).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *AuthMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
