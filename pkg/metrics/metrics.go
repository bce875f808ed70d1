package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ledgerline", Name: "gate_decisions_total", Help: "Route guard decisions by gate and decision."},
		[]string{"gate", "decision"},
	)
	ProfileFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ledgerline", Name: "profile_fetches_total", Help: "Profile fetch completions by outcome."},
		[]string{"outcome"},
	)
	LogoutStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ledgerline", Name: "logout_step_failures_total", Help: "Logout teardown step failures by step name."},
		[]string{"step"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ledgerline", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ledgerline", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(GateDecisions)
	reg.MustRegister(ProfileFetches)
	reg.MustRegister(LogoutStepFailures)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
