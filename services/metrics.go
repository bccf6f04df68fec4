package services

import "github.com/prometheus/client_golang/prometheus"

var (
	challengeCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_completions_total",
			Help: "Challenge completions by outcome",
		},
		[]string{"result"},
	)
	cosmeticGrants = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cosmetic_grants_total",
			Help: "Cosmetic grant attempts by metric source and result",
		},
		[]string{"source", "result"},
	)
	notificationsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notifications processed by the dispatcher",
		},
		[]string{"status"},
	)
)

// RegisterMetrics registers the domain counters. Call this from main.go
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(challengeCompletions, cosmeticGrants, notificationsDispatched)
}
