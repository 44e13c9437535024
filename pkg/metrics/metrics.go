package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch metrics. Registered on the default registry and exposed via
// promhttp on /metrics.
var (
	RequestsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_requests_created_total",
			Help: "Emergency requests created, by priority",
		},
		[]string{"priority"},
	)

	RequestsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_requests_accepted_total",
			Help: "Requests accepted by a responder",
		},
	)

	AcceptConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_accept_conflicts_total",
			Help: "Accept attempts that lost the race or arrived late",
		},
	)

	RequestsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_requests_expired_total",
			Help: "Requests reclaimed by the expiration sweeper",
		},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_sweep_runs_total",
			Help: "Sweeper ticks, by outcome (run or skip)",
		},
		[]string{"outcome"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_notifications_sent_total",
			Help: "Push notifications handed to the channel, by event",
		},
		[]string{"event"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_notifications_failed_total",
			Help: "Notification deliveries that failed, by event and path",
		},
		[]string{"event", "path"},
	)

	MatchCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sos_match_candidates",
			Help:    "Candidates returned per successful match",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)
)
