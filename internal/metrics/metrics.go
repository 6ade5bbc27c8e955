// Package metrics defines the Prometheus collectors exported by the IMAP
// client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session metrics
var (
	SessionsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kamel_sessions_opened_total",
			Help: "Total number of IMAP sessions opened, by result",
		},
		[]string{"result"},
	)

	SessionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kamel_sessions_current",
			Help: "Current number of open IMAP sessions",
		},
	)

	PoolOversubscribed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kamel_pool_oversubscribed_total",
			Help: "Number of times a busy shared session was handed out because the pool was full",
		},
	)
)

// Command metrics
var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kamel_commands_total",
			Help: "Total number of IMAP commands completed, by command name and status",
		},
		[]string{"command", "status"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kamel_command_duration_seconds",
			Help:    "Time from sending a command to its tagged completion",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"command"},
	)
)

// Mailbox metrics
var (
	IdleEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kamel_idle_events_total",
			Help: "Mailbox change notifications received while idling, by event",
		},
		[]string{"event"},
	)

	ParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kamel_parse_errors_total",
			Help: "Server responses that could not be parsed, by response type",
		},
		[]string{"response"},
	)
)
