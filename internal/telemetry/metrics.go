package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trivia",
		Name:      "active_sessions",
		Help:      "Number of rooms currently held in the registry.",
	})

	PlayersJoined = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trivia",
		Name:      "players_joined_total",
		Help:      "Total number of successful joins across all rooms.",
	})

	AnswersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trivia",
		Name:      "answers_submitted_total",
		Help:      "Total answer submissions by outcome.",
	}, []string{"outcome"})

	AutoAdvances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trivia",
		Name:      "auto_advances_total",
		Help:      "Total auto-advance sequences that ran to completion.",
	})

	SessionsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trivia",
		Name:      "sessions_reaped_total",
		Help:      "Total idle sessions removed by the janitor.",
	})
)

// Answer outcomes recorded on AnswersSubmitted.
const (
	OutcomeCorrect  = "correct"
	OutcomeWrong    = "wrong"
	OutcomeVote     = "vote"
	OutcomeRejected = "rejected"
)
