package mc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

var (
	// trialsTotal counts trials by move and outcome (accepted, rejected, failed).
	trialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metropolis",
		Subsystem: "mc",
		Name:      "trials_total",
		Help:      "Monte Carlo trials by move and outcome",
	}, []string{"move", "outcome"})

	stepSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "metropolis",
		Subsystem: "mc",
		Name:      "step_size",
		Help:      "Current step size per move",
	}, []string{"move"})

	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "metropolis",
		Subsystem: "mc",
		Name:      "phase_duration_seconds",
		Help:      "Wall time of equilibration and production phases",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"phase"})
)
