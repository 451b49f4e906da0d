package auth

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "operations_total",
		Help:      "Register and login calls by outcome.",
	}, []string{"op", "outcome"})

	hashDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "identity",
		Name:      "password_hash_duration_seconds",
		Help:      "Time spent hashing and verifying passwords.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"op"})
)

func observeHash(op string, start time.Time) {
	hashDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func countOutcome(op string, err error) {
	operations.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAccountExists):
		return "conflict"
	case errors.Is(err, ErrInvalidCredentials):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
