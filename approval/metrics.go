package approval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsApproved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approval_sessions_approved_total",
		Help: "Sessions approved, bulk items included.",
	})
	sessionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approval_sessions_rejected_total",
		Help: "Sessions rejected, bulk items included.",
	})
)
