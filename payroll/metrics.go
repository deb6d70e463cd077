package payroll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invoicesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payroll_invoices_generated_total",
		Help: "Invoices created by explicit generation runs.",
	})
	periodsLocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payroll_periods_locked_total",
		Help: "Pay periods locked.",
	})
)
