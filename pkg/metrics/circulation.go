package metrics

import "github.com/prometheus/client_golang/prometheus"

// CirculationMetrics counts desk operations by outcome.
type CirculationMetrics struct {
	loans *prometheus.CounterVec
	fines *prometheus.CounterVec
}

// NewCirculationMetrics registers circulation counters on the provided registerer.
func NewCirculationMetrics(reg prometheus.Registerer) *CirculationMetrics {
	if reg == nil {
		return &CirculationMetrics{}
	}
	loans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "libris",
		Name:      "loan_operations_total",
		Help:      "Loan lifecycle operations by kind and outcome.",
	}, []string{"operation", "outcome"})
	fines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "libris",
		Name:      "fines_total",
		Help:      "Fine lifecycle transitions.",
	}, []string{"transition"})
	reg.MustRegister(loans, fines)
	return &CirculationMetrics{loans: loans, fines: fines}
}

// IncLoanOperation records a borrow, return, or renew attempt outcome.
func (c *CirculationMetrics) IncLoanOperation(operation, outcome string) {
	if c == nil || c.loans == nil {
		return
	}
	c.loans.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncFineTransition records a fine being assessed, paid, or waived.
func (c *CirculationMetrics) IncFineTransition(transition string) {
	if c == nil || c.fines == nil {
		return
	}
	c.fines.WithLabelValues(normalizeLabel(transition)).Inc()
}
