package engine

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/worldpurpose/internal/ir"
	"github.com/roach88/worldpurpose/internal/ledger"
)

// Metrics holds the engine's prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	calls         *prometheus.CounterVec
	investment    prometheus.Gauge
	held          prometheus.Gauge
	withdrawn     prometheus.Counter
	journalErrors prometheus.Counter
	queued        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests. A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldpurpose",
			Name:      "calls_total",
			Help:      "Calls applied, by action and output case.",
		}, []string{"action", "outcome"}),
		investment: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "worldpurpose",
			Name:      "current_investment_ether",
			Help:      "Investment backing the current purpose.",
		}),
		held: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "worldpurpose",
			Name:      "held_ether",
			Help:      "Total held by the ledger, locked and withdrawable.",
		}),
		withdrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldpurpose",
			Name:      "withdrawn_ether_total",
			Help:      "Total paid out to withdrawing owners.",
		}),
		journalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldpurpose",
			Name:      "journal_errors_total",
			Help:      "Journal appends that failed.",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "worldpurpose",
			Name:      "queue_depth",
			Help:      "Submitted calls waiting for the Run loop.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.investment, m.held, m.withdrawn, m.journalErrors, m.queued)
	}
	return m
}

// observe records one applied call.
func (m *Metrics) observe(action ir.Action, rcpt ir.Receipt, l *ledger.Ledger) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(string(action), rcpt.OutputCase).Inc()
	if action.Mutating() {
		m.sync(l)
	}
}

// paidOut records a transfer that left the ledger.
func (m *Metrics) paidOut(amount ledger.Amount) {
	if m == nil {
		return
	}
	m.withdrawn.Add(etherFloat(amount))
}

func (m *Metrics) queueDepth(n int) {
	if m == nil {
		return
	}
	m.queued.Set(float64(n))
}

// sync sets the gauges from ledger state.
func (m *Metrics) sync(l *ledger.Ledger) {
	if m == nil {
		return
	}
	if rec, ok := l.CurrentPurpose(); ok {
		m.investment.Set(etherFloat(rec.Investment))
	} else {
		m.investment.Set(0)
	}
	m.held.Set(etherFloat(l.TotalHeld()))
}

func (m *Metrics) journalFailed() {
	if m == nil {
		return
	}
	m.journalErrors.Inc()
}

// etherFloat converts for display only; ledger arithmetic never uses floats.
func etherFloat(a ledger.Amount) float64 {
	f, err := strconv.ParseFloat(a.Ether(), 64)
	if err != nil {
		return 0
	}
	return f
}
