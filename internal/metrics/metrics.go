// Package metrics registers the Prometheus instruments updated by the
// engine and served at /metrics in text exposition format.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalper_decisions_total",
			Help: "Entry decisions by outcome (entered|rejected|error)",
		},
		[]string{"symbol", "outcome"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalper_orders_total",
			Help: "Orders placed by type and side",
		},
		[]string{"type", "side"},
	)

	ExitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalper_exit_reasons_total",
			Help: "Closed positions split by exit reason",
		},
		[]string{"symbol", "reason"},
	)

	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scalper_equity_quote",
			Help: "Account equity in the quote asset",
		},
	)

	RiskHalted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scalper_risk_halted",
			Help: "1 while entries are halted by the risk manager",
		},
	)

	EntryScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scalper_entry_score",
			Help: "Last computed entry score per symbol",
		},
		[]string{"symbol"},
	)

	Regime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scalper_regime",
			Help: "Regime indicator, one labeled series set to 1 per symbol",
		},
		[]string{"symbol", "regime"},
	)

	IterationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scalper_iteration_errors_total",
			Help: "Per-symbol iteration failures by stage (data|indicators|entry|exit)",
		},
		[]string{"symbol", "stage"},
	)
)

func init() {
	prometheus.MustRegister(
		Decisions,
		Orders,
		ExitReasons,
		Equity,
		RiskHalted,
		EntryScore,
		Regime,
		IterationErrors,
	)
}

// SetRegime flips the labeled series so exactly one regime reads 1.
func SetRegime(symbol, regime string) {
	for _, r := range []string{"UPTREND", "DOWNTREND", "RANGING", "UNKNOWN"} {
		v := 0.0
		if r == regime {
			v = 1.0
		}
		Regime.WithLabelValues(symbol, r).Set(v)
	}
}
