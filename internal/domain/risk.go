package domain

// RiskState is the session-scoped account risk bookkeeping. It is owned
// by the risk service and passed explicitly, never hidden in a global,
// so tests can construct arbitrary states directly.
type RiskState struct {
	DailyRealizedPnLPct float64 `json:"daily_realized_pnl_pct"`
	ConsecutiveLosses   int     `json:"consecutive_losses"`
	PeakEquity          float64 `json:"peak_equity"`
	CurrentDrawdownPct  float64 `json:"current_drawdown_pct"`
	TradingHalted       bool    `json:"trading_halted"`
	HaltReason          string  `json:"halt_reason"`
}
