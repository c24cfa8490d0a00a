package domain

import "time"

// ExitReason enumerates why a position was closed, in the order the
// exit evaluator checks them.
type ExitReason string

const (
	ExitTakeProfit        ExitReason = "TAKE_PROFIT"
	ExitStopLoss          ExitReason = "STOP_LOSS"
	ExitTimeStop          ExitReason = "TIME_STOP"
	ExitTechnicalReversal ExitReason = "TECHNICAL_REVERSAL"
	ExitRegimeFlip        ExitReason = "REGIME_FLIP"
)

// Position is one open position. At most one exists per symbol at any
// time. Size changes only on partial-fill confirmation; the stop and
// target are computed once at entry and never move.
type Position struct {
	ID              string
	Symbol          string
	Side            Side
	EntryPrice      float64
	Size            float64
	OpenedAt        time.Time
	StopLossPrice   float64
	TakeProfitPrice float64
	RegimeAtEntry   MarketRegime
	EntryFee        float64
}

// UnrealizedPnL returns the open profit at the given mark price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - price) * p.Size
	}
	return (price - p.EntryPrice) * p.Size
}

// UnrealizedPnLPct returns the open profit as a percentage of entry.
func (p *Position) UnrealizedPnLPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == SideShort {
		return (1 - price/p.EntryPrice) * 100
	}
	return (price/p.EntryPrice - 1) * 100
}

// Trade is the immutable record of one closed position. PnL is computed
// from actual fill prices on both legs, net of fees.
type Trade struct {
	PositionID     string
	Symbol         string
	Side           Side
	EntryPrice     float64
	ExitPrice      float64
	Size           float64
	EntryFee       float64
	ExitFee        float64
	RealizedPnL    float64
	RealizedPnLPct float64
	OpenedAt       time.Time
	ClosedAt       time.Time
	ExitReason     ExitReason
}
