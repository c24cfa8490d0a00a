package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avbdev/crypto_scalper/internal/config"
	"github.com/avbdev/crypto_scalper/internal/domain"
)

// RiskService sizes positions and enforces the account-level circuit
// breakers: daily loss limit, drawdown limit and consecutive-loss
// limit. Once it halts trading, only an explicit Resume call restarts
// it; the engine never resumes itself.
type RiskService struct {
	cfg    config.RiskConfig
	repo   domain.TradeRepository
	logger *zap.Logger

	mu               sync.Mutex
	dayStartEquity   float64
	dailyRealizedPnL float64
	peakEquity       float64
	consecLosses     int
	halted           bool
	haltReason       string
	dayStart         time.Time

	timeNow func() time.Time
}

func NewRiskService(cfg config.RiskConfig, repo domain.TradeRepository, logger *zap.Logger) *RiskService {
	return &RiskService{
		cfg:     cfg,
		repo:    repo,
		logger:  logger,
		timeNow: time.Now,
	}
}

// PositionSize returns the base-asset quantity for an entry. Sizing is
// risk-based: the quantity that loses perTradeRiskPct of equity if the
// stop is hit, capped by the maximum position notional. Any input that
// would make the arithmetic meaningless sizes to zero; sizing fails
// closed, never open.
func (r *RiskService) PositionSize(equity, entryPrice, stopPrice float64) float64 {
	if equity <= 0 || entryPrice <= 0 || stopPrice <= 0 {
		return 0
	}
	if math.IsNaN(equity) || math.IsNaN(entryPrice) || math.IsNaN(stopPrice) {
		return 0
	}
	stopDistance := math.Abs(entryPrice - stopPrice)
	if stopDistance == 0 {
		return 0
	}
	riskAmount := equity * r.cfg.PerTradeRiskPct / 100
	size := riskAmount / stopDistance

	maxSize := equity * r.cfg.MaxPositionSizePct / 100 / entryPrice
	if size > maxSize {
		size = maxSize
	}
	return size
}

// CheckEntry reports whether a new entry is allowed right now.
func (r *RiskService) CheckEntry() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.halted {
		return fmt.Errorf("%s: %w", r.haltReason, domain.ErrRiskHalted)
	}
	return nil
}

// StartSession seeds the equity baselines. Call once before the first
// engine iteration.
func (r *RiskService) StartSession(equity float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dayStartEquity = equity
	r.peakEquity = equity
	r.dailyRealizedPnL = 0
	r.dayStart = r.timeNow()
}

// RecordTrade folds a closed trade into the risk counters and trips the
// circuit breakers when a limit is crossed. Exits are never blocked by
// a halt; this only gates future entries.
func (r *RiskService) RecordTrade(ctx context.Context, trade *domain.Trade, equity float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rolloverLocked()

	r.dailyRealizedPnL += trade.RealizedPnL
	if trade.RealizedPnL > 0 {
		r.consecLosses = 0
	} else {
		r.consecLosses++
	}
	if equity > r.peakEquity {
		r.peakEquity = equity
	}

	state := r.stateLocked(equity)
	switch {
	case r.cfg.MaxDailyLossPct > 0 && state.DailyRealizedPnLPct <= -r.cfg.MaxDailyLossPct:
		r.haltLocked(fmt.Sprintf("daily loss %.2f%% breached limit %.2f%%", -state.DailyRealizedPnLPct, r.cfg.MaxDailyLossPct))
	case r.cfg.MaxDrawdownPct > 0 && state.CurrentDrawdownPct >= r.cfg.MaxDrawdownPct:
		r.haltLocked(fmt.Sprintf("drawdown %.2f%% breached limit %.2f%%", state.CurrentDrawdownPct, r.cfg.MaxDrawdownPct))
	case r.cfg.MaxConsecLosses > 0 && r.consecLosses >= r.cfg.MaxConsecLosses:
		r.haltLocked(fmt.Sprintf("%d consecutive losses breached limit %d", r.consecLosses, r.cfg.MaxConsecLosses))
	}

	if r.repo != nil {
		snapshot := r.stateLocked(equity)
		if err := r.repo.SaveRiskSnapshot(ctx, &snapshot); err != nil && r.logger != nil {
			r.logger.Warn("failed to persist risk snapshot", zap.Error(err))
		}
	}
}

func (r *RiskService) haltLocked(reason string) {
	if r.halted {
		return
	}
	r.halted = true
	r.haltReason = reason
	if r.logger != nil {
		r.logger.Error("trading halted", zap.String("reason", reason))
	}
}

// Resume clears a halt. This is a manual operator action.
func (r *RiskService) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.halted {
		return
	}
	r.halted = false
	r.haltReason = ""
	r.consecLosses = 0
	if r.logger != nil {
		r.logger.Info("trading resumed by operator")
	}
}

// rolloverLocked resets the daily counters when the UTC day changes.
// Drawdown and peak equity survive the rollover.
func (r *RiskService) rolloverLocked() {
	now := r.timeNow()
	if r.dayStart.IsZero() {
		r.dayStart = now
		return
	}
	if now.UTC().YearDay() != r.dayStart.UTC().YearDay() || now.UTC().Year() != r.dayStart.UTC().Year() {
		r.dailyRealizedPnL = 0
		r.dayStartEquity = r.peakEquity
		r.dayStart = now
	}
}

// State returns a snapshot of the current risk counters.
func (r *RiskService) State(equity float64) domain.RiskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked(equity)
}

func (r *RiskService) stateLocked(equity float64) domain.RiskState {
	s := domain.RiskState{
		ConsecutiveLosses: r.consecLosses,
		PeakEquity:        r.peakEquity,
		TradingHalted:     r.halted,
		HaltReason:        r.haltReason,
	}
	if r.dayStartEquity > 0 {
		s.DailyRealizedPnLPct = r.dailyRealizedPnL / r.dayStartEquity * 100
	}
	if r.peakEquity > 0 && equity > 0 {
		s.CurrentDrawdownPct = (r.peakEquity - equity) / r.peakEquity * 100
		if s.CurrentDrawdownPct < 0 {
			s.CurrentDrawdownPct = 0
		}
	}
	return s
}
