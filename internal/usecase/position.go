package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avbdev/crypto_scalper/internal/domain"
)

// PositionTracker maintains at most one open position per symbol and
// turns closed positions into persisted trades.
type PositionTracker struct {
	repo   domain.TradeRepository
	logger *zap.Logger

	mu        sync.RWMutex
	positions map[string]*domain.Position
	partials  map[string]*domain.Fill

	timeNow func() time.Time
}

func NewPositionTracker(repo domain.TradeRepository, logger *zap.Logger) *PositionTracker {
	return &PositionTracker{
		repo:      repo,
		logger:    logger,
		positions: make(map[string]*domain.Position),
		partials:  make(map[string]*domain.Fill),
		timeNow:   time.Now,
	}
}

// Open records a new position from an entry fill. Opening on a symbol
// that already holds a position fails with ErrAlreadyOpen; the caller
// must close first.
func (t *PositionTracker) Open(signal *domain.EntrySignal, fill *domain.Fill, stopLoss, takeProfit float64) (*domain.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.positions[signal.Symbol]; exists {
		return nil, fmt.Errorf("position on %s: %w", signal.Symbol, domain.ErrAlreadyOpen)
	}
	pos := &domain.Position{
		ID:              uuid.NewString(),
		Symbol:          signal.Symbol,
		Side:            signal.Side,
		EntryPrice:      fill.AvgPrice,
		Size:            fill.Qty,
		OpenedAt:        t.timeNow(),
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		RegimeAtEntry:   signal.Regime,
		EntryFee:        fill.Fee,
	}
	t.positions[signal.Symbol] = pos
	t.logger.Info("position opened",
		zap.String("symbol", pos.Symbol),
		zap.String("position_id", pos.ID),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("size", pos.Size),
		zap.Float64("stop_loss", pos.StopLossPrice),
		zap.Float64("take_profit", pos.TakeProfitPrice),
		zap.Int("score", signal.Score),
		zap.String("regime", string(signal.Regime)))
	return pos, nil
}

// Reduce shrinks an open position by a partial exit fill and keeps the
// position open for another exit attempt. The fill is retained and
// folded into the trade record when the position finally closes, so the
// proceeds of every attempt are accounted for.
func (t *PositionTracker) Reduce(symbol string, fill *domain.Fill) (*domain.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, exists := t.positions[symbol]
	if !exists {
		return nil, fmt.Errorf("reduce %s: no open position", symbol)
	}
	pos.Size -= fill.Qty
	if pos.Size < 0 {
		pos.Size = 0
	}
	t.partials[symbol] = mergeFills(t.partials[symbol], fill)
	t.logger.Warn("position reduced by partial exit",
		zap.String("symbol", symbol),
		zap.Float64("sold", fill.Qty),
		zap.Float64("remaining", pos.Size))
	return pos, nil
}

// Close removes the position and builds the trade record from the
// actual exit fill, not from the decision price. Any partial exit fills
// recorded earlier are merged in. The trade is persisted before being
// returned; a storage failure is logged but does not resurrect the
// position.
func (t *PositionTracker) Close(ctx context.Context, symbol string, fill *domain.Fill, reason domain.ExitReason) (*domain.Trade, error) {
	t.mu.Lock()
	pos, exists := t.positions[symbol]
	if !exists {
		t.mu.Unlock()
		return nil, fmt.Errorf("close %s: no open position", symbol)
	}
	delete(t.positions, symbol)
	if partial := t.partials[symbol]; partial != nil {
		fill = mergeFills(partial, fill)
		delete(t.partials, symbol)
	}
	t.mu.Unlock()

	closedAt := t.timeNow()
	trade := &domain.Trade{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill.AvgPrice,
		Size:       fill.Qty,
		EntryFee:   pos.EntryFee,
		ExitFee:    fill.Fee,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   closedAt,
		ExitReason: reason,
	}
	gross := (fill.AvgPrice - pos.EntryPrice) * fill.Qty
	if pos.Side == domain.SideShort {
		gross = -gross
	}
	trade.RealizedPnL = gross - pos.EntryFee - fill.Fee
	if notional := pos.EntryPrice * fill.Qty; notional > 0 {
		trade.RealizedPnLPct = trade.RealizedPnL / notional * 100
	}

	if t.repo != nil {
		if err := t.repo.SaveTrade(ctx, trade); err != nil {
			t.logger.Error("failed to persist trade",
				zap.String("symbol", symbol),
				zap.String("position_id", trade.PositionID),
				zap.Error(err))
		}
	}
	t.logger.Info("position closed",
		zap.String("symbol", symbol),
		zap.String("reason", string(reason)),
		zap.Float64("exit_price", trade.ExitPrice),
		zap.Float64("pnl", trade.RealizedPnL),
		zap.Float64("pnl_pct", trade.RealizedPnLPct),
		zap.Duration("held", closedAt.Sub(pos.OpenedAt)))
	return trade, nil
}

// Get returns the open position for a symbol, or nil. Read only.
func (t *PositionTracker) Get(symbol string) *domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positions[symbol]
}

// All returns the open positions across symbols.
func (t *PositionTracker) All() []*domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*domain.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p)
	}
	return out
}
