package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avbdev/crypto_scalper/internal/config"
	"github.com/avbdev/crypto_scalper/internal/domain"
)

func testRiskService() *RiskService {
	r := NewRiskService(config.Default().Risk, nil, nil)
	r.timeNow = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestPositionSizeRiskBased(t *testing.T) {
	r := testRiskService()
	// equity 10_000, risk 0.5% = 50, stop distance 60 -> size 0.8333
	size := r.PositionSize(10000, 30000, 29940)
	assert.InDelta(t, 50.0/60.0, size, 1e-9)
}

func TestPositionSizeCappedByMaxNotional(t *testing.T) {
	cfg := config.Default().Risk
	cfg.PerTradeRiskPct = 10 // absurd risk to force the cap
	cfg.MaxPositionSizePct = 25
	r := NewRiskService(cfg, nil, nil)

	size := r.PositionSize(10000, 100, 99.9)
	// cap: 25% of 10_000 at price 100 -> 25 units
	assert.InDelta(t, 25.0, size, 1e-9)
}

func TestPositionSizeFailsClosed(t *testing.T) {
	r := testRiskService()
	assert.Zero(t, r.PositionSize(0, 100, 99))
	assert.Zero(t, r.PositionSize(10000, 0, 99))
	assert.Zero(t, r.PositionSize(10000, 100, 100)) // zero stop distance
	assert.Zero(t, r.PositionSize(math.NaN(), 100, 99))
	assert.Zero(t, r.PositionSize(10000, 100, math.NaN()))
}

func lossTrade(pnl float64) *domain.Trade {
	return &domain.Trade{Symbol: "BTC/USDT", Side: domain.SideLong, RealizedPnL: pnl}
}

func TestConsecutiveLossHalt(t *testing.T) {
	r := testRiskService()
	r.StartSession(10000)

	for i := 0; i < 3; i++ {
		r.RecordTrade(context.Background(), lossTrade(-1), 10000)
		require.NoError(t, r.CheckEntry())
	}
	r.RecordTrade(context.Background(), lossTrade(-1), 10000)
	err := r.CheckEntry()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRiskHalted))

	// a win before the limit would have reset the streak
	r2 := testRiskService()
	r2.StartSession(10000)
	for i := 0; i < 3; i++ {
		r2.RecordTrade(context.Background(), lossTrade(-1), 10000)
	}
	r2.RecordTrade(context.Background(), lossTrade(5), 10000)
	r2.RecordTrade(context.Background(), lossTrade(-1), 10000)
	assert.NoError(t, r2.CheckEntry())
}

func TestBreakevenCountsAsLoss(t *testing.T) {
	r := testRiskService()
	r.StartSession(10000)
	for i := 0; i < 4; i++ {
		r.RecordTrade(context.Background(), lossTrade(0), 10000)
	}
	assert.Error(t, r.CheckEntry())
}

func TestDailyLossHalt(t *testing.T) {
	r := testRiskService()
	r.StartSession(10000)
	// limit is 3% of 10_000 = 300
	r.RecordTrade(context.Background(), lossTrade(-200), 9800)
	require.NoError(t, r.CheckEntry())
	r.RecordTrade(context.Background(), lossTrade(150), 9950)
	r.RecordTrade(context.Background(), lossTrade(-260), 9690)
	err := r.CheckEntry()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily loss")
}

func TestDrawdownHalt(t *testing.T) {
	cfg := config.Default().Risk
	cfg.MaxDailyLossPct = 50 // keep daily limit out of the way
	cfg.MaxConsecLosses = 100
	r := NewRiskService(cfg, nil, nil)
	r.timeNow = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	r.StartSession(10000)

	r.RecordTrade(context.Background(), lossTrade(100), 10100) // new peak
	r.RecordTrade(context.Background(), lossTrade(-600), 9500) // 5.94% off the 10_100 peak
	err := r.CheckEntry()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drawdown")
}

func TestResumeIsManualOnly(t *testing.T) {
	r := testRiskService()
	r.StartSession(10000)
	for i := 0; i < 4; i++ {
		r.RecordTrade(context.Background(), lossTrade(-1), 10000)
	}
	require.Error(t, r.CheckEntry())

	// winning trades do not lift the halt
	r.RecordTrade(context.Background(), lossTrade(100), 10100)
	require.Error(t, r.CheckEntry())

	r.Resume()
	assert.NoError(t, r.CheckEntry())
	state := r.State(10100)
	assert.False(t, state.TradingHalted)
	assert.Empty(t, state.HaltReason)
}

func TestDailyRollover(t *testing.T) {
	r := testRiskService()
	now := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	r.timeNow = func() time.Time { return now }
	r.StartSession(10000)
	r.RecordTrade(context.Background(), lossTrade(-200), 9800)
	assert.InDelta(t, -2.0, r.State(9800).DailyRealizedPnLPct, 1e-9)

	now = now.Add(2 * time.Hour) // next UTC day
	r.RecordTrade(context.Background(), lossTrade(-50), 9750)
	state := r.State(9750)
	assert.Greater(t, state.DailyRealizedPnLPct, -1.0, "daily pnl must reset at the day boundary")
	assert.NoError(t, r.CheckEntry())
}
