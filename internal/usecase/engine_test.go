package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/avbdev/crypto_scalper/internal/config"
	"github.com/avbdev/crypto_scalper/internal/domain"
)

func testCandles(n int, base float64) []domain.Candle {
	candles := make([]domain.Candle, n)
	for i := 0; i < n; i++ {
		// gentle oscillation keeps every indicator well defined
		c := base + math.Sin(float64(i)/3)*base*0.002
		candles[i] = domain.Candle{
			Time:   int64(i) * 60_000,
			Open:   c,
			High:   c * 1.001,
			Low:    c * 0.999,
			Close:  c,
			Volume: 10,
		}
	}
	return candles
}

func testEngine(ex domain.Exchange, repo domain.TradeRepository) *Engine {
	cfg := config.Default()
	cfg.Symbols = []string{"BTC/USDT"}
	logger := zap.NewNop()
	analyzer := NewMarketAnalyzer(cfg.Indicator)
	regimes := NewRegimeDetector(cfg.Indicator.EMAFastPeriod, cfg.Indicator.EMASlowPeriod, cfg.Regime.DivergenceThresholdPct)
	signals := NewSignalService(cfg.Signal, regimes)
	risk := NewRiskService(cfg.Risk, repo, logger)
	routerCfg := cfg.Router
	routerCfg.LimitTimeout = -time.Millisecond
	router := NewOrderRouter(routerCfg, ex, cfg.Exchange.QuoteAsset, logger)
	router.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	tracker := NewPositionTracker(repo, logger)
	return NewEngine(cfg, ex, analyzer, regimes, signals, risk, router, tracker, logger, nil)
}

func TestStepContainsDataErrors(t *testing.T) {
	ex := &mockExchange{
		getCandles: func(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
			return nil, domain.ErrDataUnavailable
		},
		getBalances: func(ctx context.Context) (map[string]domain.Balance, error) {
			return balancesOf(10000, 0), nil
		},
	}
	e := testEngine(ex, &memoryRepo{})
	e.Iterate(context.Background()) // must not panic or place orders
	if e.tracker.Get("BTC/USDT") != nil {
		t.Fatalf("no position should exist after a data failure")
	}
}

func TestStepSkipsOnShortHistory(t *testing.T) {
	ex := &mockExchange{
		getCandles: func(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
			return testCandles(10, 30000), nil
		},
		getBalances: func(ctx context.Context) (map[string]domain.Balance, error) {
			return balancesOf(10000, 0), nil
		},
	}
	e := testEngine(ex, &memoryRepo{})
	e.Iterate(context.Background())
	if e.tracker.Get("BTC/USDT") != nil {
		t.Fatalf("short history must not produce a position")
	}
}

func TestIterateHonorsCancellation(t *testing.T) {
	calls := 0
	ex := &mockExchange{
		getCandles: func(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
			calls++
			return nil, domain.ErrDataUnavailable
		},
		getBalances: func(ctx context.Context) (map[string]domain.Balance, error) {
			return balancesOf(10000, 0), nil
		},
	}
	e := testEngine(ex, &memoryRepo{})
	e.cfg.Symbols = []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Iterate(ctx)
	if calls != 0 {
		t.Fatalf("cancelled context must stop the iteration, made %d calls", calls)
	}
}

func TestExitFlowClosesPositionAndRecordsTrade(t *testing.T) {
	repo := &memoryRepo{}
	baseFree := 0.5
	ex := &mockExchange{
		getCandles: func(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
			return testCandles(60, 30000), nil
		},
		getBalances: func(ctx context.Context) (map[string]domain.Balance, error) {
			return balancesOf(100, baseFree), nil
		},
		placeOrder: func(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
			return &domain.Order{ID: "s1", Symbol: req.Symbol, Side: req.Side, Status: domain.OrderStatusNew}, nil
		},
		getOrder: func(ctx context.Context, symbol, orderID string) (*domain.Order, error) {
			baseFree = 0
			return &domain.Order{
				ID: orderID, Symbol: symbol, Side: domain.SideShort,
				Status: domain.OrderStatusFilled, FilledQty: 0.5, AvgFillPrice: 30050,
			}, nil
		},
	}
	e := testEngine(ex, repo)
	e.risk.StartSession(15000)

	// seed an open position whose take-profit is already exceeded
	sig := &domain.EntrySignal{Symbol: "BTC/USDT", Side: domain.SideLong, Score: 70, Regime: domain.RegimeRanging}
	entry := &domain.Fill{Symbol: "BTC/USDT", Side: domain.SideLong, Qty: 0.5, AvgPrice: 29900, Fee: 15}
	if _, err := e.tracker.Open(sig, entry, 29850, 29950); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	e.Iterate(context.Background())

	if e.tracker.Get("BTC/USDT") != nil {
		t.Fatalf("position should be closed")
	}
	if len(repo.trades) != 1 {
		t.Fatalf("expected one persisted trade, got %d", len(repo.trades))
	}
	trade := repo.trades[0]
	if trade.ExitReason != domain.ExitTakeProfit {
		t.Errorf("exit reason = %v, want TAKE_PROFIT", trade.ExitReason)
	}
	if trade.ExitPrice != 30050 {
		t.Errorf("exit price must come from the fill, got %.2f", trade.ExitPrice)
	}
	if len(repo.snapshots) != 1 {
		t.Errorf("risk snapshot not persisted after trade")
	}
}

func TestEntryBlockedWhileHalted(t *testing.T) {
	placed := 0
	ex := &mockExchange{
		getCandles: func(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
			return testCandles(60, 30000), nil
		},
		getBalances: func(ctx context.Context) (map[string]domain.Balance, error) {
			return balancesOf(10000, 0), nil
		},
		placeOrder: func(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
			placed++
			return &domain.Order{ID: "o", Symbol: req.Symbol, Side: req.Side, Status: domain.OrderStatusNew}, nil
		},
	}
	e := testEngine(ex, &memoryRepo{})
	e.risk.StartSession(10000)
	for i := 0; i < e.cfg.Risk.MaxConsecLosses; i++ {
		e.risk.RecordTrade(context.Background(), &domain.Trade{RealizedPnL: -1}, 10000)
	}
	if !errors.Is(e.risk.CheckEntry(), domain.ErrRiskHalted) {
		t.Fatalf("risk service should be halted")
	}

	e.Iterate(context.Background())
	if placed != 0 {
		t.Fatalf("halted engine must not place orders, placed %d", placed)
	}
}

func TestPartialExitKeepsPositionOpen(t *testing.T) {
	repo := &memoryRepo{}
	baseFree := 0.5
	var placed []domain.OrderRequest
	ex := &mockExchange{
		getCandles: func(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
			return testCandles(60, 30000), nil
		},
		getBalances: func(ctx context.Context) (map[string]domain.Balance, error) {
			return balancesOf(100, baseFree), nil
		},
		placeOrder: func(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
			placed = append(placed, req)
			id := "m"
			if req.Type == domain.OrderTypeLimit {
				id = "l"
			}
			return &domain.Order{ID: id, Symbol: req.Symbol, Side: req.Side, Status: domain.OrderStatusNew}, nil
		},
		getOrder: func(ctx context.Context, symbol, orderID string) (*domain.Order, error) {
			if orderID == "l" {
				// limit sold part of the size before dying
				baseFree = 0.3
				return &domain.Order{
					ID: orderID, Symbol: symbol, Side: domain.SideShort,
					Status: domain.OrderStatusCancelled, FilledQty: 0.2, AvgFillPrice: 30050,
				}, nil
			}
			// every sweep comes back empty, the residual stays unsold
			return &domain.Order{
				ID: orderID, Symbol: symbol, Side: domain.SideShort,
				Status: domain.OrderStatusCancelled, FilledQty: 0,
			}, nil
		},
	}
	e := testEngine(ex, repo)
	e.risk.StartSession(15000)

	sig := &domain.EntrySignal{Symbol: "BTC/USDT", Side: domain.SideLong, Score: 70, Regime: domain.RegimeRanging}
	entry := &domain.Fill{Symbol: "BTC/USDT", Side: domain.SideLong, Qty: 0.5, AvgPrice: 29900, Fee: 15}
	if _, err := e.tracker.Open(sig, entry, 29850, 29950); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	e.Iterate(context.Background())

	pos := e.tracker.Get("BTC/USDT")
	if pos == nil {
		t.Fatalf("position must stay open while base remains unsold")
	}
	if math.Abs(pos.Size-0.3) > 1e-9 {
		t.Errorf("position size = %v, want reduced to 0.3", pos.Size)
	}
	if len(repo.trades) != 0 {
		t.Errorf("no trade may be recorded before the exit completes")
	}
	if len(placed) != 4 {
		t.Errorf("expected limit plus three sweeps, got %d orders", len(placed))
	}
}
