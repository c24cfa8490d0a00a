package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/avbdev/crypto_scalper/internal/config"
	"github.com/avbdev/crypto_scalper/internal/domain"
	"github.com/avbdev/crypto_scalper/internal/metrics"
)

// EventSink receives engine events for streaming to operator clients.
type EventSink interface {
	Publish(topic string, payload any)
}

// Engine runs the decision loop: one pass over the configured symbols
// per tick, strictly sequential. A failure on one symbol is contained
// to that symbol and iteration; cancellation is honored at iteration
// boundaries so an in-flight order is never abandoned halfway.
type Engine struct {
	cfg      *config.Config
	exchange domain.Exchange
	analyzer *MarketAnalyzer
	regimes  *RegimeDetector
	signals  *SignalService
	risk     *RiskService
	router   *OrderRouter
	tracker  *PositionTracker
	logger   *zap.Logger
	events   EventSink
}

func NewEngine(
	cfg *config.Config,
	exchange domain.Exchange,
	analyzer *MarketAnalyzer,
	regimes *RegimeDetector,
	signals *SignalService,
	risk *RiskService,
	router *OrderRouter,
	tracker *PositionTracker,
	logger *zap.Logger,
	events EventSink,
) *Engine {
	return &Engine{
		cfg:      cfg,
		exchange: exchange,
		analyzer: analyzer,
		regimes:  regimes,
		signals:  signals,
		risk:     risk,
		router:   router,
		tracker:  tracker,
		logger:   logger,
		events:   events,
	}
}

// Run blocks until ctx is cancelled, executing one iteration per tick.
func (e *Engine) Run(ctx context.Context) error {
	equity, err := e.equity(ctx)
	if err != nil {
		return err
	}
	e.risk.StartSession(equity)
	metrics.Equity.Set(equity)
	e.logger.Info("engine started",
		zap.Strings("symbols", e.cfg.Symbols),
		zap.String("timeframe", e.cfg.Timeframe),
		zap.Float64("equity", equity))

	ticker := time.NewTicker(e.cfg.Loop.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Iterate(ctx)
		}
	}
}

// Iterate runs one full pass over all symbols.
func (e *Engine) Iterate(ctx context.Context) {
	for _, symbol := range e.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		e.step(ctx, symbol)
	}
	if equity, err := e.equity(ctx); err == nil {
		metrics.Equity.Set(equity)
		state := e.risk.State(equity)
		if state.TradingHalted {
			metrics.RiskHalted.Set(1)
		} else {
			metrics.RiskHalted.Set(0)
		}
	}
}

// step evaluates one symbol: exit management when a position is open,
// entry evaluation otherwise.
func (e *Engine) step(ctx context.Context, symbol string) {
	candles, err := e.exchange.GetCandles(ctx, symbol, e.cfg.Timeframe, e.cfg.Loop.CandleLimit)
	if err != nil {
		metrics.IterationErrors.WithLabelValues(symbol, "data").Inc()
		e.logger.Warn("candle fetch failed",
			zap.String("symbol", symbol),
			zap.Error(err))
		return
	}
	view, err := e.analyzer.Analyze(candles)
	if err != nil {
		metrics.IterationErrors.WithLabelValues(symbol, "indicators").Inc()
		if !errors.Is(err, domain.ErrInsufficientData) {
			e.logger.Warn("indicator computation failed",
				zap.String("symbol", symbol),
				zap.Error(err))
		}
		return
	}
	regime, err := e.regimes.Detect(symbol, candles)
	if err != nil {
		metrics.IterationErrors.WithLabelValues(symbol, "indicators").Inc()
		return
	}
	metrics.SetRegime(symbol, string(regime))

	if pos := e.tracker.Get(symbol); pos != nil {
		e.manageExit(ctx, symbol, pos, regime, view)
		return
	}
	e.tryEntry(ctx, symbol, regime, view)
}

func (e *Engine) manageExit(ctx context.Context, symbol string, pos *domain.Position, regime domain.MarketRegime, view *MarketView) {
	decision := e.signals.EvaluateExit(pos, regime, view)
	if !decision.Exit {
		return
	}
	fill, err := e.router.ExecuteExit(ctx, symbol, decision.AtPrice)
	if err != nil {
		metrics.IterationErrors.WithLabelValues(symbol, "exit").Inc()
		e.logger.Error("exit execution failed",
			zap.String("symbol", symbol),
			zap.String("reason", string(decision.Reason)),
			zap.Error(err))
		if fill == nil || fill.Qty == 0 {
			return
		}
		// a partial exit leaves the position open at the remaining
		// size; the next iteration re-attempts the exit for the rest
		if _, rerr := e.tracker.Reduce(symbol, fill); rerr != nil {
			e.logger.Error("partial exit bookkeeping failed",
				zap.String("symbol", symbol),
				zap.Error(rerr))
		}
		return
	}
	trade, err := e.tracker.Close(ctx, symbol, fill, decision.Reason)
	if err != nil {
		e.logger.Error("position close failed",
			zap.String("symbol", symbol),
			zap.Error(err))
		return
	}
	metrics.ExitReasons.WithLabelValues(symbol, string(decision.Reason)).Inc()

	equity, eqErr := e.equity(ctx)
	if eqErr != nil {
		equity = 0
		e.logger.Warn("equity refresh failed after exit", zap.Error(eqErr))
	}
	e.risk.RecordTrade(ctx, trade, equity)
	e.publish("trade_closed", trade)
}

func (e *Engine) tryEntry(ctx context.Context, symbol string, regime domain.MarketRegime, view *MarketView) {
	if err := e.risk.CheckEntry(); err != nil {
		metrics.Decisions.WithLabelValues(symbol, "rejected").Inc()
		return
	}
	signal, reason := e.signals.Evaluate(symbol, regime, view)
	if signal == nil {
		metrics.Decisions.WithLabelValues(symbol, "rejected").Inc()
		e.logger.Debug("no entry",
			zap.String("symbol", symbol),
			zap.String("regime", string(regime)),
			zap.String("reason", reason))
		return
	}
	metrics.EntryScore.WithLabelValues(symbol).Set(float64(signal.Score))

	stopLoss, takeProfit := e.signals.ComputeStops(regime, view.Price, view.ATR)
	equity, err := e.equity(ctx)
	if err != nil {
		metrics.IterationErrors.WithLabelValues(symbol, "entry").Inc()
		return
	}
	size := e.risk.PositionSize(equity, view.Price, stopLoss)
	if size <= 0 {
		metrics.Decisions.WithLabelValues(symbol, "rejected").Inc()
		e.logger.Warn("sizing produced zero quantity",
			zap.String("symbol", symbol),
			zap.Float64("equity", equity),
			zap.Float64("price", view.Price),
			zap.Float64("stop", stopLoss))
		return
	}

	fill, err := e.router.ExecuteEntry(ctx, symbol, view.Price, size*view.Price)
	if err != nil {
		metrics.Decisions.WithLabelValues(symbol, "error").Inc()
		e.logger.Error("entry execution failed",
			zap.String("symbol", symbol),
			zap.Error(err))
		return
	}
	metrics.Orders.WithLabelValues(string(domain.OrderTypeLimit), string(signal.Side)).Inc()

	// stops anchor to the achieved price, not the decision price
	stopLoss, takeProfit = e.signals.ComputeStops(regime, fill.AvgPrice, view.ATR)
	pos, err := e.tracker.Open(signal, fill, stopLoss, takeProfit)
	if err != nil {
		e.logger.Error("position open failed",
			zap.String("symbol", symbol),
			zap.Error(err))
		return
	}
	e.signals.RecordEntry(symbol)
	metrics.Decisions.WithLabelValues(symbol, "entered").Inc()
	e.publish("position_opened", pos)
}

// equity values the account in the quote asset: free and locked quote
// plus open positions marked at their entry price.
func (e *Engine) equity(ctx context.Context) (float64, error) {
	balances, err := e.exchange.GetBalances(ctx)
	if err != nil {
		return 0, err
	}
	quote := balances[e.cfg.Exchange.QuoteAsset]
	equity := quote.Free + quote.Locked
	for _, pos := range e.tracker.All() {
		equity += pos.EntryPrice * pos.Size
	}
	return equity, nil
}

func (e *Engine) publish(topic string, payload any) {
	if e.events != nil {
		e.events.Publish(topic, payload)
	}
}

// Resume lifts a risk halt. Exposed for the operator API.
func (e *Engine) Resume() {
	e.risk.Resume()
	metrics.RiskHalted.Set(0)
}

// Status summarizes current engine state for the API.
type Status struct {
	Symbols   []string          `json:"symbols"`
	Regimes   map[string]string `json:"regimes"`
	Positions int               `json:"open_positions"`
	Risk      domain.RiskState  `json:"risk"`
	Equity    float64           `json:"equity"`
}

func (e *Engine) Status(ctx context.Context) Status {
	equity, _ := e.equity(ctx)
	regimes := make(map[string]string, len(e.cfg.Symbols))
	for _, s := range e.cfg.Symbols {
		regimes[s] = string(e.regimes.Current(s))
	}
	return Status{
		Symbols:   e.cfg.Symbols,
		Regimes:   regimes,
		Positions: len(e.tracker.All()),
		Risk:      e.risk.State(equity),
		Equity:    equity,
	}
}

// Positions exposes the open positions for the API.
func (e *Engine) Positions() []*domain.Position {
	return e.tracker.All()
}
