package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avbdev/crypto_scalper/internal/config"
	"github.com/avbdev/crypto_scalper/internal/domain"
)

// dustQty is the base quantity below which a balance is treated as
// already flat.
const dustQty = 1e-8

// residualAttempts bounds the market sweeps used to flatten what a
// partially filled exit left behind.
const residualAttempts = 3

// OrderRouter turns a trade decision into exchange orders. Entries and
// exits both try a price-improved limit order first and fall back to a
// market order; the difference is that an entry may settle for a
// partial fill while an exit must leave the base balance flat.
type OrderRouter struct {
	cfg        config.RouterConfig
	exchange   domain.Exchange
	logger     *zap.Logger
	quoteAsset string

	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrderRouter(cfg config.RouterConfig, exchange domain.Exchange, quoteAsset string, logger *zap.Logger) *OrderRouter {
	return &OrderRouter{
		cfg:        cfg,
		exchange:   exchange,
		logger:     logger,
		quoteAsset: quoteAsset,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func baseAsset(symbol string) string {
	if i := strings.Index(symbol, "/"); i > 0 {
		return symbol[:i]
	}
	return symbol
}

// ExecuteEntry buys up to targetNotional of the symbol. The spendable
// notional is bounded by the free quote balance discounted by the fee
// and slippage buffer, so the order never overdraws the account. With
// maker preference on, a limit order leads and a partial fill at
// timeout is accepted as the position size; with it off the router goes
// straight to the market.
func (r *OrderRouter) ExecuteEntry(ctx context.Context, symbol string, refPrice, targetNotional float64) (*domain.Fill, error) {
	balances, err := r.exchange.GetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("entry %s: fetch balances: %w", symbol, err)
	}
	quoteFree := balances[r.quoteAsset].Free
	notional := quoteFree * r.cfg.EntryBalanceFraction / (1 + (r.cfg.FeePct+r.cfg.SlippageBufferPct)/100)
	if targetNotional > 0 && targetNotional < notional {
		notional = targetNotional
	}
	if notional <= 0 || refPrice <= 0 {
		return nil, fmt.Errorf("entry %s: no spendable balance: %w", symbol, domain.ErrOrderRejected)
	}

	fill := &domain.Fill{}
	if r.cfg.PreferMaker {
		limitPrice := refPrice * (1 - r.cfg.PriceImprovementPct/100)
		qty := notional / limitPrice
		fill, err = r.runLimitLeg(ctx, symbol, domain.SideLong, qty, limitPrice)
		if err != nil {
			return nil, err
		}
	}
	if fill.Qty < dustQty {
		// nothing filled passively: take the market
		mkt, err := r.runMarketLeg(ctx, domain.OrderRequest{
			ClientID: uuid.NewString(),
			Symbol:   symbol,
			Side:     domain.SideLong,
			Type:     domain.OrderTypeMarket,
			Notional: notional,
		})
		if err != nil {
			return nil, err
		}
		fill = mkt
	}
	if fill.Qty < dustQty {
		return nil, fmt.Errorf("entry %s: no fill obtained: %w", symbol, domain.ErrOrderRejected)
	}
	r.checkSlippage(symbol, domain.SideLong, refPrice, fill)
	return fill, nil
}

// ExecuteExit sells the entire free base balance. Whatever the limit
// leg leaves unfilled is swept with market orders until the balance is
// flat; an exit that cannot complete is an error, never a silent
// residual. Without maker preference the limit leg is skipped and the
// sweeps do all the selling.
func (r *OrderRouter) ExecuteExit(ctx context.Context, symbol string, refPrice float64) (*domain.Fill, error) {
	base := baseAsset(symbol)
	qty, err := r.freeBalance(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("exit %s: fetch balances: %w", symbol, err)
	}
	if qty < dustQty {
		return nil, fmt.Errorf("exit %s: no base balance to sell: %w", symbol, domain.ErrOrderRejected)
	}

	fill := &domain.Fill{}
	if r.cfg.PreferMaker {
		limitPrice := refPrice * (1 + r.cfg.PriceImprovementPct/100)
		fill, err = r.runLimitLeg(ctx, symbol, domain.SideShort, qty, limitPrice)
		if err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < residualAttempts; attempt++ {
		remaining, err := r.freeBalance(ctx, base)
		if err != nil {
			return nil, fmt.Errorf("exit %s: re-check balance: %w", symbol, err)
		}
		if remaining < dustQty {
			r.checkSlippage(symbol, domain.SideShort, refPrice, fill)
			return fill, nil
		}
		r.logger.Info("sweeping exit residual",
			zap.String("symbol", symbol),
			zap.Float64("remaining", remaining),
			zap.Int("attempt", attempt+1))
		mkt, err := r.runMarketLeg(ctx, domain.OrderRequest{
			ClientID: uuid.NewString(),
			Symbol:   symbol,
			Side:     domain.SideShort,
			Type:     domain.OrderTypeMarket,
			Qty:      remaining,
		})
		if err != nil {
			return nil, fmt.Errorf("exit %s: residual sweep: %w", symbol, err)
		}
		fill = mergeFills(fill, mkt)
	}

	remaining, err := r.freeBalance(ctx, base)
	if err == nil && remaining < dustQty {
		r.checkSlippage(symbol, domain.SideShort, refPrice, fill)
		return fill, nil
	}
	return fill, fmt.Errorf("exit %s: residual %.10f still unsold after %d sweeps", symbol, remaining, residualAttempts)
}

func (r *OrderRouter) freeBalance(ctx context.Context, asset string) (float64, error) {
	balances, err := r.exchange.GetBalances(ctx)
	if err != nil {
		return 0, err
	}
	return balances[asset].Free, nil
}

// runLimitLeg places a limit order and polls it until filled or the
// timeout expires, then cancels the remainder. The returned fill covers
// whatever portion executed; Qty is zero when nothing did.
func (r *OrderRouter) runLimitLeg(ctx context.Context, symbol string, side domain.Side, qty, price float64) (*domain.Fill, error) {
	req := domain.OrderRequest{
		ClientID: uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Type:     domain.OrderTypeLimit,
		Qty:      qty,
		Price:    price,
	}
	order, err := r.exchange.PlaceOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("place limit %s %s: %w", side, symbol, err)
	}
	r.logger.Info("limit order placed",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("order_id", order.ID),
		zap.Float64("qty", qty),
		zap.Float64("price", price))

	deadline := time.Now().Add(r.cfg.LimitTimeout)
	for {
		order, err = r.exchange.GetOrder(ctx, symbol, order.ID)
		if err != nil {
			return nil, fmt.Errorf("poll limit order %s: %w", symbol, err)
		}
		if order.Status == domain.OrderStatusFilled {
			return r.fillFromOrder(order), nil
		}
		if order.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			order = r.cancelAndRequery(ctx, symbol, order)
			break
		}
		if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
	return r.fillFromOrder(order), nil
}

// cancelAndRequery cancels a timed-out order and re-queries its final
// state. A cancel rejection usually means the order filled during the
// race, so the re-query result is authoritative either way.
func (r *OrderRouter) cancelAndRequery(ctx context.Context, symbol string, order *domain.Order) *domain.Order {
	if err := r.exchange.CancelOrder(ctx, symbol, order.ID); err != nil {
		r.logger.Warn("cancel rejected, re-querying order",
			zap.String("symbol", symbol),
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
	final, err := r.exchange.GetOrder(ctx, symbol, order.ID)
	if err != nil {
		r.logger.Warn("re-query after cancel failed, using last known state",
			zap.String("symbol", symbol),
			zap.String("order_id", order.ID),
			zap.Error(err))
		return order
	}
	return final
}

// runMarketLeg places a market order and polls it to completion.
func (r *OrderRouter) runMarketLeg(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	order, err := r.exchange.PlaceOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("place market %s %s: %w", req.Side, req.Symbol, err)
	}
	r.logger.Info("market order placed",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("order_id", order.ID))

	for attempt := 0; attempt < r.cfg.MarketPollAttempts; attempt++ {
		order, err = r.exchange.GetOrder(ctx, req.Symbol, order.ID)
		if err != nil {
			return nil, fmt.Errorf("poll market order %s: %w", req.Symbol, err)
		}
		if order.Status.Terminal() {
			return r.fillFromOrder(order), nil
		}
		if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
	return r.fillFromOrder(order), fmt.Errorf("market order %s not terminal after %d polls", order.ID, r.cfg.MarketPollAttempts)
}

func (r *OrderRouter) fillFromOrder(order *domain.Order) *domain.Fill {
	if order == nil || order.FilledQty < dustQty {
		return &domain.Fill{}
	}
	return &domain.Fill{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Qty:      order.FilledQty,
		AvgPrice: order.AvgFillPrice,
		Fee:      order.FilledQty * order.AvgFillPrice * r.cfg.FeePct / 100,
	}
}

func mergeFills(a, b *domain.Fill) *domain.Fill {
	if a == nil || a.Qty < dustQty {
		return b
	}
	if b == nil || b.Qty < dustQty {
		return a
	}
	total := a.Qty + b.Qty
	return &domain.Fill{
		Symbol:   a.Symbol,
		Side:     a.Side,
		Qty:      total,
		AvgPrice: (a.AvgPrice*a.Qty + b.AvgPrice*b.Qty) / total,
		Fee:      a.Fee + b.Fee,
	}
}

// checkSlippage compares the achieved price to the reference price at
// decision time. A breach is logged, never blocked: by the time it is
// known the order is already done.
func (r *OrderRouter) checkSlippage(symbol string, side domain.Side, refPrice float64, fill *domain.Fill) {
	if fill == nil || fill.Qty < dustQty || refPrice <= 0 {
		return
	}
	slippagePct := (fill.AvgPrice - refPrice) / refPrice * 100
	if side == domain.SideShort {
		slippagePct = -slippagePct
	}
	fill.SlippagePct = slippagePct
	if r.cfg.MaxSlippagePct > 0 && slippagePct > r.cfg.MaxSlippagePct {
		r.logger.Warn("slippage above configured cap",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.Float64("slippage_pct", slippagePct),
			zap.Float64("cap_pct", r.cfg.MaxSlippagePct),
			zap.Float64("ref_price", refPrice),
			zap.Float64("fill_price", fill.AvgPrice))
	}
	if math.Abs(slippagePct) > 0 {
		r.logger.Debug("fill slippage",
			zap.String("symbol", symbol),
			zap.Float64("slippage_pct", slippagePct))
	}
}
