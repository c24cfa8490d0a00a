// Package exchange provides implementations of the domain Exchange
// interface. The paper exchange simulates fills against a price feed so
// the whole engine can run without touching a venue.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/avbdev/crypto_scalper/internal/domain"
)

// PriceFeed supplies candle history for a symbol. The last candle's
// close is treated as the current market price.
type PriceFeed interface {
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error)
}

// PaperExchange keeps balances and orders in memory and fills against
// the feed price. Marketable limit orders fill immediately; resting
// ones are re-checked on every poll, so a moving market can still fill
// them before the router gives up.
type PaperExchange struct {
	feed        PriceFeed
	quoteAsset  string
	feePct      float64
	slippagePct float64

	mu       sync.Mutex
	balances map[string]domain.Balance
	orders   map[string]*domain.Order
}

func NewPaperExchange(feed PriceFeed, quoteAsset string, initialQuote, feePct, slippagePct float64) *PaperExchange {
	return &PaperExchange{
		feed:        feed,
		quoteAsset:  quoteAsset,
		feePct:      feePct,
		slippagePct: slippagePct,
		balances: map[string]domain.Balance{
			quoteAsset: {Free: initialQuote},
		},
		orders: make(map[string]*domain.Order),
	}
}

func (p *PaperExchange) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	candles, err := p.feed.Candles(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrDataUnavailable)
	}
	return candles, nil
}

func (p *PaperExchange) GetBalances(ctx context.Context) (map[string]domain.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]domain.Balance, len(p.balances))
	for asset, b := range p.balances {
		out[asset] = b
	}
	return out, nil
}

func (p *PaperExchange) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	price, err := p.lastPrice(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	order := &domain.Order{
		ID:       uuid.NewString(),
		ClientID: req.ClientID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     req.Type,
		Qty:      req.Qty,
		Notional: req.Notional,
		Price:    req.Price,
		Status:   domain.OrderStatusNew,
	}
	if err := p.validateLocked(order); err != nil {
		return nil, err
	}
	p.orders[order.ID] = order
	p.tryFillLocked(order, price)
	return copyOrder(order), nil
}

func (p *PaperExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("cancel %s: unknown order: %w", orderID, domain.ErrOrderRejected)
	}
	if order.Status == domain.OrderStatusFilled {
		return fmt.Errorf("cancel %s: already filled: %w", orderID, domain.ErrOrderRejected)
	}
	if order.Status.Terminal() {
		return nil
	}
	order.Status = domain.OrderStatusCancelled
	return nil
}

func (p *PaperExchange) GetOrder(ctx context.Context, symbol, orderID string) (*domain.Order, error) {
	price, err := p.lastPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("get order %s: unknown order: %w", orderID, domain.ErrOrderRejected)
	}
	if !order.Status.Terminal() {
		p.tryFillLocked(order, price)
	}
	return copyOrder(order), nil
}

func (p *PaperExchange) lastPrice(ctx context.Context, symbol string) (float64, error) {
	candles, err := p.feed.Candles(ctx, symbol, "1m", 1)
	if err != nil || len(candles) == 0 {
		return 0, fmt.Errorf("no price for %s: %w", symbol, domain.ErrDataUnavailable)
	}
	return candles[len(candles)-1].Close, nil
}

func (p *PaperExchange) validateLocked(order *domain.Order) error {
	if order.Qty <= 0 && order.Notional <= 0 {
		return fmt.Errorf("order without qty or notional: %w", domain.ErrOrderRejected)
	}
	base := baseOf(order.Symbol)
	switch order.Side {
	case domain.SideLong:
		need := order.Notional
		if need == 0 {
			need = order.Qty * order.Price
		}
		need *= 1 + p.feePct/100
		if p.balances[p.quoteAsset].Free < need {
			return fmt.Errorf("insufficient %s for buy of %s: %w", p.quoteAsset, order.Symbol, domain.ErrOrderRejected)
		}
	case domain.SideShort:
		if p.balances[base].Free < order.Qty {
			return fmt.Errorf("insufficient %s for sell: %w", base, domain.ErrOrderRejected)
		}
	default:
		return fmt.Errorf("unknown side %q: %w", order.Side, domain.ErrOrderRejected)
	}
	return nil
}

// tryFillLocked fills the order if it is marketable at the current
// price. Market orders always fill, with simulated slippage against the
// taker.
func (p *PaperExchange) tryFillLocked(order *domain.Order, price float64) {
	var fillPrice float64
	switch order.Type {
	case domain.OrderTypeMarket:
		if order.Side == domain.SideLong {
			fillPrice = price * (1 + p.slippagePct/100)
		} else {
			fillPrice = price * (1 - p.slippagePct/100)
		}
	case domain.OrderTypeLimit:
		if order.Side == domain.SideLong && order.Price >= price {
			fillPrice = order.Price
		} else if order.Side == domain.SideShort && order.Price <= price {
			fillPrice = order.Price
		} else {
			return // resting
		}
	default:
		return
	}

	qty := order.Qty
	if qty == 0 {
		qty = order.Notional / fillPrice
	}
	base := baseOf(order.Symbol)
	notional := qty * fillPrice
	fee := notional * p.feePct / 100

	switch order.Side {
	case domain.SideLong:
		quote := p.balances[p.quoteAsset]
		quote.Free -= notional + fee
		p.balances[p.quoteAsset] = quote
		b := p.balances[base]
		b.Free += qty
		p.balances[base] = b
	case domain.SideShort:
		b := p.balances[base]
		b.Free -= qty
		p.balances[base] = b
		quote := p.balances[p.quoteAsset]
		quote.Free += notional - fee
		p.balances[p.quoteAsset] = quote
	}

	order.FilledQty = qty
	order.AvgFillPrice = fillPrice
	order.Status = domain.OrderStatusFilled
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	return &c
}

func baseOf(symbol string) string {
	if i := strings.Index(symbol, "/"); i > 0 {
		return symbol[:i]
	}
	return symbol
}
