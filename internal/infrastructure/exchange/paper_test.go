package exchange

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/avbdev/crypto_scalper/internal/domain"
)

type fixedFeed struct {
	price float64
	err   error
}

func (f *fixedFeed) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Candle, limit)
	for i := range out {
		out[i] = domain.Candle{Open: f.price, High: f.price, Low: f.price, Close: f.price, Volume: 1}
	}
	return out, nil
}

func newTestExchange(price float64) (*PaperExchange, *fixedFeed) {
	feed := &fixedFeed{price: price}
	return NewPaperExchange(feed, "USDT", 10000, 0.1, 0.02), feed
}

func TestMarketBuyMovesBalances(t *testing.T) {
	ex, _ := newTestExchange(100)
	ctx := context.Background()

	order, err := ex.PlaceOrder(ctx, domain.OrderRequest{
		ClientID: "c1", Symbol: "BTC/USDT", Side: domain.SideLong,
		Type: domain.OrderTypeMarket, Notional: 1000,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if order.Status != domain.OrderStatusFilled {
		t.Fatalf("market order not filled: %+v", order)
	}
	wantPrice := 100 * 1.0002 // taker slippage
	if math.Abs(order.AvgFillPrice-wantPrice) > 1e-9 {
		t.Errorf("fill price = %.6f, want %.6f", order.AvgFillPrice, wantPrice)
	}

	balances, _ := ex.GetBalances(ctx)
	if balances["BTC"].Free <= 0 {
		t.Errorf("base not credited: %+v", balances)
	}
	wantQuote := 10000 - 1000 - 1000*0.001
	if math.Abs(balances["USDT"].Free-wantQuote) > 1e-6 {
		t.Errorf("quote = %.4f, want %.4f", balances["USDT"].Free, wantQuote)
	}
}

func TestLimitBuyRestsUntilMarketable(t *testing.T) {
	ex, feed := newTestExchange(100)
	ctx := context.Background()

	order, err := ex.PlaceOrder(ctx, domain.OrderRequest{
		ClientID: "c1", Symbol: "BTC/USDT", Side: domain.SideLong,
		Type: domain.OrderTypeLimit, Qty: 1, Price: 99,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if order.Status != domain.OrderStatusNew {
		t.Fatalf("limit below market must rest, got %v", order.Status)
	}

	// market drops through the limit
	feed.price = 98.5
	order, err = ex.GetOrder(ctx, "BTC/USDT", order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if order.Status != domain.OrderStatusFilled || order.AvgFillPrice != 99 {
		t.Errorf("resting limit should fill at its price: %+v", order)
	}
}

func TestCancelRestingOrder(t *testing.T) {
	ex, _ := newTestExchange(100)
	ctx := context.Background()

	order, _ := ex.PlaceOrder(ctx, domain.OrderRequest{
		ClientID: "c1", Symbol: "BTC/USDT", Side: domain.SideLong,
		Type: domain.OrderTypeLimit, Qty: 1, Price: 90,
	})
	if err := ex.CancelOrder(ctx, "BTC/USDT", order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	order, _ = ex.GetOrder(ctx, "BTC/USDT", order.ID)
	if order.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %v, want CANCELLED", order.Status)
	}

	// cancelling a filled order is rejected
	filled, _ := ex.PlaceOrder(ctx, domain.OrderRequest{
		ClientID: "c2", Symbol: "BTC/USDT", Side: domain.SideLong,
		Type: domain.OrderTypeMarket, Notional: 100,
	})
	if err := ex.CancelOrder(ctx, "BTC/USDT", filled.ID); !errors.Is(err, domain.ErrOrderRejected) {
		t.Errorf("expected rejection cancelling a filled order, got %v", err)
	}
}

func TestSellRequiresBaseBalance(t *testing.T) {
	ex, _ := newTestExchange(100)
	ctx := context.Background()

	_, err := ex.PlaceOrder(ctx, domain.OrderRequest{
		ClientID: "c1", Symbol: "BTC/USDT", Side: domain.SideShort,
		Type: domain.OrderTypeMarket, Qty: 1,
	})
	if !errors.Is(err, domain.ErrOrderRejected) {
		t.Fatalf("expected ErrOrderRejected, got %v", err)
	}
}

func TestBuySellRoundTrip(t *testing.T) {
	ex, _ := newTestExchange(100)
	ctx := context.Background()

	buy, err := ex.PlaceOrder(ctx, domain.OrderRequest{
		ClientID: "c1", Symbol: "BTC/USDT", Side: domain.SideLong,
		Type: domain.OrderTypeMarket, Notional: 1000,
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	_, err = ex.PlaceOrder(ctx, domain.OrderRequest{
		ClientID: "c2", Symbol: "BTC/USDT", Side: domain.SideShort,
		Type: domain.OrderTypeMarket, Qty: buy.FilledQty,
	})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	balances, _ := ex.GetBalances(ctx)
	if balances["BTC"].Free > 1e-12 {
		t.Errorf("base residual after round trip: %v", balances["BTC"].Free)
	}
	// fees and slippage cost money on both legs
	if balances["USDT"].Free >= 10000 {
		t.Errorf("round trip should not be free: %.4f", balances["USDT"].Free)
	}
}

func TestDataUnavailable(t *testing.T) {
	ex, feed := newTestExchange(100)
	feed.err = errors.New("feed down")

	_, err := ex.GetCandles(context.Background(), "BTC/USDT", "1m", 10)
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestSyntheticFeedAdvances(t *testing.T) {
	feed := NewSyntheticFeed(30000, 0.1, 42)
	ctx := context.Background()

	first, err := feed.Candles(ctx, "BTC/USDT", "1m", 50)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(first) != 50 {
		t.Fatalf("len = %d, want 50", len(first))
	}
	second, _ := feed.Candles(ctx, "BTC/USDT", "1m", 50)
	if second[len(second)-1].Time <= first[len(first)-1].Time {
		t.Errorf("feed must advance one bar per call")
	}
	for _, c := range second {
		if c.High < c.Close && c.High < c.Open {
			t.Fatalf("invalid candle %+v", c)
		}
		if c.Low > c.Close && c.Low > c.Open {
			t.Fatalf("invalid candle %+v", c)
		}
	}
}
