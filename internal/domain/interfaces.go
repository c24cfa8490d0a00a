package domain

import "context"

// Exchange is the abstract capability surface the engine needs from an
// exchange. Transport, signing and rate limiting live behind it.
type Exchange interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	GetBalances(ctx context.Context) (map[string]Balance, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrder(ctx context.Context, symbol, orderID string) (*Order, error)
}

// TradeRepository is the append-only ledger for completed trades,
// closed positions and risk session snapshots.
type TradeRepository interface {
	SaveTrade(ctx context.Context, trade *Trade) error
	ListTrades(ctx context.Context, limit int) ([]*Trade, error)
	SaveRiskSnapshot(ctx context.Context, state *RiskState) error
}
