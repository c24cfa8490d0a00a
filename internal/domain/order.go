package domain

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// Terminal reports whether the order can no longer change state.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusExpired
}

// OrderRequest describes a single placement. Exactly one of Qty or
// Notional is set: Qty is a base-asset quantity, Notional a quote-asset
// spend used for market buys.
type OrderRequest struct {
	ClientID string
	Symbol   string
	Side     Side
	Type     OrderType
	Qty      float64
	Notional float64
	Price    float64 // limit price, ignored for market orders
}

// Order is the exchange's view of one placement. Owned by the order
// router for the duration of a single execution; only the fill data
// propagates further.
type Order struct {
	ID           string
	ClientID     string
	Symbol       string
	Side         Side
	Type         OrderType
	Qty          float64
	Notional     float64
	Price        float64
	FilledQty    float64
	AvgFillPrice float64
	Status       OrderStatus
}

// Fill is the confirmed outcome of one router execution, entry or exit.
type Fill struct {
	Symbol      string
	Side        Side
	Qty         float64
	AvgPrice    float64
	Fee         float64 // quote asset
	SlippagePct float64 // signed, vs the pre-trade reference price
}

// Balance is the free/locked holding of one asset.
type Balance struct {
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}
