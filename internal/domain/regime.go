package domain

// MarketRegime classifies the current directional state of a market.
type MarketRegime string

const (
	RegimeUptrend   MarketRegime = "UPTREND"
	RegimeDowntrend MarketRegime = "DOWNTREND"
	RegimeRanging   MarketRegime = "RANGING"
	RegimeUnknown   MarketRegime = "UNKNOWN"
)

func (r MarketRegime) String() string { return string(r) }

// Tradable reports whether entries may be considered in this regime.
// UNKNOWN always means "no entry".
func (r MarketRegime) Tradable() bool {
	return r == RegimeUptrend || r == RegimeDowntrend || r == RegimeRanging
}
