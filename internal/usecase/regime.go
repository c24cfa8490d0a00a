package usecase

import (
	"math"
	"sync"
	"time"

	"github.com/avbdev/crypto_scalper/internal/domain"
	"github.com/avbdev/crypto_scalper/internal/indicator"
)

// RegimeDetector classifies the market into UPTREND, DOWNTREND or
// RANGING from the fast/slow EMA relationship, and remembers the last
// classification per symbol so callers can detect flips.
type RegimeDetector struct {
	fastPeriod    int
	slowPeriod    int
	divergencePct float64

	mu         sync.Mutex
	lastRegime map[string]domain.MarketRegime
	lastChange map[string]time.Time

	timeNow func() time.Time
}

func NewRegimeDetector(fastPeriod, slowPeriod int, divergencePct float64) *RegimeDetector {
	return &RegimeDetector{
		fastPeriod:    fastPeriod,
		slowPeriod:    slowPeriod,
		divergencePct: divergencePct,
		lastRegime:    make(map[string]domain.MarketRegime),
		lastChange:    make(map[string]time.Time),
		timeNow:       time.Now,
	}
}

// ClassifyRegime applies the regime rules to a single bar. Rules are
// checked in order and the first match wins.
func ClassifyRegime(emaFast, emaSlow, close, divergenceThresholdPct float64) domain.MarketRegime {
	if emaSlow == 0 || math.IsNaN(emaFast) || math.IsNaN(emaSlow) || math.IsNaN(close) {
		return domain.RegimeUnknown
	}
	divergence := math.Abs(emaFast-emaSlow) / emaSlow * 100
	if divergence >= divergenceThresholdPct {
		if emaFast > emaSlow && close > emaSlow {
			return domain.RegimeUptrend
		}
		if emaFast < emaSlow && close < emaSlow {
			return domain.RegimeDowntrend
		}
	}
	return domain.RegimeRanging
}

// Detect classifies the latest bar of the candle history. It returns
// RegimeUnknown with ErrInsufficientData when the slow EMA window is
// not yet satisfied.
func (d *RegimeDetector) Detect(symbol string, candles []domain.Candle) (domain.MarketRegime, error) {
	closes := domain.Closes(candles)
	emaFast, err := indicator.EMA(closes, d.fastPeriod)
	if err != nil {
		return domain.RegimeUnknown, err
	}
	emaSlow, err := indicator.EMA(closes, d.slowPeriod)
	if err != nil {
		return domain.RegimeUnknown, err
	}
	regime := ClassifyRegime(indicator.Last(emaFast), indicator.Last(emaSlow), indicator.Last(closes), d.divergencePct)
	d.record(symbol, regime)
	return regime, nil
}

func (d *RegimeDetector) record(symbol string, regime domain.MarketRegime) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, seen := d.lastRegime[symbol]
	if !seen || prev != regime {
		d.lastRegime[symbol] = regime
		d.lastChange[symbol] = d.timeNow()
	}
}

// Current returns the last classified regime for a symbol.
func (d *RegimeDetector) Current(symbol string) domain.MarketRegime {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.lastRegime[symbol]; ok {
		return r
	}
	return domain.RegimeUnknown
}

// ChangedWithin reports whether the symbol's regime flipped within the
// given window. A fresh flip is treated as extra confirmation when the
// new regime favors the trade direction.
func (d *RegimeDetector) ChangedWithin(symbol string, window time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	at, ok := d.lastChange[symbol]
	if !ok {
		return false
	}
	return d.timeNow().Sub(at) <= window
}
