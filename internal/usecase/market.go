package usecase

import (
	"math"

	"github.com/avbdev/crypto_scalper/internal/config"
	"github.com/avbdev/crypto_scalper/internal/domain"
	"github.com/avbdev/crypto_scalper/internal/indicator"
)

// MarketAnalyzer computes the full indicator set over a candle history.
// It is stateless; each Analyze call derives everything from the
// candles it is given.
type MarketAnalyzer struct {
	cfg config.IndicatorConfig
}

func NewMarketAnalyzer(cfg config.IndicatorConfig) *MarketAnalyzer {
	return &MarketAnalyzer{cfg: cfg}
}

// MarketView holds the latest and previous-bar indicator values. The
// previous values feed cross and slope checks in signal generation.
type MarketView struct {
	Price float64

	RSI     float64
	PrevRSI float64

	EMAFast float64
	EMASlow float64

	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
	BBWidthPct float64
	BBPosition float64

	MACDLine          float64
	MACDSignal        float64
	MACDHistogram     float64
	PrevMACDHistogram float64

	StochK     float64
	StochD     float64
	PrevStochK float64
	PrevStochD float64

	ADX float64
	ATR float64

	VolumeRatio float64
}

// Snapshot converts the view into the serializable form attached to
// signals and surfaced over the API.
func (v *MarketView) Snapshot() domain.IndicatorSnapshot {
	return domain.IndicatorSnapshot{
		Price:         v.Price,
		RSI:           v.RSI,
		EMAFast:       v.EMAFast,
		EMASlow:       v.EMASlow,
		BBUpper:       v.BBUpper,
		BBMiddle:      v.BBMiddle,
		BBLower:       v.BBLower,
		BBWidthPct:    v.BBWidthPct,
		BBPosition:    v.BBPosition,
		MACDLine:      v.MACDLine,
		MACDSignal:    v.MACDSignal,
		MACDHistogram: v.MACDHistogram,
		StochK:        v.StochK,
		StochD:        v.StochD,
		ADX:           v.ADX,
		ATR:           v.ATR,
		VolumeRatio:   v.VolumeRatio,
	}
}

func lastTwo(series []float64) (last, prev float64) {
	last = indicator.Last(series)
	prev = math.NaN()
	if len(series) >= 2 {
		prev = series[len(series)-2]
	}
	return last, prev
}

// Analyze computes every configured indicator for the candle history.
// Any window that cannot be satisfied fails the whole call with
// ErrInsufficientData; the engine skips the symbol for this iteration.
func (a *MarketAnalyzer) Analyze(candles []domain.Candle) (*MarketView, error) {
	closes := domain.Closes(candles)
	highs := domain.Highs(candles)
	lows := domain.Lows(candles)
	volumes := domain.Volumes(candles)

	rsi, err := indicator.RSI(closes, a.cfg.RSIPeriod)
	if err != nil {
		return nil, err
	}
	emaFast, err := indicator.EMA(closes, a.cfg.EMAFastPeriod)
	if err != nil {
		return nil, err
	}
	emaSlow, err := indicator.EMA(closes, a.cfg.EMASlowPeriod)
	if err != nil {
		return nil, err
	}
	bbUpper, bbMiddle, bbLower, err := indicator.Bollinger(closes, a.cfg.BBPeriod, a.cfg.BBStdDev)
	if err != nil {
		return nil, err
	}
	macdLine, macdSignal, macdHist, err := indicator.MACD(closes, a.cfg.MACDFast, a.cfg.MACDSlow, a.cfg.MACDSignal)
	if err != nil {
		return nil, err
	}
	stochK, stochD, err := indicator.Stochastic(highs, lows, closes, a.cfg.StochPeriod, a.cfg.StochSmoothK, a.cfg.StochSmoothD)
	if err != nil {
		return nil, err
	}
	atr, err := indicator.ATR(highs, lows, closes, a.cfg.ATRPeriod)
	if err != nil {
		return nil, err
	}
	adx, _, _, err := indicator.ADX(highs, lows, closes, a.cfg.ADXPeriod)
	if err != nil {
		return nil, err
	}
	volSMA, err := indicator.SMA(volumes, a.cfg.VolumeSMAPeriod)
	if err != nil {
		return nil, err
	}

	v := &MarketView{Price: indicator.Last(closes)}
	v.RSI, v.PrevRSI = lastTwo(rsi)
	v.EMAFast = indicator.Last(emaFast)
	v.EMASlow = indicator.Last(emaSlow)
	v.BBUpper = indicator.Last(bbUpper)
	v.BBMiddle = indicator.Last(bbMiddle)
	v.BBLower = indicator.Last(bbLower)
	v.BBWidthPct = indicator.BBWidthPct(v.BBUpper, v.BBMiddle, v.BBLower)
	v.BBPosition = indicator.BBPosition(v.Price, v.BBUpper, v.BBMiddle, v.BBLower)
	v.MACDLine = indicator.Last(macdLine)
	v.MACDSignal = indicator.Last(macdSignal)
	v.MACDHistogram, v.PrevMACDHistogram = lastTwo(macdHist)
	v.StochK, v.PrevStochK = lastTwo(stochK)
	v.StochD, v.PrevStochD = lastTwo(stochD)
	v.ADX = indicator.Last(adx)
	v.ATR = indicator.Last(atr)

	if sma := indicator.Last(volSMA); sma > 0 {
		v.VolumeRatio = indicator.Last(volumes) / sma
	} else {
		v.VolumeRatio = 1
	}
	return v, nil
}
