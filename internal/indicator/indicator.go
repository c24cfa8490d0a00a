// Package indicator provides pure technical indicator functions over
// ordered price series. No side effects, no hidden state.
//
// All series functions return slices aligned to the input length, with
// math.NaN() at indices before the first full window. When the input is
// shorter than the required window they fail with
// domain.ErrInsufficientData; callers treat that as "skip this
// iteration", never as fatal.
package indicator

import (
	"fmt"
	"math"

	"github.com/avbdev/crypto_scalper/internal/domain"
)

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func insufficient(name string, have, need int) error {
	return fmt.Errorf("%s: have %d candles, need %d: %w", name, have, need, domain.ErrInsufficientData)
}

// SMA returns the period-length simple moving average, aligned to prices.
func SMA(prices []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("sma: invalid period %d", period)
	}
	if len(prices) < period {
		return nil, insufficient("sma", len(prices), period)
	}
	out := nanSlice(len(prices))
	var sum float64
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// EMA returns the exponential moving average with smoothing
// 2/(period+1), seeded at the first price.
func EMA(prices []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema: invalid period %d", period)
	}
	if len(prices) < period {
		return nil, insufficient("ema", len(prices), period)
	}
	out := make([]float64, len(prices))
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = out[i-1] + alpha*(prices[i]-out[i-1])
	}
	return out, nil
}

// RSI returns the relative strength index using a simple rolling
// average of gains and losses over the period.
func RSI(prices []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rsi: invalid period %d", period)
	}
	if len(prices) < period+1 {
		return nil, insufficient("rsi", len(prices), period+1)
	}
	out := nanSlice(len(prices))
	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	var gainSum, lossSum float64
	for i := 1; i < len(prices); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i >= period {
			avgLoss := lossSum / float64(period)
			if avgLoss == 0 {
				out[i] = 100
				continue
			}
			rs := (gainSum / float64(period)) / avgLoss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out, nil
}

// Bollinger returns the upper, middle and lower bands using a rolling
// mean and sample standard deviation.
func Bollinger(prices []float64, period int, stdDev float64) (upper, middle, lower []float64, err error) {
	if period <= 1 {
		return nil, nil, nil, fmt.Errorf("bollinger: invalid period %d", period)
	}
	if len(prices) < period {
		return nil, nil, nil, insufficient("bollinger", len(prices), period)
	}
	upper = nanSlice(len(prices))
	middle = nanSlice(len(prices))
	lower = nanSlice(len(prices))
	for i := period - 1; i < len(prices); i++ {
		window := prices[i-period+1 : i+1]
		var sum float64
		for _, p := range window {
			sum += p
		}
		mean := sum / float64(period)
		var variance float64
		for _, p := range window {
			variance += (p - mean) * (p - mean)
		}
		sd := math.Sqrt(variance / float64(period-1))
		middle[i] = mean
		upper[i] = mean + stdDev*sd
		lower[i] = mean - stdDev*sd
	}
	return upper, middle, lower, nil
}

// MACD returns the MACD line, signal line and histogram.
func MACD(prices []float64, fastPeriod, slowPeriod, signalPeriod int) (line, signal, histogram []float64, err error) {
	if fastPeriod <= 0 || slowPeriod <= fastPeriod || signalPeriod <= 0 {
		return nil, nil, nil, fmt.Errorf("macd: invalid periods %d/%d/%d", fastPeriod, slowPeriod, signalPeriod)
	}
	if len(prices) < slowPeriod+signalPeriod {
		return nil, nil, nil, insufficient("macd", len(prices), slowPeriod+signalPeriod)
	}
	emaFast, err := EMA(prices, fastPeriod)
	if err != nil {
		return nil, nil, nil, err
	}
	emaSlow, err := EMA(prices, slowPeriod)
	if err != nil {
		return nil, nil, nil, err
	}
	line = make([]float64, len(prices))
	for i := range prices {
		line[i] = emaFast[i] - emaSlow[i]
	}
	signal, err = EMA(line, signalPeriod)
	if err != nil {
		return nil, nil, nil, err
	}
	histogram = make([]float64, len(prices))
	for i := range prices {
		histogram[i] = line[i] - signal[i]
	}
	return line, signal, histogram, nil
}

// Stochastic returns the smoothed %K and %D lines.
func Stochastic(high, low, close []float64, period, smoothK, smoothD int) (k, d []float64, err error) {
	if period <= 0 || smoothK <= 0 || smoothD <= 0 {
		return nil, nil, fmt.Errorf("stochastic: invalid periods %d/%d/%d", period, smoothK, smoothD)
	}
	need := period + smoothK + smoothD - 2
	if len(close) < need || len(high) < need || len(low) < need {
		return nil, nil, insufficient("stochastic", len(close), need)
	}
	raw := nanSlice(len(close))
	for i := period - 1; i < len(close); i++ {
		hh := high[i-period+1]
		ll := low[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if high[j] > hh {
				hh = high[j]
			}
			if low[j] < ll {
				ll = low[j]
			}
		}
		if hh == ll {
			raw[i] = 50 // flat window, undefined %K
			continue
		}
		raw[i] = 100 * (close[i] - ll) / (hh - ll)
	}
	k = rollingMeanNaN(raw, smoothK)
	d = rollingMeanNaN(k, smoothD)
	return k, d, nil
}

// rollingMeanNaN averages the trailing window, emitting NaN until the
// window holds no NaN inputs.
func rollingMeanNaN(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	for i := window - 1; i < len(values); i++ {
		var sum float64
		valid := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if valid {
			out[i] = sum / float64(window)
		}
	}
	return out
}

func trueRange(high, low, close []float64, i int) float64 {
	tr := high[i] - low[i]
	if i == 0 {
		return tr
	}
	if v := math.Abs(high[i] - close[i-1]); v > tr {
		tr = v
	}
	if v := math.Abs(low[i] - close[i-1]); v > tr {
		tr = v
	}
	return tr
}

// ATR returns the average true range using a rolling mean of TR.
func ATR(high, low, close []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("atr: invalid period %d", period)
	}
	if len(close) < period+1 {
		return nil, insufficient("atr", len(close), period+1)
	}
	tr := make([]float64, len(close))
	for i := range close {
		tr[i] = trueRange(high, low, close, i)
	}
	out := nanSlice(len(close))
	var sum float64
	// skip tr[0]: no prior close, the bar range alone is not comparable
	for i := 1; i < len(tr); i++ {
		sum += tr[i]
		if i > period {
			sum -= tr[i-period]
		}
		if i >= period {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// ADX returns the average directional index with +DI and -DI,
// EMA-smoothed over the period.
func ADX(high, low, close []float64, period int) (adx, plusDI, minusDI []float64, err error) {
	if period <= 0 {
		return nil, nil, nil, fmt.Errorf("adx: invalid period %d", period)
	}
	if len(close) < period+1 {
		return nil, nil, nil, insufficient("adx", len(close), period+1)
	}
	n := len(close)
	alpha := 2.0 / (float64(period) + 1.0)

	plusDI = nanSlice(n)
	minusDI = nanSlice(n)
	adx = nanSlice(n)

	var smTR, smPlusDM, smMinusDM, smDX float64
	for i := 1; i < n; i++ {
		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]
		var plusDM, minusDM float64
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		tr := trueRange(high, low, close, i)

		if i == 1 {
			smTR, smPlusDM, smMinusDM = tr, plusDM, minusDM
		} else {
			smTR += alpha * (tr - smTR)
			smPlusDM += alpha * (plusDM - smPlusDM)
			smMinusDM += alpha * (minusDM - smMinusDM)
		}
		if smTR == 0 {
			continue
		}
		pdi := 100 * smPlusDM / smTR
		mdi := 100 * smMinusDM / smTR
		var dx float64
		if pdi+mdi > 0 {
			dx = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
		}
		if i == 1 {
			smDX = dx
		} else {
			smDX += alpha * (dx - smDX)
		}
		if i >= period {
			plusDI[i] = pdi
			minusDI[i] = mdi
			adx[i] = smDX
		}
	}
	return adx, plusDI, minusDI, nil
}

// BBWidthPct returns the band width as a percentage of the middle band.
func BBWidthPct(upper, middle, lower float64) float64 {
	if middle == 0 || math.IsNaN(upper) || math.IsNaN(middle) || math.IsNaN(lower) {
		return math.NaN()
	}
	return (upper - lower) / middle * 100
}

// BBPosition returns where price sits inside the bands on a -200..+200
// scale: 0 at the middle band, -100 at the lower band, +100 at the
// upper band.
func BBPosition(price, upper, middle, lower float64) float64 {
	if math.IsNaN(price) || math.IsNaN(upper) || math.IsNaN(middle) || math.IsNaN(lower) {
		return 0
	}
	halfWidth := (upper - lower) / 2
	if math.Abs(halfWidth) < 1e-10 {
		return 0
	}
	pos := (price - middle) / halfWidth * 100
	return math.Max(-200, math.Min(200, pos))
}

// Last returns the final value of a series, or NaN for an empty one.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
