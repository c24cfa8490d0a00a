package indicator

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avbdev/crypto_scalper/internal/domain"
)

func TestSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	out, err := SMA(prices, 3)
	require.NoError(t, err)
	require.Len(t, out, 5)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-9)
	assert.InDelta(t, 3.0, out[3], 1e-9)
	assert.InDelta(t, 4.0, out[4], 1e-9)
}

func TestSMAInsufficientData(t *testing.T) {
	_, err := SMA([]float64{1, 2}, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestEMASeededAtFirstPrice(t *testing.T) {
	prices := []float64{10, 10, 10, 10}
	out, err := EMA(prices, 3)
	require.NoError(t, err)
	for i, v := range out {
		assert.InDelta(t, 10.0, v, 1e-9, "index %d", i)
	}
}

func TestEMAConvergesTowardPrice(t *testing.T) {
	prices := make([]float64, 50)
	for i := range prices {
		if i < 10 {
			prices[i] = 100
		} else {
			prices[i] = 200
		}
	}
	out, err := EMA(prices, 9)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, out[49], 0.5)
	assert.Greater(t, out[49], out[12])
}

func TestRSIAllGainsIs100(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	out, err := RSI(prices, 5)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, out[7], 1e-9)
}

func TestRSIBalancedIs50(t *testing.T) {
	// alternating +1/-1 deltas over an even window
	prices := []float64{10, 11, 10, 11, 10, 11, 10}
	out, err := RSI(prices, 6)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, out[6], 1e-9)
}

func TestRSIInsufficientData(t *testing.T) {
	_, err := RSI([]float64{1, 2, 3}, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestBollingerBands(t *testing.T) {
	prices := []float64{2, 4, 6, 8, 10}
	upper, middle, lower, err := Bollinger(prices, 5, 2)
	require.NoError(t, err)
	// mean=6, sample sd=sqrt(40/4)=sqrt(10)
	sd := math.Sqrt(10)
	assert.InDelta(t, 6.0, middle[4], 1e-9)
	assert.InDelta(t, 6+2*sd, upper[4], 1e-9)
	assert.InDelta(t, 6-2*sd, lower[4], 1e-9)
	assert.True(t, math.IsNaN(middle[3]))
}

func TestMACDFlatSeriesIsZero(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100
	}
	line, signal, hist, err := MACD(prices, 12, 26, 9)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, line[59], 1e-9)
	assert.InDelta(t, 0.0, signal[59], 1e-9)
	assert.InDelta(t, 0.0, hist[59], 1e-9)
}

func TestMACDPositiveInUptrend(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	line, _, _, err := MACD(prices, 12, 26, 9)
	require.NoError(t, err)
	assert.Greater(t, line[59], 0.0)
}

func TestStochasticAtExtremes(t *testing.T) {
	n := 20
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		// strictly rising market closing at the top of each bar
		high[i] = 100 + float64(i)
		low[i] = 99 + float64(i)
		closes[i] = high[i]
	}
	k, d, err := Stochastic(high, low, closes, 14, 3, 3)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, k[n-1], 1e-6)
	assert.InDelta(t, 100.0, d[n-1], 1e-6)
}

func TestStochasticInsufficientData(t *testing.T) {
	s := []float64{1, 2, 3}
	_, _, err := Stochastic(s, s, s, 14, 3, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestATRConstantRange(t *testing.T) {
	n := 20
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		high[i] = 102
		low[i] = 100
		closes[i] = 101
	}
	out, err := ATR(high, low, closes, 14)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, out[n-1], 1e-9)
}

func TestADXTrendingAboveRanging(t *testing.T) {
	n := 60
	trendHigh := make([]float64, n)
	trendLow := make([]float64, n)
	trendClose := make([]float64, n)
	flatHigh := make([]float64, n)
	flatLow := make([]float64, n)
	flatClose := make([]float64, n)
	for i := 0; i < n; i++ {
		trendHigh[i] = 101 + float64(i)
		trendLow[i] = 100 + float64(i)
		trendClose[i] = 100.5 + float64(i)
		// alternate up and down bars
		off := float64(i % 2)
		flatHigh[i] = 101 + off
		flatLow[i] = 100 + off
		flatClose[i] = 100.5 + off
	}
	trendADX, plusDI, minusDI, err := ADX(trendHigh, trendLow, trendClose, 14)
	require.NoError(t, err)
	flatADX, _, _, err := ADX(flatHigh, flatLow, flatClose, 14)
	require.NoError(t, err)

	assert.Greater(t, trendADX[n-1], flatADX[n-1])
	assert.Greater(t, plusDI[n-1], minusDI[n-1])
	assert.Greater(t, trendADX[n-1], 25.0)
}

func TestBBWidthPct(t *testing.T) {
	assert.InDelta(t, 4.0, BBWidthPct(102, 100, 98), 1e-9)
	assert.True(t, math.IsNaN(BBWidthPct(math.NaN(), 100, 98)))
}

func TestBBPositionScale(t *testing.T) {
	upper, middle, lower := 110.0, 100.0, 90.0
	assert.InDelta(t, 0.0, BBPosition(100, upper, middle, lower), 1e-9)
	assert.InDelta(t, -100.0, BBPosition(90, upper, middle, lower), 1e-9)
	assert.InDelta(t, 100.0, BBPosition(110, upper, middle, lower), 1e-9)
	assert.InDelta(t, -200.0, BBPosition(50, upper, middle, lower), 1e-9)
	assert.InDelta(t, 0.0, BBPosition(105, 100, 100, 100), 1e-9)
}

func TestLast(t *testing.T) {
	assert.InDelta(t, 3.0, Last([]float64{1, 2, 3}), 1e-9)
	assert.True(t, math.IsNaN(Last(nil)))
}
