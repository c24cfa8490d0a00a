package exchange

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/avbdev/crypto_scalper/internal/domain"
)

// SyntheticFeed generates a random-walk candle stream per symbol. It
// exists so the paper setup can run end to end without venue
// connectivity; each Candles call advances the walk by one bar.
type SyntheticFeed struct {
	startPrice float64
	volPct     float64

	mu      sync.Mutex
	rng     *rand.Rand
	history map[string][]domain.Candle
}

func NewSyntheticFeed(startPrice, volPct float64, seed int64) *SyntheticFeed {
	return &SyntheticFeed{
		startPrice: startPrice,
		volPct:     volPct,
		rng:        rand.New(rand.NewSource(seed)),
		history:    make(map[string][]domain.Candle),
	}
}

func (f *SyntheticFeed) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hist := f.history[symbol]
	if len(hist) == 0 {
		hist = f.seedHistory(limit)
	} else {
		hist = append(hist, f.nextCandle(hist[len(hist)-1]))
		if keep := limit * 4; keep > 0 && len(hist) > keep {
			hist = hist[len(hist)-keep:]
		}
	}
	f.history[symbol] = hist

	if len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	out := make([]domain.Candle, len(hist))
	copy(out, hist)
	return out, nil
}

func (f *SyntheticFeed) seedHistory(n int) []domain.Candle {
	if n < 2 {
		n = 2
	}
	hist := make([]domain.Candle, 0, n)
	last := domain.Candle{
		Time:   time.Now().Add(-time.Duration(n) * time.Minute).UnixMilli(),
		Open:   f.startPrice,
		High:   f.startPrice,
		Low:    f.startPrice,
		Close:  f.startPrice,
		Volume: 1,
	}
	hist = append(hist, last)
	for i := 1; i < n; i++ {
		last = f.nextCandle(last)
		hist = append(hist, last)
	}
	return hist
}

func (f *SyntheticFeed) nextCandle(prev domain.Candle) domain.Candle {
	step := f.rng.NormFloat64() * f.volPct / 100
	open := prev.Close
	closePx := open * (1 + step)
	high := open
	low := open
	if closePx > high {
		high = closePx
	}
	if closePx < low {
		low = closePx
	}
	spread := open * f.volPct / 100 * 0.5
	return domain.Candle{
		Time:   prev.Time + time.Minute.Milliseconds(),
		Open:   open,
		High:   high + f.rng.Float64()*spread,
		Low:    low - f.rng.Float64()*spread,
		Close:  closePx,
		Volume: 1 + f.rng.Float64()*2,
	}
}
