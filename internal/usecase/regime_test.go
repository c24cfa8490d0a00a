package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/avbdev/crypto_scalper/internal/domain"
)

func TestClassifyRegime(t *testing.T) {
	tests := []struct {
		name     string
		emaFast  float64
		emaSlow  float64
		close    float64
		expected domain.MarketRegime
	}{
		{"uptrend", 105, 100, 106, domain.RegimeUptrend},
		{"downtrend", 95, 100, 94, domain.RegimeDowntrend},
		{"diverged but close below slow ema", 105, 100, 99, domain.RegimeRanging},
		{"diverged down but close above slow ema", 95, 100, 101, domain.RegimeRanging},
		{"no divergence", 100.1, 100, 101, domain.RegimeRanging},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyRegime(tt.emaFast, tt.emaSlow, tt.close, 0.3)
			if got != tt.expected {
				t.Errorf("ClassifyRegime() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDetectInsufficientData(t *testing.T) {
	d := NewRegimeDetector(9, 21, 0.3)
	candles := make([]domain.Candle, 5)
	for i := range candles {
		candles[i] = domain.Candle{Close: 100}
	}
	regime, err := d.Detect("BTC/USDT", candles)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if regime != domain.RegimeUnknown {
		t.Errorf("expected UNKNOWN, got %v", regime)
	}
}

func TestDetectTracksFlips(t *testing.T) {
	d := NewRegimeDetector(9, 21, 0.3)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.timeNow = func() time.Time { return now }

	// strongly rising closes push the fast EMA above the slow one
	candles := make([]domain.Candle, 40)
	for i := range candles {
		candles[i] = domain.Candle{Close: 100 + float64(i)*2}
	}
	regime, err := d.Detect("BTC/USDT", candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if regime != domain.RegimeUptrend {
		t.Fatalf("expected UPTREND, got %v", regime)
	}
	if d.Current("BTC/USDT") != domain.RegimeUptrend {
		t.Errorf("Current() should return last detected regime")
	}
	if !d.ChangedWithin("BTC/USDT", time.Minute) {
		t.Errorf("first classification should count as a fresh flip")
	}

	// same regime again later: flip timestamp must not move
	now = now.Add(5 * time.Minute)
	if _, err := d.Detect("BTC/USDT", candles); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ChangedWithin("BTC/USDT", time.Minute) {
		t.Errorf("unchanged regime must not refresh the flip timestamp")
	}
}
