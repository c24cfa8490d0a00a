package usecase

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/avbdev/crypto_scalper/internal/config"
	"github.com/avbdev/crypto_scalper/internal/domain"
)

// SignalService decides when to enter and when to exit. Entries go
// through three stages: hard gates (cooldown, hourly cap, volatility
// window), a per-regime structural gate, and an additive confirmation
// score. Exits are checked in strict priority order so that a bar which
// qualifies for several exits always reports the most protective one.
type SignalService struct {
	cfg     config.SignalConfig
	regimes *RegimeDetector

	mu         sync.Mutex
	entryTimes map[string][]time.Time

	timeNow func() time.Time
}

func NewSignalService(cfg config.SignalConfig, regimes *RegimeDetector) *SignalService {
	return &SignalService{
		cfg:        cfg,
		regimes:    regimes,
		entryTimes: make(map[string][]time.Time),
		timeNow:    time.Now,
	}
}

// Evaluate runs the full entry pipeline for one symbol. It returns nil
// and a human-readable reason when no entry fires.
func (s *SignalService) Evaluate(symbol string, regime domain.MarketRegime, v *MarketView) (*domain.EntrySignal, string) {
	if !regime.Tradable() {
		return nil, "regime unknown"
	}
	if reason := s.hardGates(symbol, v); reason != "" {
		return nil, reason
	}
	if ok, reason := s.structuralGate(regime, v); !ok {
		return nil, reason
	}
	score := s.Score(symbol, regime, v)
	if score < s.cfg.EntryThreshold {
		return nil, fmt.Sprintf("score %d below threshold %d", score, s.cfg.EntryThreshold)
	}
	return &domain.EntrySignal{
		Symbol:    symbol,
		Side:      domain.SideLong,
		Score:     score,
		Regime:    regime,
		Snapshot:  v.Snapshot(),
		Timestamp: s.timeNow(),
	}, ""
}

// hardGates enforces cooldown, the hourly trade cap and the Bollinger
// width volatility window. An empty string means all gates passed.
func (s *SignalService) hardGates(symbol string, v *MarketView) string {
	s.mu.Lock()
	now := s.timeNow()
	times := s.pruneLocked(symbol, now)
	var lastEntry time.Time
	if len(times) > 0 {
		lastEntry = times[len(times)-1]
	}
	count := len(times)
	s.mu.Unlock()

	if !lastEntry.IsZero() && now.Sub(lastEntry) < s.cfg.CooldownPeriod {
		return fmt.Sprintf("cooldown active, %s since last entry", now.Sub(lastEntry).Round(time.Second))
	}
	if s.cfg.MaxTradesPerHour > 0 && count >= s.cfg.MaxTradesPerHour {
		return fmt.Sprintf("hourly trade cap %d reached", s.cfg.MaxTradesPerHour)
	}
	if math.IsNaN(v.BBWidthPct) {
		return "bollinger width unavailable"
	}
	if v.BBWidthPct < s.cfg.BBWidthMinPct {
		return fmt.Sprintf("volatility too low, bb width %.3f%%", v.BBWidthPct)
	}
	if v.BBWidthPct > s.cfg.BBWidthMaxPct {
		return fmt.Sprintf("volatility too high, bb width %.3f%%", v.BBWidthPct)
	}
	return ""
}

// pruneLocked drops entry timestamps older than one hour. Caller holds
// the lock.
func (s *SignalService) pruneLocked(symbol string, now time.Time) []time.Time {
	times := s.entryTimes[symbol]
	cutoff := now.Add(-time.Hour)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.entryTimes[symbol] = kept
	return kept
}

// RecordEntry registers a filled entry for cooldown and hourly-cap
// accounting. Call it only after the router confirms a fill.
func (s *SignalService) RecordEntry(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryTimes[symbol] = append(s.entryTimes[symbol], s.timeNow())
}

// structuralGate applies the per-regime setup requirements. These are
// pass/fail: a candidate that misses the structure is never scored.
func (s *SignalService) structuralGate(regime domain.MarketRegime, v *MarketView) (bool, string) {
	switch regime {
	case domain.RegimeUptrend:
		// buy the pullback to the fast EMA, not the extension
		if v.EMAFast <= 0 {
			return false, "uptrend: fast ema unavailable"
		}
		distPct := math.Abs(v.Price-v.EMAFast) / v.EMAFast * 100
		if distPct > s.cfg.PullbackMaxPct {
			return false, fmt.Sprintf("uptrend: price %.2f%% from fast ema, max %.2f%%", distPct, s.cfg.PullbackMaxPct)
		}
		if v.RSI < 35 || v.RSI > 55 {
			return false, fmt.Sprintf("uptrend: rsi %.1f outside pullback band 35..55", v.RSI)
		}
		return true, ""

	case domain.RegimeDowntrend:
		return s.downtrendGate(v)

	case domain.RegimeRanging:
		if v.BBPosition > -30 {
			return false, fmt.Sprintf("ranging: bb position %.0f above -30", v.BBPosition)
		}
		if v.RSI >= 50 {
			return false, fmt.Sprintf("ranging: rsi %.1f not below 50", v.RSI)
		}
		return true, ""
	}
	return false, "regime not tradable"
}

// downtrendGate is the strictest setup: a counter-trend bounce buy
// requires every essential condition plus at least two of four
// momentum confirmations.
func (s *SignalService) downtrendGate(v *MarketView) (bool, string) {
	if v.EMAFast >= v.EMASlow {
		return false, "downtrend: fast ema not below slow ema"
	}
	if v.RSI > s.cfg.RSIOversold {
		return false, fmt.Sprintf("downtrend: rsi %.1f not oversold", v.RSI)
	}
	if v.BBPosition > -50 {
		return false, fmt.Sprintf("downtrend: bb position %.0f not deep enough", v.BBPosition)
	}

	momentum := 0
	if v.Price > v.BBLower {
		momentum++
	}
	if v.VolumeRatio >= 2.0 {
		momentum++
	}
	if !math.IsNaN(v.PrevRSI) && v.RSI-v.PrevRSI >= 2.0 {
		momentum++
	}
	if !math.IsNaN(v.PrevMACDHistogram) && v.MACDHistogram > v.PrevMACDHistogram {
		momentum++
	}
	if momentum < 2 {
		return false, fmt.Sprintf("downtrend: only %d of 4 momentum confirmations", momentum)
	}
	return true, ""
}

// Score computes the additive confirmation score. Contributions are
// independent of each other and of evaluation order; the result is
// clamped to [0, 100].
func (s *SignalService) Score(symbol string, regime domain.MarketRegime, v *MarketView) int {
	w := s.cfg.Weights
	score := w.Base

	if v.MACDLine > v.MACDSignal {
		score += w.MACDAboveSignal
	}
	if v.MACDHistogram > 0 {
		score += w.MACDHistogram
	}
	if v.StochK < 20 {
		score += w.StochOversold
	}
	if !math.IsNaN(v.PrevStochK) && !math.IsNaN(v.PrevStochD) &&
		v.PrevStochK <= v.PrevStochD && v.StochK > v.StochD {
		score += w.StochCross
	}
	switch {
	case v.ADX >= 25:
		score += w.ADXStrong
	case v.ADX >= 20:
		score += w.ADXModerate
	}
	if s.regimes != nil && regime != domain.RegimeDowntrend &&
		s.regimes.ChangedWithin(symbol, s.cfg.RegimeFreshWindow) {
		score += w.RegimeFresh
	}
	switch {
	case v.VolumeRatio >= 2.0:
		score += w.VolumeSpikeHigh
	case v.VolumeRatio >= 1.5:
		score += w.VolumeSpikeLow
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ComputeStops derives the stop-loss and take-profit prices for a long
// entry. Distances come either from the per-regime fixed percentages or
// from ATR multiples; both are fixed at entry and never trail.
func (s *SignalService) ComputeStops(regime domain.MarketRegime, entryPrice, atr float64) (stopLoss, takeProfit float64) {
	if s.cfg.StopMode == "atr" && atr > 0 && !math.IsNaN(atr) {
		return entryPrice - s.cfg.ATRStopMultiple*atr, entryPrice + s.cfg.ATRTargetMultiple*atr
	}
	stops := s.stopsFor(regime)
	stopLoss = entryPrice * (1 - stops.StopLossPct/100)
	takeProfit = entryPrice * (1 + stops.TakeProfitPct/100)
	return stopLoss, takeProfit
}

func (s *SignalService) stopsFor(regime domain.MarketRegime) config.RegimeStops {
	if st, ok := s.cfg.Stops[string(regime)]; ok {
		return st
	}
	return s.cfg.Stops[string(domain.RegimeRanging)]
}

// EvaluateExit checks an open position against every exit rule in
// strict priority order: take-profit, stop-loss, time stop, technical
// reversal, regime flip. The first rule that fires wins.
func (s *SignalService) EvaluateExit(pos *domain.Position, regime domain.MarketRegime, v *MarketView) domain.ExitDecision {
	price := v.Price

	if price >= pos.TakeProfitPrice {
		return domain.ExitDecision{Exit: true, Reason: domain.ExitTakeProfit, AtPrice: price}
	}
	if price <= pos.StopLossPrice {
		return domain.ExitDecision{Exit: true, Reason: domain.ExitStopLoss, AtPrice: price}
	}
	if s.cfg.TimeStop > 0 && s.timeNow().Sub(pos.OpenedAt) >= s.cfg.TimeStop {
		return domain.ExitDecision{Exit: true, Reason: domain.ExitTimeStop, AtPrice: price}
	}
	if s.technicalReversal(pos.RegimeAtEntry, v) {
		return domain.ExitDecision{Exit: true, Reason: domain.ExitTechnicalReversal, AtPrice: price}
	}
	if regime == domain.RegimeDowntrend && pos.RegimeAtEntry != domain.RegimeDowntrend {
		return domain.ExitDecision{Exit: true, Reason: domain.ExitRegimeFlip, AtPrice: price}
	}
	return domain.ExitDecision{}
}

// technicalReversal detects exhaustion against a long position:
// overbought RSI, or a bearish stochastic cross out of the overbought
// zone. A position entered in a ranging market additionally exits once
// the mean reversion has played out, with price back at the middle band
// and RSI above the neutral midpoint.
func (s *SignalService) technicalReversal(entryRegime domain.MarketRegime, v *MarketView) bool {
	if v.RSI >= s.cfg.RSIOverbought {
		return true
	}
	if !math.IsNaN(v.PrevStochK) && !math.IsNaN(v.PrevStochD) &&
		v.PrevStochK >= v.PrevStochD && v.StochK < v.StochD && v.PrevStochK >= 80 {
		return true
	}
	if entryRegime == domain.RegimeRanging &&
		!math.IsNaN(v.BBMiddle) && v.Price >= v.BBMiddle && v.RSI > 50 {
		return true
	}
	return false
}
