package domain

import "time"

// IndicatorSnapshot captures the trigger indicator values behind an
// entry or exit decision, for logging and the event stream.
type IndicatorSnapshot struct {
	Price         float64 `json:"price"`
	RSI           float64 `json:"rsi"`
	EMAFast       float64 `json:"ema_fast"`
	EMASlow       float64 `json:"ema_slow"`
	BBUpper       float64 `json:"bb_upper"`
	BBMiddle      float64 `json:"bb_middle"`
	BBLower       float64 `json:"bb_lower"`
	BBWidthPct    float64 `json:"bb_width_pct"`
	BBPosition    float64 `json:"bb_position"`
	MACDLine      float64 `json:"macd_line"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
	StochK        float64 `json:"stoch_k"`
	StochD        float64 `json:"stoch_d"`
	ADX           float64 `json:"adx"`
	ATR           float64 `json:"atr"`
	VolumeRatio   float64 `json:"volume_ratio"`
}

// EntrySignal is a scored entry candidate. Transient: used within the
// iteration that produced it and discarded.
type EntrySignal struct {
	Symbol    string
	Side      Side
	Score     int // 0..100
	Regime    MarketRegime
	Snapshot  IndicatorSnapshot
	Timestamp time.Time
}

// ExitDecision is the result of evaluating an open position against the
// exit conditions. Transient.
type ExitDecision struct {
	Exit    bool
	Reason  ExitReason
	AtPrice float64
}
