// Package config loads and validates the engine configuration from a
// YAML file, with credentials overridable from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration. It is loaded once at startup,
// validated, and treated as immutable afterwards.
type Config struct {
	Symbols   []string        `yaml:"symbols"`
	Timeframe string          `yaml:"timeframe"`
	Loop      LoopConfig      `yaml:"loop"`
	Indicator IndicatorConfig `yaml:"indicators"`
	Regime    RegimeConfig    `yaml:"regime"`
	Signal    SignalConfig    `yaml:"signal"`
	Risk      RiskConfig      `yaml:"risk"`
	Router    RouterConfig    `yaml:"router"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Storage   StorageConfig   `yaml:"storage"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`
}

type LoopConfig struct {
	Interval    time.Duration `yaml:"interval"`
	CandleLimit int           `yaml:"candle_limit"`
}

type IndicatorConfig struct {
	RSIPeriod       int     `yaml:"rsi_period"`
	EMAFastPeriod   int     `yaml:"ema_fast_period"`
	EMASlowPeriod   int     `yaml:"ema_slow_period"`
	BBPeriod        int     `yaml:"bb_period"`
	BBStdDev        float64 `yaml:"bb_std_dev"`
	MACDFast        int     `yaml:"macd_fast"`
	MACDSlow        int     `yaml:"macd_slow"`
	MACDSignal      int     `yaml:"macd_signal"`
	StochPeriod     int     `yaml:"stoch_period"`
	StochSmoothK    int     `yaml:"stoch_smooth_k"`
	StochSmoothD    int     `yaml:"stoch_smooth_d"`
	ATRPeriod       int     `yaml:"atr_period"`
	ADXPeriod       int     `yaml:"adx_period"`
	VolumeSMAPeriod int     `yaml:"volume_sma_period"`
}

type RegimeConfig struct {
	DivergenceThresholdPct float64 `yaml:"divergence_threshold_pct"`
}

// RegimeStops holds stop-loss / take-profit distances for one regime.
type RegimeStops struct {
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
}

type SignalConfig struct {
	EntryThreshold    int           `yaml:"entry_threshold"`
	CooldownPeriod    time.Duration `yaml:"cooldown_period"`
	MaxTradesPerHour  int           `yaml:"max_trades_per_hour"`
	BBWidthMinPct     float64       `yaml:"bb_width_min_pct"`
	BBWidthMaxPct     float64       `yaml:"bb_width_max_pct"`
	RSIOversold       float64       `yaml:"rsi_oversold"`
	RSIOverbought     float64       `yaml:"rsi_overbought"`
	PullbackMaxPct    float64       `yaml:"pullback_max_pct"`
	TimeStop          time.Duration `yaml:"time_stop"`
	RegimeFreshWindow time.Duration `yaml:"regime_fresh_window"`
	StopMode          string        `yaml:"stop_mode"` // "fixed" or "atr"
	ATRStopMultiple   float64       `yaml:"atr_stop_multiple"`
	ATRTargetMultiple float64       `yaml:"atr_target_multiple"`

	Stops map[string]RegimeStops `yaml:"stops"` // keyed by regime name

	Weights ScoreWeights `yaml:"weights"`
}

// ScoreWeights are the additive entry-score contributions. The base is
// granted to any candidate that passed the structural gates; each
// confirmation adds independently and the total is clamped to [0, 100].
type ScoreWeights struct {
	Base            int `yaml:"base"`
	MACDAboveSignal int `yaml:"macd_above_signal"`
	MACDHistogram   int `yaml:"macd_histogram"`
	StochOversold   int `yaml:"stoch_oversold"`
	StochCross      int `yaml:"stoch_cross"`
	ADXStrong       int `yaml:"adx_strong"`
	ADXModerate     int `yaml:"adx_moderate"`
	RegimeFresh     int `yaml:"regime_fresh"`
	VolumeSpikeHigh int `yaml:"volume_spike_high"`
	VolumeSpikeLow  int `yaml:"volume_spike_low"`
}

type RiskConfig struct {
	PerTradeRiskPct    float64 `yaml:"per_trade_risk_pct"`
	MaxPositionSizePct float64 `yaml:"max_position_size_pct"`
	MaxDailyLossPct    float64 `yaml:"max_daily_loss_pct"`
	MaxDrawdownPct     float64 `yaml:"max_drawdown_pct"`
	MaxConsecLosses    int     `yaml:"max_consecutive_losses"`
}

type RouterConfig struct {
	PreferMaker          bool          `yaml:"prefer_maker"`
	LimitTimeout         time.Duration `yaml:"limit_timeout"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	MarketPollAttempts   int           `yaml:"market_poll_attempts"`
	PriceImprovementPct  float64       `yaml:"price_improvement_pct"`
	FeePct               float64       `yaml:"fee_pct"`
	SlippageBufferPct    float64       `yaml:"slippage_buffer_pct"`
	MaxSlippagePct       float64       `yaml:"max_slippage_pct"`
	EntryBalanceFraction float64       `yaml:"entry_balance_fraction"`
}

type ExchangeConfig struct {
	Name       string  `yaml:"name"`
	QuoteAsset string  `yaml:"quote_asset"`
	APIKey     string  `yaml:"api_key"`
	APISecret  string  `yaml:"api_secret"`
	// paper trading knobs
	InitialQuoteBalance float64 `yaml:"initial_quote_balance"`
	PaperFeePct         float64 `yaml:"paper_fee_pct"`
	PaperSlippagePct    float64 `yaml:"paper_slippage_pct"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type WebConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads the YAML config at path, applies defaults, pulls
// credentials from the environment (.env is honored when present) and
// validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best effort, env may be set directly

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config pre-filled with the standard scalping
// parameters. Loaded YAML overrides individual fields.
func Default() *Config {
	return &Config{
		Symbols:   []string{"BTC/USDT"},
		Timeframe: "1m",
		Loop: LoopConfig{
			Interval:    5 * time.Second,
			CandleLimit: 120,
		},
		Indicator: IndicatorConfig{
			RSIPeriod:       14,
			EMAFastPeriod:   9,
			EMASlowPeriod:   21,
			BBPeriod:        20,
			BBStdDev:        2.0,
			MACDFast:        12,
			MACDSlow:        26,
			MACDSignal:      9,
			StochPeriod:     14,
			StochSmoothK:    3,
			StochSmoothD:    3,
			ATRPeriod:       14,
			ADXPeriod:       14,
			VolumeSMAPeriod: 20,
		},
		Regime: RegimeConfig{
			DivergenceThresholdPct: 0.3,
		},
		Signal: SignalConfig{
			EntryThreshold:    60,
			CooldownPeriod:    3 * time.Minute,
			MaxTradesPerHour:  10,
			BBWidthMinPct:     0.15,
			BBWidthMaxPct:     4.0,
			RSIOversold:       30,
			RSIOverbought:     70,
			PullbackMaxPct:    0.3,
			TimeStop:          5 * time.Minute,
			RegimeFreshWindow: 2 * time.Minute,
			StopMode:          "fixed",
			ATRStopMultiple:   1.5,
			ATRTargetMultiple: 2.5,
			Stops: map[string]RegimeStops{
				"UPTREND":   {StopLossPct: 0.15, TakeProfitPct: 0.25},
				"DOWNTREND": {StopLossPct: 0.15, TakeProfitPct: 0.20},
				"RANGING":   {StopLossPct: 0.18, TakeProfitPct: 0.30},
			},
			Weights: ScoreWeights{
				Base:            40,
				MACDAboveSignal: 10,
				MACDHistogram:   5,
				StochOversold:   10,
				StochCross:      5,
				ADXStrong:       10,
				ADXModerate:     5,
				RegimeFresh:     5,
				VolumeSpikeHigh: 10,
				VolumeSpikeLow:  5,
			},
		},
		Risk: RiskConfig{
			PerTradeRiskPct:    0.5,
			MaxPositionSizePct: 25,
			MaxDailyLossPct:    3,
			MaxDrawdownPct:     5,
			MaxConsecLosses:    4,
		},
		Router: RouterConfig{
			PreferMaker:          true,
			LimitTimeout:         10 * time.Second,
			PollInterval:         500 * time.Millisecond,
			MarketPollAttempts:   10,
			PriceImprovementPct:  0.1,
			FeePct:               0.1,
			SlippageBufferPct:    5,
			MaxSlippagePct:       0.3,
			EntryBalanceFraction: 1.0,
		},
		Exchange: ExchangeConfig{
			Name:                "paper",
			QuoteAsset:          "USDT",
			InitialQuoteBalance: 10000,
			PaperFeePct:         0.1,
			PaperSlippagePct:    0.02,
		},
		Storage: StorageConfig{Path: "scalper.db"},
		Web:     WebConfig{Addr: ":8080"},
		Log:     LogConfig{Level: "info"},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: at least one symbol is required")
	}
	if c.Loop.CandleLimit < c.Indicator.EMASlowPeriod+c.Indicator.MACDSignal {
		return fmt.Errorf("config: candle_limit %d too small for configured indicator windows", c.Loop.CandleLimit)
	}
	if c.Signal.EntryThreshold < 0 || c.Signal.EntryThreshold > 100 {
		return fmt.Errorf("config: entry_threshold must be within 0..100, got %d", c.Signal.EntryThreshold)
	}
	if c.Signal.StopMode != "fixed" && c.Signal.StopMode != "atr" {
		return fmt.Errorf("config: stop_mode must be %q or %q, got %q", "fixed", "atr", c.Signal.StopMode)
	}
	if c.Risk.PerTradeRiskPct <= 0 {
		return fmt.Errorf("config: per_trade_risk_pct must be positive")
	}
	if c.Risk.MaxPositionSizePct <= 0 || c.Risk.MaxPositionSizePct > 100 {
		return fmt.Errorf("config: max_position_size_pct must be within (0, 100]")
	}
	if c.Router.EntryBalanceFraction <= 0 || c.Router.EntryBalanceFraction > 1 {
		return fmt.Errorf("config: entry_balance_fraction must be within (0, 1]")
	}
	if c.Router.LimitTimeout <= 0 || c.Router.PollInterval <= 0 {
		return fmt.Errorf("config: limit_timeout and poll_interval must be positive")
	}
	for _, regime := range []string{"UPTREND", "DOWNTREND", "RANGING"} {
		s, ok := c.Signal.Stops[regime]
		if !ok {
			return fmt.Errorf("config: missing stops for regime %s", regime)
		}
		if s.StopLossPct <= 0 || s.TakeProfitPct <= 0 {
			return fmt.Errorf("config: stops for regime %s must be positive", regime)
		}
	}
	return nil
}
