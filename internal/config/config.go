// Package config loads the flat YAML configuration surface described in
// spec.md §6 into an immutable Config value, built once at startup and
// never re-read mid-tick (see spec.md §9, "Dynamic configuration surface").
package config

import "time"

// Config is the root configuration record. Every nested struct mirrors one
// semantic group from spec.md §6.
type Config struct {
	Venue      VenueConfig      `yaml:"venue"`
	Timeframes TimeframesConfig `yaml:"timeframes"`
	Phase      PhaseConfig      `yaml:"phase"`
	Trend      TrendConfig      `yaml:"trend"`
	Filters    FiltersConfig    `yaml:"filters"`
	Orderflow  OrderflowConfig  `yaml:"orderflow"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Zones      ZonesConfig      `yaml:"zones"`
	Redis      RedisConfig      `yaml:"redis"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
	DB         DBConfig         `yaml:"db"`
}

// VenueConfig identifies the venue and credentials (secrets may be
// overridden from .env, see loader.go).
type VenueConfig struct {
	Symbol    string `yaml:"symbol"`
	Category  string `yaml:"category"` // "linear", "inverse", ...
	Testnet   bool   `yaml:"testnet"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	WSURL     string `yaml:"ws_url"`
}

// TimeframesConfig controls which timeframes are analyzed vs merely stored,
// and the loop cadence.
type TimeframesConfig struct {
	Analysis            []string `yaml:"analysis"` // ascending by duration; last is "highest TF"
	DB                  []string `yaml:"db"`        // superset archived even if not analyzed
	KlineLimit          int      `yaml:"kline_limit"`
	PollIntervalSec     int      `yaml:"poll_interval_sec"`
	DBUpdateIntervalSec int      `yaml:"db_update_interval_sec"`
	BackfillMaxCandles  int      `yaml:"backfill_max_candles"`
}

func (t TimeframesConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSec) * time.Second
}

func (t TimeframesConfig) DBUpdateInterval() time.Duration {
	return time.Duration(t.DBUpdateIntervalSec) * time.Second
}

// PhaseConfig holds Phase Classifier thresholds (spec.md §4.5).
type PhaseConfig struct {
	Method       string  `yaml:"method"` // "wyckoff" (default), "indicators", "structure"
	MinScore     float64 `yaml:"min_score"`
	MinGap       float64 `yaml:"min_gap"`
	StabilityMin float64 `yaml:"stability_min"`
	HistorySize  int     `yaml:"history_size"`
}

// TrendConfig holds Trend engine thresholds (spec.md §4.6).
type TrendConfig struct {
	FlatThreshold      float64 `yaml:"flat_threshold"`
	UnclearThreshold   float64 `yaml:"unclear_threshold"`
	MinGap             float64 `yaml:"min_gap"`
	MinGapDown         float64 `yaml:"min_gap_down"`
	SurgePenalty       float64 `yaml:"surge_penalty"`
	LowVolumeThreshold float64 `yaml:"low_volume_threshold"`
}

// FiltersConfig holds the Coordinator's aggregate entry filters (spec.md §4.9).
type FiltersConfig struct {
	VolumeMinRatio        float64 `yaml:"volume_min_ratio"`
	ATRMaxRatio           float64 `yaml:"atr_max_ratio"`
	LevelMaxDistancePct   float64 `yaml:"level_max_distance_pct"`
	TFAlignMin            int     `yaml:"tf_align_min"`
	CandleQualityMinScore float64 `yaml:"candle_quality_min_score"`
	RegimeBlockSurge      bool    `yaml:"regime_block_surge"` // set explicitly in YAML; Go's zero-value bool can't distinguish "unset" from "false"
	TrendStabilityMin     float64 `yaml:"trend_stability_min"`
	SignalMinConfidence   float64 `yaml:"signal_min_confidence"`
	EntryScoreWeightPhase float64 `yaml:"entry_score_weight_phase"`
	EntryScoreWeightTrend float64 `yaml:"entry_score_weight_trend"`
	EntryScoreWeightTFAlign float64 `yaml:"entry_score_weight_tf_align"`
}

// OrderflowConfig holds Order-Flow engine toggles and sizing (spec.md §4.8).
type OrderflowConfig struct {
	Enabled           bool    `yaml:"enabled"`
	DepthLevels       int     `yaml:"depth_levels"` // top-K
	WallPercentile    float64 `yaml:"wall_percentile"`
	WindowSec         int     `yaml:"window_sec"`
	SpikeMultiple     float64 `yaml:"spike_multiple"`
	DivergenceThresh  float64 `yaml:"divergence_threshold"`
	LookbackBars      int     `yaml:"lookback_bars"`
	WickRatioMin      float64 `yaml:"wick_ratio_min"`
	MinDropRatio      float64 `yaml:"min_drop_ratio"`
	LastTradesK       int     `yaml:"last_trades_k"`
	LastTradesRatio   float64 `yaml:"last_trades_ratio"`
	WSPingIntervalSec int     `yaml:"ws_ping_interval_sec"`
	WSPingTimeoutSec  int     `yaml:"ws_ping_timeout_sec"`
	SaveToDB          bool    `yaml:"save_to_db"`
}

// ZonesConfig holds the Trading-Zone Model's tunables (spec.md §4.7).
type ZonesConfig struct {
	PivotLeft           int     `yaml:"pivot_left"`
	PivotRight          int     `yaml:"pivot_right"`
	ClusterThresholdPct float64 `yaml:"cluster_threshold_pct"`
	VolumeConfirmRatio  float64 `yaml:"volume_confirm_ratio"`
	DecayBars           int     `yaml:"decay_bars"`
	LookbackBars        int     `yaml:"lookback_bars"`
	NearRoundPct        float64 `yaml:"near_round_pct"`
	TrimTopN            int     `yaml:"trim_top_n"`
	ConfluencePct       float64 `yaml:"confluence_pct"`
}

// SandboxConfig holds every knob of the virtual position engine (spec.md §4.11).
type SandboxConfig struct {
	InitialBalance               float64   `yaml:"initial_balance"`
	TakerFee                     float64   `yaml:"taker_fee"`
	MinConfidenceToOpen          float64   `yaml:"min_confidence_to_open"`
	CooldownSec                  int       `yaml:"cooldown_sec"`
	MinHoldSec                   int       `yaml:"min_hold_sec"`
	ExitNoneTicks                int       `yaml:"exit_none_ticks"`
	ExitMinConfidence             float64  `yaml:"exit_min_confidence"`
	MinConfirmingTicks            int      `yaml:"min_confirming_ticks"`
	ExitWindowTicks               int      `yaml:"exit_window_ticks"`
	ExitWindowNeed                int      `yaml:"exit_window_need"`
	StopLossPct                   float64  `yaml:"stop_loss_pct"`
	BreakevenTriggerPct           float64  `yaml:"breakeven_trigger_pct"`
	TakeProfitPct                 float64  `yaml:"take_profit_pct"`
	TPLevels                      []TPLevel `yaml:"tp_levels"`
	TrailTriggerPct                float64 `yaml:"trail_trigger_pct"`
	TrailPct                       float64 `yaml:"trail_pct"`
	TrendFilter                    bool    `yaml:"trend_filter"`
	LeverageMin                    float64 `yaml:"leverage_min"`
	LeverageMax                    float64 `yaml:"leverage_max"`
	AdaptiveLeverage                bool   `yaml:"adaptive_leverage"`
	MarginFraction                 float64 `yaml:"margin_fraction"`
	LiquidationMaintenance          float64 `yaml:"liquidation_maintenance"`
	DrawdownLeverageThresholdPct    float64 `yaml:"drawdown_leverage_threshold_pct"`
	MinProfitPct                   float64 `yaml:"min_profit_pct"`
	NoOpenSameTickAsClose           bool   `yaml:"no_open_same_tick_as_close"`
	NoOpenSweepOnly                 bool   `yaml:"no_open_sweep_only"`
	SweepDelaySec                   int    `yaml:"sweep_delay_sec"`
	UseContextNowPrimary            bool   `yaml:"use_context_now_primary"`
	UseContextNowOnly               bool   `yaml:"use_context_now_only"`
}

// TPLevel is one entry of the multi-level take-profit ladder:
// (levelPct, cumulativeShare) per spec.md §4.11 step 3.
type TPLevel struct {
	LevelPct        float64 `yaml:"level_pct"`
	CumulativeShare float64 `yaml:"cumulative_share"`
}

// RedisConfig backs internal/events' last-state publish (spec.md §4.12 ADD).
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MetricsConfig controls the Prometheus HTTP listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls zap's level (out of core scope, but carried per
// SPEC_FULL.md's "ambient stack regardless of non-goals" note).
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DBConfig locates the candle/paper-trading SQLite file.
type DBConfig struct {
	Path string `yaml:"path"`
}
