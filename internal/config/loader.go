package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigLoader reads the flat YAML file plus an optional .env secret
// overlay (api-key/api-secret may be empty for read-only deployments, per
// spec.md §6).
type ConfigLoader struct {
	EnvPath string // defaults to ".env" in the working directory if empty
}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// LoadConfig reads filename, unmarshals it, overlays .env secrets, applies
// defaults, and validates. A missing symbol or empty analysis timeframe
// list is fatal per spec.md §7 ("Configuration ... Fatal at startup").
func (cl *ConfigLoader) LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cl.overlayEnv(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// overlayEnv fills blank venue credentials from a .env file, the pattern
// used by blackholedex's test harness for loading secrets outside YAML.
func (cl *ConfigLoader) overlayEnv(cfg *Config) {
	envPath := cl.EnvPath
	if envPath == "" {
		envPath = ".env"
	}
	// Missing .env is not an error: credentials may legitimately live only
	// in the YAML, or the deployment may be read-only.
	_ = godotenv.Load(envPath)

	if cfg.Venue.APIKey == "" {
		cfg.Venue.APIKey = os.Getenv("VENUE_API_KEY")
	}
	if cfg.Venue.APISecret == "" {
		cfg.Venue.APISecret = os.Getenv("VENUE_API_SECRET")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.DB.Path == "" {
		cfg.DB.Path = "data/candles.db"
	}
	if cfg.Timeframes.KlineLimit == 0 {
		cfg.Timeframes.KlineLimit = 1000
	}
	if cfg.Timeframes.PollIntervalSec == 0 {
		cfg.Timeframes.PollIntervalSec = 15
	}
	if cfg.Timeframes.DBUpdateIntervalSec == 0 {
		cfg.Timeframes.DBUpdateIntervalSec = 60
	}
	if cfg.Timeframes.BackfillMaxCandles == 0 {
		cfg.Timeframes.BackfillMaxCandles = 5000
	}
	if cfg.Phase.Method == "" {
		cfg.Phase.Method = "wyckoff"
	}
	if cfg.Phase.HistorySize == 0 {
		cfg.Phase.HistorySize = 5
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Zones.DecayBars == 0 {
		cfg.Zones.DecayBars = 50
	}
	if cfg.Zones.NearRoundPct == 0 {
		cfg.Zones.NearRoundPct = 0.001
	}
	if cfg.Zones.ClusterThresholdPct == 0 {
		cfg.Zones.ClusterThresholdPct = 0.002
	}
	if cfg.Zones.VolumeConfirmRatio == 0 {
		cfg.Zones.VolumeConfirmRatio = 0.5
	}
	if cfg.Orderflow.SpikeMultiple == 0 {
		cfg.Orderflow.SpikeMultiple = 2.0
	}
	if cfg.Orderflow.DivergenceThresh == 0 {
		cfg.Orderflow.DivergenceThresh = 0.10
	}
	if cfg.Phase.MinScore == 0 {
		cfg.Phase.MinScore = 0.6
	}
	if cfg.Phase.MinGap == 0 {
		cfg.Phase.MinGap = 0.1
	}
	if cfg.Phase.StabilityMin == 0 {
		cfg.Phase.StabilityMin = 0.6
	}
	if cfg.Filters.TFAlignMin == 0 {
		cfg.Filters.TFAlignMin = 1
	}
	if cfg.Filters.EntryScoreWeightPhase == 0 && cfg.Filters.EntryScoreWeightTrend == 0 && cfg.Filters.EntryScoreWeightTFAlign == 0 {
		cfg.Filters.EntryScoreWeightPhase = 0.4
		cfg.Filters.EntryScoreWeightTrend = 0.35
		cfg.Filters.EntryScoreWeightTFAlign = 0.25
	}
}

func validate(cfg *Config) error {
	if cfg.Venue.Symbol == "" {
		return fmt.Errorf("venue.symbol is required")
	}
	if len(cfg.Timeframes.Analysis) == 0 {
		return fmt.Errorf("timeframes.analysis must not be empty")
	}
	if cfg.Sandbox.InitialBalance <= 0 {
		return fmt.Errorf("sandbox.initial_balance must be positive")
	}
	if cfg.Sandbox.LeverageMin <= 0 || cfg.Sandbox.LeverageMax < cfg.Sandbox.LeverageMin {
		return fmt.Errorf("sandbox.leverage_min/leverage_max misconfigured")
	}
	return nil
}

func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetRedisDatabase() int {
	return c.Redis.DB
}
