// Package coordinator implements the Multi-Timeframe Coordinator of
// spec.md §4.9: a bounded parallel independent pass per timeframe, a
// sequential stability-history update, a contextual re-pass that lets the
// highest timeframe inform the others, aggregate entry filters, and the
// final direction/entry-score/confidence decision. Grounded in
// original_source/src/analysis/multi_tf.py and the teacher's
// internal/analytics/multi_timeframe_coordinator.go (bounded worker-pool
// fan-out shape).
package coordinator

import (
	"tradepulse/internal/candlestore"
	"tradepulse/internal/config"
	"tradepulse/internal/phase"
	"tradepulse/internal/trend"
	"tradepulse/internal/zones"
)

// SignalDirection is the coordinator's final call (spec.md §9: "variants
// over strings").
type SignalDirection string

const (
	SignalLong  SignalDirection = "long"
	SignalShort SignalDirection = "short"
	SignalNone  SignalDirection = "none"
)

// ConfidenceLevel buckets Result.Confidence for display/gating.
type ConfidenceLevel string

const (
	ConfidenceStrong ConfidenceLevel = "strong"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceWeak   ConfidenceLevel = "weak"
	ConfidenceNone   ConfidenceLevel = "—"
)

// Config holds every tunable the coordinator's filters and entry-score
// formula need, mirroring config.FiltersConfig and config.PhaseConfig.
type Config struct {
	PhaseHistorySize      int
	PhaseStabilityMin     float64
	TrendStabilityMin     float64
	CandleQualityMinScore float64
	VolumeMinRatio        float64
	ATRMaxRatio           float64
	LevelMaxDistancePct   float64
	RegimeBlockSurge      bool
	TFAlignMin            int
	PhaseScoreMin         float64
	PhaseMinGap           float64
	SignalMinConfidence   float64
	EntryScoreWeightPhase float64
	EntryScoreWeightTrend float64
	EntryScoreWeightTFAlign float64
	ZonesConfig           zones.Config
	ConfluencePct         float64
	PhaseMethod           phase.Method
	PhaseLookback         int
	TrendLookback         int
}

// DefaultConfig matches the thresholds hardcoded in multi_tf.py.
func DefaultConfig() Config {
	return Config{
		PhaseHistorySize:        5,
		PhaseStabilityMin:       0.6,
		TrendStabilityMin:       0,
		CandleQualityMinScore:   0,
		VolumeMinRatio:          0,
		ATRMaxRatio:             0,
		LevelMaxDistancePct:     0,
		RegimeBlockSurge:        true,
		TFAlignMin:              1,
		PhaseScoreMin:           0.6,
		PhaseMinGap:             0.1,
		SignalMinConfidence:     0,
		EntryScoreWeightPhase:   0.4,
		EntryScoreWeightTrend:   0.35,
		EntryScoreWeightTFAlign: 0.25,
		ZonesConfig:             zones.DefaultConfig(),
		ConfluencePct:           0.002,
		PhaseMethod:             phase.MethodWyckoff,
		PhaseLookback:           100,
		TrendLookback:           100,
	}
}

// FromConfig builds a coordinator Config from the loaded application
// config, the bridge cmd/tradepulse uses to wire this package up without
// duplicating the YAML surface.
func FromConfig(cfg *config.Config) Config {
	zonesCfg := zones.Config{
		PivotLeft:           cfg.Zones.PivotLeft,
		PivotRight:          cfg.Zones.PivotRight,
		ClusterThresholdPct: cfg.Zones.ClusterThresholdPct,
		VolumeConfirmRatio:  cfg.Zones.VolumeConfirmRatio,
		DecayBars:           cfg.Zones.DecayBars,
		LookbackBars:        cfg.Zones.LookbackBars,
		NearRoundPct:        cfg.Zones.NearRoundPct,
		TrimTopN:            cfg.Zones.TrimTopN,
		ConfluencePct:       cfg.Zones.ConfluencePct,
	}
	if zonesCfg.PivotLeft == 0 && zonesCfg.PivotRight == 0 {
		d := zones.DefaultConfig()
		zonesCfg.PivotLeft, zonesCfg.PivotRight = d.PivotLeft, d.PivotRight
		if zonesCfg.TrimTopN == 0 {
			zonesCfg.TrimTopN = d.TrimTopN
		}
	}
	return Config{
		PhaseHistorySize:        cfg.Phase.HistorySize,
		PhaseStabilityMin:       cfg.Phase.StabilityMin,
		TrendStabilityMin:       cfg.Filters.TrendStabilityMin,
		CandleQualityMinScore:   cfg.Filters.CandleQualityMinScore,
		VolumeMinRatio:          cfg.Filters.VolumeMinRatio,
		ATRMaxRatio:             cfg.Filters.ATRMaxRatio,
		LevelMaxDistancePct:     cfg.Filters.LevelMaxDistancePct,
		RegimeBlockSurge:        cfg.Filters.RegimeBlockSurge,
		TFAlignMin:              cfg.Filters.TFAlignMin,
		PhaseScoreMin:           cfg.Phase.MinScore,
		PhaseMinGap:             cfg.Phase.MinGap,
		SignalMinConfidence:     cfg.Filters.SignalMinConfidence,
		EntryScoreWeightPhase:   cfg.Filters.EntryScoreWeightPhase,
		EntryScoreWeightTrend:   cfg.Filters.EntryScoreWeightTrend,
		EntryScoreWeightTFAlign: cfg.Filters.EntryScoreWeightTFAlign,
		ZonesConfig:             zonesCfg,
		ConfluencePct:           cfg.Zones.ConfluencePct,
		PhaseMethod:             phase.Method(cfg.Phase.Method),
		PhaseLookback:           100,
		TrendLookback:           100,
	}
}

func classifierFor(method phase.Method) phase.Classifier {
	switch method {
	case phase.MethodIndicators:
		return phase.Indicators{}
	case phase.MethodStructure:
		return phase.Structure{}
	default:
		return phase.Wyckoff{}
	}
}

// Coordinator holds the per-timeframe stability history across ticks. It is
// not safe for concurrent use by multiple goroutines and must be created
// once per symbol/backtest run (equivalent to multi_tf.py's module-level
// history plus its reset_multi_tf_history()).
type Coordinator struct {
	cfg             Config
	phaseHistory    map[candlestore.Timeframe][]phase.Phase
	trendHistory    map[candlestore.Timeframe][]trend.Direction
}

// NewCoordinator builds a Coordinator with empty stability history.
func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{
		cfg:          cfg,
		phaseHistory: map[candlestore.Timeframe][]phase.Phase{},
		trendHistory: map[candlestore.Timeframe][]trend.Direction{},
	}
}

// Reset clears all stability history, the Go equivalent of multi_tf.py's
// reset_multi_tf_history() — used between independent backtest runs so one
// run's history never leaks into the next.
func (c *Coordinator) Reset() {
	c.phaseHistory = map[candlestore.Timeframe][]phase.Phase{}
	c.trendHistory = map[candlestore.Timeframe][]trend.Direction{}
}

func (c *Coordinator) updatePhaseStability(tf candlestore.Timeframe, p phase.Phase) (stability float64, stable bool) {
	hist := append(c.phaseHistory[tf], p)
	if len(hist) > c.cfg.PhaseHistorySize {
		hist = hist[len(hist)-c.cfg.PhaseHistorySize:]
	}
	c.phaseHistory[tf] = hist
	same := 0
	for _, h := range hist {
		if h == p {
			same++
		}
	}
	stability = round3(float64(same) / float64(len(hist)))
	return stability, stability >= c.cfg.PhaseStabilityMin
}

func (c *Coordinator) updateTrendStability(tf candlestore.Timeframe, d trend.Direction) (stability float64, stable bool) {
	if c.cfg.TrendStabilityMin <= 0 {
		hist := append(c.trendHistory[tf], d)
		if len(hist) > c.cfg.PhaseHistorySize {
			hist = hist[len(hist)-c.cfg.PhaseHistorySize:]
		}
		c.trendHistory[tf] = hist
		return 1.0, true
	}
	hist := append(c.trendHistory[tf], d)
	if len(hist) > c.cfg.PhaseHistorySize {
		hist = hist[len(hist)-c.cfg.PhaseHistorySize:]
	}
	c.trendHistory[tf] = hist
	same := 0
	for _, h := range hist {
		if h == d {
			same++
		}
	}
	stability = round3(float64(same) / float64(len(hist)))
	return stability, stability >= c.cfg.TrendStabilityMin
}
