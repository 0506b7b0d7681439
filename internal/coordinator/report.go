package coordinator

import (
	"tradepulse/internal/candlestore"
	"tradepulse/internal/phase"
	"tradepulse/internal/trend"
	"tradepulse/internal/zones"
)

// TFReport bundles one timeframe's independent-pass and contextual-pass
// results, the per-TF half of timeframes_report in multi_tf.py.
type TFReport struct {
	Timeframe candlestore.Timeframe
	Candles   []candlestore.Candle

	CandleQuality     Quality
	CandleQualityOK   bool

	Regime trend.RegimeResult

	Trend              trend.Result
	TrendStability     float64
	TrendStable        bool

	Phase          phase.Result
	PhaseStability float64
	PhaseStable    bool

	Momentum trend.Momentum

	ZoneLevels []*zones.Level
}

// EntryScoreBreakdown exposes the weighted terms behind Result.EntryScore.
type EntryScoreBreakdown struct {
	Phase          float64
	Trend          float64
	TFAlignRatio   float64
	StabilityBonus float64
}

// Result is the coordinator's full decision for one symbol at one tick,
// the Go shape of _compute_multi_tf_result's return dict.
type Result struct {
	Symbol    string
	Timeframes map[candlestore.Timeframe]*TFReport
	SortedTFs  []candlestore.Timeframe
	HigherTF   candlestore.Timeframe

	HigherTFTrend       trend.Direction
	HigherTFTrendStrength float64
	HigherTFTrendUnclear  bool
	HigherTFTrendStable   bool
	HigherTFTrendStability float64

	HigherTFPhase        phase.Phase
	HigherTFPhaseScore   float64
	HigherTFPhaseUnclear bool
	HigherTFPhaseStable  bool
	HigherTFScoreGap     float64
	HigherTFSecondaryPhase phase.Phase

	HigherTFRegime trend.Regime

	VolumeRatio *float64
	VolumeOK    bool
	ATRRatio    *float64
	ATROK       bool

	SwingLow, SwingHigh             *float64
	DistanceToSupportPct            *float64
	DistanceToResistancePct         *float64
	LevelOK                         bool
	TradingZones                    []*zones.Level
	LevelsWithConfluence            int

	FiltersOK bool
	RegimeOK  bool

	CandleQualityOK bool

	TFAlignCount int
	TFAlignMin   int
	TFAlignOK    bool

	PhaseOK            bool
	PhaseDecisionReady bool

	Direction SignalDirection
	Reason    string

	EntryScore          float64
	EntryScoreBreakdown EntryScoreBreakdown
	Confidence          float64
	ConfidenceLevel     ConfidenceLevel
	AboveMinConfidence  bool

	MarketStateNarrative string
}
