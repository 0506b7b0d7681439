package coordinator

import (
	"tradepulse/internal/candlestore"
	"tradepulse/internal/phase"
	"tradepulse/internal/trend"
	"tradepulse/internal/zones"
)

// independentPass runs quality/trend/phase/regime/momentum for one
// timeframe with no cross-timeframe context, per multi_tf.py's
// _analyze_single_timeframe. It is safe to run concurrently across
// timeframes since it touches no shared state.
func independentPass(tf candlestore.Timeframe, candles []candlestore.Candle, cfg Config) *TFReport {
	quality := CheckCandles(candles)
	candleQualityOK := cfg.CandleQualityMinScore <= 0 ||
		(quality.Score >= cfg.CandleQualityMinScore && quality.Valid)

	regime := trend.DetectRegime(candles, cfg.TrendLookback)
	trendResult := trend.Detect(candles, cfg.TrendLookback, trend.DefaultConfig())
	momentum := trend.DetectMomentum(candles, cfg.TrendLookback)

	th := phase.ThresholdsForTimeframe(tf)
	phaseResult := classifierFor(cfg.PhaseMethod).Detect(candles, cfg.PhaseLookback, th, nil, nil)

	var levels []*zones.Level
	if len(candles) >= cfg.ZonesConfig.PivotLeft+cfg.ZonesConfig.PivotRight+1 {
		levels = zones.Build(candles, cfg.ZonesConfig)
	}

	return &TFReport{
		Timeframe:       tf,
		Candles:         candles,
		CandleQuality:   quality,
		CandleQualityOK: candleQualityOK,
		Regime:          regime,
		Trend:           trendResult,
		Phase:           phaseResult,
		Momentum:        momentum,
		ZoneLevels:      levels,
	}
}

// contextualPhase re-detects phase for a non-highest timeframe with the
// highest timeframe's phase/trend injected as context, per multi_tf.py's
// contextual re-pass (lines computing detect_phase(..., higher_tf_phase=...,
// higher_tf_trend=...) for every tf != higher_tf).
func contextualPhase(tf candlestore.Timeframe, candles []candlestore.Candle, cfg Config, higherPhase phase.Phase, higherTrend trend.Direction) phase.Result {
	th := phase.ThresholdsForTimeframe(tf)
	higherTrendStr := string(higherTrend)
	return classifierFor(cfg.PhaseMethod).Detect(candles, cfg.PhaseLookback, th, &higherPhase, &higherTrendStr)
}
