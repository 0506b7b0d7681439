package coordinator

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"tradepulse/internal/candlestore"
	"tradepulse/internal/indicator"
	"tradepulse/internal/phase"
	"tradepulse/internal/trend"
	"tradepulse/internal/zones"
)

const maxParallelTFs = 4

// Analyze runs the full coordinator pipeline for one symbol at one tick:
// bounded parallel independent pass, sequential stability update,
// contextual re-pass, aggregate filters and the final direction/entry-score
// decision. candlesByTF must carry oldest-to-newest candles keyed by
// timeframe; Analyze returns nil if no timeframe has any candles.
func (c *Coordinator) Analyze(symbol string, candlesByTF map[candlestore.Timeframe][]candlestore.Candle) *Result {
	var tfs []candlestore.Timeframe
	for tf, candles := range candlesByTF {
		if len(candles) > 0 {
			tfs = append(tfs, tf)
		}
	}
	if len(tfs) == 0 {
		return nil
	}
	sortedTFs := sortTimeframes(tfs)
	higherTF := sortedTFs[len(sortedTFs)-1]

	reports := c.runIndependentPass(sortedTFs, candlesByTF)
	c.updateStability(sortedTFs, reports)
	c.runContextualPass(sortedTFs, higherTF, candlesByTF, reports)
	c.buildConfluence(sortedTFs, higherTF, reports)

	return c.aggregate(symbol, sortedTFs, higherTF, reports)
}

// runIndependentPass fans out independentPass across up to maxParallelTFs
// goroutines at once: a semaphore caps concurrency, errgroup joins the
// goroutines and would propagate the first error (independentPass never
// returns one; a panic inside it is not recovered here). Each goroutine only touches
// its own report, so the results are collected into the map after Wait
// returns.
func (c *Coordinator) runIndependentPass(sortedTFs []candlestore.Timeframe, candlesByTF map[candlestore.Timeframe][]candlestore.Candle) map[candlestore.Timeframe]*TFReport {
	results := make([]*TFReport, len(sortedTFs))
	sem := semaphore.NewWeighted(maxParallelTFs)
	g, ctx := errgroup.WithContext(context.Background())
	for i, tf := range sortedTFs {
		i, tf := i, tf
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			results[i] = independentPass(tf, candlesByTF[tf], c.cfg)
			return nil
		})
	}
	_ = g.Wait()

	reports := make(map[candlestore.Timeframe]*TFReport, len(sortedTFs))
	for i, tf := range sortedTFs {
		reports[tf] = results[i]
	}
	return reports
}

// updateStability advances the phase/trend stability history for every
// timeframe, in sorted order, matching multi_tf.py's sequential assembly
// loop (stability history must not race across timeframes).
func (c *Coordinator) updateStability(sortedTFs []candlestore.Timeframe, reports map[candlestore.Timeframe]*TFReport) {
	for _, tf := range sortedTFs {
		r := reports[tf]
		r.PhaseStability, r.PhaseStable = c.updatePhaseStability(tf, r.Phase.Phase)
		r.TrendStability, r.TrendStable = c.updateTrendStability(tf, r.Trend.Direction)
	}
}

// runContextualPass re-detects phase for every timeframe below the highest
// one, injecting the highest timeframe's phase/trend as context, per
// multi_tf.py's "Контекст старшего ТФ для младших" step.
func (c *Coordinator) runContextualPass(sortedTFs []candlestore.Timeframe, higherTF candlestore.Timeframe, candlesByTF map[candlestore.Timeframe][]candlestore.Candle, reports map[candlestore.Timeframe]*TFReport) {
	higher := reports[higherTF]
	if higher == nil {
		return
	}
	for _, tf := range sortedTFs {
		if tf == higherTF {
			continue
		}
		candles := candlesByTF[tf]
		if len(candles) < 30 {
			continue
		}
		r := reports[tf]
		r.Phase = contextualPhase(tf, candles, c.cfg, higher.Phase.Phase, higher.Trend.Direction)
		r.PhaseStability, r.PhaseStable = c.updatePhaseStability(tf, r.Phase.Phase)
	}
}

// buildConfluence marks each timeframe's trading-zone levels with the other
// timeframes whose own levels sit within Config.ConfluencePct, per
// multi_tf.py's zone confluence step.
func (c *Coordinator) buildConfluence(sortedTFs []candlestore.Timeframe, higherTF candlestore.Timeframe, reports map[candlestore.Timeframe]*TFReport) {
	if len(sortedTFs) <= 1 {
		return
	}
	others := make(map[string][]*zones.Level, len(sortedTFs))
	for _, tf := range sortedTFs {
		others[string(tf)] = reports[tf].ZoneLevels
	}
	for _, tf := range sortedTFs {
		r := reports[tf]
		if len(r.ZoneLevels) == 0 {
			continue
		}
		zones.Confluence(r.ZoneLevels, string(tf), others, c.cfg.ConfluencePct)
	}
	_ = higherTF
}

func (c *Coordinator) aggregate(symbol string, sortedTFs []candlestore.Timeframe, higherTF candlestore.Timeframe, reports map[candlestore.Timeframe]*TFReport) *Result {
	higher := reports[higherTF]
	higherCandles := higher.Candles

	var volRatio *float64
	if len(higherCandles) >= 20 {
		if v, ok := indicator.VolumeRatio(higherCandles, 5, 20); ok {
			volRatio = &v
		}
	}
	var atrRatio *float64
	if len(higherCandles) >= 14 {
		atrNow, atrNowOk := indicator.ATR(higherCandles, 14)
		atrPrev, atrPrevOk := atrNow, atrNowOk
		if len(higherCandles) >= 19 {
			atrPrev, atrPrevOk = indicator.ATR(higherCandles[:len(higherCandles)-5], 14)
		}
		if atrNowOk && atrPrevOk && atrPrev > 0 {
			r := atrNow / atrPrev
			atrRatio = &r
		}
	}
	volumeOK := c.cfg.VolumeMinRatio <= 0 || (volRatio != nil && *volRatio >= c.cfg.VolumeMinRatio)
	atrOK := c.cfg.ATRMaxRatio <= 0 || (atrRatio != nil && *atrRatio <= c.cfg.ATRMaxRatio)

	distSupport, distResistance := levelDistances(higher.ZoneLevels, lastClose(higherCandles))
	levelOK := c.cfg.LevelMaxDistancePct <= 0 ||
		(distSupport != nil && *distSupport >= 0 && *distSupport <= c.cfg.LevelMaxDistancePct) ||
		(distResistance != nil && *distResistance >= 0 && *distResistance <= c.cfg.LevelMaxDistancePct)

	filtersOK := volumeOK && atrOK && levelOK

	regimeOK := higher.Regime.Regime != trend.RegimeSurge || !c.cfg.RegimeBlockSurge

	candleQualityOKGlobal := c.cfg.CandleQualityMinScore <= 0
	if !candleQualityOKGlobal {
		candleQualityOKGlobal = higher.CandleQualityOK
		for _, tf := range sortedTFs {
			if !reports[tf].CandleQualityOK {
				candleQualityOKGlobal = false
			}
		}
	}

	tfAlignCount := 0
	for _, tf := range sortedTFs {
		r := reports[tf]
		if r.Trend.Direction != higher.Trend.Direction {
			continue
		}
		switch higher.Trend.Direction {
		case trend.Up:
			if phase.IsBullish(r.Phase.Phase) {
				tfAlignCount++
			}
		case trend.Down:
			if phase.IsBearish(r.Phase.Phase) {
				tfAlignCount++
			}
		case trend.Flat:
			tfAlignCount++
		}
	}
	tfAlignOK := tfAlignCount >= c.cfg.TFAlignMin

	trendStableOK := c.cfg.TrendStabilityMin <= 0 || higher.TrendStable
	phaseOK := higher.Phase.Score >= c.cfg.PhaseScoreMin
	phaseDecisionReady := phaseOK &&
		!higher.Phase.PhaseUnclear &&
		higher.PhaseStable &&
		higher.Phase.ScoreGap >= c.cfg.PhaseMinGap &&
		!higher.Trend.TrendUnclear &&
		filtersOK &&
		tfAlignOK &&
		trendStableOK &&
		regimeOK &&
		candleQualityOKGlobal

	direction, reason := decide(higher, higherTF, phaseOK, phaseDecisionReady, filtersOK, volumeOK, atrOK, levelOK,
		tfAlignOK, tfAlignCount, c.cfg.TFAlignMin, trendStableOK, regimeOK, candleQualityOKGlobal, c.cfg.PhaseScoreMin, c.cfg.PhaseMinGap)

	weightSum := c.cfg.EntryScoreWeightPhase + c.cfg.EntryScoreWeightTrend + c.cfg.EntryScoreWeightTFAlign
	if weightSum <= 0 {
		weightSum = 1.0
	}
	nTFs := len(sortedTFs)
	if nTFs < 1 {
		nTFs = 1
	}
	tfAlignRatio := float64(tfAlignCount) / float64(nTFs)
	entryScoreRaw := (c.cfg.EntryScoreWeightPhase*higher.Phase.Score +
		c.cfg.EntryScoreWeightTrend*higher.Trend.Strength +
		c.cfg.EntryScoreWeightTFAlign*tfAlignRatio) / weightSum
	stabilityBonus := 0.0
	if higher.PhaseStable && higher.TrendStable {
		stabilityBonus = 0.05
	}
	entryScore := entryScoreRaw + stabilityBonus
	if entryScore > 1.0 {
		entryScore = 1.0
	}
	if entryScore < 0.0 {
		entryScore = 0.0
	}
	entryScore = round3(entryScore)

	confidence := 0.0
	if direction != SignalNone {
		confidence = entryScore
	}
	var confidenceLevel ConfidenceLevel
	switch {
	case confidence >= 0.7:
		confidenceLevel = ConfidenceStrong
	case confidence >= 0.5:
		confidenceLevel = ConfidenceMedium
	case confidence > 0:
		confidenceLevel = ConfidenceWeak
	default:
		confidenceLevel = ConfidenceNone
	}
	aboveMin := confidence >= c.cfg.SignalMinConfidence

	narrative := narrate(higher, higherTF, tfAlignCount, nTFs)

	levelsWithConfluence := 0
	for _, l := range higher.ZoneLevels {
		if len(l.ConfluenceTimeframes) >= 2 {
			levelsWithConfluence++
		}
	}

	return &Result{
		Symbol: symbol, Timeframes: reports, SortedTFs: sortedTFs, HigherTF: higherTF,
		HigherTFTrend: higher.Trend.Direction, HigherTFTrendStrength: higher.Trend.Strength,
		HigherTFTrendUnclear: higher.Trend.TrendUnclear, HigherTFTrendStable: higher.TrendStable,
		HigherTFTrendStability: higher.TrendStability,
		HigherTFPhase:          higher.Phase.Phase, HigherTFPhaseScore: higher.Phase.Score,
		HigherTFPhaseUnclear: higher.Phase.PhaseUnclear, HigherTFPhaseStable: higher.PhaseStable,
		HigherTFScoreGap: higher.Phase.ScoreGap, HigherTFSecondaryPhase: higher.Phase.SecondaryPhase,
		HigherTFRegime: higher.Regime.Regime,
		VolumeRatio:    volRatio, VolumeOK: volumeOK, ATRRatio: atrRatio, ATROK: atrOK,
		DistanceToSupportPct: distSupport, DistanceToResistancePct: distResistance, LevelOK: levelOK,
		TradingZones: higher.ZoneLevels, LevelsWithConfluence: levelsWithConfluence,
		FiltersOK: filtersOK, RegimeOK: regimeOK, CandleQualityOK: candleQualityOKGlobal,
		TFAlignCount: tfAlignCount, TFAlignMin: c.cfg.TFAlignMin, TFAlignOK: tfAlignOK,
		PhaseOK: phaseOK, PhaseDecisionReady: phaseDecisionReady,
		Direction: direction, Reason: reason,
		EntryScore: entryScore,
		EntryScoreBreakdown: EntryScoreBreakdown{
			Phase: higher.Phase.Score, Trend: higher.Trend.Strength,
			TFAlignRatio: round3(tfAlignRatio), StabilityBonus: stabilityBonus,
		},
		Confidence: round3(confidence), ConfidenceLevel: confidenceLevel, AboveMinConfidence: aboveMin,
		MarketStateNarrative: narrative,
	}
}

func lastClose(candles []candlestore.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// levelDistances returns (close-support)/close and (resistance-close)/close
// for the nearest in-role levels, per multi_tf.py's distance_to_support_pct
// / distance_to_resistance_pct.
func levelDistances(levels []*zones.Level, close float64) (support, resistance *float64) {
	if close <= 0 {
		return nil, nil
	}
	snap := zones.Nearest(levels, close)
	if snap.NearestSupport != nil {
		d := (close - snap.NearestSupport.Price) / close
		support = &d
	}
	if snap.NearestResistance != nil {
		d := (snap.NearestResistance.Price - close) / close
		resistance = &d
	}
	return support, resistance
}

func decide(higher *TFReport, higherTF candlestore.Timeframe, phaseOK, phaseDecisionReady, filtersOK, volumeOK, atrOK, levelOK bool,
	tfAlignOK bool, tfAlignCount, tfAlignMin int, trendStableOK, regimeOK, candleQualityOKGlobal bool,
	phaseScoreMin, phaseMinGap float64) (SignalDirection, string) {

	reason := fmt.Sprintf("higher timeframe %s: %s, phase %s", higherTF, higher.Trend.Direction, higher.Phase.Phase)

	if !phaseOK {
		return SignalNone, fmt.Sprintf("phase %s (score=%.2f < %.2f) — not usable for entry",
			higher.Phase.Phase, higher.Phase.Score, phaseScoreMin)
	}
	if !phaseDecisionReady {
		var why []string
		if higher.Phase.PhaseUnclear {
			why = append(why, "phase unclear")
		}
		if !higher.PhaseStable {
			why = append(why, "phase unstable")
		}
		if higher.Phase.ScoreGap < phaseMinGap {
			why = append(why, fmt.Sprintf("score gap %.2f < %.2f", higher.Phase.ScoreGap, phaseMinGap))
		}
		if higher.Trend.TrendUnclear {
			why = append(why, "trend unclear")
		}
		if !volumeOK {
			why = append(why, "volume low")
		}
		if !atrOK {
			why = append(why, "ATR high")
		}
		if !levelOK {
			why = append(why, "price far from levels")
		}
		if !tfAlignOK {
			why = append(why, fmt.Sprintf("TF alignment %d < %d", tfAlignCount, tfAlignMin))
		}
		if !trendStableOK {
			why = append(why, "trend unstable")
		}
		if !regimeOK {
			why = append(why, "surge regime")
		}
		if !candleQualityOKGlobal {
			why = append(why, "candle quality")
		}
		return SignalNone, fmt.Sprintf("phase %s — not ready to decide: %s", higher.Phase.Phase, strings.Join(why, ", "))
	}
	switch higher.Trend.Direction {
	case trend.Up:
		if phase.IsBullish(higher.Phase.Phase) {
			return SignalLong, fmt.Sprintf("trend on %s up, phase %s — long allowed", higherTF, higher.Phase.Phase)
		}
		return SignalNone, fmt.Sprintf("trend up, but phase %s is not bullish — cautious on long", higher.Phase.Phase)
	case trend.Down:
		if phase.IsBearish(higher.Phase.Phase) {
			return SignalShort, fmt.Sprintf("trend on %s down, phase %s — short allowed", higherTF, higher.Phase.Phase)
		}
		return SignalNone, fmt.Sprintf("trend down, but phase %s is not bearish — cautious on short", higher.Phase.Phase)
	}
	return SignalNone, reason
}

func narrate(higher *TFReport, higherTF candlestore.Timeframe, tfAlignCount, nTFs int) string {
	var zoneParts []string
	snap := zones.Nearest(higher.ZoneLevels, lastClose(higher.Candles))
	if snap.AtSupportZone {
		zoneParts = append(zoneParts, "at support")
	}
	if snap.AtResistanceZone {
		zoneParts = append(zoneParts, "at resistance")
	}
	if snap.InZone && len(zoneParts) == 0 {
		zoneParts = append(zoneParts, "inside a support/resistance zone")
	}
	zoneStr := "outside key zones"
	if len(zoneParts) > 0 {
		zoneStr = strings.Join(zoneParts, ", ")
	}
	return fmt.Sprintf(
		"Now: higher timeframe — trend %s, phase %s, regime %s; price %s; momentum %s. TF alignment: %d/%d.",
		higher.Trend.Direction, higher.Phase.Phase, higher.Regime.Regime, zoneStr, higher.Momentum.Bias, tfAlignCount, nTFs,
	)
}
