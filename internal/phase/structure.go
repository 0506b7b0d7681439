package phase

import (
	"tradepulse/internal/candlestore"
	"tradepulse/internal/indicator"
)

// Structure classifies a window using pivot highs/lows, break-of-structure
// and change-of-character only — no indicators, no Wyckoff volume-at-bounds
// — ported from original_source's phase_structure.py.
type Structure struct{}

func (Structure) Detect(candles []candlestore.Candle, lookback int, th Thresholds, higherTfPhase *Phase, higherTfTrend *string) Result {
	if len(candles) < 40 {
		return insufficientData()
	}
	c := tail(candles, lookback)

	highs, lows := indicator.PivotHighsLows(c, 2, 2)
	structure := indicator.StructureFromPivots(highs, lows, 3)
	bosUp, bosDown, chochBullish, chochBearish := indicator.BOSCHOCH(c, highs, lows, structure)

	ret5, ret5Ok := indicator.RecentReturn(c, 5)
	ret20, ret20Ok := indicator.RecentReturn(c, min(20, len(c)-1))
	volRatio, volOk := indicator.VolumeRatio(c, 3, 20)

	r5 := orDefault(ret5Ok, ret5, 0.0)
	r20 := orDefault(ret20Ok, ret20, 0.0)
	vol := orDefault(volOk, volRatio, 1.0)

	details := Details{
		Method:          MethodStructure,
		Structure:       structure,
		BOSUp:           bosUp,
		BOSDown:         bosDown,
		CHOCHBullish:    chochBullish,
		CHOCHBearish:    chochBearish,
		PivotHighsCount: len(highs),
		PivotLowsCount:  len(lows),
	}
	if ret5Ok {
		details.Return5 = f(ret5)
	}
	if ret20Ok {
		details.Return20 = f(ret20)
	}

	// Capitulation
	if r5 <= th.DropThreshold && vol >= th.VolSpike && structure == "down" && !chochBullish {
		sc := clip(min64(1.0, abs64(r5)*4+(vol-1)*0.15))
		sc = applyHigherTFContext(Capitulation, sc, higherTfPhase, higherTfTrend)
		return finish(Capitulation, sc, details)
	}

	// Recovery: bullish CHOCH after downtrend plus a bounce
	if chochBullish && (r5 > 0.005 || r20 < -0.02) {
		sc := 0.55 + 0.2*min64(1.0, max64(0, r5)/0.02)
		if bosUp {
			sc += 0.1
		}
		sc = applyHigherTFContext(Recovery, clip(sc), higherTfPhase, higherTfTrend)
		return finish(Recovery, sc, details)
	}

	// Markup: bullish structure + BOS up
	if structure == "up" && bosUp {
		bonus := 0.5
		if ret20Ok && r20 >= -0.01 {
			bonus += 0.5
		}
		sc := clip(0.65 + 0.2*bonus)
		sc = applyHigherTFContext(Markup, sc, higherTfPhase, higherTfTrend)
		return finish(Markup, sc, details)
	}

	// Markdown: bearish structure + BOS down
	if structure == "down" && bosDown && !chochBullish {
		bonus := 0.5
		if ret20Ok && r20 <= 0.01 {
			bonus += 0.5
		}
		sc := clip(0.65 + 0.2*bonus)
		sc = applyHigherTFContext(Markdown, sc, higherTfPhase, higherTfTrend)
		return finish(Markdown, sc, details)
	}

	// Accumulation: bullish CHOCH, not yet confirmed by BOS up
	if chochBullish && !bosUp {
		sc := clip(0.5 + 0.2*min64(1.0, max64(0, r5)/0.01))
		sc = applyHigherTFContext(Accumulation, sc, higherTfPhase, higherTfTrend)
		return finish(Accumulation, sc, details)
	}

	// Distribution: bearish CHOCH, not yet confirmed by BOS down
	if chochBearish && !bosDown {
		sc := clip(0.5 + 0.2*min64(1.0, max64(0, -r5)/0.01))
		sc = applyHigherTFContext(Distribution, sc, higherTfPhase, higherTfTrend)
		return finish(Distribution, sc, details)
	}

	// Fallback by structure alone
	if structure == "up" {
		sc := clip(0.45)
		if ret20Ok && r20 > -0.02 {
			sc = clip(sc + 0.15)
		}
		sc = applyHigherTFContext(Markup, sc, higherTfPhase, higherTfTrend)
		return finish(Markup, sc, details)
	}
	if structure == "down" {
		sc := clip(0.45)
		if ret20Ok && r20 < 0.02 {
			sc = clip(sc + 0.15)
		}
		sc = applyHigherTFContext(Markdown, sc, higherTfPhase, higherTfTrend)
		return finish(Markdown, sc, details)
	}

	sc := applyHigherTFContext(Accumulation, 0.35, higherTfPhase, higherTfTrend)
	return finish(Accumulation, sc, details)
}
