package phase

import (
	"tradepulse/internal/candlestore"
	"tradepulse/internal/indicator"
)

// Wyckoff is the default classifier: structure, volume at range bounds,
// RSI divergence, spring/upthrust and trend strength, with no EMA/ADX/BB/
// OBV/VWAP input — ported from original_source's phase_wyckoff.py (which is
// textually identical to market_phases.py's own detect_phase).
type Wyckoff struct{}

func (Wyckoff) Detect(candles []candlestore.Candle, lookback int, th Thresholds, higherTfPhase *Phase, higherTfTrend *string) Result {
	if len(candles) < 30 {
		return insufficientData()
	}
	c := tail(candles, lookback)

	structure := indicator.Structure(c, 5)
	position, posOk := indicator.PricePositionInRange(c, min(50, len(c)))
	volRatio, volOk := indicator.VolumeRatio(c, 1, 20)
	ret5, ret5Ok := indicator.RecentReturn(c, 5)
	ret20, ret20Ok := indicator.RecentReturn(c, min(20, len(c)-1))
	rsi, rsiOk := indicator.RSI(c, 14)
	lb := min(50, len(c))
	volAtLow, volAtHigh, volAtLowOk, volAtHighOk := indicator.VolumeAtRangeBounds(c, lb, 0.15)
	buyPressure, sellPressure, buyOk, sellOk := indicator.VolumePressureAtBounds(c, lb, 0.15)
	rsiBullDiv, rsiBearDiv := indicator.RSIDivergence(c, 14, min(20, len(c)/2))
	spring, upthrust := indicator.SpringUpthrust(c, min(30, len(c)), min(10, len(c)/3), 0.002)
	trendStrength, trendOk := indicator.TrendStrength(c, 14)
	freshLow, freshHigh := indicator.ZoneFreshness(c, min(20, len(c)), 0.2)

	details := Details{
		Method:            MethodWyckoff,
		Structure:         structure,
		RSIBullishDiverge: rsiBullDiv,
		RSIBearishDiverge: rsiBearDiv,
		Spring:            spring,
		Upthrust:          upthrust,
		FreshLow:          freshLow,
		FreshHigh:         freshHigh,
	}
	if posOk {
		details.PositionInRange = f(position)
	}
	if volOk {
		details.VolumeRatio = f(volRatio)
	}
	if volAtLowOk {
		details.VolumeAtLow = f(volAtLow)
	}
	if volAtHighOk {
		details.VolumeAtHigh = f(volAtHigh)
	}
	if buyOk {
		details.BuyingPressureLow = f(buyPressure)
	}
	if sellOk {
		details.SellingPressureHi = f(sellPressure)
	}
	if trendOk {
		details.TrendStrength = f(trendStrength)
	}
	if ret5Ok {
		details.Return5 = f(ret5)
	}
	if ret20Ok {
		details.Return20 = f(ret20)
	}
	if rsiOk {
		details.RSI = f(rsi)
	}

	pos := orDefault(posOk, position, 0.5)
	volAtLowVal := orDefault(volAtLowOk, volAtLow, 1.0)
	volAtHighVal := orDefault(volAtHighOk, volAtHigh, 1.0)
	buyVal := orDefault(buyOk, buyPressure, 0.0)
	sellVal := orDefault(sellOk, sellPressure, 0.0)
	trendStr := orDefault(trendOk, trendStrength, 0.5)
	vol := orDefault(volOk, volRatio, 1.0)
	r5 := orDefault(ret5Ok, ret5, 0.0)
	r20 := orDefault(ret20Ok, ret20, 0.0)
	rsiVal := orDefault(rsiOk, rsi, 50.0)

	// 1. Capitulation
	if r5 <= th.DropThreshold && vol >= th.VolSpike {
		sc := min64(1.0, abs64(r5)*5+(vol-1)*0.2)
		if rsiVal < 30 {
			sc = clip(sc + 0.05)
		}
		sc = applyHigherTFContext(Capitulation, sc, higherTfPhase, higherTfTrend)
		return finish(Capitulation, sc, details)
	}

	// 2. Recovery
	if ret5Ok && ret20Ok && r5 > 0.01 && r20 < -0.02 {
		strength := min64(1.0, (r5-0.01)/0.02)*0.5 + min64(1.0, abs64(r20)/0.05)*0.3
		sc := clip(0.55 + strength)
		if rsiVal < 35 {
			sc = clip(sc + 0.08)
		}
		if rsiBullDiv {
			sc = clip(sc + 0.05)
		}
		sc = applyHigherTFContext(Recovery, sc, higherTfPhase, higherTfTrend)
		return finish(Recovery, sc, details)
	}

	// 3. Markup
	if structure == "up" && (!ret20Ok || r20 >= -0.01) {
		strength := 0.5
		if ret20Ok {
			strength = (r20 + 0.01) / 0.04
		}
		sc := clip(0.65 + 0.2*min64(1.0, max64(0.0, strength)))
		if rsiVal > 70 {
			sc = clip(sc - 0.1)
		}
		if trendStr > 0.4 {
			sc = clip(sc + 0.03)
		} else if trendStr < 0.2 {
			sc = clip(sc - 0.03)
		}
		sc = applyHigherTFContext(Markup, sc, higherTfPhase, higherTfTrend)
		return finish(Markup, sc, details)
	}

	// 4. Markdown
	if structure == "down" && (!ret20Ok || r20 <= 0.01) {
		strength := 0.5
		if ret20Ok {
			strength = (-r20 + 0.01) / 0.04
		}
		sc := clip(0.65 + 0.2*min64(1.0, max64(0.0, strength)))
		if rsiVal < 30 {
			sc = clip(sc + 0.05)
		}
		if rsiBearDiv {
			sc = clip(sc + 0.03)
		}
		if trendStr > 0.4 {
			sc = clip(sc + 0.03)
		} else if trendStr < 0.2 {
			sc = clip(sc - 0.03)
		}
		sc = applyHigherTFContext(Markdown, sc, higherTfPhase, higherTfTrend)
		return finish(Markdown, sc, details)
	}

	// 5. Range
	if structure == "range" {
		if posOk && pos <= th.RangePositionLow {
			strength := 1.0 - (pos / max64(0.01, th.RangePositionLow))
			sc := clip(0.5 + 0.25*strength)
			if volAtLowVal > 1.15 {
				sc = clip(sc + 0.05)
			}
			if buyVal > 1.15 {
				sc = clip(sc + 0.03)
			}
			if rsiBullDiv {
				sc = clip(sc + 0.04)
			}
			if spring {
				sc = clip(sc + 0.05)
			}
			if trendStr < 0.3 {
				sc = clip(sc + 0.03)
			}
			if freshLow {
				sc = clip(sc + 0.02)
			}
			sc = applyHigherTFContext(Accumulation, sc, higherTfPhase, higherTfTrend)
			return finish(Accumulation, sc, details)
		}
		if posOk && pos >= th.RangePositionHi {
			strength := (pos - th.RangePositionHi) / max64(0.01, 1.0-th.RangePositionHi)
			sc := clip(0.5 + 0.25*min64(1.0, strength))
			if rsiVal > 70 {
				sc = clip(sc + 0.08)
			}
			if volAtHighVal > 1.15 {
				sc = clip(sc + 0.05)
			}
			if sellVal > 1.15 {
				sc = clip(sc + 0.03)
			}
			if rsiBearDiv {
				sc = clip(sc + 0.04)
			}
			if upthrust {
				sc = clip(sc + 0.05)
			}
			if trendStr < 0.3 {
				sc = clip(sc + 0.03)
			}
			if freshHigh {
				sc = clip(sc + 0.02)
			}
			sc = applyHigherTFContext(Distribution, sc, higherTfPhase, higherTfTrend)
			return finish(Distribution, sc, details)
		}
		if r20 > 0.01 {
			strength := min64(1.0, (r20-0.01)/0.02)
			sc := clip(0.4 + 0.2*strength)
			if rsiVal > 70 {
				sc = clip(sc - 0.08)
			}
			sc = applyHigherTFContext(Markup, sc, higherTfPhase, higherTfTrend)
			return finish(Markup, sc, details)
		}
		if r20 < -0.01 {
			strength := min64(1.0, (abs64(r20)-0.01)/0.02)
			sc := clip(0.4 + 0.2*strength)
			if rsiVal < 30 {
				sc = clip(sc + 0.05)
			}
			if rsiBearDiv {
				sc = clip(sc + 0.03)
			}
			sc = applyHigherTFContext(Markdown, sc, higherTfPhase, higherTfTrend)
			return finish(Markdown, sc, details)
		}
		sc := applyHigherTFContext(Accumulation, 0.4, higherTfPhase, higherTfTrend)
		return finish(Accumulation, sc, details)
	}

	// 6. Fallback by return
	if r20 > 0.02 {
		strength := min64(1.0, (r20-0.02)/0.05)
		sc := clip(0.5 + 0.3*strength)
		if rsiVal > 70 {
			sc = clip(sc - 0.1)
		}
		sc = applyHigherTFContext(Markup, sc, higherTfPhase, higherTfTrend)
		return finish(Markup, sc, details)
	}
	if r20 < -0.02 {
		strength := min64(1.0, (abs64(r20)-0.02)/0.05)
		sc := clip(0.5 + 0.3*strength)
		if rsiVal < 30 {
			sc = clip(sc + 0.05)
		}
		if rsiBearDiv {
			sc = clip(sc + 0.03)
		}
		sc = applyHigherTFContext(Markdown, sc, higherTfPhase, higherTfTrend)
		return finish(Markdown, sc, details)
	}
	sc := applyHigherTFContext(Accumulation, 0.3, higherTfPhase, higherTfTrend)
	return finish(Accumulation, sc, details)
}

func finish(p Phase, score float64, d Details) Result {
	return Result{Phase: p, Score: clip(score), Details: d}
}

func tail(candles []candlestore.Candle, lookback int) []candlestore.Candle {
	if len(candles) <= lookback {
		return candles
	}
	return candles[len(candles)-lookback:]
}

func orDefault(ok bool, v, def float64) float64 {
	if ok {
		return v
	}
	return def
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func abs64(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
