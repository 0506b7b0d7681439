package phase

import (
	"tradepulse/internal/candlestore"
	"tradepulse/internal/indicator"
)

// Indicators classifies a window using EMA stack, ADX, Bollinger width,
// RSI, OBV slope and VWAP distance only — no Wyckoff structure/volume-at-
// bounds — ported from original_source's phase_indicators.py.
type Indicators struct{}

func (Indicators) Detect(candles []candlestore.Candle, lookback int, th Thresholds, higherTfPhase *Phase, higherTfTrend *string) Result {
	if len(candles) < 30 {
		return insufficientData()
	}
	c := tail(candles, lookback)

	_, _, _, emaTrend, emaOk := indicator.EMAStack(c)
	adxVal, plusDI, minusDI, adxOk := indicator.ADX(c, 14)
	bbWidth, bbOk := indicator.BBWidth(c, 20, 2.0)
	rsi, rsiOk := indicator.RSI(c, 14)
	var obvSlope float64
	var obvOk bool
	if len(c) >= 15 {
		obvSlope, obvOk = indicator.OBVSlope(c, 14)
	}
	_, vwapDistance, vwapOk := indicator.VWAPRolling(c, min(50, len(c)))
	position, posOk := indicator.PricePositionInRange(c, min(50, len(c)))
	volRatio, volOk := indicator.VolumeRatio(c, 3, 20)
	ret5, ret5Ok := indicator.RecentReturn(c, 5)
	ret20, ret20Ok := indicator.RecentReturn(c, min(20, len(c)-1))

	details := Details{Method: MethodIndicators, EMATrend: emaTrend}
	if adxOk {
		details.ADX, details.PlusDI, details.MinusDI = f(adxVal), f(plusDI), f(minusDI)
	}
	if bbOk {
		details.BBWidth = f(bbWidth)
	}
	if rsiOk {
		details.RSI = f(rsi)
	}
	if obvOk {
		details.OBVSlope = f(obvSlope)
	}
	if vwapOk {
		details.VWAPDistance = f(vwapDistance)
	}
	if posOk {
		details.PositionInRange = f(position)
	}
	if ret5Ok {
		details.Return5 = f(ret5)
	}
	if ret20Ok {
		details.Return20 = f(ret20)
	}

	adx := orDefault(adxOk, adxVal, 0.0)
	bbW := orDefault(bbOk, bbWidth, 0.05)
	rsiVal := orDefault(rsiOk, rsi, 50.0)
	obvS := orDefault(obvOk, obvSlope, 0.0)
	vwapDist := orDefault(vwapOk, vwapDistance, 0.0)
	pos := orDefault(posOk, position, 0.5)
	vol := orDefault(volOk, volRatio, 1.0)
	r5 := orDefault(ret5Ok, ret5, 0.0)
	r20 := orDefault(ret20Ok, ret20, 0.0)
	_ = emaOk

	if r5 <= th.DropThreshold && vol >= th.VolSpike && rsiVal < 30 {
		sc := clip(min64(1.0, abs64(r5)*4+(vol-1)*0.15))
		sc = applyHigherTFContext(Capitulation, sc, higherTfPhase, higherTfTrend)
		return finish(Capitulation, sc, details)
	}

	if ret5Ok && ret20Ok && r5 > 0.008 && r20 < -0.015 {
		sc := 0.5 + 0.2*min64(1.0, r5/0.02) + 0.2*min64(1.0, abs64(r20)/0.04)
		if rsiVal < 40 {
			sc += 0.05
		}
		if vwapDist > 0 || obvS > 0.03 {
			sc += 0.05
		}
		sc = applyHigherTFContext(Recovery, clip(sc), higherTfPhase, higherTfTrend)
		return finish(Recovery, sc, details)
	}

	if emaTrend == "bullish" && adx > 22 {
		sc := 0.55 + 0.15*min64(1.0, (adx-22)/30)
		if adxOk && plusDI > minusDI {
			sc += 0.08
		}
		if vwapDist > 0 {
			sc += 0.05
		}
		if obvS > 0.03 {
			sc += 0.05
		}
		if rsiVal >= 40 && rsiVal <= 65 {
			sc += 0.05
		} else if rsiVal > 70 {
			sc -= 0.1
		}
		sc = applyHigherTFContext(Markup, clip(sc), higherTfPhase, higherTfTrend)
		return finish(Markup, sc, details)
	}

	if emaTrend == "bearish" && adx > 22 {
		sc := 0.55 + 0.15*min64(1.0, (adx-22)/30)
		if adxOk && minusDI > plusDI {
			sc += 0.08
		}
		if vwapDist < 0 {
			sc += 0.05
		}
		if obvS < -0.03 {
			sc += 0.05
		}
		if rsiVal >= 35 && rsiVal <= 60 {
			sc += 0.03
		} else if rsiVal < 25 {
			sc += 0.05
		}
		sc = applyHigherTFContext(Markdown, clip(sc), higherTfPhase, higherTfTrend)
		return finish(Markdown, sc, details)
	}

	if adx < 20 && bbW < 0.06 && pos <= th.RangePositionLow {
		sc := 0.45 + 0.25*(1.0-pos/max64(0.01, th.RangePositionLow))
		if rsiVal < 45 {
			sc += 0.05
		}
		if bbW < 0.04 {
			sc += 0.05
		}
		sc = applyHigherTFContext(Accumulation, clip(sc), higherTfPhase, higherTfTrend)
		return finish(Accumulation, sc, details)
	}

	if adx < 20 && bbW < 0.06 && pos >= th.RangePositionHi {
		sc := 0.45 + 0.25*(pos-th.RangePositionHi)/max64(0.01, 1.0-th.RangePositionHi)
		if rsiVal > 55 {
			sc += 0.05
		}
		if bbW < 0.04 {
			sc += 0.05
		}
		sc = applyHigherTFContext(Distribution, clip(sc), higherTfPhase, higherTfTrend)
		return finish(Distribution, sc, details)
	}

	if emaTrend == "bullish" || (vwapDist > 0 && obvS > 0) {
		sc := 0.45
		if emaTrend == "bullish" {
			sc += 0.15
		}
		if vwapDist > 0 {
			sc += 0.1
		}
		sc = applyHigherTFContext(Markup, clip(sc), higherTfPhase, higherTfTrend)
		return finish(Markup, sc, details)
	}
	if emaTrend == "bearish" || (vwapDist < 0 && obvS < 0) {
		sc := 0.45
		if emaTrend == "bearish" {
			sc += 0.15
		}
		if vwapDist < 0 {
			sc += 0.1
		}
		sc = applyHigherTFContext(Markdown, clip(sc), higherTfPhase, higherTfTrend)
		return finish(Markdown, sc, details)
	}

	if pos <= 0.5 {
		sc := clip(0.35 + 0.2*(1-pos))
		sc = applyHigherTFContext(Accumulation, sc, higherTfPhase, higherTfTrend)
		return finish(Accumulation, sc, details)
	}
	sc := clip(0.35 + 0.2*pos)
	sc = applyHigherTFContext(Distribution, sc, higherTfPhase, higherTfTrend)
	return finish(Distribution, sc, details)
}
