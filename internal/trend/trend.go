// Package trend computes trend direction/strength, market regime and
// momentum off a candle window, grounded in
// original_source/src/analysis/market_trend.py.
package trend

import (
	"tradepulse/internal/candlestore"
	"tradepulse/internal/indicator"
)

// Direction is a closed trend-direction enum (spec.md §9: "variants over strings").
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
	Flat Direction = "flat"
)

// Regime is the volatility/ADX-derived market regime.
type Regime string

const (
	RegimeTrend Regime = "trend"
	RegimeRange Regime = "range"
	RegimeSurge Regime = "surge"
)

// MomentumBias and MomentumStrength compose into the Momentum result.
type MomentumBias string
type MomentumStrength string

const (
	MomentumBullish MomentumBias = "bullish"
	MomentumBearish MomentumBias = "bearish"
	MomentumNeutral MomentumBias = "neutral"

	MomentumStrong MomentumStrength = "strong"
	MomentumFading MomentumStrength = "fading"
	MomentumFlat   MomentumStrength = "flat"
)

// Config holds the tunable thresholds for trend classification.
type Config struct {
	FlatThreshold     float64
	StrengthMin       float64
	UnclearThreshold  float64
	MinGap            float64
	LowVolumeThreshold float64
}

// DefaultConfig matches the thresholds hardcoded in market_trend.py.
func DefaultConfig() Config {
	return Config{FlatThreshold: 0.25, StrengthMin: 0.35, UnclearThreshold: 0.3, MinGap: 0.08}
}

// Details carries the diagnostic signal values behind a trend Result.
type Details struct {
	Structure     string
	EMATrend      string
	EMA20, EMA50, EMA200 *float64
	ADX, PlusDI, MinusDI *float64
	TrendStrength *float64
	VWAPDistance  *float64
	OBVSlope      *float64
	Return5       *float64
	Return20      *float64
	InsufficientData bool
}

// Result is the outcome of a trend detection run.
type Result struct {
	Direction           Direction
	Strength            float64
	TrendConfidence     float64
	TrendUnclear        bool
	SecondaryDirection  Direction
	SecondaryStrength   float64
	StrengthGap         float64
	BullishScore        float64
	BearishScore        float64
	Details             Details
}

func f(x float64) *float64 { return &x }

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
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

// Detect computes direction, strength, regime inputs and momentum-adjacent
// diagnostics for a candle window, accumulating independent bullish/bearish
// evidence exactly as market_trend.py's detect_trend does.
func Detect(candles []candlestore.Candle, lookback int, cfg Config) Result {
	if len(candles) < 30 {
		return Result{Direction: Flat, TrendUnclear: true, Details: Details{InsufficientData: true}}
	}

	lookbackEff := min(lookback, len(candles))
	if len(candles) >= 200 {
		lookbackEff = min(max(lookback, 200), len(candles))
	}
	c := candles[len(candles)-lookbackEff:]

	structure := indicator.Structure(c, 5)
	ema20, ema50, ema200, emaTrend, emaOk := indicator.EMAStack(c)
	adxVal, plusDI, minusDI, adxOk := indicator.ADX(c, 14)
	trendStr, trendOk := indicator.TrendStrength(c, 14)
	_, vwapDistance, vwapOk := indicator.VWAPRolling(c, min(50, len(c)))
	var obvSlope float64
	var obvOk bool
	if len(c) >= 15 {
		obvSlope, obvOk = indicator.OBVSlope(c, 14)
	}
	ret5, ret5Ok := indicator.RecentReturn(c, 5)
	ret20, ret20Ok := indicator.RecentReturn(c, min(20, len(c)-1))

	details := Details{Structure: structure, EMATrend: emaTrend}
	if emaOk {
		details.EMA20, details.EMA50, details.EMA200 = f(ema20), f(ema50), f(ema200)
	}
	if adxOk {
		details.ADX, details.PlusDI, details.MinusDI = f(adxVal), f(plusDI), f(minusDI)
	}
	if trendOk {
		details.TrendStrength = f(trendStr)
	}
	if vwapOk {
		details.VWAPDistance = f(vwapDistance)
	}
	if obvOk {
		details.OBVSlope = f(obvSlope)
	}
	if ret5Ok {
		details.Return5 = f(ret5)
	}
	if ret20Ok {
		details.Return20 = f(ret20)
	}

	var bull, bear float64

	if structure == "up" {
		bull += 0.2
	} else if structure == "down" {
		bear += 0.2
	}

	if emaTrend == "bullish" {
		bull += 0.18
	} else if emaTrend == "bearish" {
		bear += 0.18
	}

	adx := orDefault(adxOk, adxVal, 0.0)
	if adx >= 25 {
		adxContrib := min64(0.15, (adx-25)/50)
		if adxOk {
			if plusDI > minusDI {
				bull += 0.12 + adxContrib
			} else {
				bear += 0.12 + adxContrib
			}
		}
	} else if adx >= 15 && adxOk {
		if plusDI > minusDI {
			bull += 0.06
		} else {
			bear += 0.06
		}
	}

	if ret5Ok {
		if ret5 > 0.005 {
			bull += 0.08 * min64(1.0, ret5/0.02)
		} else if ret5 < -0.005 {
			bear += 0.08 * min64(1.0, -ret5/0.02)
		}
	}
	if ret20Ok {
		if ret20 > 0.01 {
			bull += 0.1 * min64(1.0, ret20/0.05)
		} else if ret20 < -0.01 {
			bear += 0.1 * min64(1.0, -ret20/0.05)
		}
	}

	vd := orDefault(vwapOk, vwapDistance, 0.0)
	if vd > 0.001 {
		bull += 0.1 * min64(1.0, vd/0.02)
	} else if vd < -0.001 {
		bear += 0.1 * min64(1.0, -vd/0.02)
	}

	obv := orDefault(obvOk, obvSlope, 0.0)
	if obv > 0.03 {
		bull += 0.08 * min64(1.0, obv/0.1)
	} else if obv < -0.03 {
		bear += 0.08 * min64(1.0, -obv/0.1)
	}

	bull = min64(1.0, bull)
	bear = min64(1.0, bear)

	flatThreshold := cfg.FlatThreshold
	if flatThreshold == 0 {
		flatThreshold = 0.25
	}

	var direction Direction
	var strength, secondaryStrength float64
	switch {
	case bull > bear && bull >= flatThreshold:
		direction, strength, secondaryStrength = Up, bull, bear
	case bear > bull && bear >= flatThreshold:
		direction, strength, secondaryStrength = Down, bear, bull
	default:
		direction, strength, secondaryStrength = Flat, max64(bull, bear), min64(bull, bear)
	}

	strengthGap := max64(0.0, strength-secondaryStrength)

	var secondaryDirection Direction
	switch direction {
	case Up:
		secondaryDirection = Down
	case Down:
		secondaryDirection = Up
	default:
		if bull >= bear {
			secondaryDirection = Up
		} else {
			secondaryDirection = Down
		}
	}

	total := bull + bear
	trendConfidence := 0.5
	if total > 0 {
		switch direction {
		case Up:
			trendConfidence = bull / total
		case Down:
			trendConfidence = bear / total
		default:
			trendConfidence = max64(bull, bear) / total
		}
	}
	trendConfidence = clip01(trendConfidence)

	strengthMin := cfg.StrengthMin
	if strengthMin == 0 {
		strengthMin = 0.35
	}
	unclearThreshold := cfg.UnclearThreshold
	if unclearThreshold == 0 {
		unclearThreshold = 0.3
	}
	minGap := cfg.MinGap
	if minGap == 0 {
		minGap = 0.08
	}
	trendUnclear := strength < unclearThreshold || strength < strengthMin || strengthGap < minGap

	return Result{
		Direction:          direction,
		Strength:           strength,
		TrendConfidence:    trendConfidence,
		TrendUnclear:       trendUnclear,
		SecondaryDirection: secondaryDirection,
		SecondaryStrength:  secondaryStrength,
		StrengthGap:        strengthGap,
		BullishScore:       bull,
		BearishScore:       bear,
		Details:            details,
	}
}

func max(a, b int) int {
	if a > b {
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

