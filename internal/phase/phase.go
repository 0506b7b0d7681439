// Package phase classifies a window of candles into one of six market
// phases using one of three interchangeable strategies (Wyckoff, the
// default; indicators-only; and price-action structure), grounded in
// original_source/src/analysis/{phase_wyckoff,phase_indicators,phase_structure}.py.
package phase

import "tradepulse/internal/candlestore"

// Phase is a closed set of market phases (spec.md §9: "variants over strings").
type Phase string

const (
	Accumulation Phase = "accumulation"
	Markup       Phase = "markup"
	Distribution Phase = "distribution"
	Markdown     Phase = "markdown"
	Capitulation Phase = "capitulation"
	Recovery     Phase = "recovery"
)

// Bullish/Bearish classify phases for higher-TF agreement scoring and for
// directional-accuracy bookkeeping, matching BULLISH_PHASES/BEARISH_PHASES
// in market_phases.py (capitulation counts bullish: it is read as "expect a
// bounce").
var bullishPhases = map[Phase]bool{Markup: true, Recovery: true, Capitulation: true}
var bearishPhases = map[Phase]bool{Markdown: true, Distribution: true}

func IsBullish(p Phase) bool { return bullishPhases[p] }
func IsBearish(p Phase) bool { return bearishPhases[p] }

// Method selects which classifier strategy produces a Result.
type Method string

const (
	MethodWyckoff    Method = "wyckoff"
	MethodIndicators Method = "indicators"
	MethodStructure  Method = "structure"
)

// Thresholds is the tunable threshold profile, varying by timeframe class
// per spec.md §4.5 ("short" TFs use looser thresholds than "long" ones).
type Thresholds struct {
	VolSpike         float64
	DropThreshold    float64
	RangePositionLow float64
	RangePositionHi  float64
}

var shortProfile = Thresholds{VolSpike: 2.0, DropThreshold: -0.04, RangePositionLow: 0.30, RangePositionHi: 0.70}
var longProfile = Thresholds{VolSpike: 1.6, DropThreshold: -0.06, RangePositionLow: 0.35, RangePositionHi: 0.65}
var defaultProfile = Thresholds{VolSpike: 1.8, DropThreshold: -0.05, RangePositionLow: 0.35, RangePositionHi: 0.65}

// ThresholdsForTimeframe returns the short or long threshold profile; short
// TFs are everything at or under 30m.
func ThresholdsForTimeframe(tf candlestore.Timeframe) Thresholds {
	switch tf {
	case candlestore.TF1m, candlestore.TF3m, candlestore.TF5m, candlestore.TF15m, candlestore.TF30m:
		return shortProfile
	case candlestore.TF1h, candlestore.TF2h, candlestore.TF4h, candlestore.TF6h, candlestore.TF12h,
		candlestore.TFDay, candlestore.TFWeek, candlestore.TFMonth:
		return longProfile
	default:
		return defaultProfile
	}
}

// Details carries the diagnostic signal values behind a Result, named
// rather than stashed in a map so callers get compile-time field access.
type Details struct {
	Method             Method
	Structure          string
	PositionInRange    *float64
	VolumeRatio        *float64
	VolumeAtLow        *float64
	VolumeAtHigh       *float64
	BuyingPressureLow  *float64
	SellingPressureHi  *float64
	RSI                *float64
	RSIBullishDiverge  bool
	RSIBearishDiverge  bool
	Spring             bool
	Upthrust           bool
	TrendStrength      *float64
	FreshLow           bool
	FreshHigh          bool
	Return5            *float64
	Return20           *float64
	EMATrend           string
	ADX                *float64
	PlusDI             *float64
	MinusDI            *float64
	BBWidth            *float64
	OBVSlope           *float64
	VWAPDistance       *float64
	BOSUp              bool
	BOSDown            bool
	CHOCHBullish       bool
	CHOCHBearish       bool
	PivotHighsCount    int
	PivotLowsCount     int
	InsufficientData   bool
}

// Result is the outcome of a single classifier run.
type Result struct {
	Phase          Phase
	Score          float64
	SecondaryPhase Phase
	ScoreGap       float64
	PhaseUnclear   bool
	Details        Details
}

// Classifier is the shared signature of all three phase strategies.
type Classifier interface {
	Detect(candles []candlestore.Candle, lookback int, th Thresholds, higherTfPhase *Phase, higherTfTrend *string) Result
}

func clip(x float64) float64 { return max0min1(x) }

func max0min1(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func f(x float64) *float64 { return &x }

// applyHigherTFContext nudges score by +/-0.04 when a higher timeframe's
// phase or trend agrees/disagrees with the candidate's directional class,
// per spec.md §4.5 and market_phases.py's _apply_higher_tf_context.
func applyHigherTFContext(phase Phase, score float64, higherTfPhase *Phase, higherTfTrend *string) float64 {
	if higherTfPhase == nil && higherTfTrend == nil {
		return score
	}
	var agree, disagree bool
	switch {
	case IsBullish(phase):
		agree = (higherTfPhase != nil && IsBullish(*higherTfPhase)) || (higherTfTrend != nil && *higherTfTrend == "up")
		disagree = (higherTfPhase != nil && IsBearish(*higherTfPhase)) || (higherTfTrend != nil && *higherTfTrend == "down")
	case IsBearish(phase):
		agree = (higherTfPhase != nil && IsBearish(*higherTfPhase)) || (higherTfTrend != nil && *higherTfTrend == "down")
		disagree = (higherTfPhase != nil && IsBullish(*higherTfPhase)) || (higherTfTrend != nil && *higherTfTrend == "up")
	default:
		return score
	}
	switch {
	case agree:
		return clip(score + 0.04)
	case disagree:
		return clip(score - 0.04)
	default:
		return score
	}
}

func insufficientData() Result {
	return Result{Phase: Accumulation, Score: 0, Details: Details{InsufficientData: true}}
}
