// Package contextnow computes the "here and now" gate: is price sitting at
// a level right now, is short-window flow pushing the same way, did the
// last sweep/absorption/last-trades block confirm it. It is the fast,
// single-tick counterpart to internal/coordinator's multi-timeframe call,
// and feeds internal/sandbox's UseContextNowPrimary/UseContextNowOnly
// gates. Grounded in original_source/src/analysis/context_now.py.
package contextnow

import (
	"tradepulse/internal/orderflow"
	"tradepulse/internal/sandbox"
	"tradepulse/internal/venue"
	"tradepulse/internal/zones"
)

// Config holds compute_context_now's keyword defaults.
type Config struct {
	LevelDistancePct float64
	DeltaRatioMin    float64
	UseDOMLevels     bool
}

func DefaultConfig() Config {
	return Config{
		LevelDistancePct: 0.0015,
		DeltaRatioMin:    0.12,
	}
}

// Result is compute_context_now's return dict, narrowed to the fields
// internal/sandbox and internal/events actually consume.
type Result struct {
	AtSupport               bool
	AtResistance            bool
	InZone                  bool
	FlowBullishNow          bool
	FlowBearishNow          bool
	AbsorptionBullish       bool
	AbsorptionBearish       bool
	LastSweepSide           venue.Side
	HasLastSweep            bool
	LastTradesBias          venue.Side
	LastTradesNeutral       bool
	LastBlockSide           venue.Side
	ShortWindowDeltaRatio   float64
	DistanceToSupportPct    *float64
	DistanceToResistancePct *float64
	AllowedLong             bool
	AllowedShort            bool
}

// Compute derives the here-and-now gate from one tick's order-flow read
// and the current trading-zone snapshot (nil when a timeframe has too few
// candles for zones.Build, mirroring trading_zones being absent/empty).
func Compute(currentPrice float64, of orderflow.Snapshot, zonesSnap *zones.Snapshot, cfg Config) Result {
	var res Result

	if cfg.UseDOMLevels {
		res.AtSupport, res.AtResistance = atLevelFromDOM(currentPrice, of.DOM, cfg.LevelDistancePct)
	} else if zonesSnap != nil && currentPrice > 0 {
		res.InZone = zonesSnap.InZone
		if ns := zonesSnap.NearestSupport; ns != nil {
			distPct := (currentPrice - ns.Price) / currentPrice
			res.DistanceToSupportPct = &distPct
			switch {
			case ns.Price > 0 && distPct >= 0 && distPct <= cfg.LevelDistancePct:
				res.AtSupport = true
			case currentPrice >= ns.ZoneLow && currentPrice <= ns.ZoneHigh:
				res.AtSupport = true
			}
		}
		if nr := zonesSnap.NearestResistance; nr != nil {
			distPct := (nr.Price - currentPrice) / currentPrice
			res.DistanceToResistancePct = &distPct
			switch {
			case nr.Price > 0 && distPct >= 0 && distPct <= cfg.LevelDistancePct:
				res.AtResistance = true
			case currentPrice >= nr.ZoneLow && currentPrice <= nr.ZoneHigh:
				res.AtResistance = true
			}
		}
	}

	deltaRatioShort := 0.0
	if of.ShortWindowDelta != nil {
		deltaRatioShort = of.ShortWindowDelta.DeltaRatio
	}
	res.ShortWindowDeltaRatio = deltaRatioShort
	res.FlowBullishNow = deltaRatioShort >= cfg.DeltaRatioMin
	res.FlowBearishNow = deltaRatioShort <= -cfg.DeltaRatioMin

	res.LastSweepSide = of.Sweeps.LastSweepSide
	res.HasLastSweep = of.Sweeps.HasSweep
	res.LastTradesBias = of.LastTrades.Bias
	res.LastTradesNeutral = of.LastTrades.Neutral
	res.LastBlockSide = of.LastTrades.LastBlockSide

	res.AbsorptionBullish = of.Absorption.Bullish
	res.AbsorptionBearish = of.Absorption.Bearish

	res.AllowedLong = res.AtSupport && (res.FlowBullishNow || res.AbsorptionBullish)
	res.AllowedShort = res.AtResistance && (res.FlowBearishNow || res.AbsorptionBearish)

	return res
}

// ToSandbox narrows a Result down to the fields internal/sandbox's gates
// actually read.
func (r Result) ToSandbox() sandbox.ContextNow {
	return sandbox.ContextNow{
		AtSupport:            r.AtSupport,
		AtResistance:         r.AtResistance,
		AllowedLong:          r.AllowedLong,
		AllowedShort:         r.AllowedShort,
		ShortWindowDeltaRatio: r.ShortWindowDeltaRatio,
	}
}

// atLevelFromDOM is the DOM-significant-levels variant of the at-level
// check, used when cfg.UseDOMLevels is set instead of the default
// trading-zones nearest-support/resistance read.
func atLevelFromDOM(currentPrice float64, dom orderflow.DOMResult, levelDistancePct float64) (atSupport, atResistance bool) {
	if currentPrice <= 0 {
		return false, false
	}
	for _, lvl := range dom.SignificantLevels {
		switch lvl.Side {
		case venue.SideBuy:
			if lvl.Price < currentPrice {
				if (currentPrice-lvl.Price)/currentPrice <= levelDistancePct {
					atSupport = true
				}
			}
		case venue.SideSell:
			if lvl.Price > currentPrice {
				if (lvl.Price-currentPrice)/currentPrice <= levelDistancePct {
					atResistance = true
				}
			}
		}
	}
	return atSupport, atResistance
}
