// Package zones implements the Trading-Zone Model (spec.md §4.7): pivot
// extraction, clustering, enrichment, composite strength, trimming, and
// role assignment with breakout confirmation — grounded in
// original_source/src/analysis/trading_zones.py.
package zones

import (
	"sort"

	"tradepulse/internal/candlestore"
	"tradepulse/internal/indicator"
)

// Role is a closed support/resistance enum (spec.md §9: "variants over strings").
type Role string

const (
	Support    Role = "support"
	Resistance Role = "resistance"
)

// Level is one clustered pivot, enriched and role-tracked across the
// candle window it was computed over.
type Level struct {
	Price                float64
	BarIndex             int
	OriginRole           Role
	CurrentRole          Role
	Broken               bool
	BrokenAtBar          *int
	Touches              int
	VolumeAtLevel        float64
	ZoneLow, ZoneHigh    float64
	Recency              float64
	RoundBonus           float64
	NearRoundNumber      bool
	Strength             float64
	ConfluenceTimeframes []string
}

// Config holds the tunable parameters of the model (see internal/config's
// ZonesConfig, which is loaded from YAML into these same names).
type Config struct {
	PivotLeft            int
	PivotRight           int
	ClusterThresholdPct  float64
	VolumeConfirmRatio   float64
	DecayBars            int
	LookbackBars         int
	NearRoundPct         float64
	TrimTopN             int
	ConfluencePct        float64
}

// DefaultConfig matches trading_zones.py's module-level defaults.
func DefaultConfig() Config {
	return Config{
		PivotLeft: 3, PivotRight: 3, ClusterThresholdPct: 0.002, VolumeConfirmRatio: 0.5,
		DecayBars: 50, LookbackBars: 50, NearRoundPct: 0.001, TrimTopN: 20, ConfluencePct: 0.002,
	}
}

// Build runs steps (a) through (f) of the model over one timeframe's
// candles and returns the trimmed, role-assigned level set.
func Build(candles []candlestore.Candle, cfg Config) []*Level {
	if len(candles) < cfg.PivotLeft+cfg.PivotRight+1 {
		return nil
	}
	highs, lows := indicator.PivotHighsLows(candles, cfg.PivotLeft, cfg.PivotRight)
	raw := make([]*Level, 0, len(highs)+len(lows))
	for _, h := range highs {
		raw = append(raw, &Level{Price: h.Price, BarIndex: h.Index, OriginRole: Resistance, CurrentRole: Resistance})
	}
	for _, l := range lows {
		raw = append(raw, &Level{Price: l.Price, BarIndex: l.Index, OriginRole: Support, CurrentRole: Support})
	}

	clustered := cluster(raw, cfg.ClusterThresholdPct)
	enrich(clustered, candles, cfg)
	compositeStrength(clustered)
	trimmed := trim(clustered, cfg.TrimTopN)
	assignRoles(trimmed, candles, cfg.VolumeConfirmRatio)
	return trimmed
}

// cluster sorts pivots by price and groups consecutive same-origin pivots
// whose price differs from the running cluster reference by at most
// thresholdPct, per spec.md §4.7(b).
func cluster(levels []*Level, thresholdPct float64) []*Level {
	byOrigin := map[Role][]*Level{}
	for _, l := range levels {
		byOrigin[l.OriginRole] = append(byOrigin[l.OriginRole], l)
	}
	var out []*Level
	for origin, group := range byOrigin {
		sort.Slice(group, func(i, j int) bool { return group[i].Price < group[j].Price })
		i := 0
		for i < len(group) {
			clusterMembers := []*Level{group[i]}
			ref := group[i].Price
			j := i + 1
			for j < len(group) && priceDiffPct(group[j].Price, ref) <= thresholdPct {
				clusterMembers = append(clusterMembers, group[j])
				j++
			}
			out = append(out, mergeCluster(clusterMembers, origin))
			i = j
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

func priceDiffPct(price, ref float64) float64 {
	if ref == 0 {
		return 1
	}
	d := price - ref
	if d < 0 {
		d = -d
	}
	return d / ref
}

func mergeCluster(members []*Level, origin Role) *Level {
	prices := make([]float64, len(members))
	maxBar := members[0].BarIndex
	for i, m := range members {
		prices[i] = m.Price
		if m.BarIndex > maxBar {
			maxBar = m.BarIndex
		}
	}
	sort.Float64s(prices)
	return &Level{
		Price:       median(prices),
		BarIndex:    maxBar,
		OriginRole:  origin,
		CurrentRole: origin,
		Touches:     len(members),
	}
}

func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}
