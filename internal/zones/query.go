package zones

// Snapshot bundles the level set produced by Build with the derived queries
// of spec.md §4.7(g)-(i): nearest levels, in-zone status, recent flips and
// cross-timeframe confluence.
type Snapshot struct {
	Levels           []*Level
	NearestSupport   *Level
	NearestResistance *Level
	InZone           bool
	AtSupportZone    bool
	AtResistanceZone bool
	RecentFlips      []*Level
}

// Nearest finds the closest support at or below close and the closest
// resistance at or above close, and reports whether close sits inside
// either one's zone band, per spec.md §4.7(g).
func Nearest(levels []*Level, close float64) Snapshot {
	snap := Snapshot{Levels: levels}
	var bestSupportDist, bestResistanceDist float64
	for _, l := range levels {
		if l.CurrentRole == Support && l.Price <= close {
			d := close - l.Price
			if snap.NearestSupport == nil || d < bestSupportDist {
				snap.NearestSupport = l
				bestSupportDist = d
			}
		}
		if l.CurrentRole == Resistance && l.Price >= close {
			d := l.Price - close
			if snap.NearestResistance == nil || d < bestResistanceDist {
				snap.NearestResistance = l
				bestResistanceDist = d
			}
		}
	}
	if s := snap.NearestSupport; s != nil && close >= s.ZoneLow && close <= s.ZoneHigh {
		snap.AtSupportZone = true
	}
	if r := snap.NearestResistance; r != nil && close >= r.ZoneLow && close <= r.ZoneHigh {
		snap.AtResistanceZone = true
	}
	snap.InZone = snap.AtSupportZone || snap.AtResistanceZone
	return snap
}

// RecentFlips returns levels whose BrokenAtBar falls within lookbackBars of
// the most recent bar index (len(candles)-1), per spec.md §4.7(h).
func RecentFlips(levels []*Level, lastBarIndex, lookbackBars int) []*Level {
	var out []*Level
	for _, l := range levels {
		if l.BrokenAtBar == nil {
			continue
		}
		if lastBarIndex-*l.BrokenAtBar <= lookbackBars {
			out = append(out, l)
		}
	}
	return out
}

// Confluence marks, on each level of primary, the timeframe names among
// others whose own level set has a level within confluencePct of its price,
// per spec.md §4.7(i).
func Confluence(primary []*Level, primaryTF string, others map[string][]*Level, confluencePct float64) {
	for _, l := range primary {
		tfs := []string{primaryTF}
		for tf, levels := range others {
			if tf == primaryTF {
				continue
			}
			for _, o := range levels {
				if priceDiffPct(l.Price, o.Price) <= confluencePct {
					tfs = append(tfs, tf)
					break
				}
			}
		}
		l.ConfluenceTimeframes = tfs
	}
}
