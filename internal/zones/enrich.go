package zones

import (
	"sort"

	"tradepulse/internal/candlestore"
	"tradepulse/internal/indicator"
)

// enrich fills volumeAtLevel, zoneLow/High, roundBonus/nearRoundNumber and
// recency for each level, per spec.md §4.7(c).
func enrich(levels []*Level, candles []candlestore.Candle, cfg Config) {
	if len(candles) == 0 {
		return
	}
	atr, ok := indicator.ATR(candles, 14)
	if !ok {
		atr = averageRange(candles)
	}
	lastBar := len(candles) - 1
	for _, lvl := range levels {
		band := max64(0.001*lvl.Price, 0.5*atr)
		var vol float64
		for _, c := range candles {
			if c.Low <= lvl.Price+band && c.High >= lvl.Price-band {
				vol += c.Volume
			}
		}
		lvl.VolumeAtLevel = vol
		lvl.ZoneLow = lvl.Price - 0.5*atr
		lvl.ZoneHigh = lvl.Price + 0.5*atr

		step := roundStep(lvl.Price)
		nearest := roundToStep(lvl.Price, step)
		distPct := priceDiffPct(lvl.Price, nearest)
		nearPct := cfg.NearRoundPct
		if nearPct == 0 {
			nearPct = 0.001
		}
		lvl.RoundBonus = max64(0, 1-distPct/nearPct)
		lvl.NearRoundNumber = lvl.RoundBonus > 0

		decayBars := cfg.DecayBars
		if decayBars == 0 {
			decayBars = 50
		}
		ageBars := lastBar - lvl.BarIndex
		if ageBars < 0 {
			ageBars = 0
		}
		lvl.Recency = 1.0 / (1.0 + float64(ageBars)/float64(decayBars))
	}
}

func averageRange(candles []candlestore.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	var sum float64
	for _, c := range candles {
		sum += c.High - c.Low
	}
	return sum / float64(len(candles))
}

// roundStep picks the magnitude-appropriate rounding step: 1000 at >=100k,
// 500 at >=10k, else 1% of price, per spec.md §4.7(c).
func roundStep(price float64) float64 {
	switch {
	case price >= 100_000:
		return 1000
	case price >= 10_000:
		return 500
	default:
		return 0.01 * price
	}
}

func roundToStep(price, step float64) float64 {
	if step <= 0 {
		return price
	}
	n := price / step
	lower := float64(int64(n)) * step
	upper := lower + step
	if price-lower <= upper-price {
		return lower
	}
	return upper
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// compositeStrength computes the 0..1 composite strength from normalized
// touches, volume ratio, recency and round-number bonus, per spec.md
// §4.7(d): strength = 0.35*touchesNorm + 0.25*volumeRatio + 0.25*recency + 0.15*roundBonus.
func compositeStrength(levels []*Level) {
	if len(levels) == 0 {
		return
	}
	maxTouches := 1
	var totalVolume, avgVolume float64
	for _, l := range levels {
		if l.Touches > maxTouches {
			maxTouches = l.Touches
		}
		totalVolume += l.VolumeAtLevel
	}
	if len(levels) > 0 {
		avgVolume = totalVolume / float64(len(levels))
	}
	for _, l := range levels {
		touchesNorm := float64(l.Touches) / float64(maxTouches)
		volumeRatio := 1.0
		if avgVolume > 0 {
			volumeRatio = l.VolumeAtLevel / avgVolume
		}
		volumeRatio = clip01(volumeRatio / 2) // normalize typical 0..2x band into 0..1
		l.Strength = clip01(0.35*touchesNorm + 0.25*volumeRatio + 0.25*l.Recency + 0.15*l.RoundBonus)
	}
}

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// trim sorts by (strength desc, barIndex desc) and keeps at most topN
// levels, per spec.md §4.7(e). topN<=0 means "keep all".
func trim(levels []*Level, topN int) []*Level {
	sorted := append([]*Level(nil), levels...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Strength != sorted[j].Strength {
			return sorted[i].Strength > sorted[j].Strength
		}
		return sorted[i].BarIndex > sorted[j].BarIndex
	})
	if topN > 0 && len(sorted) > topN {
		sorted = sorted[:topN]
	}
	return sorted
}

// assignRoles walks forward from each level's barIndex+1 looking for the
// first bar whose close breaks the level; a break only counts if that bar's
// volume is >= volumeConfirmRatio * MA20(volume). This implements the
// specified "stop at first attempted breach" quirk: an unconfirmed breach
// halts the scan for that level even though a later bar might have
// confirmed it (spec.md §4.7(f), §9 Open Question 1 — kept as specified,
// see DESIGN.md).
func assignRoles(levels []*Level, candles []candlestore.Candle, volumeConfirmRatio float64) {
	if volumeConfirmRatio == 0 {
		volumeConfirmRatio = 0.5
	}
	for _, lvl := range levels {
		for i := lvl.BarIndex + 1; i < len(candles); i++ {
			breaks := false
			switch lvl.CurrentRole {
			case Resistance:
				breaks = candles[i].Close > lvl.Price
			case Support:
				breaks = candles[i].Close < lvl.Price
			}
			if !breaks {
				continue
			}
			ma20 := movingAverageVolume(candles, i, 20)
			if candles[i].Volume < volumeConfirmRatio*ma20 {
				// Unconfirmed breach: stop scanning this level entirely.
				break
			}
			lvl.Broken = true
			idx := i
			lvl.BrokenAtBar = &idx
			if lvl.CurrentRole == Resistance {
				lvl.CurrentRole = Support
			} else {
				lvl.CurrentRole = Resistance
			}
			break
		}
	}
}

func movingAverageVolume(candles []candlestore.Candle, endIdx, window int) float64 {
	start := endIdx - window
	if start < 0 {
		start = 0
	}
	var sum float64
	count := 0
	for i := start; i < endIdx; i++ {
		sum += candles[i].Volume
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
