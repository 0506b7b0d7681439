package orderflow

import (
	"math"
	"sort"
	"time"

	"tradepulse/internal/venue"
)

func inWindow(trades []venue.Trade, windowEnd time.Time, windowSec float64) []venue.Trade {
	if len(trades) == 0 || windowSec <= 0 {
		return nil
	}
	start := windowEnd.Add(-time.Duration(windowSec * float64(time.Second)))
	out := make([]venue.Trade, 0, len(trades))
	for _, t := range trades {
		if !t.Timestamp.Before(start) && !t.Timestamp.After(windowEnd) {
			out = append(out, t)
		}
	}
	return out
}

func windowEnd(trades []venue.Trade, now *time.Time) time.Time {
	if now != nil {
		return *now
	}
	var max time.Time
	for _, t := range trades {
		if t.Timestamp.After(max) {
			max = t.Timestamp
		}
	}
	return max
}

// TimeAndSales aggregates executed prints over a trailing window, per
// orderflow.py's analyze_time_and_sales.
type TimeAndSales struct {
	TotalVolume   float64
	BuyVolume     float64
	SellVolume    float64
	VolumePerSec  float64
	IsVolumeSpike bool
	TradesCount   int
}

// AnalyzeTimeAndSales aggregates trades in [now-windowSec, now]; a spike is
// flagged when the window's second half carries volumeSpikeMult times the
// first half's volume.
func AnalyzeTimeAndSales(trades []venue.Trade, windowSec, volumeSpikeMult float64, now *time.Time) TimeAndSales {
	if len(trades) == 0 {
		return TimeAndSales{}
	}
	end := windowEnd(trades, now)
	window := inWindow(trades, end, windowSec)
	halfSec := windowSec / 2
	secondHalfBegin := end.Add(-time.Duration(halfSec * float64(time.Second)))
	var firstHalf, secondHalf []venue.Trade
	for _, t := range window {
		if t.Timestamp.Before(secondHalfBegin) {
			firstHalf = append(firstHalf, t)
		} else {
			secondHalf = append(secondHalf, t)
		}
	}

	var buyVol, sellVol float64
	for _, t := range window {
		if t.Side == venue.SideBuy {
			buyVol += t.Size
		} else {
			sellVol += t.Size
		}
	}
	total := buyVol + sellVol
	volPerSec := 0.0
	if windowSec > 0 {
		volPerSec = total / windowSec
	}

	volFirst := sumSize(firstHalf)
	volSecond := sumSize(secondHalf)
	isSpike := volumeSpikeMult > 0 && volFirst > 0 && volSecond >= volumeSpikeMult*volFirst

	return TimeAndSales{
		TotalVolume:   total,
		BuyVolume:     buyVol,
		SellVolume:    sellVol,
		VolumePerSec:  volPerSec,
		IsVolumeSpike: isSpike,
		TradesCount:   len(window),
	}
}

func sumSize(trades []venue.Trade) float64 {
	var s float64
	for _, t := range trades {
		s += t.Size
	}
	return s
}

// VolumeDelta is cumulative volume delta over a window, per orderflow.py's
// compute_volume_delta.
type VolumeDelta struct {
	Delta                float64
	BuyVolume            float64
	SellVolume           float64
	DeltaRatio           float64
	FirstHalfDeltaRatio  float64
	SecondHalfDeltaRatio float64
	TradesCount          int
}

// ComputeVolumeDelta returns buy-sell volume and its normalized ratio over
// [now-windowSec, now], split into first/second half ratios to let callers
// detect an accelerating or decelerating delta.
func ComputeVolumeDelta(trades []venue.Trade, windowSec float64, now *time.Time) VolumeDelta {
	if len(trades) == 0 {
		return VolumeDelta{}
	}
	end := windowEnd(trades, now)
	window := inWindow(trades, end, windowSec)
	halfSec := windowSec / 2
	secondHalfBegin := end.Add(-time.Duration(halfSec * float64(time.Second)))

	var firstHalf, secondHalf []venue.Trade
	for _, t := range window {
		if t.Timestamp.Before(secondHalfBegin) {
			firstHalf = append(firstHalf, t)
		} else {
			secondHalf = append(secondHalf, t)
		}
	}

	buyVol, sellVol := buySellVolume(window)
	delta := buyVol - sellVol
	total := buyVol + sellVol
	deltaRatio := 0.0
	if total > 0 {
		deltaRatio = delta / total
	}

	b1, s1 := buySellVolume(firstHalf)
	t1 := b1 + s1
	firstRatio := 0.0
	if t1 > 0 {
		firstRatio = (b1 - s1) / t1
	}

	b2, s2 := buySellVolume(secondHalf)
	t2 := b2 + s2
	secondRatio := 0.0
	if t2 > 0 {
		secondRatio = (b2 - s2) / t2
	}

	return VolumeDelta{
		Delta: delta, BuyVolume: buyVol, SellVolume: sellVol, DeltaRatio: deltaRatio,
		FirstHalfDeltaRatio: firstRatio, SecondHalfDeltaRatio: secondRatio, TradesCount: len(window),
	}
}

func buySellVolume(trades []venue.Trade) (buy, sell float64) {
	for _, t := range trades {
		if t.Side == venue.SideBuy {
			buy += t.Size
		} else {
			sell += t.Size
		}
	}
	return buy, sell
}

// LevelVolume is per-price-bucket buy/sell/total volume, per orderflow.py's
// trades_by_level.
type LevelVolume struct {
	Price      float64
	BuyVolume  float64
	SellVolume float64
	TotalVolume float64
}

// TradesByLevel buckets trades in [now-windowSec, now] into price ticks and
// returns all buckets plus the topN by total volume ("hot levels").
func TradesByLevel(trades []venue.Trade, windowSec, bucketTick float64, topN int, now *time.Time) (all, hot []LevelVolume) {
	if len(trades) == 0 || bucketTick <= 0 {
		return nil, nil
	}
	end := windowEnd(trades, now)
	window := inWindow(trades, end, windowSec)
	buckets := map[float64]*LevelVolume{}
	for _, t := range window {
		if t.Price <= 0 {
			continue
		}
		bucket := math.Round(t.Price/bucketTick) * bucketTick
		lv, ok := buckets[bucket]
		if !ok {
			lv = &LevelVolume{Price: bucket}
			buckets[bucket] = lv
		}
		if t.Side == venue.SideBuy {
			lv.BuyVolume += t.Size
		} else {
			lv.SellVolume += t.Size
		}
		lv.TotalVolume = lv.BuyVolume + lv.SellVolume
	}
	for _, lv := range buckets {
		all = append(all, *lv)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].TotalVolume > all[j].TotalVolume })
	if topN > 0 && len(all) > topN {
		hot = append([]LevelVolume(nil), all[:topN]...)
	} else {
		hot = append([]LevelVolume(nil), all...)
	}
	return all, hot
}

// DeltaPriceDivergence flags a bearish divergence (price rising while delta
// is meaningfully negative) or bullish divergence (price falling while
// delta is meaningfully positive) over a short window, per orderflow.py's
// compute_delta_price_divergence.
type DeltaPriceDivergence struct {
	BearishDivergence bool
	BullishDivergence bool
	FirstPrice        float64
	LastPrice         float64
	DeltaRatio        float64
	HasData           bool
}

func ComputeDeltaPriceDivergence(trades []venue.Trade, windowSec, deltaRatioThreshold float64, now *time.Time) DeltaPriceDivergence {
	if len(trades) == 0 || windowSec <= 0 {
		return DeltaPriceDivergence{}
	}
	end := windowEnd(trades, now)
	window := inWindow(trades, end, windowSec)
	if len(window) < 2 {
		return DeltaPriceDivergence{}
	}
	delta := ComputeVolumeDelta(trades, windowSec, &end)
	first, last := window[0].Price, window[len(window)-1].Price
	if first <= 0 || last <= 0 {
		return DeltaPriceDivergence{}
	}
	out := DeltaPriceDivergence{FirstPrice: first, LastPrice: last, DeltaRatio: delta.DeltaRatio, HasData: true}
	priceUp := last > first
	priceDown := last < first
	out.BearishDivergence = priceUp && delta.DeltaRatio <= -deltaRatioThreshold
	out.BullishDivergence = priceDown && delta.DeltaRatio >= deltaRatioThreshold
	return out
}

// LastTradesBlock summarizes the most recent K prints, per orderflow.py's
// last_trades_and_block.
type LastTradesBlock struct {
	Bias          venue.Side // "" means neutral
	Neutral       bool
	LastBlockSide venue.Side
	BuyVolume     float64
	SellVolume    float64
	Count         int
}

func LastTradesAndBlock(trades []venue.Trade, lastK int, biasRatioMin float64) LastTradesBlock {
	if len(trades) == 0 || lastK <= 0 {
		return LastTradesBlock{Neutral: true}
	}
	start := len(trades) - lastK
	if start < 0 {
		start = 0
	}
	last := trades[start:]
	buyVol, sellVol := buySellVolume(last)

	out := LastTradesBlock{BuyVolume: buyVol, SellVolume: sellVol, Count: len(last), Neutral: true}
	switch {
	case buyVol > 0 && sellVol > 0 && buyVol >= biasRatioMin*sellVol:
		out.Bias, out.Neutral = venue.SideBuy, false
	case buyVol > 0 && sellVol > 0 && sellVol >= biasRatioMin*buyVol:
		out.Bias, out.Neutral = venue.SideSell, false
	case buyVol > 0 && sellVol == 0:
		out.Bias, out.Neutral = venue.SideBuy, false
	case sellVol > 0 && buyVol == 0:
		out.Bias, out.Neutral = venue.SideSell, false
	}
	out.LastBlockSide = last[len(last)-1].Side
	return out
}
