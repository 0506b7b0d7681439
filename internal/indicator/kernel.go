// Package indicator implements the pure numeric kernel shared by the phase,
// trend and zones packages: moving averages, oscillators, volatility and
// structure measures computed directly off a candle slice. Every function is
// a pure, allocation-light transform over []candlestore.Candle so it can be
// unit tested without a venue or a clock.
package indicator

import (
	"math"

	"tradepulse/internal/candlestore"
)

// EMA returns the exponential moving average of the last length closes,
// seeded by a simple average of the first length values (matches the
// reference implementation's SMA-seeded EMA, not Wilder's variant).
func EMA(closes []float64, length int) (float64, bool) {
	if length <= 0 || len(closes) < length {
		return 0, false
	}
	k := 2.0 / (float64(length) + 1.0)
	sum := 0.0
	for _, v := range closes[:length] {
		sum += v
	}
	ema := sum / float64(length)
	for _, v := range closes[length:] {
		ema = v*k + ema*(1-k)
	}
	return ema, true
}

func closes(candles []candlestore.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// ATR is the simplified average true range used throughout the analysis
// layer: mean(high-low) over the trailing length candles. It intentionally
// omits Wilder's gap-aware true-range term, matching the simplified ATR the
// phase/trend/regime formulas were built against.
func ATR(candles []candlestore.Candle, length int) (float64, bool) {
	if length <= 0 || len(candles) < length {
		return 0, false
	}
	recent := candles[len(candles)-length:]
	sum := 0.0
	for _, c := range recent {
		sum += c.High - c.Low
	}
	return sum / float64(len(recent)), true
}

// RSI is the standard Wilder 0..100 relative strength index over the
// trailing period+1 closes (simple, not smoothed, average of gains/losses).
func RSI(candles []candlestore.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	c := closes(candles)
	gains := make([]float64, 0, len(c)-1)
	losses := make([]float64, 0, len(c)-1)
	for i := 1; i < len(c); i++ {
		ch := c[i] - c[i-1]
		if ch > 0 {
			gains = append(gains, ch)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -ch)
		}
	}
	if len(gains) < period {
		return 0, false
	}
	avgGain := mean(gains[len(gains)-period:])
	avgLoss := mean(losses[len(losses)-period:])
	if avgLoss <= 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// RSIDivergence compares RSI and price extremes across two adjacent
// half-windows: bullish when price makes a lower low but RSI makes a higher
// low, bearish when price makes a higher high but RSI makes a lower high.
func RSIDivergence(candles []candlestore.Candle, period, window int) (bullish, bearish bool) {
	if len(candles) < 2*window || 2*window < period+2 {
		return false, false
	}
	prev := candles[len(candles)-2*window : len(candles)-window]
	recent := candles[len(candles)-window:]
	if len(prev) < period+1 || len(recent) < period+1 {
		return false, false
	}
	lowPrev, _ := extremes(prev)
	lowRecent, _ := extremes(recent)
	_, highPrev := extremes(prev)
	_, highRecent := extremes(recent)
	rsiPrev, okP := RSI(prev, period)
	rsiRecent, okR := RSI(recent, period)
	if !okP || !okR {
		return false, false
	}
	bullish = lowRecent < lowPrev && rsiRecent > rsiPrev
	bearish = highRecent > highPrev && rsiRecent < rsiPrev
	return bullish, bearish
}

func extremes(candles []candlestore.Candle) (low, high float64) {
	low = math.Inf(1)
	high = math.Inf(-1)
	for _, c := range candles {
		if c.Low < low {
			low = c.Low
		}
		if c.High > high {
			high = c.High
		}
	}
	return low, high
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// PricePositionInRange is the 0..1 position of the last close within the
// [min(low), max(high)] band of the trailing lookback candles. 0 is the
// bottom of the range, 1 the top; 0.5 when the range has zero width.
func PricePositionInRange(candles []candlestore.Candle, lookback int) (float64, bool) {
	if len(candles) < lookback {
		return 0, false
	}
	recent := candles[len(candles)-lookback:]
	low, high := extremes(recent)
	if high <= low {
		return 0.5, true
	}
	last := recent[len(recent)-1].Close
	return (last - low) / (high - low), true
}

// VolumeRatio is the ratio of the mean volume over the trailing short window
// to the mean volume over the trailing long window.
func VolumeRatio(candles []candlestore.Candle, short, long int) (float64, bool) {
	if len(candles) < long {
		return 0, false
	}
	vols := make([]float64, len(candles))
	for i, c := range candles {
		vols[i] = c.Volume
	}
	avgShort := mean(vols[len(vols)-short:])
	avgLong := mean(vols[len(vols)-long:])
	if avgLong <= 0 {
		return 0, false
	}
	return avgShort / avgLong, true
}

// RecentReturn is the fractional price change over the trailing bars
// candles, (close[-1] - close[-bars-1]) / close[-bars-1].
func RecentReturn(candles []candlestore.Candle, bars int) (float64, bool) {
	if len(candles) < bars+1 {
		return 0, false
	}
	oldClose := candles[len(candles)-bars-1].Close
	newClose := candles[len(candles)-1].Close
	if oldClose <= 0 {
		return 0, false
	}
	return (newClose - oldClose) / oldClose, true
}

// TrendStrength is a simplified directional-movement proxy over period
// closes: |sumUp - sumDown| / (sumUp + sumDown), in [0, 1]. High values mean
// a pronounced trend, low values a chop.
func TrendStrength(candles []candlestore.Candle, period int) (float64, bool) {
	if len(candles) < period+1 {
		return 0, false
	}
	c := closes(candles[len(candles)-period-1:])
	up, down := 0.0, 0.0
	for i := 1; i < len(c); i++ {
		if d := c[i] - c[i-1]; d > 0 {
			up += d
		} else {
			down += -d
		}
	}
	total := up + down
	if total <= 0 {
		return 0, true
	}
	return math.Abs(up-down) / total, true
}

// EMAStack reports the 20/50/200 EMA ordering: "bullish" when
// ema20 > ema50 > ema200 and price trades above ema20, "bearish" for the
// mirror image, "" otherwise. This fills in for the original_source
// `_ema_stack` helper, which the analysis module imports but never defines
// in the retrieved tree; the 20/50/200-stack convention itself is named in
// market_trend.py's own module docstring, so the shape is grounded even
// though the implementation is a textbook fallback (see DESIGN.md).
func EMAStack(candles []candlestore.Candle) (ema20, ema50, ema200 float64, trend string, ok bool) {
	c := closes(candles)
	e20, ok20 := EMA(c, 20)
	e50, ok50 := EMA(c, 50)
	e200, ok200 := EMA(c, 200)
	if !ok20 || !ok50 {
		return 0, 0, 0, "", false
	}
	if !ok200 {
		e200 = e50
	}
	last := c[len(c)-1]
	switch {
	case e20 > e50 && e50 > e200 && last > e20:
		trend = "bullish"
	case e20 < e50 && e50 < e200 && last < e20:
		trend = "bearish"
	}
	return e20, e50, e200, trend, true
}

// ADX is Wilder's average directional index with +DI/-DI over period bars,
// the textbook formulation (Wilder smoothing of +DM/-DM and true range).
// Standard fallback for the same reason as EMAStack: original_source
// imports `_adx` from market_phases but never defines it there.
func ADX(candles []candlestore.Candle, period int) (adx, plusDI, minusDI float64, ok bool) {
	if len(candles) < period*2+1 {
		return 0, 0, 0, false
	}
	n := len(candles)
	plusDM := make([]float64, 0, n-1)
	minusDM := make([]float64, 0, n-1)
	tr := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		pdm, mdm := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			pdm = upMove
		}
		if downMove > upMove && downMove > 0 {
			mdm = downMove
		}
		plusDM = append(plusDM, pdm)
		minusDM = append(minusDM, mdm)
		trueRange := candles[i].High - candles[i].Low
		trueRange = math.Max(trueRange, math.Abs(candles[i].High-candles[i-1].Close))
		trueRange = math.Max(trueRange, math.Abs(candles[i].Low-candles[i-1].Close))
		tr = append(tr, trueRange)
	}
	smoothPDM := wilderSmooth(plusDM, period)
	smoothMDM := wilderSmooth(minusDM, period)
	smoothTR := wilderSmooth(tr, period)
	if len(smoothTR) == 0 {
		return 0, 0, 0, false
	}
	dx := make([]float64, 0, len(smoothTR))
	for i := range smoothTR {
		if smoothTR[i] <= 0 {
			dx = append(dx, 0)
			continue
		}
		pdi := 100 * smoothPDM[i] / smoothTR[i]
		mdi := 100 * smoothMDM[i] / smoothTR[i]
		sum := pdi + mdi
		if sum <= 0 {
			dx = append(dx, 0)
			continue
		}
		dx = append(dx, 100*math.Abs(pdi-mdi)/sum)
	}
	if len(dx) < period {
		return 0, 0, 0, false
	}
	lastPDI := 100 * smoothPDM[len(smoothPDM)-1] / math.Max(smoothTR[len(smoothTR)-1], 1e-12)
	lastMDI := 100 * smoothMDM[len(smoothMDM)-1] / math.Max(smoothTR[len(smoothTR)-1], 1e-12)
	return mean(dx[len(dx)-period:]), lastPDI, lastMDI, true
}

// wilderSmooth applies Wilder's running smoothing (first value is a simple
// sum over the first period terms, subsequent values decay the prior sum by
// period-1/period and add the new term).
func wilderSmooth(xs []float64, period int) []float64 {
	if len(xs) < period {
		return nil
	}
	out := make([]float64, 0, len(xs)-period+1)
	sum := 0.0
	for _, x := range xs[:period] {
		sum += x
	}
	out = append(out, sum)
	for _, x := range xs[period:] {
		sum = sum - sum/float64(period) + x
		out = append(out, sum)
	}
	return out
}

// BBWidth is the Bollinger Band width (upper-lower)/middle over length bars
// at the given multiple of the standard deviation of closes.
func BBWidth(candles []candlestore.Candle, length int, mult float64) (float64, bool) {
	if len(candles) < length {
		return 0, false
	}
	c := closes(candles[len(candles)-length:])
	mid := mean(c)
	variance := 0.0
	for _, v := range c {
		variance += (v - mid) * (v - mid)
	}
	variance /= float64(length)
	sd := math.Sqrt(variance)
	if mid <= 0 {
		return 0, false
	}
	upper := mid + mult*sd
	lower := mid - mult*sd
	return (upper - lower) / mid, true
}

// OBVSlope is the normalized linear-regression slope of cumulative
// on-balance-volume over the trailing window bars, divided by the mean
// |OBV| over the window so the result is comparable across symbols.
// Standard fallback per the same grounding note as ADX/EMAStack.
func OBVSlope(candles []candlestore.Candle, window int) (float64, bool) {
	if len(candles) < window+1 {
		return 0, false
	}
	recent := candles[len(candles)-window-1:]
	obv := make([]float64, 0, window)
	running := 0.0
	for i := 1; i < len(recent); i++ {
		if recent[i].Close > recent[i-1].Close {
			running += recent[i].Volume
		} else if recent[i].Close < recent[i-1].Close {
			running -= recent[i].Volume
		}
		obv = append(obv, running)
	}
	slope := linregSlope(obv)
	scale := mean(absAll(obv))
	if scale <= 0 {
		return 0, true
	}
	return slope / scale, true
}

func absAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = math.Abs(x)
	}
	return out
}

// linregSlope fits y = a + b*x over x = 0..n-1 and returns b.
func linregSlope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// VWAPRolling returns the volume-weighted average price over the trailing
// window bars and the fractional distance of the last close from it.
// Standard fallback per the same grounding note as ADX/EMAStack/OBVSlope.
func VWAPRolling(candles []candlestore.Candle, window int) (vwap, distance float64, ok bool) {
	if len(candles) < window {
		return 0, 0, false
	}
	recent := candles[len(candles)-window:]
	var pv, vol float64
	for _, c := range recent {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		vol += c.Volume
	}
	if vol <= 0 {
		return 0, 0, false
	}
	vwap = pv / vol
	if vwap <= 0 {
		return vwap, 0, false
	}
	last := recent[len(recent)-1].Close
	return vwap, (last - vwap) / vwap, true
}
