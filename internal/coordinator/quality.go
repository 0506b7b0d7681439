package coordinator

import (
	"fmt"
	"math"

	"tradepulse/internal/candlestore"
)

// Quality is the outcome of CheckCandles, grounded in
// original_source/src/utils/candle_quality.py's validate_candles: a
// confidence score over a candle window plus a short, capped issues list.
type Quality struct {
	Valid         bool
	Filtered      []candlestore.Candle
	Issues        []string
	Score         float64
	InvalidCount  int
	TotalCount    int
}

// CheckCandles scores a candle window's quality: the fraction of bars that
// pass basic OHLCV sanity, penalized for the number of distinct issues
// found, capped at the same 0.3 maximum penalty as the Python original.
// Valid requires at least 30 surviving bars and a >=95% pass ratio.
func CheckCandles(candles []candlestore.Candle) Quality {
	n := len(candles)
	if n == 0 {
		return Quality{}
	}
	var issues []string
	filtered := make([]candlestore.Candle, 0, n)
	invalid := 0
	for i, c := range candles {
		if err := validateQuality(c); err != nil {
			invalid++
			if len(issues) < 20 {
				issues = append(issues, fmt.Sprintf("bar %d: %v", i, err))
			}
			continue
		}
		filtered = append(filtered, c)
	}
	ratioOK := float64(len(filtered)) / float64(n)
	issuePenalty := math.Min(0.3, float64(len(issues))*0.02)
	score := math.Max(0, math.Min(1, ratioOK-issuePenalty))
	valid := len(filtered) >= 30 && ratioOK >= 0.95
	return Quality{
		Valid: valid, Filtered: filtered, Issues: issues,
		Score: round3(score), InvalidCount: invalid, TotalCount: n,
	}
}

func validateQuality(c candlestore.Candle) error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) {
			return fmt.Errorf("NaN in OHLCV")
		}
	}
	if c.Volume < 0 {
		return fmt.Errorf("volume < 0")
	}
	if c.Low > c.High {
		return fmt.Errorf("low > high")
	}
	if c.Open < c.Low || c.Open > c.High || c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("open/close outside [low, high]")
	}
	return nil
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
