package trend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradepulse/internal/candlestore"
)

func buildCandles(closesVal []float64) []candlestore.Candle {
	out := make([]candlestore.Candle, len(closesVal))
	for i, c := range closesVal {
		out[i] = candlestore.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: candlestore.TF1h,
			StartTime: int64(i) * 3_600_000,
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    10,
		}
	}
	return out
}

// TestTrendUpScenario implements scenario S3: strictly increasing closes
// 100, 100.5, 101, ... over 200 bars.
func TestTrendUpScenario(t *testing.T) {
	closesVal := make([]float64, 200)
	for i := range closesVal {
		closesVal[i] = 100 + float64(i)*0.5
	}
	result := Detect(buildCandles(closesVal), 200, DefaultConfig())
	assert.Equal(t, Up, result.Direction)
	assert.GreaterOrEqual(t, result.Strength, 0.5)
	assert.Greater(t, result.BullishScore, result.BearishScore)
}

func TestTrendFlatOnInsufficientData(t *testing.T) {
	result := Detect(buildCandles([]float64{100, 101, 102}), 100, DefaultConfig())
	assert.Equal(t, Flat, result.Direction)
	assert.True(t, result.TrendUnclear)
	assert.True(t, result.Details.InsufficientData)
}

func TestBullishBearishScoreSumBounded(t *testing.T) {
	closesVal := make([]float64, 120)
	for i := range closesVal {
		closesVal[i] = 100 + float64(i%9) - 4
	}
	result := Detect(buildCandles(closesVal), 120, DefaultConfig())
	assert.LessOrEqual(t, result.BullishScore+result.BearishScore, 2.0)
}

func TestDetectRegimeSurgeOnWideBollinger(t *testing.T) {
	closesVal := make([]float64, 40)
	for i := range closesVal {
		if i%2 == 0 {
			closesVal[i] = 100
		} else {
			closesVal[i] = 160
		}
	}
	result := DetectRegime(buildCandles(closesVal), 40)
	assert.Equal(t, RegimeSurge, result.Regime)
}

func TestDetectRegimeRangeOnFlatSeries(t *testing.T) {
	closesVal := make([]float64, 40)
	for i := range closesVal {
		closesVal[i] = 100
	}
	result := DetectRegime(buildCandles(closesVal), 40)
	assert.Equal(t, RegimeRange, result.Regime)
}

func TestDetectMomentumBullish(t *testing.T) {
	closesVal := make([]float64, 20)
	for i := range closesVal {
		closesVal[i] = 100 + float64(i)
	}
	m := DetectMomentum(buildCandles(closesVal), 20)
	assert.Equal(t, MomentumBullish, m.Bias)
}
