package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/candlestore"
)

func buildCandles(closesVal, volumes []float64) []candlestore.Candle {
	out := make([]candlestore.Candle, len(closesVal))
	for i, c := range closesVal {
		vol := 10.0
		if volumes != nil {
			vol = volumes[i]
		}
		out[i] = candlestore.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: candlestore.TF1h,
			StartTime: int64(i) * 3_600_000,
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    vol,
		}
	}
	return out
}

// TestWyckoffCapitulation implements scenario S2: last 5 closes fall from
// 100 to 90 and last-bar volume is 3x the 20-bar mean.
func TestWyckoffCapitulation(t *testing.T) {
	closesVal := make([]float64, 40)
	for i := 0; i < 35; i++ {
		closesVal[i] = 100
	}
	// Last 5 bars fall 100 -> 90 (return_5 = -0.10).
	drop := []float64{98, 96, 94, 92, 90}
	copy(closesVal[35:], drop)

	volumes := make([]float64, 40)
	for i := range volumes {
		volumes[i] = 10
	}
	volumes[39] = 30 // 3x the 20-bar mean of 10

	candles := buildCandles(closesVal, volumes)
	result := Wyckoff{}.Detect(candles, 100, longProfile, nil, nil)
	assert.Equal(t, Capitulation, result.Phase)
	assert.GreaterOrEqual(t, result.Score, 0.5)
	assert.LessOrEqual(t, result.Score, 1.0)
}

func TestWyckoffInsufficientDataDefaultsToAccumulation(t *testing.T) {
	candles := buildCandles([]float64{100, 101, 102}, nil)
	result := Wyckoff{}.Detect(candles, 100, defaultProfile, nil, nil)
	assert.Equal(t, Accumulation, result.Phase)
	assert.Equal(t, 0.0, result.Score)
	assert.True(t, result.Details.InsufficientData)
}

func TestWyckoffScoreAlwaysInUnitRange(t *testing.T) {
	closesVal := make([]float64, 120)
	for i := range closesVal {
		closesVal[i] = 100 + float64(i%7) - 3
	}
	result := Wyckoff{}.Detect(buildCandles(closesVal, nil), 100, defaultProfile, nil, nil)
	assert.GreaterOrEqual(t, result.Score, 0.0)
	assert.LessOrEqual(t, result.Score, 1.0)
}

func TestHigherTFContextAdjustsScore(t *testing.T) {
	bullish := Markup
	trend := "up"
	base := clip(0.6)
	withAgreement := applyHigherTFContext(Markup, base, &bullish, &trend)
	assert.InDelta(t, base+0.04, withAgreement, 1e-9)

	bearishTrend := "down"
	withDisagreement := applyHigherTFContext(Markup, base, nil, &bearishTrend)
	assert.InDelta(t, base-0.04, withDisagreement, 1e-9)
}

func TestIndicatorsClassifierBullishStack(t *testing.T) {
	closesVal := make([]float64, 220)
	for i := range closesVal {
		closesVal[i] = 100 + float64(i)*0.5
	}
	result := Indicators{}.Detect(buildCandles(closesVal, nil), 220, defaultProfile, nil, nil)
	assert.Contains(t, []Phase{Markup, Recovery}, result.Phase)
}

func TestStructureClassifierRequires40Bars(t *testing.T) {
	candles := buildCandles([]float64{100, 101, 102}, nil)
	result := Structure{}.Detect(candles, 100, defaultProfile, nil, nil)
	require.True(t, result.Details.InsufficientData)
}

func TestThresholdsForTimeframeShortVsLong(t *testing.T) {
	assert.Equal(t, shortProfile, ThresholdsForTimeframe(candlestore.TF5m))
	assert.Equal(t, longProfile, ThresholdsForTimeframe(candlestore.TF1h))
	assert.Equal(t, longProfile, ThresholdsForTimeframe(candlestore.TFMonth))
}
