package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/candlestore"
)

func candleSeries(closesVal []float64) []candlestore.Candle {
	out := make([]candlestore.Candle, len(closesVal))
	for i, c := range closesVal {
		out[i] = candlestore.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: candlestore.TF1m,
			StartTime: int64(i) * 60_000,
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
		}
	}
	return out
}

func TestEMAConstantSeriesEqualsValue(t *testing.T) {
	series := make([]float64, 30)
	for i := range series {
		series[i] = 100
	}
	ema, ok := EMA(series, 20)
	require.True(t, ok)
	assert.InDelta(t, 100.0, ema, 1e-9)
}

func TestEMAInsufficientData(t *testing.T) {
	_, ok := EMA([]float64{1, 2, 3}, 20)
	assert.False(t, ok)
}

func TestRSIAllGainsIs100(t *testing.T) {
	closesVal := make([]float64, 20)
	for i := range closesVal {
		closesVal[i] = float64(100 + i)
	}
	rsi, ok := RSI(candleSeries(closesVal), 14)
	require.True(t, ok)
	assert.Equal(t, 100.0, rsi)
}

func TestRSIFlatSeriesIs100(t *testing.T) {
	closesVal := make([]float64, 20)
	for i := range closesVal {
		closesVal[i] = 100
	}
	rsi, ok := RSI(candleSeries(closesVal), 14)
	require.True(t, ok)
	assert.Equal(t, 100.0, rsi)
}

func TestATRConstantRange(t *testing.T) {
	candles := candleSeries([]float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23})
	atr, ok := ATR(candles, 14)
	require.True(t, ok)
	assert.InDelta(t, 2.0, atr, 1e-9)
}

func TestPricePositionInRangeBounds(t *testing.T) {
	closesVal := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}
	pos, ok := PricePositionInRange(candleSeries(closesVal), 10)
	require.True(t, ok)
	assert.GreaterOrEqual(t, pos, 0.0)
	assert.LessOrEqual(t, pos, 1.0)
}

func TestVolumeRatioInsufficientData(t *testing.T) {
	_, ok := VolumeRatio(candleSeries([]float64{1, 2, 3}), 3, 20)
	assert.False(t, ok)
}

func TestRecentReturnPositive(t *testing.T) {
	closesVal := []float64{100, 100, 100, 100, 100, 110}
	ret, ok := RecentReturn(candleSeries(closesVal), 5)
	require.True(t, ok)
	assert.InDelta(t, 0.10, ret, 1e-9)
}

func TestTrendStrengthMonotonicIsOne(t *testing.T) {
	closesVal := make([]float64, 16)
	for i := range closesVal {
		closesVal[i] = float64(100 + i)
	}
	ts, ok := TrendStrength(candleSeries(closesVal), 14)
	require.True(t, ok)
	assert.InDelta(t, 1.0, ts, 1e-9)
}

func TestStructureUptrend(t *testing.T) {
	closesVal := make([]float64, 20)
	for i := range closesVal {
		closesVal[i] = float64(100 + i*2)
	}
	s := Structure(candleSeries(closesVal), 5)
	assert.Equal(t, "up", s)
}

func TestClipScoreBounds(t *testing.T) {
	assert.Equal(t, 0.0, ClipScore(-5))
	assert.Equal(t, 1.0, ClipScore(5))
	assert.InDelta(t, 0.5, ClipScore(0.5), 1e-9)
}

func TestBBWidthPositive(t *testing.T) {
	closesVal := []float64{100, 102, 98, 101, 99, 103, 97, 100, 102, 98, 101, 99, 103, 97, 100, 102, 98, 101, 99, 103}
	w, ok := BBWidth(candleSeries(closesVal), 20, 2.0)
	require.True(t, ok)
	assert.Greater(t, w, 0.0)
}

func TestADXRequiresEnoughBars(t *testing.T) {
	_, _, _, ok := ADX(candleSeries([]float64{1, 2, 3}), 14)
	assert.False(t, ok)
}

func TestPivotHighsLowsFindsFractal(t *testing.T) {
	closesVal := []float64{10, 11, 15, 11, 10, 9, 5, 9, 10}
	highs, lows := PivotHighsLows(candleSeries(closesVal), 2, 2)
	assert.NotEmpty(t, highs)
	assert.NotEmpty(t, lows)
}

func TestSpringUpthrustNoBreachIsFalse(t *testing.T) {
	closesVal := make([]float64, 30)
	for i := range closesVal {
		closesVal[i] = 100
	}
	spring, upthrust := SpringUpthrust(candleSeries(closesVal), 30, 10, 0.002)
	assert.False(t, spring)
	assert.False(t, upthrust)
}
