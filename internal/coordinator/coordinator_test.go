package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/candlestore"
)

func candlesForTF(tf candlestore.Timeframe, n int, start, step, volume float64) []candlestore.Candle {
	out := make([]candlestore.Candle, n)
	for i := 0; i < n; i++ {
		c := start + float64(i)*step
		out[i] = candlestore.Candle{
			Symbol: "BTCUSDT", Timeframe: tf, StartTime: int64(i) * 3_600_000,
			Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: volume,
		}
	}
	return out
}

func TestSortTimeframesOrdering(t *testing.T) {
	in := []candlestore.Timeframe{candlestore.TFMonth, candlestore.TF1h, candlestore.TFDay, candlestore.TF15m, candlestore.TFWeek}
	got := sortTimeframes(in)
	assert.Equal(t, []candlestore.Timeframe{
		candlestore.TF15m, candlestore.TF1h, candlestore.TFDay, candlestore.TFWeek, candlestore.TFMonth,
	}, got)
}

func TestAnalyzeProducesReportPerTimeframe(t *testing.T) {
	byTF := map[candlestore.Timeframe][]candlestore.Candle{
		candlestore.TF15m: candlesForTF(candlestore.TF15m, 60, 100, 0.3, 10),
		candlestore.TF1h:  candlesForTF(candlestore.TF1h, 60, 100, 0.5, 10),
		candlestore.TF4h:  candlesForTF(candlestore.TF4h, 60, 100, 0.8, 10),
	}
	co := NewCoordinator(DefaultConfig())
	result := co.Analyze("BTCUSDT", byTF)
	require.NotNil(t, result)
	assert.Equal(t, candlestore.TF4h, result.HigherTF)
	assert.Len(t, result.Timeframes, 3)
	for tf := range byTF {
		assert.NotNil(t, result.Timeframes[tf])
	}
}

func TestAnalyzeReturnsNilWithNoCandles(t *testing.T) {
	co := NewCoordinator(DefaultConfig())
	result := co.Analyze("BTCUSDT", map[candlestore.Timeframe][]candlestore.Candle{})
	assert.Nil(t, result)
}

func TestStabilityAccumulatesAcrossTicks(t *testing.T) {
	byTF := map[candlestore.Timeframe][]candlestore.Candle{
		candlestore.TF1h: candlesForTF(candlestore.TF1h, 80, 100, 0.4, 10),
	}
	co := NewCoordinator(DefaultConfig())
	var last *Result
	for i := 0; i < DefaultConfig().PhaseHistorySize+2; i++ {
		last = co.Analyze("BTCUSDT", byTF)
	}
	require.NotNil(t, last)
	report := last.Timeframes[candlestore.TF1h]
	assert.Equal(t, 1.0, report.PhaseStability)
	assert.True(t, report.PhaseStable)
}

func TestEntryScoreAndConfidenceBounded(t *testing.T) {
	byTF := map[candlestore.Timeframe][]candlestore.Candle{
		candlestore.TF1h: candlesForTF(candlestore.TF1h, 90, 100, -0.2, 8),
		candlestore.TF4h: candlesForTF(candlestore.TF4h, 90, 100, 0.6, 12),
	}
	co := NewCoordinator(DefaultConfig())
	result := co.Analyze("BTCUSDT", byTF)
	require.NotNil(t, result)
	assert.GreaterOrEqual(t, result.EntryScore, 0.0)
	assert.LessOrEqual(t, result.EntryScore, 1.0)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)
	if result.Direction == SignalNone {
		assert.Equal(t, 0.0, result.Confidence)
	}
}

func TestNotReadyReasonOnInsufficientData(t *testing.T) {
	byTF := map[candlestore.Timeframe][]candlestore.Candle{
		candlestore.TF1h: candlesForTF(candlestore.TF1h, 10, 100, 0.1, 5),
	}
	co := NewCoordinator(DefaultConfig())
	result := co.Analyze("BTCUSDT", byTF)
	require.NotNil(t, result)
	assert.Equal(t, SignalNone, result.Direction)
	assert.Contains(t, result.Reason, "not usable for entry")
}

func TestContextualPassAppliesHigherTFContext(t *testing.T) {
	up := candlesForTF(candlestore.TF4h, 120, 100, 0.7, 12)
	lower := candlesForTF(candlestore.TF15m, 120, 100, 0.7, 12)
	byTF := map[candlestore.Timeframe][]candlestore.Candle{
		candlestore.TF15m: lower,
		candlestore.TF4h:  up,
	}
	co := NewCoordinator(DefaultConfig())
	result := co.Analyze("BTCUSDT", byTF)
	require.NotNil(t, result)
	lowerReport := result.Timeframes[candlestore.TF15m]
	require.NotNil(t, lowerReport)
	assert.NotEmpty(t, lowerReport.Phase.Phase)
}
