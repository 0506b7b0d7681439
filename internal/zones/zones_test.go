package zones

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/candlestore"
)

func candle(i int, open, high, low, close, volume float64) candlestore.Candle {
	return candlestore.Candle{
		Symbol:    "BTCUSDT",
		Timeframe: candlestore.TF1h,
		StartTime: int64(i) * 3_600_000,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}
}

func flatSeries(n int, price, volume float64) []candlestore.Candle {
	out := make([]candlestore.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = candle(i, price, price+0.2, price-0.2, price, volume)
	}
	return out
}

// TestRoleFlipRequiresConfirmation: a resistance cluster at 100 is
// breached at bar 30 with volume >= 0.5*MA20(volume), so the first (and
// only) breach attempt is confirmed and flips the role immediately.
func TestRoleFlipRequiresConfirmation(t *testing.T) {
	candles := flatSeries(50, 100, 10)
	// Shape a pivot high at bar 10.
	candles[10] = candle(10, 99, 101, 98.5, 100, 10)
	// Confirmed breach at bar 30: closes above level with volume >=
	// 0.5*MA20(volume). The series's MA20(volume) is ~10, so 7 qualifies.
	candles[30] = candle(30, 100, 101.5, 99.5, 101, 7)

	level := &Level{Price: 100, BarIndex: 10, OriginRole: Resistance, CurrentRole: Resistance}
	assignRoles([]*Level{level}, candles, 0.5)

	require.NotNil(t, level.BrokenAtBar)
	assert.True(t, level.Broken)
	assert.Equal(t, 30, *level.BrokenAtBar)
	assert.Equal(t, Support, level.CurrentRole)
}

func TestRoleUnchangedWhenNoConfirmedBreach(t *testing.T) {
	candles := flatSeries(50, 100, 10)
	candles[10] = candle(10, 99, 101, 98.5, 100, 10)
	candles[30] = candle(30, 100, 101.5, 99.5, 101, 3)

	level := &Level{Price: 100, BarIndex: 10, OriginRole: Resistance, CurrentRole: Resistance}
	assignRoles([]*Level{level}, candles, 0.5)

	assert.False(t, level.Broken)
	assert.Nil(t, level.BrokenAtBar)
	assert.Equal(t, Resistance, level.CurrentRole)
}

func TestClusterMergesNearbyPivots(t *testing.T) {
	levels := []*Level{
		{Price: 100.0, BarIndex: 5, OriginRole: Resistance, CurrentRole: Resistance},
		{Price: 100.1, BarIndex: 7, OriginRole: Resistance, CurrentRole: Resistance},
		{Price: 110.0, BarIndex: 9, OriginRole: Resistance, CurrentRole: Resistance},
	}
	out := cluster(levels, 0.002)
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].Touches)
	assert.Equal(t, 1, out[1].Touches)
}

func TestCompositeStrengthBounded(t *testing.T) {
	levels := []*Level{
		{Touches: 5, VolumeAtLevel: 200, Recency: 1.0, RoundBonus: 1.0},
		{Touches: 1, VolumeAtLevel: 10, Recency: 0.1, RoundBonus: 0.0},
	}
	compositeStrength(levels)
	for _, l := range levels {
		assert.GreaterOrEqual(t, l.Strength, 0.0)
		assert.LessOrEqual(t, l.Strength, 1.0)
	}
	assert.Greater(t, levels[0].Strength, levels[1].Strength)
}

func TestTrimKeepsTopNByStrengthThenRecency(t *testing.T) {
	levels := []*Level{
		{Price: 1, Strength: 0.2, BarIndex: 1},
		{Price: 2, Strength: 0.9, BarIndex: 2},
		{Price: 3, Strength: 0.9, BarIndex: 5},
		{Price: 4, Strength: 0.5, BarIndex: 3},
	}
	out := trim(levels, 2)
	require.Len(t, out, 2)
	assert.Equal(t, 3.0, out[0].Price) // strength tie broken by higher barIndex
	assert.Equal(t, 2.0, out[1].Price)
}

func TestBuildProducesRoleAssignedLevels(t *testing.T) {
	candles := flatSeries(80, 100, 10)
	for i := 5; i < len(candles); i += 10 {
		candles[i] = candle(i, 99, 101, 98.5, 100, 10)
	}
	levels := Build(candles, DefaultConfig())
	for _, l := range levels {
		assert.GreaterOrEqual(t, l.Strength, 0.0)
		assert.LessOrEqual(t, l.Strength, 1.0)
		assert.True(t, l.OriginRole == Support || l.OriginRole == Resistance)
	}
}

func TestBuildInsufficientDataReturnsNil(t *testing.T) {
	levels := Build(flatSeries(3, 100, 10), DefaultConfig())
	assert.Nil(t, levels)
}
