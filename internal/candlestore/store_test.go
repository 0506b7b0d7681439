package candlestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, "candles.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// S1 — Insert dedupe.
func TestInsertDedupe(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c := Candle{Symbol: "BTCUSDT", Timeframe: TF1h, StartTime: 1700000000000,
		Open: 42000, High: 42100, Low: 41950, Close: 42050, Volume: 10}

	n, err := st.Insert(ctx, []Candle{c})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = st.Insert(ctx, []Candle{c})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := st.Count(ctx, Filter{Symbol: "BTCUSDT", Timeframe: TF1h})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLatestOldestStart(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := Candle{Symbol: "ETHUSDT", Timeframe: TF1m, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}
	for i := int64(0); i < 5; i++ {
		c := base
		c.StartTime = 1000 + i*60000
		_, err := st.Insert(ctx, []Candle{c})
		require.NoError(t, err)
	}

	latest, ok, err := st.LatestStart(ctx, "ETHUSDT", TF1m)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1000+4*60000), latest)

	oldest, ok, err := st.OldestStart(ctx, "ETHUSDT", TF1m)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1000), oldest)

	_, ok, err = st.LatestStart(ctx, "NOPE", TF1m)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRangeOrdering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	for i := int64(0); i < 3; i++ {
		c := Candle{Symbol: "BTCUSDT", Timeframe: TF5m, StartTime: i * 300000,
			Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1}
		_, err := st.Insert(ctx, []Candle{c})
		require.NoError(t, err)
	}
	asc, err := st.Range(ctx, "BTCUSDT", TF5m, true, 10)
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.True(t, asc[0].StartTime < asc[1].StartTime && asc[1].StartTime < asc[2].StartTime)

	desc, err := st.Range(ctx, "BTCUSDT", TF5m, false, 10)
	require.NoError(t, err)
	assert.True(t, desc[0].StartTime > desc[1].StartTime)
}

func TestCandleValidate(t *testing.T) {
	ok := Candle{Symbol: "X", Timeframe: TF1h, Open: 100, High: 105, Low: 95, Close: 102, Volume: 1}
	assert.NoError(t, ok.Validate(0, 0))

	bad := ok
	bad.Low = 101 // violates low <= min(open,close)
	assert.ErrorIs(t, bad.Validate(0, 0), ErrImplausible)

	wideIntraday := Candle{Symbol: "X", Timeframe: TF1h, Open: 100, High: 140, Low: 90, Close: 100, Volume: 1}
	assert.ErrorIs(t, wideIntraday.Validate(0, 0), ErrImplausible)

	wideDaily := Candle{Symbol: "X", Timeframe: TFDay, Open: 100, High: 140, Low: 90, Close: 100, Volume: 1}
	assert.NoError(t, wideDaily.Validate(0, 0))
}

func TestMonthNextStartCalendarVariable(t *testing.T) {
	jan1 := int64(1704067200000) // 2024-01-01T00:00:00Z
	next := TFMonth.NextStart(jan1)
	assert.Equal(t, int64(1706745600000), next) // 2024-02-01T00:00:00Z
}
