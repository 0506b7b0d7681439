package accumulator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradepulse/internal/candlestore"
	"tradepulse/internal/venue"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func newTestStore(t *testing.T) *candlestore.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := candlestore.Open(filepath.Join(dir, "candles.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func candleAt(startMs int64, price float64) candlestore.Candle {
	return candlestore.Candle{
		Symbol: "BTCUSDT", Timeframe: candlestore.TF1h, StartTime: startMs,
		Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 10,
	}
}

func TestBackfillPagesUntilEmpty(t *testing.T) {
	st := newTestStore(t)
	fake := venue.NewFake()
	now := time.UnixMilli(10_000_000)
	for i := int64(0); i < 5; i++ {
		fake.Seed(candlestore.TF1h, candleAt(i*3_600_000, 100+float64(i)))
	}
	acc := New(st, fake, fixedClock{now}, Config{KlineLimit: 1000, BackfillMaxCandles: 5000}, nil)

	// Backfill pages backward from now (10,000,000 ms): the bars starting at
	// 10,800,000 and 14,400,000 lie after now and are not fetched.
	n, err := acc.Backfill(context.Background(), "BTCUSDT", candlestore.TF1h)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := st.Count(context.Background(), candlestore.Filter{Symbol: "BTCUSDT", Timeframe: candlestore.TF1h})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCatchUpFetchesOnlyNewBars(t *testing.T) {
	st := newTestStore(t)
	fake := venue.NewFake()
	ctx := context.Background()

	_, err := st.Insert(ctx, []candlestore.Candle{candleAt(0, 100)})
	require.NoError(t, err)

	fake.Seed(candlestore.TF1h, candleAt(0, 100), candleAt(3_600_000, 101), candleAt(7_200_000, 102))
	now := time.UnixMilli(8_000_000)
	acc := New(st, fake, fixedClock{now}, DefaultConfig(), nil)

	n, err := acc.CatchUp(ctx, "BTCUSDT", candlestore.TF1h)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCatchUpBackfillsWhenEmpty(t *testing.T) {
	st := newTestStore(t)
	fake := venue.NewFake()
	fake.Seed(candlestore.TF1h, candleAt(0, 100), candleAt(3_600_000, 101))
	now := time.UnixMilli(8_000_000)
	acc := New(st, fake, fixedClock{now}, DefaultConfig(), nil)

	n, err := acc.CatchUp(context.Background(), "BTCUSDT", candlestore.TF1h)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTickReturnsErrorFreeResultPerTF(t *testing.T) {
	st := newTestStore(t)
	fake := venue.NewFake()
	fake.Seed(candlestore.TF1h, candleAt(0, 100))
	// TF5m has no seeded data and nothing to fetch; CatchUp backfills and
	// simply inserts zero rows rather than erroring.
	now := time.UnixMilli(3_600_000)
	acc := New(st, fake, fixedClock{now}, DefaultConfig(), nil)

	results := acc.Tick(context.Background(), "BTCUSDT", []candlestore.Timeframe{candlestore.TF1h, candlestore.TF5m})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestFillGapNoOpWhenNoInteriorRange(t *testing.T) {
	st := newTestStore(t)
	fake := venue.NewFake()
	ctx := context.Background()
	_, err := st.Insert(ctx, []candlestore.Candle{candleAt(0, 100), candleAt(3_600_000, 101)})
	require.NoError(t, err)
	acc := New(st, fake, fixedClock{time.UnixMilli(7_200_000)}, DefaultConfig(), nil)

	n, err := acc.FillGap(ctx, "BTCUSDT", candlestore.TF1h)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
