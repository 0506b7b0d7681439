package controlloop

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradepulse/internal/accumulator"
	"tradepulse/internal/candlestore"
	"tradepulse/internal/contextnow"
	"tradepulse/internal/coordinator"
	"tradepulse/internal/events"
	"tradepulse/internal/orderflow"
	"tradepulse/internal/sandbox"
	"tradepulse/internal/venue"
	"tradepulse/internal/zones"
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

func newTestLoop(t *testing.T) (*Loop, *candlestore.Store, *venue.Fake) {
	t.Helper()
	dir := t.TempDir()
	store, err := candlestore.Open(filepath.Join(dir, "candles.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ven := venue.NewFake()
	ven.Seed(candlestore.TF1h, candlesForTF(candlestore.TF1h, 60, 100, 0.5, 10)...)
	ven.Seed(candlestore.TF4h, candlesForTF(candlestore.TF4h, 60, 100, 0.8, 10)...)

	ctx := context.Background()
	for _, tf := range []candlestore.Timeframe{candlestore.TF1h, candlestore.TF4h} {
		candles, err := ven.FetchCandles(ctx, "BTCUSDT", tf, 0, 0, 0)
		require.NoError(t, err)
		_, err = store.Insert(ctx, candles)
		require.NoError(t, err)
	}

	cfg := Config{
		Symbol:       "BTCUSDT",
		AnalysisTFs:  []candlestore.Timeframe{candlestore.TF1h, candlestore.TF4h},
		DBTFs:        []candlestore.Timeframe{candlestore.TF1h, candlestore.TF4h},
		ExecutionTF:  candlestore.TF1h,
		KlineLimit:   100,
		PollInterval: 20 * time.Millisecond,
		BookDepth:    20,
	}
	acc := accumulator.New(store, ven, nil, accumulator.DefaultConfig(), zap.NewNop())
	coord := coordinator.NewCoordinator(coordinator.DefaultConfig())
	sink := events.MultiSink{Sinks: []sandbox.Sink{events.NewDBSink(store)}}

	loop := New(cfg, store, ven, nil, acc, coord, orderflow.DefaultConfig(), contextnow.DefaultConfig(),
		sandbox.DefaultConfig(), sink, nil, nil, nil, zap.NewNop())
	return loop, store, ven
}

func TestTickRunsWithoutError(t *testing.T) {
	loop, _, _ := newTestLoop(t)
	loop.tick(context.Background())
	snap := loop.last.Get()
	assert.Equal(t, "BTCUSDT", snap.Symbol)
}

func TestRunTicksUntilCanceled(t *testing.T) {
	loop, _, _ := newTestLoop(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := loop.Run(ctx)
	require.NoError(t, err)

	var count int
	require.NoError(t, loop.store.DB().QueryRowContext(context.Background(), `SELECT COUNT(*) FROM runs`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSweepLevelsReprojectsZoneRoles(t *testing.T) {
	levels := sweepLevels(nil)
	assert.Len(t, levels, 0)

	levels = sweepLevels([]*zones.Level{
		{Price: 100, CurrentRole: zones.Support},
		{Price: 110, CurrentRole: zones.Resistance},
	})
	require.Len(t, levels, 2)
	assert.Equal(t, venue.SideBuy, levels[0].Side)
	assert.Equal(t, venue.SideSell, levels[1].Side)
}
