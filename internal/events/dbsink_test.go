package events

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradepulse/internal/candlestore"
	"tradepulse/internal/sandbox"
)

func TestDBSinkPersistsTradeAndSkip(t *testing.T) {
	dir := t.TempDir()
	store, err := candlestore.Open(filepath.Join(dir, "candles.db"), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	sink := NewDBSink(store)
	pnl := decimal.NewFromFloat(1.23)
	require.NoError(t, sink.WriteTrade(sandbox.Trade{
		RunID: "r1", TsUnix: 1000, Action: sandbox.ActionClose, Side: sandbox.PositionLong,
		Price: 101, Size: 1, Notional: decimal.NewFromFloat(101), Commission: decimal.NewFromFloat(0.06),
		RealizedPnL: &pnl, ExitReason: sandbox.ExitStopLoss,
	}))
	require.NoError(t, sink.WriteSkip(sandbox.Skip{RunID: "r1", TsUnix: 999, Reason: sandbox.SkipCooldown}))

	var count int
	require.NoError(t, store.DB().QueryRowContext(context.Background(), `SELECT COUNT(*) FROM trades WHERE run_id='r1'`).Scan(&count))
	assert.Equal(t, 1, count)

	require.NoError(t, store.DB().QueryRowContext(context.Background(), `SELECT COUNT(*) FROM skips WHERE run_id='r1'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPurgeUnfinishedRuns(t *testing.T) {
	dir := t.TempDir()
	store, err := candlestore.Open(filepath.Join(dir, "candles.db"), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.StartRun(ctx, "run-unfinished", "BTCUSDT", 1000))
	require.NoError(t, store.StartRun(ctx, "run-done", "BTCUSDT", 1000))
	require.NoError(t, store.FinishRun(ctx, "run-done", 2000))

	require.NoError(t, store.PurgeUnfinishedRuns(ctx))

	var count int
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&count))
	assert.Equal(t, 1, count)
}
