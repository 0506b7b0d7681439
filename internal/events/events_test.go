package events

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/metrics"
	"tradepulse/internal/sandbox"
)

func TestCSVSinkWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSVSink(dir)
	require.NoError(t, err)

	require.NoError(t, sink.WriteTrade(sandbox.Trade{
		RunID: "r1", TsUnix: 1000, Action: sandbox.ActionOpen, Side: sandbox.PositionLong,
		Price: 100, Size: 1, Notional: decimal.NewFromFloat(100), Commission: decimal.NewFromFloat(0.06),
		EntryType: sandbox.EntrySignal,
	}))
	require.NoError(t, sink.WriteTrade(sandbox.Trade{
		RunID: "r1", TsUnix: 1001, Action: sandbox.ActionClose, Side: sandbox.PositionLong,
		Price: 101, Size: 1, Notional: decimal.NewFromFloat(101), Commission: decimal.NewFromFloat(0.06),
		ExitReason: sandbox.ExitTakeProfit,
	}))

	f, err := os.Open(filepath.Join(dir, "trades.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3) // header + 2 trades
	assert.Equal(t, tradeHeader, rows[0])
}

func TestCSVSinkWritesSkip(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSVSink(dir)
	require.NoError(t, err)

	require.NoError(t, sink.WriteSkip(sandbox.Skip{RunID: "r1", TsUnix: 1000, Reason: sandbox.SkipCooldown}))

	f, err := os.Open(filepath.Join(dir, "skips.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "cooldown", rows[1][4])
}

func TestMultiSinkFansOutToAll(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := MultiSink{Sinks: []sandbox.Sink{a, b}}

	require.NoError(t, m.WriteTrade(sandbox.Trade{RunID: "r1"}))
	assert.Len(t, a.trades, 1)
	assert.Len(t, b.trades, 1)
}

func TestMetricsSinkRecordsTradeAndSkipCounters(t *testing.T) {
	met := metrics.New(prometheus.NewRegistry(), nil)
	inner := &recordingSink{}
	sink := MetricsSink{Sink: inner, Met: met, Symbol: "BTCUSDT"}

	require.NoError(t, sink.WriteTrade(sandbox.Trade{
		Action: sandbox.ActionOpen, Side: sandbox.PositionLong, EntryType: sandbox.EntrySignal,
	}))
	require.NoError(t, sink.WriteTrade(sandbox.Trade{
		Action: sandbox.ActionClose, Side: sandbox.PositionLong, ExitReason: sandbox.ExitTakeProfit,
	}))
	require.NoError(t, sink.WriteSkip(sandbox.Skip{Reason: sandbox.SkipCooldown}))

	assert.Len(t, inner.trades, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(met.TradesOpened.WithLabelValues("BTCUSDT", "long", "signal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.TradesClosed.WithLabelValues("BTCUSDT", "long", "take_profit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.SkipsByReason.WithLabelValues("BTCUSDT", "cooldown")))
}

func TestLastStateSetGet(t *testing.T) {
	var ls LastState
	assert.Equal(t, "", ls.Get().Symbol)

	ls.Set(Snapshot{Symbol: "BTCUSDT"})
	assert.Equal(t, "BTCUSDT", ls.Get().Symbol)
}

type recordingSink struct {
	trades []sandbox.Trade
	skips  []sandbox.Skip
}

func (r *recordingSink) WriteTrade(t sandbox.Trade) error {
	r.trades = append(r.trades, t)
	return nil
}

func (r *recordingSink) WriteSkip(sk sandbox.Skip) error {
	r.skips = append(r.skips, sk)
	return nil
}
