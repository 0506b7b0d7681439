package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/orderflow"
	"tradepulse/internal/venue"
)

type fakeSink struct {
	trades []Trade
	skips  []Skip
}

func (f *fakeSink) WriteTrade(t Trade) error {
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeSink) WriteSkip(sk Skip) error {
	f.skips = append(f.skips, sk)
	return nil
}

func bullishSnapshot() orderflow.Snapshot {
	return orderflow.Snapshot{
		DOM:         orderflow.DOMResult{ImbalanceRatio: 0.9},
		VolumeDelta: orderflow.VolumeDelta{DeltaRatio: 0.5},
	}
}

func bearishSnapshot() orderflow.Snapshot {
	return orderflow.Snapshot{
		DOM:         orderflow.DOMResult{ImbalanceRatio: 0.1},
		VolumeDelta: orderflow.VolumeDelta{DeltaRatio: -0.5},
	}
}

func neutralSnapshot() orderflow.Snapshot {
	return orderflow.Snapshot{DOM: orderflow.DOMResult{ImbalanceRatio: 0.5}}
}

func TestOpenLongOnBullishSignal(t *testing.T) {
	sink := &fakeSink{}
	sb := New(DefaultConfig(), sink, nil)

	state := sb.Update(bullishSnapshot(), 100.0, 1000, nil, nil)

	assert.Equal(t, PositionLong, state.Position)
	assert.Greater(t, state.Size, 0.0)
	require.Len(t, sink.trades, 1)
	assert.Equal(t, ActionOpen, sink.trades[0].Action)
	assert.Equal(t, EntrySignal, sink.trades[0].EntryType)
}

func TestStopLossClosesPosition(t *testing.T) {
	sink := &fakeSink{}
	cfg := DefaultConfig()
	cfg.StopLossPct = 2.0
	sb := New(cfg, sink, nil)

	sb.Update(bullishSnapshot(), 100.0, 1000, nil, nil)
	require.Equal(t, PositionLong, sb.position)

	state := sb.Update(neutralSnapshot(), 95.0, 1001, nil, nil)

	assert.Equal(t, PositionFlat, state.Position)
	require.Len(t, sink.trades, 2)
	closeTrade := sink.trades[1]
	assert.Equal(t, ActionClose, closeTrade.Action)
	assert.Equal(t, ExitStopLoss, closeTrade.ExitReason)
	require.NotNil(t, closeTrade.RealizedPnL)
	f, _ := closeTrade.RealizedPnL.Float64()
	assert.Less(t, f, 0.0)
}

func TestLiquidationClosesPosition(t *testing.T) {
	sink := &fakeSink{}
	sb := New(DefaultConfig(), sink, nil)

	sb.Update(bullishSnapshot(), 100.0, 1000, nil, nil)
	require.Equal(t, PositionLong, sb.position)

	state := sb.Update(neutralSnapshot(), 70.0, 1001, nil, nil)

	assert.Equal(t, PositionFlat, state.Position)
	require.Len(t, sink.trades, 2)
	assert.Equal(t, ExitLiquidation, sink.trades[1].ExitReason)
}

func TestCooldownSkipsReentry(t *testing.T) {
	sink := &fakeSink{}
	cfg := DefaultConfig()
	cfg.CooldownSec = 60
	cfg.StopLossPct = 2.0
	sb := New(cfg, sink, nil)

	sb.Update(bullishSnapshot(), 100.0, 1000, nil, nil)
	sb.Update(neutralSnapshot(), 95.0, 1001, nil, nil) // stop loss closes
	require.Equal(t, PositionFlat, sb.position)

	state := sb.Update(bullishSnapshot(), 100.0, 1010, nil, nil) // still within cooldown

	assert.Equal(t, PositionFlat, state.Position)
	found := false
	for _, sk := range sink.skips {
		if sk.Reason == SkipCooldown {
			found = true
		}
	}
	assert.True(t, found, "expected a cooldown skip to be logged")
}

func TestReversalEntryType(t *testing.T) {
	sink := &fakeSink{}
	cfg := DefaultConfig()
	// A high min-hold keeps the ordinary microstructure exit from closing
	// the short before the opposite-direction open gate gets a chance to
	// reverse it within the same tick.
	cfg.MinHoldSec = 1_000_000
	sb := New(cfg, sink, nil)

	sb.Update(bearishSnapshot(), 100.0, 1000, nil, nil)
	require.Equal(t, PositionShort, sb.position)

	state := sb.Update(bullishSnapshot(), 100.0, 1001, nil, nil)

	assert.Equal(t, PositionLong, state.Position)
	require.Len(t, sink.trades, 3) // open short, close short, open long
	assert.Equal(t, ActionClose, sink.trades[1].Action)
	assert.Equal(t, ActionOpen, sink.trades[2].Action)
	assert.Equal(t, EntryReversal, sink.trades[2].EntryType)
}

func TestEquityAndUnrealizedPnLWhenFlat(t *testing.T) {
	sb := New(DefaultConfig(), nil, nil)
	assert.Equal(t, 0.0, sb.UnrealizedPnL(100))
	assert.Equal(t, sb.cfg.InitialBalance, sb.Equity(100))
}

func TestSweepOnlyIsSkippedByDefault(t *testing.T) {
	sink := &fakeSink{}
	sb := New(DefaultConfig(), sink, nil)

	snap := orderflow.Snapshot{
		DOM:    orderflow.DOMResult{ImbalanceRatio: 0.5},
		Sweeps: orderflow.SweepResult{HasSweep: true, LastSweepSide: venue.SideSell},
	}
	state := sb.Update(snap, 100.0, 1000, nil, nil)

	assert.Equal(t, PositionFlat, state.Position)
	require.Len(t, sink.skips, 1)
	assert.Equal(t, SkipSweepOnly, sink.skips[0].Reason)
}

func TestSweepOnlyAllowedWhenGateDisabled(t *testing.T) {
	sink := &fakeSink{}
	cfg := DefaultConfig()
	cfg.NoOpenSweepOnly = false
	sb := New(cfg, sink, nil)

	snap := orderflow.Snapshot{
		DOM:    orderflow.DOMResult{ImbalanceRatio: 0.5},
		Sweeps: orderflow.SweepResult{HasSweep: true, LastSweepSide: venue.SideSell},
	}
	state := sb.Update(snap, 100.0, 1000, nil, nil)
	assert.Equal(t, PositionShort, state.Position)
}
