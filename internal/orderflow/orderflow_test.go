package orderflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/candlestore"
	"tradepulse/internal/venue"
)

func TestBookApplySnapshotThenDelta(t *testing.T) {
	b := NewBook()
	b.Apply(venue.BookEvent{
		Type: venue.BookSnapshot,
		Bids: []venue.BookLevel{{Price: 100, Size: 5}, {Price: 99, Size: 3}},
		Asks: []venue.BookLevel{{Price: 101, Size: 4}, {Price: 102, Size: 2}},
	})
	bids, asks := b.Levels(10)
	require.Len(t, bids, 2)
	require.Len(t, asks, 2)
	assert.Equal(t, 100.0, bids[0].Price) // best bid first

	b.Apply(venue.BookEvent{
		Type: venue.BookDelta,
		Bids: []venue.BookLevel{{Price: 100, Size: 0}}, // delete
		Asks: []venue.BookLevel{{Price: 103, Size: 1}},  // insert
	})
	bids, asks = b.Levels(10)
	assert.Len(t, bids, 1)
	assert.Len(t, asks, 3)
}

func TestAnalyzeDOMImbalanceRatioBounded(t *testing.T) {
	b := NewBook()
	b.Apply(venue.BookEvent{
		Type: venue.BookSnapshot,
		Bids: []venue.BookLevel{{Price: 100, Size: 50}, {Price: 99, Size: 2}},
		Asks: []venue.BookLevel{{Price: 101, Size: 3}, {Price: 102, Size: 2}},
	})
	result := AnalyzeDOM(b, 20, 90)
	assert.GreaterOrEqual(t, result.ImbalanceRatio, 0.0)
	assert.LessOrEqual(t, result.ImbalanceRatio, 1.0)
	assert.Greater(t, result.ImbalanceRatio, 0.5) // bid-heavy
	assert.NotEmpty(t, result.BidWalls)
}

func TestAnalyzeDOMEmptyBookDefaultsToHalf(t *testing.T) {
	result := AnalyzeDOM(NewBook(), 20, 90)
	assert.Equal(t, 0.5, result.ImbalanceRatio)
}

func trade(tsSec int64, side venue.Side, price, size float64) venue.Trade {
	return venue.Trade{Side: side, Price: price, Size: size, Timestamp: time.Unix(tsSec, 0)}
}

func TestComputeVolumeDeltaRatioBounded(t *testing.T) {
	trades := []venue.Trade{
		trade(0, venue.SideBuy, 100, 5),
		trade(10, venue.SideSell, 100, 2),
		trade(20, venue.SideBuy, 100, 3),
	}
	now := time.Unix(20, 0)
	delta := ComputeVolumeDelta(trades, 60, &now)
	assert.GreaterOrEqual(t, delta.DeltaRatio, -1.0)
	assert.LessOrEqual(t, delta.DeltaRatio, 1.0)
	assert.Equal(t, 6.0, delta.Delta) // 8 buy - 2 sell
}

func TestAnalyzeTimeAndSalesSpikeDetection(t *testing.T) {
	var trades []venue.Trade
	for i := int64(0); i < 30; i++ {
		trades = append(trades, trade(i, venue.SideBuy, 100, 1))
	}
	for i := int64(30); i < 60; i++ {
		trades = append(trades, trade(i, venue.SideBuy, 100, 5))
	}
	now := time.Unix(59, 0)
	result := AnalyzeTimeAndSales(trades, 60, 2.0, &now)
	assert.True(t, result.IsVolumeSpike)
}

func TestLastTradesBiasBuy(t *testing.T) {
	trades := []venue.Trade{
		trade(0, venue.SideBuy, 100, 5),
		trade(1, venue.SideBuy, 100, 5),
		trade(2, venue.SideSell, 100, 1),
	}
	result := LastTradesAndBlock(trades, 10, 1.2)
	assert.Equal(t, venue.SideBuy, result.Bias)
	assert.False(t, result.Neutral)
}

func candle(startTime int64, open, high, low, close float64) candlestore.Candle {
	return candlestore.Candle{
		Symbol: "BTCUSDT", Timeframe: candlestore.TF1m, StartTime: startTime,
		Open: open, High: high, Low: low, Close: close, Volume: 10,
	}
}

func TestDetectSweepsSupportSweepRequiresLowerWick(t *testing.T) {
	candles := []candlestore.Candle{
		candle(0, 100, 101, 99.5, 100.5),
		candle(1, 100.5, 101, 98, 100.8), // wicks below 99 and closes back above it
	}
	levels := []SweepLevel{{Price: 99, Side: venue.SideBuy}}
	result := DetectSweeps(candles, levels, 5, 0.5)
	assert.True(t, result.HasSweep)
	assert.Equal(t, venue.SideBuy, result.LastSweepSide)
	require.Len(t, result.RecentBidSweeps, 1)
}

func TestAnalyzeAbsorptionDropFlagsAbsorption(t *testing.T) {
	prev := NewBook()
	prev.Apply(venue.BookEvent{Type: venue.BookSnapshot, Asks: []venue.BookLevel{{Price: 101, Size: 100}}})
	cur := NewBook()
	cur.Apply(venue.BookEvent{Type: venue.BookSnapshot, Asks: []venue.BookLevel{{Price: 101, Size: 20}}})

	result := AnalyzeAbsorption(prev, cur, 20, 0.7, LastTradesBlock{Bias: venue.SideBuy, Neutral: false, LastBlockSide: venue.SideBuy})
	assert.True(t, result.AbsorptionAsk)
	assert.True(t, result.Bullish)
}

func TestAnalyzeReturnsFullSnapshot(t *testing.T) {
	b := NewBook()
	b.Apply(venue.BookEvent{
		Type: venue.BookSnapshot,
		Bids: []venue.BookLevel{{Price: 100, Size: 5}},
		Asks: []venue.BookLevel{{Price: 101, Size: 5}},
	})
	trades := []venue.Trade{
		trade(0, venue.SideBuy, 100, 5),
		trade(5, venue.SideSell, 100, 2),
	}
	candles := []candlestore.Candle{candle(0, 100, 101, 99, 100)}
	now := time.Unix(5, 0)
	snap := Analyze(b, nil, trades, candles, nil, DefaultConfig(), &now)
	assert.NotNil(t, snap.ShortWindowDelta)
	assert.NotNil(t, snap.DeltaPriceDivergence)
}
