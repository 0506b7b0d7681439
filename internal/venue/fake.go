package venue

import (
	"context"
	"sort"
	"sync"

	"tradepulse/internal/candlestore"
)

// Fake is an in-memory Venue used by accumulator/coordinator tests so the
// core never depends on network access to exercise its control flow.
type Fake struct {
	mu      sync.Mutex
	candles map[candlestore.Timeframe][]candlestore.Candle
	trades  []Trade

	bookHandlers  []BookHandler
	tradeHandlers []TradeHandler
}

func NewFake() *Fake {
	return &Fake{candles: make(map[candlestore.Timeframe][]candlestore.Candle)}
}

// Seed installs candles for a timeframe (any order; FetchCandles always
// returns ascending).
func (f *Fake) Seed(tf candlestore.Timeframe, candles ...candlestore.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candles[tf] = append(f.candles[tf], candles...)
	sort.Slice(f.candles[tf], func(i, j int) bool { return f.candles[tf][i].StartTime < f.candles[tf][j].StartTime })
}

func (f *Fake) SeedTrades(trades ...Trade) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, trades...)
}

func (f *Fake) FetchCandles(ctx context.Context, symbol string, tf candlestore.Timeframe, startMs, endMs int64, limit int) ([]candlestore.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []candlestore.Candle
	for _, c := range f.candles[tf] {
		if startMs > 0 && c.StartTime < startMs {
			continue
		}
		if endMs > 0 && c.StartTime > endMs {
			continue
		}
		out = append(out, c)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *Fake) SubscribeOrderBook(ctx context.Context, symbol string, depth int, handler BookHandler) (func(), error) {
	f.mu.Lock()
	f.bookHandlers = append(f.bookHandlers, handler)
	f.mu.Unlock()
	return func() {}, nil
}

func (f *Fake) SubscribeTrades(ctx context.Context, symbol string, handler TradeHandler) (func(), error) {
	f.mu.Lock()
	f.tradeHandlers = append(f.tradeHandlers, handler)
	f.mu.Unlock()
	return func() {}, nil
}

func (f *Fake) FetchRecentTrades(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > 0 && len(f.trades) > limit {
		return f.trades[len(f.trades)-limit:], nil
	}
	return f.trades, nil
}

// PushBook/PushTrades let a test drive the registered handlers directly.
func (f *Fake) PushBook(evt BookEvent) {
	f.mu.Lock()
	handlers := append([]BookHandler(nil), f.bookHandlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

func (f *Fake) PushTrades(trades []Trade) {
	f.mu.Lock()
	handlers := append([]TradeHandler(nil), f.tradeHandlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(trades)
	}
}

var _ Venue = (*Fake)(nil)
