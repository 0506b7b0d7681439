// Package venue hides the venue's REST/WS surfaces behind the Venue
// interface (spec.md §4.2, component C2). The analytic core depends only
// on this interface and on Clock, never on the concrete Bybit wire codec
// directly (spec.md §1: the raw wire codec is out of scope / an adapter).
package venue

import (
	"context"
	"time"

	"tradepulse/internal/candlestore"
)

// Clock abstracts wall-clock time so the control loop and accumulator are
// testable without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Side is a trade/order-book aggressor side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is one executed print, shaped after spec.md §6's public-trade batch
// fields {T, S, v, p, i, seq, L}.
type Trade struct {
	Symbol    string
	Side      Side
	Price     float64
	Size      float64
	ID        string
	Seq       int64
	Timestamp time.Time
}

// BookLevel is a single (price, size) entry; Size==0 denotes a deletion in
// a delta message (spec.md §4.2).
type BookLevel struct {
	Price float64
	Size  float64
}

// BookEventType discriminates an order-book snapshot from a delta.
type BookEventType string

const (
	BookSnapshot BookEventType = "snapshot"
	BookDelta    BookEventType = "delta"
)

// BookEvent is one order-book WS message (spec.md §4.2/§6).
type BookEvent struct {
	Symbol    string
	Type      BookEventType
	Bids      []BookLevel
	Asks      []BookLevel
	Timestamp time.Time
	UpdateID  int64
}

// BookHandler and TradeHandler receive WS pushes.
type BookHandler func(BookEvent)
type TradeHandler func([]Trade)

// Venue is the interface the Accumulator, Coordinator and Control Loop
// depend on. A fake in-memory implementation backs all unit tests.
type Venue interface {
	// FetchCandles returns bars in ascending time within [startMs, endMs]
	// (either bound may be zero to mean "unbounded"), up to limit rows,
	// after filtering implausible bars per spec.md §3.
	FetchCandles(ctx context.Context, symbol string, tf candlestore.Timeframe, startMs, endMs int64, limit int) ([]candlestore.Candle, error)

	// SubscribeOrderBook starts a long-lived WS subscription; the first
	// delivered event is a snapshot, subsequent ones are deltas. Returns a
	// stop function that unsubscribes and joins within ~2s.
	SubscribeOrderBook(ctx context.Context, symbol string, depth int, handler BookHandler) (stop func(), err error)

	// SubscribeTrades starts a long-lived WS subscription for executed prints.
	SubscribeTrades(ctx context.Context, symbol string, handler TradeHandler) (stop func(), err error)

	// FetchRecentTrades is the REST fallback for "today" when the bulk
	// tick archive is not yet available (spec.md §4.2).
	FetchRecentTrades(ctx context.Context, symbol string, limit int) ([]Trade, error)
}
