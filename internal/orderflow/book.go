// Package orderflow implements the DOM, Time & Sales, Volume Delta and
// sweep/absorption analytics of spec.md §4.8 — grounded in
// original_source/src/analysis/orderflow.py and the teacher's
// internal/analytics/{orderbook_analyzer.go,cvd.go,order_flow_analyzer.go}.
package orderflow

import (
	"sort"

	"tradepulse/internal/venue"
)

// Book maintains one symbol's live order book from a snapshot-then-deltas
// WS stream, mirroring the teacher's OrderBookState (price->quantity maps,
// zero-size entries deleted on delta) but keyed off venue.BookEvent rather
// than a raw exchange payload.
type Book struct {
	bids map[float64]float64
	asks map[float64]float64
}

// NewBook returns an empty book; Apply must be called with a snapshot event
// before any delta is meaningful.
func NewBook() *Book {
	return &Book{bids: map[float64]float64{}, asks: map[float64]float64{}}
}

// Apply merges a snapshot (replaces state) or delta (upserts/deletes
// individual levels; Size==0 deletes) event into the book.
func (b *Book) Apply(ev venue.BookEvent) {
	if ev.Type == venue.BookSnapshot {
		b.bids = map[float64]float64{}
		b.asks = map[float64]float64{}
	}
	for _, l := range ev.Bids {
		if l.Size <= 0 {
			delete(b.bids, l.Price)
		} else {
			b.bids[l.Price] = l.Size
		}
	}
	for _, l := range ev.Asks {
		if l.Size <= 0 {
			delete(b.asks, l.Price)
		} else {
			b.asks[l.Price] = l.Size
		}
	}
}

// Clone returns an independent copy, used by internal/controlloop to keep
// the previous tick's book around for Absorption/sweep comparison.
func (b *Book) Clone() *Book {
	out := &Book{bids: make(map[float64]float64, len(b.bids)), asks: make(map[float64]float64, len(b.asks))}
	for p, s := range b.bids {
		out.bids[p] = s
	}
	for p, s := range b.asks {
		out.asks[p] = s
	}
	return out
}

// Levels returns the top `depth` bid and ask levels sorted best-first
// (highest bid, lowest ask).
func (b *Book) Levels(depth int) (bids, asks []venue.BookLevel) {
	bids = sortedLevels(b.bids, true, depth)
	asks = sortedLevels(b.asks, false, depth)
	return bids, asks
}

func sortedLevels(side map[float64]float64, descending bool, depth int) []venue.BookLevel {
	out := make([]venue.BookLevel, 0, len(side))
	for price, size := range side {
		out = append(out, venue.BookLevel{Price: price, Size: size})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	if depth > 0 && len(out) > depth {
		out = out[:depth]
	}
	return out
}

// Wall is one significant liquidity level in the DOM.
type Wall struct {
	Price float64
	Size  float64
	Side  venue.Side
}

// DOMResult is the outcome of AnalyzeDOM, matching orderflow.py's
// analyze_dom fields.
type DOMResult struct {
	BidWalls        []Wall
	AskWalls        []Wall
	ImbalanceRatio  float64 // bidVolume / (bidVolume + askVolume); 0.5 when both sides empty
	RawBidVolume    float64
	RawAskVolume    float64
	SignificantLevels []Wall
}

// AnalyzeDOM computes bid/ask imbalance and walls (levels at or above the
// wall-size percentile within the depth slice), per orderflow.py's
// analyze_dom / the teacher's WallInfo.
func AnalyzeDOM(b *Book, depth int, wallPercentile float64) DOMResult {
	bids, asks := b.Levels(depth)
	var bidVol, askVol float64
	sizes := make([]float64, 0, len(bids)+len(asks))
	for _, l := range bids {
		bidVol += l.Size
		sizes = append(sizes, l.Size)
	}
	for _, l := range asks {
		askVol += l.Size
		sizes = append(sizes, l.Size)
	}
	total := bidVol + askVol
	imbalance := 0.5
	if total > 0 {
		imbalance = bidVol / total
	}
	threshold := wallThreshold(sizes, wallPercentile)

	result := DOMResult{ImbalanceRatio: imbalance, RawBidVolume: bidVol, RawAskVolume: askVol}
	if threshold <= 0 {
		return result
	}
	for _, l := range bids {
		if l.Size >= threshold {
			w := Wall{Price: l.Price, Size: l.Size, Side: venue.SideBuy}
			result.BidWalls = append(result.BidWalls, w)
			result.SignificantLevels = append(result.SignificantLevels, w)
		}
	}
	for _, l := range asks {
		if l.Size >= threshold {
			w := Wall{Price: l.Price, Size: l.Size, Side: venue.SideSell}
			result.AskWalls = append(result.AskWalls, w)
			result.SignificantLevels = append(result.SignificantLevels, w)
		}
	}
	return result
}

func wallThreshold(sizes []float64, percentile float64) float64 {
	if len(sizes) == 0 {
		return 0
	}
	if len(sizes) == 1 {
		return sizes[0]
	}
	sorted := append([]float64(nil), sizes...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * percentile / 100.0)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
