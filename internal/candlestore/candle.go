// Package candlestore implements the durable, idempotent per-(symbol,
// timeframe) OHLCV archive described in spec.md §3 and §4.1 (component C1).
package candlestore

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Timeframe is one of the enumerated bucket sizes from spec.md §3. It is a
// closed set modeled as a string-backed enum rather than an opaque string,
// per spec.md §9 ("Variants over strings").
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF2h  Timeframe = "2h"
	TF4h  Timeframe = "4h"
	TF6h  Timeframe = "6h"
	TF12h Timeframe = "12h"
	TFDay Timeframe = "D"
	TFWeek Timeframe = "W"
	TFMonth Timeframe = "M"
)

var allTimeframes = []Timeframe{TF1m, TF3m, TF5m, TF15m, TF30m, TF1h, TF2h, TF4h, TF6h, TF12h, TFDay, TFWeek, TFMonth}

// IsValid reports whether tf is one of the thirteen enumerated buckets.
func (tf Timeframe) IsValid() bool {
	for _, v := range allTimeframes {
		if v == tf {
			return true
		}
	}
	return false
}

// Duration returns the bucket's fixed millisecond duration. ok is false for
// TFMonth, whose length is calendar-variable — callers must not assume a
// fixed ms duration for month buckets (spec.md §3).
func (tf Timeframe) Duration() (d time.Duration, ok bool) {
	switch tf {
	case TF1m:
		return time.Minute, true
	case TF3m:
		return 3 * time.Minute, true
	case TF5m:
		return 5 * time.Minute, true
	case TF15m:
		return 15 * time.Minute, true
	case TF30m:
		return 30 * time.Minute, true
	case TF1h:
		return time.Hour, true
	case TF2h:
		return 2 * time.Hour, true
	case TF4h:
		return 4 * time.Hour, true
	case TF6h:
		return 6 * time.Hour, true
	case TF12h:
		return 12 * time.Hour, true
	case TFDay:
		return 24 * time.Hour, true
	case TFWeek:
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// NextStart returns the bucket-aligned start of the next bar after a bar
// that opened at startMs. For TFMonth this advances calendar-wise (first of
// next UTC month) rather than by a fixed offset.
func (tf Timeframe) NextStart(startMs int64) int64 {
	if tf == TFMonth {
		t := time.UnixMilli(startMs).UTC()
		next := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		return next.UnixMilli()
	}
	d, _ := tf.Duration()
	return startMs + d.Milliseconds()
}

// BybitInterval maps a Timeframe to the venue's REST "interval" query value
// (spec.md §6: "1, 3, 5, 15, 30, 60, 120, 240, 360, 720, D, W, M").
func (tf Timeframe) BybitInterval() (string, error) {
	switch tf {
	case TF1m:
		return "1", nil
	case TF3m:
		return "3", nil
	case TF5m:
		return "5", nil
	case TF15m:
		return "15", nil
	case TF30m:
		return "30", nil
	case TF1h:
		return "60", nil
	case TF2h:
		return "120", nil
	case TF4h:
		return "240", nil
	case TF6h:
		return "360", nil
	case TF12h:
		return "720", nil
	case TFDay:
		return "D", nil
	case TFWeek:
		return "W", nil
	case TFMonth:
		return "M", nil
	default:
		return "", fmt.Errorf("unknown timeframe %q", tf)
	}
}

// Candle is a closed bar for (symbol, timeframe, startTime). See spec.md §3.
type Candle struct {
	Symbol    string
	Timeframe Timeframe
	StartTime int64 // milliseconds since epoch, bucket-aligned
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// ErrImplausible is returned by Validate when a candle fails the
// plausibility checks of spec.md §3.
var ErrImplausible = errors.New("candlestore: implausible candle")

// intradayRangeBound and longRangeBound are the (high-low)/open rejection
// thresholds from spec.md §3.
const (
	intradayRangeBound = 0.30
	longRangeBound     = 0.50
)

// Validate checks the OHLC ordering invariant and the plausibility bounds
// from spec.md §3. priceFloor/priceCeil is the per-symbol sanity band; a
// zero band disables the price-magnitude check (used in tests).
func (c Candle) Validate(priceFloor, priceCeil float64) error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite field", ErrImplausible)
		}
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: negative volume", ErrImplausible)
	}
	minOC := math.Min(c.Open, c.Close)
	maxOC := math.Max(c.Open, c.Close)
	if !(c.Low <= minOC && minOC <= maxOC && maxOC <= c.High) {
		return fmt.Errorf("%w: low<=min(o,c)<=max(o,c)<=high violated", ErrImplausible)
	}
	if c.Open <= 0 {
		return fmt.Errorf("%w: non-positive open", ErrImplausible)
	}
	bound := intradayRangeBound
	if c.Timeframe == TFDay || c.Timeframe == TFWeek || c.Timeframe == TFMonth {
		bound = longRangeBound
	}
	if (c.High-c.Low)/c.Open > bound {
		return fmt.Errorf("%w: range/open %.4f exceeds bound %.2f", ErrImplausible, (c.High-c.Low)/c.Open, bound)
	}
	if priceFloor > 0 && priceCeil > priceFloor {
		for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
			if v < priceFloor || v > priceCeil {
				return fmt.Errorf("%w: price %.8f outside sanity band [%.8f,%.8f]", ErrImplausible, v, priceFloor, priceCeil)
			}
		}
	}
	return nil
}
