// Package accumulator coordinates Candle Store mutations against a Venue:
// backfill, extend, catch-up, fill-gap and the periodic tick that runs
// catch-up across every configured timeframe. Every operation is
// idempotent by construction — the store dedupes on (symbol, timeframe,
// start_time) — and a per-timeframe error never aborts the others.
// Grounded in original_source/src/app's backfill/catch_up/fill_gap
// helpers and the teacher's internal/supervisor.Supervisor per-worker
// retry shape, scoped here to one bounded fan-out per Tick instead of
// long-lived supervision.
package accumulator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradepulse/internal/candlestore"
	"tradepulse/internal/venue"
)

// Config holds the accumulator's paging limits, mirroring
// config.TimeframesConfig.
type Config struct {
	KlineLimit         int
	BackfillMaxCandles int
}

func DefaultConfig() Config {
	return Config{KlineLimit: 1000, BackfillMaxCandles: 5000}
}

// Accumulator drives Store mutations from a Venue for one symbol across a
// fixed set of timeframes.
type Accumulator struct {
	store  *candlestore.Store
	ven    venue.Venue
	clock  venue.Clock
	cfg    Config
	logger *zap.Logger
}

func New(store *candlestore.Store, ven venue.Venue, clock venue.Clock, cfg Config, logger *zap.Logger) *Accumulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = venue.SystemClock{}
	}
	return &Accumulator{store: store, ven: ven, clock: clock, cfg: cfg, logger: logger}
}

// Backfill pages backward from "now" until maxCandles is reached or the
// venue returns an empty page, for a timeframe the store holds zero bars
// for.
func (a *Accumulator) Backfill(ctx context.Context, symbol string, tf candlestore.Timeframe) (int, error) {
	endMs := a.clock.Now().UnixMilli()
	inserted := 0
	for inserted < a.cfg.BackfillMaxCandles {
		limit := a.cfg.KlineLimit
		if remaining := a.cfg.BackfillMaxCandles - inserted; remaining < limit {
			limit = remaining
		}
		candles, err := a.ven.FetchCandles(ctx, symbol, tf, 0, endMs, limit)
		if err != nil {
			return inserted, fmt.Errorf("accumulator: backfill %s/%s: %w", symbol, tf, err)
		}
		if len(candles) == 0 {
			break
		}
		n, err := a.store.Insert(ctx, candles)
		if err != nil {
			return inserted, fmt.Errorf("accumulator: backfill insert %s/%s: %w", symbol, tf, err)
		}
		inserted += n
		endMs = candles[0].StartTime - 1
		if len(candles) < limit {
			break
		}
	}
	return inserted, nil
}

// Extend deepens history from the current oldest bar, paging backward one
// chunk at a time until a request returns empty.
func (a *Accumulator) Extend(ctx context.Context, symbol string, tf candlestore.Timeframe) (int, error) {
	oldest, ok, err := a.store.OldestStart(ctx, symbol, tf)
	if err != nil {
		return 0, fmt.Errorf("accumulator: extend oldest %s/%s: %w", symbol, tf, err)
	}
	if !ok {
		return a.Backfill(ctx, symbol, tf)
	}
	inserted := 0
	endMs := oldest - 1
	for {
		candles, err := a.ven.FetchCandles(ctx, symbol, tf, 0, endMs, a.cfg.KlineLimit)
		if err != nil {
			return inserted, fmt.Errorf("accumulator: extend %s/%s: %w", symbol, tf, err)
		}
		if len(candles) == 0 {
			break
		}
		n, err := a.store.Insert(ctx, candles)
		if err != nil {
			return inserted, fmt.Errorf("accumulator: extend insert %s/%s: %w", symbol, tf, err)
		}
		inserted += n
		endMs = candles[0].StartTime - 1
		if len(candles) < a.cfg.KlineLimit {
			break
		}
	}
	return inserted, nil
}

// CatchUp fetches [latestStart + tfDuration, now] in chunks of up to 1000
// until exhausted; a timeframe the store holds nothing for is backfilled
// instead.
func (a *Accumulator) CatchUp(ctx context.Context, symbol string, tf candlestore.Timeframe) (int, error) {
	latest, ok, err := a.store.LatestStart(ctx, symbol, tf)
	if err != nil {
		return 0, fmt.Errorf("accumulator: catch-up latest %s/%s: %w", symbol, tf, err)
	}
	if !ok {
		return a.Backfill(ctx, symbol, tf)
	}
	dur, durOK := tf.Duration()
	startMs := latest
	if durOK {
		startMs = latest + dur.Milliseconds()
	} else {
		startMs = latest + 1
	}
	nowMs := a.clock.Now().UnixMilli()
	inserted := 0
	for startMs < nowMs {
		candles, err := a.ven.FetchCandles(ctx, symbol, tf, startMs, nowMs, 1000)
		if err != nil {
			return inserted, fmt.Errorf("accumulator: catch-up %s/%s: %w", symbol, tf, err)
		}
		if len(candles) == 0 {
			break
		}
		n, err := a.store.Insert(ctx, candles)
		if err != nil {
			return inserted, fmt.Errorf("accumulator: catch-up insert %s/%s: %w", symbol, tf, err)
		}
		inserted += n
		last := candles[len(candles)-1].StartTime
		if durOK {
			startMs = last + dur.Milliseconds()
		} else {
			startMs = last + 1
		}
		if len(candles) < 1000 {
			break
		}
	}
	return inserted, nil
}

// FillGap requests [oldest+tfDuration, latest-tfDuration] for a dense
// archive missing interior bars and inserts only the missing ones — the
// store's dedupe-on-insert makes re-requesting already-present bars safe.
func (a *Accumulator) FillGap(ctx context.Context, symbol string, tf candlestore.Timeframe) (int, error) {
	oldest, ok1, err := a.store.OldestStart(ctx, symbol, tf)
	if err != nil {
		return 0, fmt.Errorf("accumulator: fill-gap oldest %s/%s: %w", symbol, tf, err)
	}
	latest, ok2, err := a.store.LatestStart(ctx, symbol, tf)
	if err != nil {
		return 0, fmt.Errorf("accumulator: fill-gap latest %s/%s: %w", symbol, tf, err)
	}
	if !ok1 || !ok2 {
		return 0, nil
	}
	dur, durOK := tf.Duration()
	startMs, endMs := oldest, latest
	if durOK {
		startMs = oldest + dur.Milliseconds()
		endMs = latest - dur.Milliseconds()
	}
	if startMs >= endMs {
		return 0, nil
	}
	candles, err := a.ven.FetchCandles(ctx, symbol, tf, startMs, endMs, a.cfg.KlineLimit)
	if err != nil {
		return 0, fmt.Errorf("accumulator: fill-gap %s/%s: %w", symbol, tf, err)
	}
	n, err := a.store.Insert(ctx, candles)
	if err != nil {
		return 0, fmt.Errorf("accumulator: fill-gap insert %s/%s: %w", symbol, tf, err)
	}
	return n, nil
}

// TickResult is one timeframe's outcome from a Tick fan-out.
type TickResult struct {
	Timeframe candlestore.Timeframe
	Inserted  int
	Err       error
}

// Tick runs CatchUp for every timeframe in tfs concurrently (bounded by
// errgroup's implicit unbounded-but-short-lived fan-out — one goroutine
// per TF, joined before returning). A per-TF error is captured in its own
// TickResult rather than aborting its siblings, per spec.md §4.3/§7's
// "per-TF failures never abort the tick."
func (a *Accumulator) Tick(ctx context.Context, symbol string, tfs []candlestore.Timeframe) []TickResult {
	results := make([]TickResult, len(tfs))
	var g errgroup.Group
	for i, tf := range tfs {
		i, tf := i, tf
		g.Go(func() error {
			n, err := a.CatchUp(ctx, symbol, tf)
			results[i] = TickResult{Timeframe: tf, Inserted: n, Err: err}
			if err != nil {
				a.logger.Error("accumulator tick: catch-up failed", zap.String("tf", string(tf)), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
