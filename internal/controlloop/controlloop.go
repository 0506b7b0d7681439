// Package controlloop wires every analytic component into the single
// per-symbol tick cycle spec.md §9 describes: Accumulator catch-up,
// Coordinator multi-TF analysis, Order-Flow read, the Context-Now gate,
// the Sandbox state machine, and the last-tick publish to the event sinks
// and Redis. Grounded in original_source/src/app/bot_loop.py's
// run_one_tick and the teacher's cmd/main.go app-struct lifecycle
// (initialize/start/waitForShutdown/shutdown) plus
// internal/supervisor.Supervisor's single-purpose worker goroutine model.
package controlloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradepulse/internal/accumulator"
	"tradepulse/internal/candlestore"
	"tradepulse/internal/contextnow"
	"tradepulse/internal/coordinator"
	"tradepulse/internal/events"
	"tradepulse/internal/metrics"
	"tradepulse/internal/orderflow"
	"tradepulse/internal/sandbox"
	"tradepulse/internal/venue"
	"tradepulse/internal/zones"
)

// Config holds the loop's own tunables: which timeframes to analyze vs
// merely archive, the tick cadence, and the book/trade subscription depth.
// Everything else (phase/trend/filters/orderflow/sandbox thresholds) is
// carried inside the Coordinator, orderflow.Config and sandbox.Config
// values passed to New.
type Config struct {
	Symbol       string
	AnalysisTFs  []candlestore.Timeframe // ascending by duration; last is the "higher TF"
	DBTFs        []candlestore.Timeframe // superset archived even if not analyzed
	ExecutionTF  candlestore.Timeframe   // timeframe whose candles feed sweep detection
	KlineLimit   int
	PollInterval time.Duration
	BookDepth    int
}

// Loop owns one symbol's running state across ticks: the live order book,
// a short trade buffer, the Coordinator's stability history and the
// Sandbox's open position. Not safe for concurrent Run calls; one Loop per
// symbol/process, mirroring the teacher's one P9MicroStream per process.
type Loop struct {
	cfg    Config
	store  *candlestore.Store
	ven    venue.Venue
	clock  venue.Clock
	acc    *accumulator.Accumulator
	coord  *coordinator.Coordinator
	ofCfg  orderflow.Config
	cnCfg  contextnow.Config
	sb     *sandbox.Sandbox
	met    *metrics.Metrics
	last   *events.LastState
	pub    *events.StatePublisher
	logger *zap.Logger
	runID  string

	mu       sync.Mutex
	book     *orderflow.Book
	prevBook *orderflow.Book
	trades   []venue.Trade
}

// New builds a Loop. sink feeds the sandbox's trade/skip log (typically an
// events.MultiSink fanning out to CSV and the database); pub may be nil to
// disable the Redis last-state publish.
func New(cfg Config, store *candlestore.Store, ven venue.Venue, clock venue.Clock,
	acc *accumulator.Accumulator, coord *coordinator.Coordinator, ofCfg orderflow.Config,
	cnCfg contextnow.Config, sbCfg sandbox.Config, sink sandbox.Sink,
	met *metrics.Metrics, last *events.LastState, pub *events.StatePublisher, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = venue.SystemClock{}
	}
	if last == nil {
		last = &events.LastState{}
	}
	sbCfg.RunID = uuid.NewString()
	return &Loop{
		cfg:      cfg,
		store:    store,
		ven:      ven,
		clock:    clock,
		acc:      acc,
		coord:    coord,
		ofCfg:    ofCfg,
		cnCfg:    cnCfg,
		sb:       sandbox.New(sbCfg, sink, logger),
		met:      met,
		last:     last,
		pub:      pub,
		logger:   logger,
		runID:    sbCfg.RunID,
		book:     orderflow.NewBook(),
	}
}

// Run subscribes to the live book/trade streams, purges any unfinished run
// rows left by a prior crash, starts a fresh run row, and ticks on
// cfg.PollInterval until ctx is canceled. It always finishes the run row
// before returning, even on subscription failure.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.store.PurgeUnfinishedRuns(ctx); err != nil {
		l.logger.Warn("controlloop: purge unfinished runs failed", zap.Error(err))
	}
	if err := l.store.StartRun(ctx, l.runID, l.cfg.Symbol, l.clock.Now().Unix()); err != nil {
		return fmt.Errorf("controlloop: start run: %w", err)
	}
	defer func() {
		if err := l.store.FinishRun(context.Background(), l.runID, l.clock.Now().Unix()); err != nil {
			l.logger.Warn("controlloop: finish run failed", zap.Error(err))
		}
	}()

	stopBook, err := l.ven.SubscribeOrderBook(ctx, l.cfg.Symbol, l.cfg.BookDepth, l.onBook)
	if err != nil {
		return fmt.Errorf("controlloop: subscribe order book: %w", err)
	}
	defer stopBook()

	stopTrades, err := l.ven.SubscribeTrades(ctx, l.cfg.Symbol, l.onTrades)
	if err != nil {
		return fmt.Errorf("controlloop: subscribe trades: %w", err)
	}
	defer stopTrades()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) onBook(ev venue.BookEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.book.Apply(ev)
}

func (l *Loop) onTrades(batch []venue.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = append(l.trades, batch...)
	cutoff := l.clock.Now().Add(-2 * time.Minute)
	i := 0
	for i < len(l.trades) && l.trades[i].Timestamp.Before(cutoff) {
		i++
	}
	l.trades = l.trades[i:]
}

// tick runs one full analysis cycle: catch-up, multi-TF coordination,
// order-flow, the context-now gate, the sandbox state machine, and the
// last-tick publish. A per-timeframe accumulator error or a Redis publish
// error is logged and the tick goes on; a candle-load failure, or a
// coordinator call that returns no result, is logged (where an error
// exists) and ends the tick early. None of these stops the loop.
func (l *Loop) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if l.met != nil {
			l.met.ObserveTickDuration(l.cfg.Symbol, time.Since(start))
		}
	}()

	for _, r := range l.acc.Tick(ctx, l.cfg.Symbol, l.cfg.DBTFs) {
		if r.Err != nil {
			l.logger.Warn("controlloop: accumulator tick failed", zap.String("tf", string(r.Timeframe)), zap.Error(r.Err))
			if l.met != nil {
				l.met.RecordAccumulatorError(l.cfg.Symbol, string(r.Timeframe), "tick")
			}
			continue
		}
		if l.met != nil {
			l.met.RecordCandlesInserted(l.cfg.Symbol, string(r.Timeframe), r.Inserted)
		}
	}

	candlesByTF := make(map[candlestore.Timeframe][]candlestore.Candle, len(l.cfg.AnalysisTFs))
	for _, tf := range l.cfg.AnalysisTFs {
		candles, err := l.store.Range(ctx, l.cfg.Symbol, tf, false, l.cfg.KlineLimit)
		if err != nil {
			l.logger.Error("controlloop: load candles failed", zap.String("tf", string(tf)), zap.Error(err))
			return
		}
		reverse(candles)
		candlesByTF[tf] = candles
	}

	tfStart := time.Now()
	res := l.coord.Analyze(l.cfg.Symbol, candlesByTF)
	if l.met != nil {
		l.met.ObserveTFAnalysisDuration(l.cfg.Symbol, string(l.cfg.ExecutionTF), time.Since(tfStart))
	}
	if res == nil {
		return
	}

	execCandles := candlesByTF[l.cfg.ExecutionTF]
	closePrice := lastClose(execCandles)

	l.mu.Lock()
	curBook := l.book.Clone()
	tradesCopy := append([]venue.Trade(nil), l.trades...)
	l.mu.Unlock()

	now := l.clock.Now()
	ofSnap := orderflow.Analyze(curBook, l.prevBook, tradesCopy, execCandles, sweepLevels(res.TradingZones), l.ofCfg, &now)
	l.prevBook = curBook

	zonesSnap := zones.Nearest(res.TradingZones, closePrice)
	cn := contextnow.Compute(closePrice, ofSnap, &zonesSnap, l.cnCfg)
	sandboxCN := cn.ToSandbox()

	higherTrend := res.HigherTFTrend
	state := l.sb.Update(ofSnap, closePrice, now.Unix(), &higherTrend, &sandboxCN)

	if l.met != nil {
		l.met.SetEquity(l.cfg.Symbol, state.EquityUSD)
		l.met.SetLeverage(l.cfg.Symbol, state.Leverage)
		l.met.SetOpenPosition(l.cfg.Symbol, positionValue(state.Position))
	}

	snap := events.BuildSnapshot(l.cfg.Symbol, now, res, state)
	l.last.Set(snap)
	if l.pub != nil {
		if err := l.pub.Publish(ctx, snap); err != nil {
			l.logger.Warn("controlloop: redis publish failed", zap.Error(err))
		}
	}
}

func positionValue(p sandbox.PositionSide) float64 {
	switch p {
	case sandbox.PositionLong:
		return 1
	case sandbox.PositionShort:
		return -1
	default:
		return 0
	}
}

func lastClose(candles []candlestore.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

func reverse(candles []candlestore.Candle) {
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
}

// sweepLevels reprojects the coordinator's trading zones onto
// orderflow.SweepLevel's Side convention: a support level is swept from
// below (buy side), a resistance level from above (sell side).
func sweepLevels(levels []*zones.Level) []orderflow.SweepLevel {
	out := make([]orderflow.SweepLevel, 0, len(levels))
	for _, lvl := range levels {
		side := venue.SideBuy
		if lvl.CurrentRole == zones.Resistance {
			side = venue.SideSell
		}
		out = append(out, orderflow.SweepLevel{Price: lvl.Price, Side: side})
	}
	return out
}
