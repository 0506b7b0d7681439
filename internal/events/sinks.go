// Package events is the control loop's event sink: an always-on CSV
// append-only audit trail, a database-backed Trade/Skip archive, and a
// last-state publisher external surfaces (Telegram/chart adapters, out of
// scope here) read instead of the database. Grounded in the teacher's
// internal/publisher/redis.go (throttle/metrics/health shape) and
// original_source/src/app/microstructure_sandbox.py's
// _append_trade_row/_get_trades_log_path CSV journal.
package events

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"tradepulse/internal/candlestore"
	"tradepulse/internal/metrics"
	"tradepulse/internal/sandbox"
)

var tradeHeader = []string{
	"run_id", "ts", "action", "side", "price", "size", "notional",
	"commission", "realized_pnl", "leverage", "entry_type", "exit_reason",
	"signal_direction", "signal_confidence", "reason",
}

var skipHeader = []string{"run_id", "ts", "direction", "confidence", "reason"}

// CSVSink appends every trade/skip row to two CSV files under dir, never
// reading them back — an audit trail only, per DESIGN.md's OQ2
// resolution (the database is authoritative).
type CSVSink struct {
	mu         sync.Mutex
	tradesPath string
	skipsPath  string
}

// NewCSVSink opens (creating if absent) trades.csv and skips.csv under
// dir, writing the header row only when the file is new.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("events: csv sink mkdir: %w", err)
	}
	s := &CSVSink{
		tradesPath: filepath.Join(dir, "trades.csv"),
		skipsPath:  filepath.Join(dir, "skips.csv"),
	}
	if err := writeHeaderIfNew(s.tradesPath, tradeHeader); err != nil {
		return nil, err
	}
	if err := writeHeaderIfNew(s.skipsPath, skipHeader); err != nil {
		return nil, err
	}
	return s, nil
}

func writeHeaderIfNew(path string, header []string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("events: create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	return w.Write(header)
}

func (s *CSVSink) WriteTrade(t sandbox.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.tradesPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("events: open trades csv: %w", err)
	}
	defer f.Close()

	realizedPnL := ""
	if t.RealizedPnL != nil {
		realizedPnL = t.RealizedPnL.String()
	}
	w := csv.NewWriter(f)
	defer w.Flush()
	return w.Write([]string{
		t.RunID, strconv.FormatInt(t.TsUnix, 10), string(t.Action), string(t.Side),
		strconv.FormatFloat(t.Price, 'f', -1, 64), strconv.FormatFloat(t.Size, 'f', -1, 64),
		t.Notional.String(), t.Commission.String(), realizedPnL,
		strconv.FormatFloat(t.Leverage, 'f', -1, 64), string(t.EntryType), string(t.ExitReason),
		string(t.SignalDirection), strconv.FormatFloat(t.SignalConfidence, 'f', -1, 64), t.Reason,
	})
}

func (s *CSVSink) WriteSkip(sk sandbox.Skip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.skipsPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("events: open skips csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	return w.Write([]string{
		sk.RunID, strconv.FormatInt(sk.TsUnix, 10), string(sk.Direction),
		strconv.FormatFloat(sk.Confidence, 'f', -1, 64), string(sk.Reason),
	})
}

var _ sandbox.Sink = (*CSVSink)(nil)

// DBSink persists every trade/skip row into the shared candle-store SQLite
// file's trades/skips tables, the database-authoritative counterpart to
// CSVSink.
type DBSink struct {
	store *candlestore.Store
}

func NewDBSink(store *candlestore.Store) *DBSink { return &DBSink{store: store} }

func (d *DBSink) WriteTrade(t sandbox.Trade) error {
	var realizedPnL *string
	if t.RealizedPnL != nil {
		s := t.RealizedPnL.String()
		realizedPnL = &s
	}
	return d.store.InsertTrade(context.Background(), candlestore.TradeRow{
		RunID:       t.RunID,
		TsUnix:      t.TsUnix,
		Action:      string(t.Action),
		Side:        string(t.Side),
		Price:       t.Price,
		Size:        t.Size,
		Notional:    t.Notional.String(),
		Commission:  t.Commission.String(),
		RealizedPnL: realizedPnL,
		Leverage:    t.Leverage,
		EntryType:   string(t.EntryType),
		ExitReason:  string(t.ExitReason),
		Reason:      t.Reason,
	})
}

func (d *DBSink) WriteSkip(sk sandbox.Skip) error {
	return d.store.InsertSkip(context.Background(), candlestore.SkipRow{
		RunID:      sk.RunID,
		TsUnix:     sk.TsUnix,
		Direction:  string(sk.Direction),
		Confidence: sk.Confidence,
		Reason:     string(sk.Reason),
	})
}

var _ sandbox.Sink = (*DBSink)(nil)

// MultiSink fans a trade/skip row out to every underlying Sink, collecting
// the first error but still calling every sink so one backend's outage
// never silently drops a row the others could still record.
type MultiSink struct {
	Sinks []sandbox.Sink
}

func (m MultiSink) WriteTrade(t sandbox.Trade) error {
	var firstErr error
	for _, s := range m.Sinks {
		if err := s.WriteTrade(t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiSink) WriteSkip(sk sandbox.Skip) error {
	var firstErr error
	for _, s := range m.Sinks {
		if err := s.WriteSkip(sk); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ sandbox.Sink = MultiSink{}

// MetricsSink decorates an underlying Sink with Prometheus counters: every
// trade/skip row that reaches the wrapped sink also increments the
// matching series on met. symbol is fixed at construction since one
// control loop instance trades exactly one symbol.
type MetricsSink struct {
	Sink   sandbox.Sink
	Met    *metrics.Metrics
	Symbol string
}

func (m MetricsSink) WriteTrade(t sandbox.Trade) error {
	err := m.Sink.WriteTrade(t)
	switch t.Action {
	case sandbox.ActionOpen:
		m.Met.RecordTradeOpened(m.Symbol, string(t.Side), string(t.EntryType))
	case sandbox.ActionClose:
		m.Met.RecordTradeClosed(m.Symbol, string(t.Side), string(t.ExitReason))
	}
	return err
}

func (m MetricsSink) WriteSkip(sk sandbox.Skip) error {
	err := m.Sink.WriteSkip(sk)
	m.Met.RecordSkip(m.Symbol, string(sk.Reason))
	return err
}

var _ sandbox.Sink = MetricsSink{}
