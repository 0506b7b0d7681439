package candlestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"
)

// Store is the durable, idempotent candle archive (spec.md §4.1). It wraps
// a single *sql.DB opened against a WAL-journaled SQLite file, grounded on
// original_source/src/core/database.py's klines table and busy-timeout
// discipline.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Filter narrows Count to a (symbol, timeframe) pair; empty fields mean "any".
type Filter struct {
	Symbol    string
	Timeframe Timeframe
}

// Open opens (creating if absent) the SQLite file at path, enables WAL
// journaling and a busy timeout matching spec.md §5's 5s writer busy-wait,
// and ensures the schema exists.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("candlestore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers per-conn; WAL lets readers overlap via busy_timeout retries
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("candlestore: pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("candlestore: schema init: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS klines (
	symbol     TEXT NOT NULL,
	timeframe  TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	open       REAL NOT NULL,
	high       REAL NOT NULL,
	low        REAL NOT NULL,
	close      REAL NOT NULL,
	volume     REAL NOT NULL,
	PRIMARY KEY (symbol, timeframe, start_time)
);
CREATE INDEX IF NOT EXISTS ix_klines_symbol_tf_time ON klines (symbol, timeframe, start_time);

CREATE TABLE IF NOT EXISTS orderflow_metrics (
	symbol          TEXT NOT NULL,
	ts              INTEGER NOT NULL,
	imbalance_ratio REAL,
	delta           REAL,
	delta_ratio     REAL,
	volume_per_sec  REAL,
	last_sweep_side TEXT,
	last_sweep_ts   INTEGER,
	PRIMARY KEY (symbol, ts)
);
CREATE INDEX IF NOT EXISTS ix_orderflow_symbol_ts ON orderflow_metrics (symbol, ts);

CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	symbol      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER
);

CREATE TABLE IF NOT EXISTS trades (
	run_id       TEXT NOT NULL,
	ts           INTEGER NOT NULL,
	action       TEXT NOT NULL,
	side         TEXT NOT NULL,
	price        REAL NOT NULL,
	size         REAL NOT NULL,
	notional     TEXT NOT NULL,
	commission   TEXT NOT NULL,
	realized_pnl TEXT,
	leverage     REAL NOT NULL,
	entry_type   TEXT,
	exit_reason  TEXT,
	reason       TEXT
);
CREATE INDEX IF NOT EXISTS ix_trades_run_ts ON trades (run_id, ts);

CREATE TABLE IF NOT EXISTS skips (
	run_id     TEXT NOT NULL,
	ts         INTEGER NOT NULL,
	direction  TEXT NOT NULL,
	confidence REAL NOT NULL,
	reason     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_skips_run_ts ON skips (run_id, ts);
`

// StartRun inserts a new run row; callers generate runID (internal/controlloop
// uses google/uuid), matching spec.md §3's Run record.
func (s *Store) StartRun(ctx context.Context, runID, symbol string, startedAt int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (run_id, symbol, started_at) VALUES (?, ?, ?)`, runID, symbol, startedAt)
	if err != nil {
		return fmt.Errorf("candlestore: start run: %w", err)
	}
	return nil
}

// FinishRun marks runID complete.
func (s *Store) FinishRun(ctx context.Context, runID string, finishedAt int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at=? WHERE run_id=?`, finishedAt, runID)
	if err != nil {
		return fmt.Errorf("candlestore: finish run: %w", err)
	}
	return nil
}

// PurgeUnfinishedRuns deletes any run row (and its trades/skips) with no
// finishedAt, per DESIGN.md's OQ2 resolution: the database, not a CSV
// journal, is authoritative for what counts as a completed run.
func (s *Store) PurgeUnfinishedRuns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id FROM runs WHERE finished_at IS NULL`)
	if err != nil {
		return fmt.Errorf("candlestore: query unfinished runs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("candlestore: scan unfinished run: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM trades WHERE run_id=?`, id); err != nil {
			return fmt.Errorf("candlestore: purge trades for %s: %w", id, err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM skips WHERE run_id=?`, id); err != nil {
			return fmt.Errorf("candlestore: purge skips for %s: %w", id, err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id=?`, id); err != nil {
			return fmt.Errorf("candlestore: purge run %s: %w", id, err)
		}
	}
	return nil
}

// InsertTrade persists one sandbox trade row (spec.md §3's Trade record)
// into the shared WAL file, the "same durable resource" note in spec.md §9
// generalized to cover the paper-trading archive alongside klines.
func (s *Store) InsertTrade(ctx context.Context, t TradeRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (run_id, ts, action, side, price, size, notional, commission, realized_pnl, leverage, entry_type, exit_reason, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.TsUnix, t.Action, t.Side, t.Price, t.Size, t.Notional, t.Commission, t.RealizedPnL, t.Leverage, t.EntryType, t.ExitReason, t.Reason)
	if err != nil {
		return fmt.Errorf("candlestore: insert trade: %w", err)
	}
	return nil
}

// InsertSkip persists one sandbox skip row (spec.md §3's Skip record).
func (s *Store) InsertSkip(ctx context.Context, sk SkipRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skips (run_id, ts, direction, confidence, reason)
		VALUES (?, ?, ?, ?, ?)`,
		sk.RunID, sk.TsUnix, sk.Direction, sk.Confidence, sk.Reason)
	if err != nil {
		return fmt.Errorf("candlestore: insert skip: %w", err)
	}
	return nil
}

// TradeRow and SkipRow are the SQL-facing projections of
// internal/sandbox.Trade/Skip — plain strings/floats so this package never
// imports internal/sandbox (internal/events does the field mapping).
type TradeRow struct {
	RunID       string
	TsUnix      int64
	Action      string
	Side        string
	Price       float64
	Size        float64
	Notional    string
	Commission  string
	RealizedPnL *string
	Leverage    float64
	EntryType   string
	ExitReason  string
	Reason      string
}

type SkipRow struct {
	RunID      string
	TsUnix     int64
	Direction  string
	Confidence float64
	Reason     string
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle; the tests use it to query the
// runs/trades/skips tables directly.
func (s *Store) DB() *sql.DB { return s.db }

// Insert idempotently inserts batch and returns the count of rows actually
// inserted; duplicates on the primary key are silently dropped
// (spec.md §4.1).
func (s *Store) Insert(ctx context.Context, batch []Candle) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("candlestore: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO klines
		(symbol, timeframe, start_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("candlestore: prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, c := range batch {
		res, err := stmt.ExecContext(ctx, c.Symbol, string(c.Timeframe), c.StartTime, c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return inserted, fmt.Errorf("candlestore: insert %s/%s@%d: %w", c.Symbol, c.Timeframe, c.StartTime, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("candlestore: commit: %w", err)
	}
	return inserted, nil
}

// LatestStart returns the most recent bar's start time, or ok=false if none.
func (s *Store) LatestStart(ctx context.Context, symbol string, tf Timeframe) (start int64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT MAX(start_time) FROM klines WHERE symbol=? AND timeframe=?`, symbol, string(tf))
	var v sql.NullInt64
	if err := row.Scan(&v); err != nil {
		return 0, false, fmt.Errorf("candlestore: latest start: %w", err)
	}
	return v.Int64, v.Valid, nil
}

// OldestStart returns the oldest bar's start time, or ok=false if none.
func (s *Store) OldestStart(ctx context.Context, symbol string, tf Timeframe) (start int64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT MIN(start_time) FROM klines WHERE symbol=? AND timeframe=?`, symbol, string(tf))
	var v sql.NullInt64
	if err := row.Scan(&v); err != nil {
		return 0, false, fmt.Errorf("candlestore: oldest start: %w", err)
	}
	return v.Int64, v.Valid, nil
}

// Count returns the number of candles matching filter.
func (s *Store) Count(ctx context.Context, f Filter) (int, error) {
	query := "SELECT COUNT(*) FROM klines WHERE 1=1"
	var args []interface{}
	if f.Symbol != "" {
		query += " AND symbol=?"
		args = append(args, f.Symbol)
	}
	if f.Timeframe != "" {
		query += " AND timeframe=?"
		args = append(args, string(f.Timeframe))
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("candlestore: count: %w", err)
	}
	return n, nil
}

// Range returns up to limit candles for (symbol, tf), ordered ascending or
// descending by start time.
func (s *Store) Range(ctx context.Context, symbol string, tf Timeframe, orderAsc bool, limit int) ([]Candle, error) {
	order := "DESC"
	if orderAsc {
		order = "ASC"
	}
	query := fmt.Sprintf(`SELECT start_time, open, high, low, close, volume FROM klines
		WHERE symbol=? AND timeframe=? ORDER BY start_time %s LIMIT ?`, order)
	rows, err := s.db.QueryContext(ctx, query, symbol, string(tf), limit)
	if err != nil {
		return nil, fmt.Errorf("candlestore: range: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows, symbol, tf)
}

// RangeBefore returns up to limit candles strictly before endTs, descending.
func (s *Store) RangeBefore(ctx context.Context, symbol string, tf Timeframe, endTs int64, limit int) ([]Candle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT start_time, open, high, low, close, volume FROM klines
		WHERE symbol=? AND timeframe=? AND start_time < ? ORDER BY start_time DESC LIMIT ?`,
		symbol, string(tf), endTs, limit)
	if err != nil {
		return nil, fmt.Errorf("candlestore: range before: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows, symbol, tf)
}

func scanCandles(rows *sql.Rows, symbol string, tf Timeframe) ([]Candle, error) {
	var out []Candle
	for rows.Next() {
		var c Candle
		c.Symbol, c.Timeframe = symbol, tf
		if err := rows.Scan(&c.StartTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("candlestore: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes all candles for symbol, optionally narrowed to a single
// timeframe. This is the operator-reset path; Candles are otherwise never
// mutated or deleted (spec.md §3).
func (s *Store) Delete(ctx context.Context, symbol string, tf *Timeframe) error {
	query := "DELETE FROM klines WHERE symbol=?"
	args := []interface{}{symbol}
	if tf != nil {
		query += " AND timeframe=?"
		args = append(args, string(*tf))
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("candlestore: delete: %w", err)
	}
	return nil
}

// InsertOrderflowMetric persists one optional per-tick orderflow snapshot
// row (spec.md §3 "Orderflow metric row"). No component calls it: the
// control loop does not write orderflow rows, and the orderflow.save_to_db
// config key is loaded but not read.
func (s *Store) InsertOrderflowMetric(ctx context.Context, symbol string, ts time.Time, imbalanceRatio, delta, deltaRatio, volumePerSec float64, lastSweepSide string, lastSweepTs int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO orderflow_metrics
		(symbol, ts, imbalance_ratio, delta, delta_ratio, volume_per_sec, last_sweep_side, last_sweep_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		symbol, ts.UnixMilli(), imbalanceRatio, delta, deltaRatio, volumePerSec, lastSweepSide, lastSweepTs)
	if err != nil {
		return fmt.Errorf("candlestore: insert orderflow metric: %w", err)
	}
	return nil
}
