// Package sandbox implements the microstructure paper-trading state
// machine: a single virtual position per symbol, opened and closed from
// internal/microsignal's directional call, with adaptive leverage,
// multi-level take-profit, trailing stop and liquidation accounting.
// It never places a real order. Grounded in
// original_source/src/app/microstructure_sandbox.py.
package sandbox

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradepulse/internal/microsignal"
)

// PositionSide is the sandbox's open-position state.
type PositionSide string

const (
	PositionFlat  PositionSide = "flat"
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// TradeAction distinguishes an open row from a close row in the trade log.
type TradeAction string

const (
	ActionOpen  TradeAction = "open"
	ActionClose TradeAction = "close"
)

// ExitReason normalizes a free-text close reason for analytics, per
// _classify_exit_reason.
type ExitReason string

const (
	ExitStopLoss       ExitReason = "stop_loss"
	ExitBreakeven      ExitReason = "breakeven"
	ExitTrailingStop   ExitReason = "trailing_stop"
	ExitTakeProfitPart ExitReason = "take_profit_part"
	ExitTakeProfit     ExitReason = "take_profit"
	ExitLiquidation    ExitReason = "liquidation"
	ExitMicrostructure ExitReason = "microstructure"
)

// EntryType classifies an open: a plain signal entry from flat, or a
// reversal that immediately follows a same-tick close of the opposite
// side. This replaces microstructure_sandbox.py's three-way
// microstructure/context_now_only/context_now_primary entry_type with the
// signal/reversal split spec.md's Trade row names (see DESIGN.md).
type EntryType string

const (
	EntrySignal   EntryType = "signal"
	EntryReversal EntryType = "reversal"
)

// SkipReason records why a would-be open was skipped.
type SkipReason string

const (
	SkipCooldown        SkipReason = "cooldown"
	SkipSameTickAsClose SkipReason = "same_tick_as_close"
	SkipSweepOnly       SkipReason = "sweep_only"
	SkipSweepDelay      SkipReason = "sweep_delay"
	SkipTrendFilter     SkipReason = "trend_filter"
)

// TakeProfitLevel is one rung of a multi-level partial take-profit ladder:
// at pct_chg >= Pct, close enough size so CumulativeShare of the initial
// position has been taken off in total.
type TakeProfitLevel struct {
	Pct             float64
	CumulativeShare float64
}

// Config holds every sandbox tunable, mirroring
// MicrostructureSandbox.__init__'s keyword arguments.
type Config struct {
	InitialBalance float64
	TakerFee       float64

	MinConfidenceToOpen float64
	CooldownSec         int64
	MinHoldSec          int64
	ExitNoneTicks       int
	ExitMinConfidence   float64
	MinConfirmingTicks  int
	ExitWindowTicks     int
	ExitWindowNeed      int

	StopLossPct         float64
	BreakevenTriggerPct float64
	TakeProfitPct       float64
	TakeProfitLevels    []TakeProfitLevel
	TrailTriggerPct     float64
	TrailPct            float64

	TrendFilter bool

	LeverageMin            float64
	LeverageMax            float64
	AdaptiveLeverage       bool
	MarginFraction         float64
	LiquidationMaintenance float64
	DrawdownLeverageCutPct float64

	MinProfitPct          float64
	NoOpenSameTickAsClose bool
	NoOpenSweepOnly       bool
	SweepDelaySec         int64

	UseContextNowPrimary bool
	UseContextNowOnly    bool

	RunID string

	MicroConfig microsignal.Config
}

// DefaultConfig matches MicrostructureSandbox.__init__'s defaults, with the
// same post-construction clamps (exit_none_ticks >= 1, leverage_max >=
// leverage_min, margin_fraction in [0.01, 1.0]).
func DefaultConfig() Config {
	return Config{
		InitialBalance:         100.0,
		TakerFee:               0.0006,
		ExitNoneTicks:          1,
		LeverageMin:            1.0,
		LeverageMax:            5.0,
		AdaptiveLeverage:       true,
		MarginFraction:         0.95,
		LiquidationMaintenance: 1.0,
		DrawdownLeverageCutPct: 10.0,
		NoOpenSameTickAsClose:  true,
		NoOpenSweepOnly:        true,
		MicroConfig:            microsignal.DefaultConfig(),
	}
}

// normalize applies the constructor-time clamps MicrostructureSandbox
// applies to its raw arguments before anything else runs.
func (c Config) normalize() Config {
	if c.ExitNoneTicks < 1 {
		c.ExitNoneTicks = 1
	}
	if c.LeverageMax < c.LeverageMin {
		c.LeverageMax = c.LeverageMin
	}
	switch {
	case c.MarginFraction < 0.01:
		c.MarginFraction = 0.01
	case c.MarginFraction > 1.0:
		c.MarginFraction = 1.0
	}
	return c
}

// ContextNow is the "here and now" gate computed once per tick from the
// zone and order-flow state: a level-proximity + short-window-flow read
// distinct from (and faster-moving than) the coordinator's multi-TF call.
// Grounded in original_source/src/analysis/context_now.py.
type ContextNow struct {
	AtSupport             bool
	AtResistance           bool
	AllowedLong            bool
	AllowedShort           bool
	ShortWindowDeltaRatio  float64
}

// Trade is one append-only row of the sandbox trade log, per
// TRADES_CSV_HEADERS.
type Trade struct {
	RunID            string
	TsUnix           int64
	Action           TradeAction
	Side             PositionSide
	Price            float64
	Size             float64
	Notional         decimal.Decimal
	Commission       decimal.Decimal
	RealizedPnL      *decimal.Decimal // nil on open
	SignalDirection  microsignal.Direction
	SignalConfidence float64
	Reason           string
	Leverage         float64
	ExitReason       ExitReason // close only
	EntryType        EntryType  // open only
}

// Skip is one append-only row of the sandbox skip log, per
// SKIPS_CSV_HEADERS.
type Skip struct {
	RunID      string
	TsUnix     int64
	Direction  microsignal.Direction
	Confidence float64
	Reason     SkipReason
}

// Sink persists trade/skip rows — a CSV append-only log, a database table,
// or both. internal/events implements this for the running application;
// tests use an in-memory fake.
type Sink interface {
	WriteTrade(Trade) error
	WriteSkip(Skip) error
}

// State is a point-in-time read of the sandbox, per get_state() plus the
// three fields update() adds on top (unrealized_pnl, current_price,
// equity_usd).
type State struct {
	Position          PositionSide
	EntryPrice        float64
	EntryTS           int64
	Size              float64
	Leverage          float64
	MarginUsed        decimal.Decimal
	PeakEquity        float64
	InitialBalance    float64
	TotalRealizedPnL  decimal.Decimal
	TotalCommission   decimal.Decimal
	TradesCount       int
	LastSignalDir     microsignal.Direction
	LastSignalConf    float64
	LastSignalReason  string
	LastTS            int64
	UnrealizedPnL     float64
	CurrentPrice      float64
	EquityUSD         float64
}

// Sandbox is a single virtual position plus its running PnL ledger. Not
// safe for concurrent use; one instance per symbol/run, the Go analogue of
// one MicrostructureSandbox instance per bot process.
type Sandbox struct {
	cfg    Config
	sink   Sink
	logger *zap.Logger

	lastCloseTS     int64
	closedThisTick  bool
	exitSignalTicks int
	confirmingTicks int
	exitWindow      []bool
	peakEquity      float64
	marginUsed      decimal.Decimal
	currentLeverage float64

	position      PositionSide
	entryPrice    float64
	size          float64
	entryTS       int64
	initialSize   float64
	tpClosedShare float64
	slAtBreakeven bool
	trailPeakPct  float64

	totalRealizedPnL decimal.Decimal
	totalCommission  decimal.Decimal

	lastSignal microsignal.Result
	lastTS     int64

	trades []Trade
}

// New builds a Sandbox at the flat state with the initial balance as its
// only equity.
func New(cfg Config, sink Sink, logger *zap.Logger) *Sandbox {
	cfg = cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sandbox{
		cfg:             cfg,
		sink:            sink,
		logger:          logger,
		peakEquity:      cfg.InitialBalance,
		currentLeverage: 1.0,
		position:        PositionFlat,
	}
}

// UnrealizedPnL is the gross (pre-commission) mark-to-market PnL of the
// open position at currentPrice, zero when flat.
func (s *Sandbox) UnrealizedPnL(currentPrice float64) float64 {
	switch s.position {
	case PositionLong:
		return (currentPrice - s.entryPrice) * s.size
	case PositionShort:
		return (s.entryPrice - currentPrice) * s.size
	default:
		return 0
	}
}

// Equity is balance plus net realized PnL plus unrealized PnL at
// currentPrice.
func (s *Sandbox) Equity(currentPrice float64) float64 {
	net, _ := s.totalRealizedPnL.Sub(s.totalCommission).Float64()
	return s.cfg.InitialBalance + net + s.UnrealizedPnL(currentPrice)
}

// computeLeverage is the adaptive-leverage formula: base leverage scales
// linearly with signal confidence between LeverageMin and LeverageMax,
// halved in range whenever drawdown from peak equity reaches
// DrawdownLeverageCutPct, per _compute_leverage.
func (s *Sandbox) computeLeverage(confidence, equity float64) float64 {
	if equity > s.peakEquity {
		s.peakEquity = equity
	}
	if !s.cfg.AdaptiveLeverage || s.cfg.LeverageMax <= s.cfg.LeverageMin {
		return s.cfg.LeverageMax
	}
	leverage := s.cfg.LeverageMin + (s.cfg.LeverageMax-s.cfg.LeverageMin)*confidence
	if s.peakEquity > 0 && s.cfg.DrawdownLeverageCutPct > 0 {
		drawdownPct := (s.peakEquity - equity) / s.peakEquity * 100
		if drawdownPct >= s.cfg.DrawdownLeverageCutPct {
			capped := s.cfg.LeverageMin + 0.5*(s.cfg.LeverageMax-s.cfg.LeverageMin)
			if leverage > capped {
				leverage = capped
			}
		}
	}
	return clampF(leverage, s.cfg.LeverageMin, s.cfg.LeverageMax)
}

// GetState returns a read-only snapshot of the sandbox's current ledger
// state, per get_state().
func (s *Sandbox) GetState() State {
	return State{
		Position:         s.position,
		EntryPrice:       round4(s.entryPrice),
		EntryTS:          s.entryTS,
		Size:             round6(s.size),
		Leverage:         round2(s.currentLeverage),
		MarginUsed:       s.marginUsed,
		PeakEquity:       round4(s.peakEquity),
		InitialBalance:   s.cfg.InitialBalance,
		TotalRealizedPnL: s.totalRealizedPnL,
		TotalCommission:  s.totalCommission,
		TradesCount:      len(s.trades),
		LastSignalDir:    s.lastSignal.Direction,
		LastSignalConf:   s.lastSignal.Confidence,
		LastSignalReason: s.lastSignal.Reason,
		LastTS:           s.lastTS,
	}
}

func clampF(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func round2(x float64) float64 { return roundN(x, 100) }
func round4(x float64) float64 { return roundN(x, 10000) }
func round6(x float64) float64 { return roundN(x, 1000000) }

func roundN(x, mult float64) float64 {
	if x >= 0 {
		return float64(int64(x*mult+0.5)) / mult
	}
	return -float64(int64(-x*mult+0.5)) / mult
}
