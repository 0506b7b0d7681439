package sandbox

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradepulse/internal/microsignal"
	"tradepulse/internal/orderflow"
	"tradepulse/internal/trend"
)

// hotLevelDistancePct is the "too close to a volume-hot level" band checked
// before opening, per _price_near_hot_resistance/_price_near_hot_support's
// distance_pct default.
const hotLevelDistancePct = 0.002

// Update advances the sandbox by one tick: it reduces snap to a
// microsignal.Result, runs every entry/exit gate, opens, closes or
// partially closes the virtual position, and returns the resulting state.
// higherTFTrend and contextNow are both optional (nil disables their
// gates). Grounded in MicrostructureSandbox.update.
func (s *Sandbox) Update(snap orderflow.Snapshot, currentPrice float64, tsSec int64, higherTFTrend *trend.Direction, contextNow *ContextNow) State {
	signal := microsignal.Compute(snap, s.cfg.MicroConfig)
	s.lastSignal = signal
	s.lastTS = tsSec

	direction := signal.Direction
	confidence := signal.Confidence
	reason := signal.Reason

	if s.cfg.UseContextNowOnly && contextNow != nil {
		switch {
		case contextNow.AllowedLong:
			direction = microsignal.Long
			confidence = clampF(math.Max(0.5, math.Abs(contextNow.ShortWindowDeltaRatio)*2), 0, 1)
			reason = "context_now only: at_support + flow_bullish"
		case contextNow.AllowedShort:
			direction = microsignal.Short
			confidence = clampF(math.Max(0.5, math.Abs(contextNow.ShortWindowDeltaRatio)*2), 0, 1)
			reason = "context_now only: at_resistance + flow_bearish"
		default:
			direction = microsignal.None
			confidence = 0
			reason = "context_now only: no level+flow"
		}
	}

	equity := s.Equity(currentPrice)
	if equity > s.peakEquity {
		s.peakEquity = equity
	}
	s.closedThisTick = false

	inCooldown := s.cfg.CooldownSec > 0 && s.lastCloseTS > 0 && (tsSec-s.lastCloseTS) < s.cfg.CooldownSec

	inSweepDelay := s.cfg.SweepDelaySec > 0 && snap.Sweeps.HasSweep && snap.Sweeps.LastSweepTime > 0 &&
		(tsSec-snap.Sweeps.LastSweepTime) < s.cfg.SweepDelaySec

	if s.position != PositionFlat {
		dirOK := (s.position == PositionLong && direction == microsignal.Long) ||
			(s.position == PositionShort && direction == microsignal.Short)
		if dirOK {
			s.confirmingTicks++
		}
	}

	wantExitDir := direction == microsignal.None ||
		(direction == microsignal.Long && s.position == PositionShort) ||
		(direction == microsignal.Short && s.position == PositionLong)
	wantExitConf := s.cfg.ExitMinConfidence > 0 && confidence < s.cfg.ExitMinConfidence
	wantExit := wantExitDir || wantExitConf

	exitWindowOK := true
	if s.position != PositionFlat {
		if wantExit {
			s.exitSignalTicks++
		} else {
			s.exitSignalTicks = 0
		}
		if s.cfg.ExitWindowTicks > 0 && s.cfg.ExitWindowNeed > 0 {
			s.exitWindow = append(s.exitWindow, wantExit)
			if len(s.exitWindow) > s.cfg.ExitWindowTicks {
				s.exitWindow = s.exitWindow[len(s.exitWindow)-s.cfg.ExitWindowTicks:]
			}
			count := 0
			for _, w := range s.exitWindow {
				if w {
					count++
				}
			}
			exitWindowOK = len(s.exitWindow) >= s.cfg.ExitWindowTicks && count >= s.cfg.ExitWindowNeed
		}
	}

	exitByPrice := false
	var exitPriceReason string
	var pctChg float64
	if s.position != PositionFlat && s.entryPrice > 0 {
		if s.position == PositionLong {
			pctChg = (currentPrice - s.entryPrice) / s.entryPrice
		} else {
			pctChg = (s.entryPrice - currentPrice) / s.entryPrice
		}
		pctChg *= 100.0

		if s.cfg.BreakevenTriggerPct > 0 && s.cfg.StopLossPct > 0 && !s.slAtBreakeven && pctChg >= s.cfg.BreakevenTriggerPct {
			s.slAtBreakeven = true
		}
		if s.cfg.StopLossPct > 0 {
			switch {
			case s.slAtBreakeven:
				if pctChg <= 0 {
					exitByPrice = true
					exitPriceReason = fmt.Sprintf("breakeven %.2f%%", pctChg)
				}
			case pctChg <= -s.cfg.StopLossPct:
				exitByPrice = true
				exitPriceReason = fmt.Sprintf("stop_loss %.2f%%", pctChg)
			}
		}
		if !exitByPrice && len(s.cfg.TakeProfitLevels) == 0 && s.cfg.TakeProfitPct > 0 && pctChg >= s.cfg.TakeProfitPct {
			exitByPrice = true
			exitPriceReason = fmt.Sprintf("take_profit %.2f%%", pctChg)
		}
		if !exitByPrice && s.cfg.TrailTriggerPct > 0 && s.cfg.TrailPct > 0 && pctChg >= s.cfg.TrailTriggerPct {
			if pctChg > s.trailPeakPct {
				s.trailPeakPct = pctChg
			}
			if s.trailPeakPct > 0 && pctChg <= s.trailPeakPct-s.cfg.TrailPct {
				exitByPrice = true
				exitPriceReason = fmt.Sprintf("trailing_stop %.2f%% (peak %.2f%%)", pctChg, s.trailPeakPct)
			}
		}
	}

	// Liquidation: loss at or beyond margin_used * liquidation_maintenance.
	if s.position != PositionFlat && s.marginUsed.IsPositive() && s.cfg.LiquidationMaintenance > 0 {
		marginUsedF, _ := s.marginUsed.Float64()
		if s.UnrealizedPnL(currentPrice) <= -marginUsedF*s.cfg.LiquidationMaintenance {
			s.doClose(tsSec, currentPrice, direction, confidence, "liquidation")
		}
	}

	switch {
	case s.position != PositionFlat && exitByPrice:
		s.doClose(tsSec, currentPrice, direction, confidence, exitPriceReason)
	case s.position != PositionFlat && len(s.cfg.TakeProfitLevels) > 0 && pctChg > 0 && s.initialSize > 0:
		for _, lvl := range s.cfg.TakeProfitLevels {
			if pctChg >= lvl.Pct && s.tpClosedShare < lvl.CumulativeShare {
				s.doPartialClose(tsSec, currentPrice, direction, confidence, lvl.CumulativeShare-s.tpClosedShare, pctChg)
				if s.position == PositionFlat {
					break
				}
			}
		}
	case s.position != PositionFlat && wantExit:
		heldSec := tsSec - s.entryTS
		confirmingOK := s.cfg.MinConfirmingTicks <= 0 || s.confirmingTicks >= s.cfg.MinConfirmingTicks
		consecutiveOK := s.cfg.ExitWindowTicks <= 0 && s.exitSignalTicks >= s.cfg.ExitNoneTicks
		if s.cfg.ExitWindowTicks > 0 && s.cfg.ExitWindowNeed > 0 {
			consecutiveOK = exitWindowOK
		}
		allowMicrostructureClose := true
		if s.cfg.MinProfitPct > 0 && s.entryPrice > 0 {
			if unrealized := s.UnrealizedPnL(currentPrice); unrealized > 0 {
				var pct float64
				if s.position == PositionLong {
					pct = (currentPrice - s.entryPrice) / s.entryPrice * 100
				} else {
					pct = (s.entryPrice - currentPrice) / s.entryPrice * 100
				}
				if pct < s.cfg.MinProfitPct {
					allowMicrostructureClose = false
				}
			}
		}
		if heldSec >= s.cfg.MinHoldSec && confirmingOK && consecutiveOK && allowMicrostructureClose {
			s.doClose(tsSec, currentPrice, direction, confidence, reason)
		}
	}

	var divergenceBlockLong, divergenceBlockShort bool
	if snap.DeltaPriceDivergence != nil {
		divergenceBlockLong = snap.DeltaPriceDivergence.BearishDivergence
		divergenceBlockShort = snap.DeltaPriceDivergence.BullishDivergence
	}
	hotBlockLong := priceNearHotResistance(currentPrice, snap, hotLevelDistancePct)
	hotBlockShort := priceNearHotSupport(currentPrice, snap, hotLevelDistancePct)
	// sweep_only: the signal's direction rests on the sweep contribution
	// alone, with delta/imbalance below their own "reportable" thresholds.
	// microstructure_signal.py's signal dict never actually carries a
	// sweep_only key (no_open_sweep_only's guard is dead in the original);
	// this derives the same intent directly from the score breakdown.
	sweepOnly := signal.Details.HasSweep &&
		math.Abs(signal.Details.DeltaContribution) < 0.1 &&
		math.Abs(signal.Details.ImbalanceContribution) < 0.05

	wouldOpenLong := func() bool {
		return direction == microsignal.Long &&
			confidence >= s.cfg.MinConfidenceToOpen &&
			(!s.cfg.UseContextNowPrimary || contextNow == nil || contextNow.AllowedLong) &&
			!divergenceBlockLong && !hotBlockLong
	}
	wouldOpenShort := func() bool {
		return direction == microsignal.Short &&
			confidence >= s.cfg.MinConfidenceToOpen &&
			(!s.cfg.UseContextNowPrimary || contextNow == nil || contextNow.AllowedShort) &&
			!divergenceBlockShort && !hotBlockShort
	}

	switch {
	case inCooldown:
		s.logSkipIfWouldOpen(tsSec, confidence, wouldOpenLong, wouldOpenShort, SkipCooldown)
	case s.cfg.NoOpenSameTickAsClose && s.closedThisTick:
		s.logSkipIfWouldOpen(tsSec, confidence, wouldOpenLong, wouldOpenShort, SkipSameTickAsClose)
	case s.cfg.NoOpenSweepOnly && sweepOnly:
		s.logSkipIfWouldOpen(tsSec, confidence, wouldOpenLong, wouldOpenShort, SkipSweepOnly)
	case inSweepDelay:
		s.logSkipIfWouldOpen(tsSec, confidence, wouldOpenLong, wouldOpenShort, SkipSweepDelay)
	case wouldOpenLong():
		if s.cfg.TrendFilter && higherTFTrend != nil && *higherTFTrend == trend.Down {
			s.logSkip(tsSec, microsignal.Long, confidence, SkipTrendFilter)
		} else if s.position != PositionLong {
			reversal := s.position == PositionShort
			if reversal {
				s.doClose(tsSec, currentPrice, direction, confidence, reason)
			}
			s.openPosition(PositionLong, tsSec, currentPrice, confidence, direction, reason, reversal)
		}
	case wouldOpenShort():
		if s.cfg.TrendFilter && higherTFTrend != nil && *higherTFTrend == trend.Up {
			s.logSkip(tsSec, microsignal.Short, confidence, SkipTrendFilter)
		} else if s.position != PositionShort {
			reversal := s.position == PositionLong
			if reversal {
				s.doClose(tsSec, currentPrice, direction, confidence, reason)
			}
			s.openPosition(PositionShort, tsSec, currentPrice, confidence, direction, reason, reversal)
		}
	}

	state := s.GetState()
	state.UnrealizedPnL = round4(s.UnrealizedPnL(currentPrice))
	state.CurrentPrice = currentPrice
	state.EquityUSD = round4(s.Equity(currentPrice))
	state.LastSignalReason = signal.Reason
	return state
}

// doClose closes the entire open position at currentPrice, booking
// realized PnL and commission and resetting position state, per _do_close.
func (s *Sandbox) doClose(tsSec int64, currentPrice float64, direction microsignal.Direction, confidence float64, closeReason string) {
	realizedGross := s.UnrealizedPnL(currentPrice)
	notional := s.size * currentPrice
	commission := notional * s.cfg.TakerFee
	side := s.position
	lev := s.currentLeverage

	s.totalCommission = s.totalCommission.Add(decimal.NewFromFloat(commission))
	s.totalRealizedPnL = s.totalRealizedPnL.Add(decimal.NewFromFloat(realizedGross))
	s.marginUsed = decimal.Zero
	s.currentLeverage = 1.0

	realized := decimal.NewFromFloat(realizedGross)
	s.logTrade(Trade{
		RunID: s.cfg.RunID, TsUnix: tsSec, Action: ActionClose, Side: side,
		Price: currentPrice, Size: s.size, Notional: decimal.NewFromFloat(notional),
		Commission: decimal.NewFromFloat(commission), RealizedPnL: &realized,
		SignalDirection: direction, SignalConfidence: confidence, Reason: closeReason,
		Leverage: lev, ExitReason: classifyExitReason(closeReason),
	})

	s.lastCloseTS = tsSec
	s.exitSignalTicks = 0
	s.exitWindow = s.exitWindow[:0]
	s.closedThisTick = true
	s.resetPosition()
}

// doPartialClose closes closeShare (a fraction of the initial position
// size, 0..1) at currentPrice, per _do_partial_close. The position is
// reset to flat once the cumulative closed share reaches ~100%.
func (s *Sandbox) doPartialClose(tsSec int64, currentPrice float64, direction microsignal.Direction, confidence, closeShare, currentPct float64) {
	if s.initialSize <= 0 || closeShare <= 0 || s.size <= 0 {
		return
	}
	closeSize := math.Min(s.initialSize*closeShare, s.size)
	if closeSize <= 0 {
		return
	}
	var realizedGross float64
	if s.position == PositionLong {
		realizedGross = closeSize * (currentPrice - s.entryPrice)
	} else {
		realizedGross = closeSize * (s.entryPrice - currentPrice)
	}
	notional := closeSize * currentPrice
	commission := notional * s.cfg.TakerFee
	s.totalCommission = s.totalCommission.Add(decimal.NewFromFloat(commission))
	s.totalRealizedPnL = s.totalRealizedPnL.Add(decimal.NewFromFloat(realizedGross))
	s.size -= closeSize
	s.tpClosedShare += closeSize / s.initialSize

	side := s.position
	reason := fmt.Sprintf("take_profit_part %.2f%% (%d%%)", currentPct, int(closeShare*100))
	realized := decimal.NewFromFloat(realizedGross)
	s.logTrade(Trade{
		RunID: s.cfg.RunID, TsUnix: tsSec, Action: ActionClose, Side: side,
		Price: currentPrice, Size: closeSize, Notional: decimal.NewFromFloat(notional),
		Commission: decimal.NewFromFloat(commission), RealizedPnL: &realized,
		SignalDirection: direction, SignalConfidence: confidence, Reason: reason,
		Leverage: s.currentLeverage, ExitReason: ExitTakeProfitPart,
	})

	if s.size <= 0 || s.tpClosedShare >= 0.9999 {
		s.resetPosition()
		s.marginUsed = decimal.Zero
		s.currentLeverage = 1.0
		s.lastCloseTS = tsSec
		s.exitSignalTicks = 0
		s.exitWindow = s.exitWindow[:0]
		s.closedThisTick = true
	}
}

// openPosition opens side at currentPrice with adaptive leverage and
// margin sized off current equity, per the long/short open branches of
// update(). reversal marks an open that immediately followed this same
// tick's close of the opposite side (see EntryType).
func (s *Sandbox) openPosition(side PositionSide, tsSec int64, currentPrice, confidence float64, direction microsignal.Direction, reason string, reversal bool) {
	equity := s.Equity(currentPrice)
	leverage := s.computeLeverage(confidence, equity)
	margin := math.Max(s.cfg.InitialBalance*0.01, equity*s.cfg.MarginFraction)
	notionalOpen := margin * leverage

	s.position = side
	s.entryPrice = currentPrice
	if currentPrice > 0 {
		s.size = notionalOpen / currentPrice
	} else {
		s.size = 0
	}
	s.entryTS = tsSec
	if leverage > 0 {
		s.marginUsed = decimal.NewFromFloat(notionalOpen / leverage)
	} else {
		s.marginUsed = decimal.Zero
	}
	s.currentLeverage = leverage
	s.exitSignalTicks = 0
	s.confirmingTicks = 0
	s.exitWindow = s.exitWindow[:0]
	s.initialSize = s.size
	s.tpClosedShare = 0

	commissionOpen := notionalOpen * s.cfg.TakerFee
	s.totalCommission = s.totalCommission.Add(decimal.NewFromFloat(commissionOpen))

	entryType := EntrySignal
	if reversal {
		entryType = EntryReversal
	}
	s.logTrade(Trade{
		RunID: s.cfg.RunID, TsUnix: tsSec, Action: ActionOpen, Side: side,
		Price: s.entryPrice, Size: s.size, Notional: decimal.NewFromFloat(notionalOpen),
		Commission: decimal.NewFromFloat(commissionOpen), RealizedPnL: nil,
		SignalDirection: direction, SignalConfidence: confidence, Reason: reason,
		Leverage: leverage, EntryType: entryType,
	})
}

func (s *Sandbox) resetPosition() {
	s.position = PositionFlat
	s.entryPrice = 0
	s.size = 0
	s.entryTS = 0
	s.initialSize = 0
	s.tpClosedShare = 0
	s.slAtBreakeven = false
	s.trailPeakPct = 0
}

func (s *Sandbox) logSkipIfWouldOpen(tsSec int64, confidence float64, wouldOpenLong, wouldOpenShort func() bool, reason SkipReason) {
	if wouldOpenLong() {
		s.logSkip(tsSec, microsignal.Long, confidence, reason)
	}
	if wouldOpenShort() {
		s.logSkip(tsSec, microsignal.Short, confidence, reason)
	}
}

func (s *Sandbox) logTrade(t Trade) {
	s.trades = append(s.trades, t)
	if s.sink != nil {
		if err := s.sink.WriteTrade(t); err != nil {
			s.logger.Warn("sandbox: failed to persist trade", zap.Error(err))
		}
	}
	if t.Action == ActionOpen {
		s.logger.Info("sandbox open",
			zap.String("side", string(t.Side)), zap.Float64("price", t.Price),
			zap.Float64("size", t.Size), zap.Float64("leverage", t.Leverage),
			zap.String("entry_type", string(t.EntryType)))
		return
	}
	var pnl float64
	if t.RealizedPnL != nil {
		pnl, _ = t.RealizedPnL.Float64()
	}
	s.logger.Info("sandbox close",
		zap.String("side", string(t.Side)), zap.Float64("price", t.Price),
		zap.Float64("realized_pnl", pnl), zap.String("exit_reason", string(t.ExitReason)))
}

func (s *Sandbox) logSkip(tsSec int64, direction microsignal.Direction, confidence float64, reason SkipReason) {
	skip := Skip{RunID: s.cfg.RunID, TsUnix: tsSec, Direction: direction, Confidence: confidence, Reason: reason}
	if s.sink != nil {
		if err := s.sink.WriteSkip(skip); err != nil {
			s.logger.Warn("sandbox: failed to persist skip", zap.Error(err))
		}
	}
}

// classifyExitReason normalizes a free-text close reason for analytics,
// per _classify_exit_reason's substring checks in priority order.
func classifyExitReason(closeReason string) ExitReason {
	r := strings.ToLower(strings.TrimSpace(closeReason))
	switch {
	case strings.Contains(r, "stop_loss"):
		return ExitStopLoss
	case strings.Contains(r, "breakeven"):
		return ExitBreakeven
	case strings.Contains(r, "trailing_stop"):
		return ExitTrailingStop
	case strings.Contains(r, "take_profit_part"):
		return ExitTakeProfitPart
	case strings.Contains(r, "take_profit"):
		return ExitTakeProfit
	case strings.Contains(r, "liquidation"):
		return ExitLiquidation
	default:
		return ExitMicrostructure
	}
}

func priceNearHotResistance(price float64, snap orderflow.Snapshot, distancePct float64) bool {
	if price <= 0 || distancePct <= 0 {
		return false
	}
	for _, lv := range snap.HotLevels {
		if lv.Price > price && (lv.Price-price)/price <= distancePct {
			return true
		}
	}
	return false
}

func priceNearHotSupport(price float64, snap orderflow.Snapshot, distancePct float64) bool {
	if price <= 0 || distancePct <= 0 {
		return false
	}
	for _, lv := range snap.HotLevels {
		if lv.Price < price && (price-lv.Price)/price <= distancePct {
			return true
		}
	}
	return false
}

// Summary aggregates the run's trades for end-of-run reporting, per
// get_summary.
type Summary struct {
	TradesCount           int
	OpensCount            int
	ClosesCount           int
	TotalCommissionUSD    float64
	TotalRealizedPnLGross float64
	TotalRealizedPnLNet   float64
	WinningTrades         int
	LosingTrades          int
	EquityUSD             float64
	ExitsBy               map[ExitReason]int
}

// GetSummary aggregates every logged trade into a Summary, per
// get_summary.
func (s *Sandbox) GetSummary(currentPrice float64) Summary {
	var closes []Trade
	opens := 0
	for _, t := range s.trades {
		if t.Action == ActionOpen {
			opens++
		} else {
			closes = append(closes, t)
		}
	}
	wins, losses := 0, 0
	exitsBy := map[ExitReason]int{}
	for _, t := range closes {
		if t.RealizedPnL != nil {
			if f, _ := t.RealizedPnL.Float64(); f > 0 {
				wins++
			} else if f < 0 {
				losses++
			}
		}
		er := t.ExitReason
		if er == "" {
			er = ExitMicrostructure
		}
		exitsBy[er]++
	}
	grossF, _ := s.totalRealizedPnL.Float64()
	commF, _ := s.totalCommission.Float64()
	return Summary{
		TradesCount: len(s.trades), OpensCount: opens, ClosesCount: len(closes),
		TotalCommissionUSD: round4(commF), TotalRealizedPnLGross: round4(grossF),
		TotalRealizedPnLNet: round4(grossF - commF),
		WinningTrades:       wins, LosingTrades: losses,
		EquityUSD: round4(s.Equity(currentPrice)), ExitsBy: exitsBy,
	}
}
