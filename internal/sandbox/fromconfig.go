package sandbox

import (
	"tradepulse/internal/config"
	"tradepulse/internal/microsignal"
)

// FromConfig builds a sandbox Config from the loaded application config,
// the bridge cmd/tradepulse uses to wire this package up without
// duplicating the YAML surface.
func FromConfig(cfg *config.Config) Config {
	levels := make([]TakeProfitLevel, 0, len(cfg.Sandbox.TPLevels))
	for _, l := range cfg.Sandbox.TPLevels {
		levels = append(levels, TakeProfitLevel{
			Pct:             l.LevelPct,
			CumulativeShare: l.CumulativeShare,
		})
	}
	out := Config{
		InitialBalance: cfg.Sandbox.InitialBalance,
		TakerFee:       cfg.Sandbox.TakerFee,

		MinConfidenceToOpen: cfg.Sandbox.MinConfidenceToOpen,
		CooldownSec:         int64(cfg.Sandbox.CooldownSec),
		MinHoldSec:          int64(cfg.Sandbox.MinHoldSec),
		ExitNoneTicks:       cfg.Sandbox.ExitNoneTicks,
		ExitMinConfidence:   cfg.Sandbox.ExitMinConfidence,
		MinConfirmingTicks:  cfg.Sandbox.MinConfirmingTicks,
		ExitWindowTicks:     cfg.Sandbox.ExitWindowTicks,
		ExitWindowNeed:      cfg.Sandbox.ExitWindowNeed,

		StopLossPct:         cfg.Sandbox.StopLossPct,
		BreakevenTriggerPct: cfg.Sandbox.BreakevenTriggerPct,
		TakeProfitPct:       cfg.Sandbox.TakeProfitPct,
		TakeProfitLevels:    levels,
		TrailTriggerPct:     cfg.Sandbox.TrailTriggerPct,
		TrailPct:            cfg.Sandbox.TrailPct,

		TrendFilter: cfg.Sandbox.TrendFilter,

		LeverageMin:            cfg.Sandbox.LeverageMin,
		LeverageMax:            cfg.Sandbox.LeverageMax,
		AdaptiveLeverage:       cfg.Sandbox.AdaptiveLeverage,
		MarginFraction:         cfg.Sandbox.MarginFraction,
		LiquidationMaintenance: cfg.Sandbox.LiquidationMaintenance,
		DrawdownLeverageCutPct: cfg.Sandbox.DrawdownLeverageThresholdPct,

		MinProfitPct:          cfg.Sandbox.MinProfitPct,
		NoOpenSameTickAsClose: cfg.Sandbox.NoOpenSameTickAsClose,
		NoOpenSweepOnly:       cfg.Sandbox.NoOpenSweepOnly,
		SweepDelaySec:         int64(cfg.Sandbox.SweepDelaySec),

		UseContextNowPrimary: cfg.Sandbox.UseContextNowPrimary,
		UseContextNowOnly:    cfg.Sandbox.UseContextNowOnly,

		MicroConfig: microsignal.DefaultConfig(),
	}
	if len(out.TakeProfitLevels) == 0 {
		d := DefaultConfig()
		out.TakeProfitLevels = d.TakeProfitLevels
	}
	if out.ExitNoneTicks == 0 {
		out.ExitNoneTicks = DefaultConfig().ExitNoneTicks
	}
	if out.LeverageMin == 0 && out.LeverageMax == 0 {
		d := DefaultConfig()
		out.LeverageMin, out.LeverageMax = d.LeverageMin, d.LeverageMax
	}
	if out.MarginFraction == 0 {
		out.MarginFraction = DefaultConfig().MarginFraction
	}
	if out.LiquidationMaintenance == 0 {
		out.LiquidationMaintenance = DefaultConfig().LiquidationMaintenance
	}
	return out.normalize()
}
