package orderflow

import "tradepulse/internal/config"

// FromConfig maps config.OrderflowConfig's YAML surface onto Analyze's
// Config, starting from DefaultConfig so any field the YAML leaves at its
// zero value keeps orderflow.py's documented default rather than silently
// becoming zero (e.g. a zero WallPercentile would disable wall detection
// entirely).
func FromConfig(cfg *config.Config) Config {
	out := DefaultConfig()
	oc := cfg.Orderflow
	if oc.DepthLevels > 0 {
		out.DOMDepth = oc.DepthLevels
	}
	if oc.WallPercentile > 0 {
		out.WallPercentile = oc.WallPercentile
	}
	if oc.WindowSec > 0 {
		out.TnSWindowSec = float64(oc.WindowSec)
		out.DeltaWindowSec = float64(oc.WindowSec)
	}
	if oc.SpikeMultiple > 0 {
		out.VolumeSpikeMult = oc.SpikeMultiple
	}
	if oc.LookbackBars > 0 {
		out.SweepLookbackBars = oc.LookbackBars
	}
	if oc.WickRatioMin > 0 {
		out.WickRatioMin = oc.WickRatioMin
	}
	if oc.LastTradesK > 0 {
		out.LastTradesK = oc.LastTradesK
	}
	if oc.LastTradesRatio > 0 {
		out.BiasRatioMin = oc.LastTradesRatio
	}
	if oc.MinDropRatio > 0 {
		out.AbsorptionDropRatio = oc.MinDropRatio
	}
	return out
}
