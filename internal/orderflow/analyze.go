package orderflow

import (
	"time"

	"tradepulse/internal/candlestore"
	"tradepulse/internal/venue"
)

// Config bundles the tunables consumed by Analyze, mirroring
// orderflow.py's analyze_orderflow keyword defaults.
type Config struct {
	DOMDepth            int
	WallPercentile      float64
	TnSWindowSec        float64
	VolumeSpikeMult     float64
	DeltaWindowSec      float64
	SweepLookbackBars   int
	WickRatioMin        float64
	ShortWindowSec      float64 // 0 disables the short-window delta/divergence pass
	LastTradesK         int
	BiasRatioMin        float64
	BucketTick          float64
	TopNHotLevels       int
	AbsorptionDepth     int
	AbsorptionDropRatio float64
}

func DefaultConfig() Config {
	return Config{
		DOMDepth: 20, WallPercentile: 90.0,
		TnSWindowSec: 60.0, VolumeSpikeMult: 2.0,
		DeltaWindowSec: 60.0, SweepLookbackBars: 5, WickRatioMin: 0.5,
		ShortWindowSec: 20.0, LastTradesK: 10, BiasRatioMin: 1.2,
		BucketTick: 0.1, TopNHotLevels: 10,
		AbsorptionDepth: 20, AbsorptionDropRatio: 0.7,
	}
}

// Snapshot is the full order-flow read for one tick, per orderflow.py's
// analyze_orderflow summary call.
type Snapshot struct {
	DOM                  DOMResult
	TimeAndSales         TimeAndSales
	VolumeDelta          VolumeDelta
	Sweeps               SweepResult
	Absorption           Absorption
	LastTrades           LastTradesBlock
	AllLevels            []LevelVolume
	HotLevels            []LevelVolume
	ShortWindowDelta     *VolumeDelta
	DeltaPriceDivergence *DeltaPriceDivergence
}

// Analyze runs the full order-flow read: DOM, T&S, CVD, trades-by-level,
// sweeps and absorption, plus an optional short-window delta/divergence
// pass when cfg.ShortWindowSec > 0.
func Analyze(book, prevBook *Book, trades []venue.Trade, candles []candlestore.Candle, sweepLevels []SweepLevel, cfg Config, now *time.Time) Snapshot {
	var snap Snapshot
	if book != nil {
		snap.DOM = AnalyzeDOM(book, cfg.DOMDepth, cfg.WallPercentile)
	}
	snap.TimeAndSales = AnalyzeTimeAndSales(trades, cfg.TnSWindowSec, cfg.VolumeSpikeMult, now)
	snap.VolumeDelta = ComputeVolumeDelta(trades, cfg.DeltaWindowSec, now)
	snap.Sweeps = DetectSweeps(candles, sweepLevels, cfg.SweepLookbackBars, cfg.WickRatioMin)
	snap.LastTrades = LastTradesAndBlock(trades, cfg.LastTradesK, cfg.BiasRatioMin)
	snap.AllLevels, snap.HotLevels = TradesByLevel(trades, cfg.TnSWindowSec, cfg.BucketTick, cfg.TopNHotLevels, now)
	snap.Absorption = AnalyzeAbsorption(prevBook, book, cfg.AbsorptionDepth, cfg.AbsorptionDropRatio, snap.LastTrades)

	if cfg.ShortWindowSec > 0 && len(trades) > 0 {
		shortDelta := ComputeVolumeDelta(trades, cfg.ShortWindowSec, now)
		divergence := ComputeDeltaPriceDivergence(trades, cfg.ShortWindowSec, 0.1, now)
		snap.ShortWindowDelta = &shortDelta
		snap.DeltaPriceDivergence = &divergence
	}
	return snap
}
