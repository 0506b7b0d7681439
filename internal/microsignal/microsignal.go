// Package microsignal reduces an order-flow snapshot (internal/orderflow)
// into a single directional "vote": a bounded score combining volume
// delta, DOM imbalance and the most recent sweep, meant to be combined
// with the Multi-TF Coordinator's signal rather than traded alone.
// Grounded in original_source/src/analysis/microstructure_signal.py.
package microsignal

import (
	"math"
	"strings"

	"tradepulse/internal/orderflow"
	"tradepulse/internal/venue"
)

// Direction is the microstructure signal's directional call.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
	None  Direction = "none"
)

// Config holds the score-contribution thresholds and weights.
type Config struct {
	DeltaRatioMin        float64
	ImbalanceEps         float64
	SweepWeight          float64
	MinScoreForDirection float64
}

// DefaultConfig matches compute_microstructure_signal's keyword defaults.
func DefaultConfig() Config {
	return Config{
		DeltaRatioMin:        0.15,
		ImbalanceEps:         0.08,
		SweepWeight:          0.3,
		MinScoreForDirection: 0.25,
	}
}

// Details carries the score breakdown behind a Result.
type Details struct {
	Score                  float64
	DeltaContribution      float64
	ImbalanceContribution  float64
	SweepContribution      float64
	DeltaRatio             float64
	ImbalanceRatio         float64
	LastSweepSide          venue.Side
	HasSweep               bool
}

// Result is the outcome of Compute.
type Result struct {
	Direction  Direction
	Confidence float64
	Reason     string
	Details    Details
}

// Compute reduces an order-flow snapshot into a bounded [-1, 1] score and a
// direction, per microstructure_signal.py's compute_microstructure_signal.
func Compute(snapshot orderflow.Snapshot, cfg Config) Result {
	deltaRatio := snapshot.VolumeDelta.DeltaRatio
	imbalanceRatio := snapshot.DOM.ImbalanceRatio
	if imbalanceRatio == 0 {
		imbalanceRatio = 0.5
	}

	deltaContrib := 0.0
	switch {
	case deltaRatio >= cfg.DeltaRatioMin:
		deltaContrib = min64(0.4, 0.2+(deltaRatio-cfg.DeltaRatioMin)*0.5)
	case deltaRatio <= -cfg.DeltaRatioMin:
		deltaContrib = max64(-0.4, -0.2+(deltaRatio+cfg.DeltaRatioMin)*0.5)
	}

	imbalanceContrib := 0.0
	switch {
	case imbalanceRatio >= 0.5+cfg.ImbalanceEps:
		imbalanceContrib = min64(0.3, (imbalanceRatio-0.5)*2.0)
	case imbalanceRatio <= 0.5-cfg.ImbalanceEps:
		imbalanceContrib = max64(-0.3, (imbalanceRatio-0.5)*2.0)
	}

	sweepContrib := 0.0
	if snapshot.Sweeps.HasSweep {
		switch snapshot.Sweeps.LastSweepSide {
		case venue.SideBuy:
			sweepContrib = cfg.SweepWeight // a support sweep implies a bounce up
		case venue.SideSell:
			sweepContrib = -cfg.SweepWeight // a resistance sweep implies a drop
		}
	}

	score := clip(deltaContrib + imbalanceContrib + sweepContrib)
	confidence := absf(score)

	details := Details{
		Score: round3(score), DeltaContribution: round3(deltaContrib),
		ImbalanceContribution: round3(imbalanceContrib), SweepContribution: round3(sweepContrib),
		DeltaRatio: round3(deltaRatio), ImbalanceRatio: round3(imbalanceRatio),
		LastSweepSide: snapshot.Sweeps.LastSweepSide, HasSweep: snapshot.Sweeps.HasSweep,
	}

	var direction Direction
	var reason string
	switch {
	case score >= cfg.MinScoreForDirection:
		direction = Long
		reason = reasonParts(deltaContrib, imbalanceContrib, sweepContrib, snapshot.Sweeps, "long")
	case score <= -cfg.MinScoreForDirection:
		direction = Short
		reason = reasonParts(deltaContrib, imbalanceContrib, sweepContrib, snapshot.Sweeps, "short")
	default:
		direction = None
		reason = "microstructure neutral (delta/imbalance/sweep below threshold)"
	}

	return Result{Direction: direction, Confidence: round3(confidence), Reason: reason, Details: details}
}

func reasonParts(deltaContrib, imbalanceContrib, sweepContrib float64, sweeps orderflow.SweepResult, side string) string {
	var parts []string
	if absf(deltaContrib) >= 0.1 {
		if deltaContrib > 0 {
			parts = append(parts, "delta positive")
		} else {
			parts = append(parts, "delta negative")
		}
	}
	if absf(imbalanceContrib) >= 0.05 {
		if imbalanceContrib > 0 {
			parts = append(parts, "imbalance bid")
		} else {
			parts = append(parts, "imbalance ask")
		}
	}
	if sweeps.HasSweep && absf(sweepContrib) >= 0.1 {
		parts = append(parts, "sweep "+string(sweeps.LastSweepSide))
	}
	if len(parts) == 0 {
		return "microstructure leans slightly " + side
	}
	return strings.Join(parts, " | ")
}

func clip(x float64) float64 {
	if x < -1 {
		return -1
	}
	if x > 1 {
		return 1
	}
	return x
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
