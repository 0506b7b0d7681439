package microsignal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradepulse/internal/orderflow"
	"tradepulse/internal/venue"
)

func TestComputeBullishFromDeltaAndImbalance(t *testing.T) {
	snap := orderflow.Snapshot{
		DOM:         orderflow.DOMResult{ImbalanceRatio: 0.7},
		VolumeDelta: orderflow.VolumeDelta{DeltaRatio: 0.3},
	}
	result := Compute(snap, DefaultConfig())
	assert.Equal(t, Long, result.Direction)
	assert.Greater(t, result.Confidence, 0.0)
	assert.Greater(t, result.Details.Score, 0.0)
}

func TestComputeBearishFromSweep(t *testing.T) {
	snap := orderflow.Snapshot{
		DOM: orderflow.DOMResult{ImbalanceRatio: 0.5},
		Sweeps: orderflow.SweepResult{
			HasSweep: true, LastSweepSide: venue.SideSell,
		},
	}
	result := Compute(snap, DefaultConfig())
	assert.Equal(t, Short, result.Direction)
	assert.Less(t, result.Details.SweepContribution, 0.0)
}

func TestComputeNeutralWhenBelowThreshold(t *testing.T) {
	snap := orderflow.Snapshot{DOM: orderflow.DOMResult{ImbalanceRatio: 0.5}}
	result := Compute(snap, DefaultConfig())
	assert.Equal(t, None, result.Direction)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestComputeScoreBounded(t *testing.T) {
	snap := orderflow.Snapshot{
		DOM:         orderflow.DOMResult{ImbalanceRatio: 1.0},
		VolumeDelta: orderflow.VolumeDelta{DeltaRatio: 1.0},
		Sweeps:      orderflow.SweepResult{HasSweep: true, LastSweepSide: venue.SideBuy},
	}
	result := Compute(snap, DefaultConfig())
	assert.LessOrEqual(t, result.Details.Score, 1.0)
	assert.GreaterOrEqual(t, result.Details.Score, -1.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}
