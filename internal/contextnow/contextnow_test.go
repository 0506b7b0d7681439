package contextnow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradepulse/internal/orderflow"
	"tradepulse/internal/zones"
)

func TestAtSupportWithinLevelDistance(t *testing.T) {
	snap := &zones.Snapshot{
		NearestSupport: &zones.Level{Price: 99.9, ZoneLow: 99.5, ZoneHigh: 100.1},
	}
	of := orderflow.Snapshot{
		ShortWindowDelta: &orderflow.VolumeDelta{DeltaRatio: 0.2},
	}
	res := Compute(100.0, of, snap, DefaultConfig())

	assert.True(t, res.AtSupport)
	assert.True(t, res.FlowBullishNow)
	assert.True(t, res.AllowedLong)
}

func TestNotAtLevelWhenBeyondDistance(t *testing.T) {
	snap := &zones.Snapshot{
		NearestSupport: &zones.Level{Price: 90.0, ZoneLow: 89.0, ZoneHigh: 90.5},
	}
	res := Compute(100.0, orderflow.Snapshot{}, snap, DefaultConfig())

	assert.False(t, res.AtSupport)
	assert.False(t, res.AllowedLong)
}

func TestAllowedShortNeedsFlowOrAbsorption(t *testing.T) {
	snap := &zones.Snapshot{
		NearestResistance: &zones.Level{Price: 100.1, ZoneLow: 99.9, ZoneHigh: 100.2},
	}
	of := orderflow.Snapshot{
		ShortWindowDelta: &orderflow.VolumeDelta{DeltaRatio: 0},
	}
	res := Compute(100.0, of, snap, DefaultConfig())

	assert.True(t, res.AtResistance)
	assert.False(t, res.AllowedShort, "at resistance but no bearish flow or absorption should not allow a short")

	of.Absorption = orderflow.Absorption{Bearish: true}
	res = Compute(100.0, of, snap, DefaultConfig())
	assert.True(t, res.AllowedShort)
}

func TestNilZonesSnapshotLeavesLevelsUnset(t *testing.T) {
	res := Compute(100.0, orderflow.Snapshot{}, nil, DefaultConfig())

	assert.False(t, res.AtSupport)
	assert.False(t, res.AtResistance)
	assert.False(t, res.AllowedLong)
	assert.False(t, res.AllowedShort)
}
