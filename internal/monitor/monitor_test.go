package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devskill-org/p1budget/internal/core"
)

func TestMonitorSnapshotBeforeAnyHandle(t *testing.T) {
	m := New()
	_, _, ok := m.Snapshot()
	assert.False(t, ok)
}

func TestMonitorSnapshotReflectsLastHandle(t *testing.T) {
	m := New()
	budget := core.Budget{Current: 6.5}
	sit := core.Situation{BatteryState: 0.4}
	require := assert.New(t)
	require.NoError(m.Handle(budget, sit))

	got, gotSit, ok := m.Snapshot()
	require.True(ok)
	require.Equal(budget, got)
	require.Equal(sit, gotSit)
}

func TestCurcapRounding(t *testing.T) {
	budget := core.Budget{Current: 10}
	sit := core.Situation{Grid: []core.Phase{{Voltage: 230}, {Voltage: 230}, {Voltage: 230}}}
	// 10 * 230 * 3 = 6900, exact.
	assert.Equal(t, 6900, Curcap(budget, sit))
}

func TestCurcapRoundsToNearest(t *testing.T) {
	budget := core.Budget{Current: 1.0 / 3.0}
	sit := core.Situation{Grid: []core.Phase{{Voltage: 230}}}
	// 1/3 * 230 = 76.666..., rounds to 77.
	assert.Equal(t, 77, Curcap(budget, sit))
}

func TestCurcapRoundsNegativeBudgetsCorrectly(t *testing.T) {
	budget := core.Budget{Current: -1.0 / 230.0}
	sit := core.Situation{Grid: []core.Phase{{Voltage: 230}}}
	// -1/230 * 230 = -1, exact.
	assert.Equal(t, -1, Curcap(budget, sit))

	// A negative product that would misround under "truncate after +0.5"
	// (-1.5 + 0.5 = -1.0 -> -1) must still round half away from zero,
	// to -2.
	budget = core.Budget{Current: -1.5 / 230.0}
	assert.Equal(t, -2, Curcap(budget, sit))
}
