// Package monitor implements the consumer that retains the last Budget and
// Situation it was handed, and the Curcap conversion GET /api/curcap
// reports. The HTTP handlers themselves read the snapshot from
// core.Registry.SnapshotBudget, not from a Monitor.
package monitor

import (
	"math"
	"sync"

	"github.com/devskill-org/p1budget/internal/core"
)

// Monitor is a core.Consumer that snapshots every tick's result.
type Monitor struct {
	mu     sync.RWMutex
	budget core.Budget
	sit    core.Situation
	have   bool
}

// New constructs an empty Monitor.
func New() *Monitor {
	return &Monitor{}
}

func (m *Monitor) Name() string { return "monitor" }

// Handle stores budget and sit as the latest snapshot.
func (m *Monitor) Handle(budget core.Budget, sit core.Situation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budget = budget
	m.sit = sit
	m.have = true
	return nil
}

// Snapshot returns the last observed Budget and Situation, and whether any
// tick has completed yet.
func (m *Monitor) Snapshot() (core.Budget, core.Situation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.budget, m.sit, m.have
}

// Curcap computes the integer watts figure GET /api/curcap reports:
// round(budget.current * grid_voltage * N_phases).
func Curcap(budget core.Budget, sit core.Situation) int {
	return int(math.Round(budget.Current * sit.GridVoltage() * float64(len(sit.Grid))))
}
