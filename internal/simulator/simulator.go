// Package simulator provides a combined producer/consumer that synthesizes
// a plausible Situation without any real hardware, for offline testing and
// local development.
package simulator

import (
	"math"
	"sync"
	"time"

	"github.com/devskill-org/p1budget/internal/core"
)

// Config bounds the simulated system.
type Config struct {
	// PeakSolarW is the solar output at local solar noon, in watts.
	PeakSolarW float64
	// BaseLoadW is the constant household load, in watts.
	BaseLoadW float64
	// BatteryCapacityWh is the home battery's usable capacity.
	BatteryCapacityWh float64
	// BatteryMaxPowerW bounds charge/discharge power.
	BatteryMaxPowerW float64
	Phases           int
}

// DefaultConfig returns reasonable defaults for a small residential system.
func DefaultConfig() Config {
	return Config{
		PeakSolarW:        6000,
		BaseLoadW:         400,
		BatteryCapacityWh: 10000,
		BatteryMaxPowerW:  5000,
		Phases:            3,
	}
}

// Simulator is both a Producer (writes the synthesized Situation) and a
// Consumer (logs nothing, but observes the resulting Budget for tests to
// inspect via LastBudget). It self-integrates a diurnal solar profile and
// a simple battery state machine across successive Poll calls.
type Simulator struct {
	mu sync.Mutex

	cfg Config

	batteryWh float64
	lastTick  time.Time
	now       func() time.Time

	lastBudget core.Budget
}

// New constructs a Simulator starting with a half-full battery.
func New(cfg Config) *Simulator {
	return &Simulator{
		cfg:       cfg,
		batteryWh: cfg.BatteryCapacityWh * 0.5,
		now:       time.Now,
	}
}

func (s *Simulator) Name() string { return "simulator" }

// solarOutput returns a sinusoidal approximation of solar output peaking at
// local noon and zero outside 6:00-18:00.
func (s *Simulator) solarOutput(t time.Time) float64 {
	hour := float64(t.Hour()) + float64(t.Minute())/60.0
	if hour < 6 || hour > 18 {
		return 0
	}
	angle := (hour - 6) / 12.0 * math.Pi
	return s.cfg.PeakSolarW * math.Sin(angle)
}

// Poll writes a synthesized Situation: solar output from the diurnal
// profile, a battery that charges from any solar surplus over BaseLoadW
// (up to its capacity and max power) and discharges to cover any deficit
// while it has charge left (up to its max power), and a grid
// current split evenly across phases from whatever solar+battery does not
// cover.
func (s *Simulator) Poll(sit *core.Situation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	elapsed := time.Second
	if !s.lastTick.IsZero() {
		elapsed = now.Sub(s.lastTick)
	}
	s.lastTick = now

	solar := s.solarOutput(now)
	load := s.cfg.BaseLoadW
	surplus := solar - load

	batteryOutput := 0.0 // positive = discharge
	switch {
	case surplus > 0 && s.batteryWh < s.cfg.BatteryCapacityWh:
		charge := math.Min(surplus, s.cfg.BatteryMaxPowerW)
		s.batteryWh = math.Min(s.cfg.BatteryCapacityWh, s.batteryWh+charge*elapsed.Hours())
		batteryOutput = -charge
	case surplus < 0 && s.batteryWh > 0:
		discharge := math.Min(-surplus, s.cfg.BatteryMaxPowerW)
		s.batteryWh = math.Max(0, s.batteryWh-discharge*elapsed.Hours())
		batteryOutput = discharge
	}

	inverterOutput := solar + batteryOutput
	gridOutput := load - inverterOutput

	phases := s.cfg.Phases
	if phases <= 0 {
		phases = 3
	}
	grid := make([]core.Phase, phases)
	perPhaseCurrent := gridOutput / core.DefaultVoltage / float64(phases)
	for i := range grid {
		grid[i] = core.Phase{Voltage: core.DefaultVoltage, Current: perPhaseCurrent}
	}

	sit.BatteryState = s.batteryWh / s.cfg.BatteryCapacityWh
	sit.InverterOutput = inverterOutput
	sit.BatteryOutput = batteryOutput
	sit.Grid = grid
	return nil
}

// Handle records the tick's budget so tests can observe what the
// controller decided without a real charger attached.
func (s *Simulator) Handle(budget core.Budget, _ core.Situation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBudget = budget
	return nil
}

// LastBudget returns the most recently observed budget.
func (s *Simulator) LastBudget() core.Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBudget
}
