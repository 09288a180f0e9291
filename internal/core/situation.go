// Package core implements the control-plane primitives the rest of the
// system is built from: the electrical Situation/Budget value types, the
// Producer/Policy/Consumer roles, the mutually-exclusive Registry, and the
// Scheduler that drives them once per tick.
package core

import "math"

// Phase is a single mains phase reading.
type Phase struct {
	// Voltage in volts; defaults to 230 when a producer does not know
	// better.
	Voltage float64
	// Current in amps, signed: positive is import, negative export.
	Current float64
}

// Power returns the instantaneous power drawn on this phase, in watts.
func (p Phase) Power() float64 {
	return p.Voltage * p.Current
}

// Situation is a snapshot of electrical and battery state refreshed by the
// producers on every tick.
type Situation struct {
	// BatteryState is the home battery's state of charge, in [0,1].
	BatteryState float64
	// InverterOutput is the PV inverter's instantaneous output, in watts
	// (solar plus battery).
	InverterOutput float64
	// BatteryOutput is positive when discharging, negative when charging,
	// in watts.
	BatteryOutput float64
	// Grid holds one entry per mains phase.
	Grid []Phase
}

// SolarOutput is the inverter's output attributable to solar generation
// alone.
func (s Situation) SolarOutput() float64 {
	return s.InverterOutput - s.BatteryOutput
}

// GridVoltage is the mean of all phase voltages, or 0 if there are no
// phases.
func (s Situation) GridVoltage() float64 {
	if len(s.Grid) == 0 {
		return 0
	}
	var sum float64
	for _, p := range s.Grid {
		sum += p.Voltage
	}
	return sum / float64(len(s.Grid))
}

// GridOutput is the total signed power flowing across all phases, in watts.
func (s Situation) GridOutput() float64 {
	var sum float64
	for _, p := range s.Grid {
		sum += p.Power()
	}
	return sum
}

// Consumption is the household's total power draw, in watts.
func (s Situation) Consumption() float64 {
	return s.InverterOutput + s.GridOutput()
}

// MaxPhaseCurrent returns the highest signed current among all phases, and
// false if there are no phases.
func (s Situation) MaxPhaseCurrent() (float64, bool) {
	if len(s.Grid) == 0 {
		return 0, false
	}
	max := s.Grid[0].Current
	for _, p := range s.Grid[1:] {
		if p.Current > max {
			max = p.Current
		}
	}
	return max, true
}

// Clamp enforces the Situation's invariants: BatteryState is clamped to
// [0,1], and any zero/negative phase voltage is replaced by the 230V
// default.
func (s *Situation) Clamp() {
	if s.BatteryState < 0 {
		s.BatteryState = 0
	} else if s.BatteryState > 1 {
		s.BatteryState = 1
	}
	for i := range s.Grid {
		if s.Grid[i].Voltage <= 0 {
			s.Grid[i].Voltage = DefaultVoltage
		}
	}
}

// DefaultVoltage is used when a producer cannot measure phase voltage.
const DefaultVoltage = 230.0

// IsNaN reports whether the situation's consumption is undefined, which a
// producer signals by writing NaN into one of the contributing fields.
func (s Situation) IsNaN() bool {
	return math.IsNaN(s.Consumption())
}

// Budget is the controller's output: the additional current, in amps per
// phase, the charger may draw. Negative values mean "reduce" and are
// clamped to zero downstream by the consumer.
type Budget struct {
	Current float64
}
