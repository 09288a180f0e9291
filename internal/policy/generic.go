package policy

import (
	"fmt"
	"math"

	"github.com/devskill-org/p1budget/internal/core"
)

// Generic is the solar-aware policy family "orange"/"yellow"/"green" are
// instances of: it budgets current from surplus solar (and, above a floor,
// battery discharge), then caps the result at whatever Red would allow so a
// single near-limit phase can never be pushed into overcurrent.
type Generic struct {
	name, icon, label, description string
	maxGridPower                   float64
	minSolarPower                  float64
	tunables                       *Tunables
	red                            *Red
}

// NewGeneric constructs a generic solar-aware policy instance.
func NewGeneric(name, icon, label, description string, maxGridPower, minSolarPower float64, tunables *Tunables, red *Red) *Generic {
	return &Generic{
		name:          name,
		icon:          icon,
		label:         label,
		description:   description,
		maxGridPower:  maxGridPower,
		minSolarPower: minSolarPower,
		tunables:      tunables,
		red:           red,
	}
}

func (g *Generic) Name() string        { return g.name }
func (g *Generic) Icon() string        { return g.icon }
func (g *Generic) Label() string       { return g.label }
func (g *Generic) Description() string { return g.description }

// Apply implements the shared solar-aware budget formula: a power budget
// starting at max_grid_power, topped up by surplus solar (plus battery
// headroom above its floor) when solar output clears min_solar_power, minus
// household consumption — converted to per-phase current and finally
// capped by the red policy's breaker-safety budget.
func (g *Generic) Apply(sit core.Situation) (core.Budget, error) {
	if len(sit.Grid) == 0 {
		return core.Budget{}, nil
	}
	gridVoltage := sit.GridVoltage()
	if gridVoltage == 0 {
		return core.Budget{}, nil
	}
	if sit.IsNaN() {
		return core.Budget{}, fmt.Errorf("policy %s: situation has undefined (NaN) consumption", g.name)
	}

	powerBudget := g.maxGridPower
	solarOutput := sit.SolarOutput()
	if solarOutput >= g.minSolarPower {
		inverterBudget := solarOutput
		if sit.BatteryState >= g.tunables.BatteryMinState.Get()*0.01 {
			inverterBudget += g.tunables.BatteryMaxPower.Get()
		} else if sit.BatteryOutput > 0.0 {
			inverterBudget += sit.BatteryOutput
		}
		powerBudget += math.Min(inverterBudget, g.tunables.InverterMaxPow.Get())
	}
	powerBudget -= sit.Consumption()

	currentBudgetGeneric := powerBudget / gridVoltage / float64(len(sit.Grid))

	redBudget, err := g.red.Apply(sit)
	if err != nil {
		return core.Budget{}, err
	}

	return core.Budget{Current: math.Min(currentBudgetGeneric, redBudget.Current)}, nil
}
