// Package policy implements the budget-computing policy family: the
// breaker-safety "red" policy and the solar-aware generic policy that
// backs the "orange"/"yellow"/"green" instances.
package policy

import (
	"github.com/devskill-org/p1budget/internal/config"
	"github.com/devskill-org/p1budget/internal/settings"
)

// Tunables are the settings shared by every policy in the family.
type Tunables struct {
	MaxCurrent      *settings.Param[float64]
	BatteryMaxPower *settings.Param[float64]
	BatteryMinState *settings.Param[float64]
	InverterMaxPow  *settings.Param[float64]
}

// NewTunables declares the shared policy settings against s and cfg.
func NewTunables(s *settings.Settings, cfg *config.Config) *Tunables {
	return &Tunables{
		MaxCurrent:      settings.Subscribe(s, cfg, "max_current", config.ParseFloat, 16.0),
		BatteryMaxPower: settings.Subscribe(s, cfg, "battery_max_power", config.ParseFloat, 5000.0),
		BatteryMinState: settings.Subscribe(s, cfg, "battery_min_state", config.ParseFloat, 10.0),
		InverterMaxPow:  settings.Subscribe(s, cfg, "inverter_max_power", config.ParseFloat, 8000.0),
	}
}
