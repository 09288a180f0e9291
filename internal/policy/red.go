package policy

import "github.com/devskill-org/p1budget/internal/core"

// Red caps the per-phase current at max_current regardless of imbalance,
// protecting the main breaker. It never divides, so it is always safe to
// consult even when other policies guard against a zero grid voltage.
type Red struct {
	tunables *Tunables
}

// NewRed constructs the red policy.
func NewRed(t *Tunables) *Red {
	return &Red{tunables: t}
}

func (r *Red) Name() string  { return "red" }
func (r *Red) Icon() string  { return "octagon" }
func (r *Red) Label() string { return "Maximum draw" }
func (r *Red) Description() string {
	return "Caps the charger so the busiest phase never exceeds <max_current/> A."
}

// Apply returns Budget{max_current - maxphase.current}, or Budget{0} if
// there are no phases to measure.
func (r *Red) Apply(sit core.Situation) (core.Budget, error) {
	maxCurrent, ok := sit.MaxPhaseCurrent()
	if !ok {
		return core.Budget{}, nil
	}
	return core.Budget{Current: r.tunables.MaxCurrent.Get() - maxCurrent}, nil
}
