package policy

import (
	"encoding/json"
	"time"

	"github.com/devskill-org/p1budget/internal/config"
	"github.com/devskill-org/p1budget/internal/core"
	"github.com/devskill-org/p1budget/internal/settings"
)

// Schedule is a producer (despite living alongside the policies — it does
// not compute a Budget) implementing a one-shot scheduled policy handover:
// once wall-clock passes next_time, it switches the registry's active
// policy to next_policy and resets next_time, so e.g. a green policy can be
// armed to take over at a specific sunrise timestamp.
type Schedule struct {
	registry   *core.Registry
	settings   *settings.Settings
	nextPolicy *settings.Param[int]
	nextTime   *settings.Param[int64]
	now        func() time.Time
}

// NewSchedule declares the schedule producer's settings and wires it to
// reg.
func NewSchedule(reg *core.Registry, s *settings.Settings, cfg *config.Config) *Schedule {
	return &Schedule{
		registry:   reg,
		settings:   s,
		nextPolicy: settings.Subscribe(s, cfg, "next_policy", config.ParseInt, 0),
		nextTime:   settings.Subscribe(s, cfg, "next_time", parseInt64, 0),
		now:        time.Now,
	}
}

func parseInt64(text string) (int64, error) {
	v, err := config.ParseInt(text)
	return int64(v), err
}

func (s *Schedule) Name() string { return "schedule" }

// Poll ignores the Situation entirely; it only ever mutates the registry's
// active policy and its own settings.
func (s *Schedule) Poll(_ *core.Situation) error {
	nt := s.nextTime.Get()
	if nt == 0 {
		return nil
	}
	if s.now().Unix() <= nt {
		return nil
	}
	s.registry.SetActivePolicy(s.nextPolicy.Get())
	raw, err := json.Marshal(int64(0))
	if err != nil {
		return err
	}
	_, err = s.settings.Apply(map[string]json.RawMessage{"next_time": raw})
	return err
}
