package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/p1budget/internal/config"
	"github.com/devskill-org/p1budget/internal/core"
	"github.com/devskill-org/p1budget/internal/corelog"
	"github.com/devskill-org/p1budget/internal/settings"
)

func newScheduleFixture(t *testing.T) (*core.Registry, *Schedule) {
	t.Helper()
	log := corelog.New(os.Stderr, "")
	cfg := config.New(log)
	s, err := settings.Load(filepath.Join(t.TempDir(), "settings.json"), log)
	require.NoError(t, err)
	reg := core.NewRegistry(log)
	sched := NewSchedule(reg, s, cfg)
	return reg, sched
}

func TestScheduleDoesNothingWhenNextTimeUnset(t *testing.T) {
	reg, sched := newScheduleFixture(t)
	reg.SetActivePolicy(3)
	require.NoError(t, sched.Poll(&core.Situation{}))
	assert.Equal(t, 3, reg.GetActivePolicy())
}

func TestScheduleWaitsUntilDeadline(t *testing.T) {
	reg, sched := newScheduleFixture(t)
	future := time.Now().Add(time.Hour).Unix()
	setScheduleSettings(t, sched, 2, future)

	reg.SetActivePolicy(0)
	require.NoError(t, sched.Poll(&core.Situation{}))
	assert.Equal(t, 0, reg.GetActivePolicy(), "deadline has not passed yet")
}

func TestScheduleActivatesPolicyAfterDeadlineAndResets(t *testing.T) {
	reg, sched := newScheduleFixture(t)
	past := time.Now().Add(-time.Hour).Unix()
	setScheduleSettings(t, sched, 2, past)

	reg.SetActivePolicy(0)
	require.NoError(t, sched.Poll(&core.Situation{}))
	assert.Equal(t, 2, reg.GetActivePolicy())
	assert.Equal(t, int64(0), sched.nextTime.Get(), "next_time resets after firing")

	// A second poll must not re-fire since next_time was reset to 0.
	reg.SetActivePolicy(0)
	require.NoError(t, sched.Poll(&core.Situation{}))
	assert.Equal(t, 0, reg.GetActivePolicy())
}

func setScheduleSettings(t *testing.T, sched *Schedule, policy int, nextTime int64) {
	t.Helper()
	policyRaw, err := json.Marshal(policy)
	require.NoError(t, err)
	timeRaw, err := json.Marshal(nextTime)
	require.NoError(t, err)
	_, err = sched.settings.Apply(map[string]json.RawMessage{
		"next_policy": policyRaw,
		"next_time":   timeRaw,
	})
	require.NoError(t, err)
}
