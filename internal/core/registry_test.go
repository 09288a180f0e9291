package core

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/p1budget/internal/corelog"
)

type fakeProducer struct {
	name string
	fn   func(sit *Situation) error
}

func (f *fakeProducer) Name() string              { return f.name }
func (f *fakeProducer) Poll(sit *Situation) error { return f.fn(sit) }

type fakePolicy struct {
	name   string
	budget Budget
	err    error
}

func (f *fakePolicy) Name() string        { return f.name }
func (f *fakePolicy) Icon() string        { return "" }
func (f *fakePolicy) Label() string       { return f.name }
func (f *fakePolicy) Description() string { return "" }
func (f *fakePolicy) Apply(Situation) (Budget, error) {
	return f.budget, f.err
}

type fakeConsumer struct {
	name  string
	calls *[]Budget
}

func (f *fakeConsumer) Name() string { return f.name }
func (f *fakeConsumer) Handle(b Budget, _ Situation) error {
	*f.calls = append(*f.calls, b)
	return nil
}

func testLogger() *corelog.Logger {
	return corelog.New(os.Stderr, "")
}

func TestRegisterAssignsIncrementingIndices(t *testing.T) {
	r := NewRegistry(testLogger())
	i0 := r.RegisterProducer(&fakeProducer{name: "a", fn: func(*Situation) error { return nil }})
	i1 := r.RegisterProducer(&fakeProducer{name: "b", fn: func(*Situation) error { return nil }})
	assert.Equal(t, 0, i0)
	assert.Equal(t, 1, i1)
}

func TestRegisterOverruleSameName(t *testing.T) {
	r := NewRegistry(testLogger())
	r.RegisterPolicy(&fakePolicy{name: "red", budget: Budget{Current: 1}})
	idx := r.RegisterPolicy(&fakePolicy{name: "red", budget: Budget{Current: 2}})

	infos := r.ListPolicies()
	require.Len(t, infos, 1)
	assert.Equal(t, idx, infos[0].Index)
}

func TestTickAppliesActivePolicyAndDrivesConsumers(t *testing.T) {
	r := NewRegistry(testLogger())
	r.RegisterProducer(&fakeProducer{name: "p", fn: func(sit *Situation) error {
		sit.Grid = []Phase{{Voltage: 230, Current: 1}}
		return nil
	}})
	idx := r.RegisterPolicy(&fakePolicy{name: "fixed", budget: Budget{Current: 7}})
	var calls []Budget
	r.RegisterConsumer(&fakeConsumer{name: "c", calls: &calls})

	r.SetActivePolicy(idx)
	_, changed := r.Tick()
	assert.True(t, changed)

	require.Len(t, calls, 1)
	assert.Equal(t, 7.0, calls[0].Current)

	// second tick: no longer a transition
	_, changed = r.Tick()
	assert.False(t, changed)
}

func TestTickRecordsProducerAndPolicyErrors(t *testing.T) {
	r := NewRegistry(testLogger())
	rec := &errRecorder{}
	r.SetErrorRecorder(rec)

	r.RegisterProducer(&fakeProducer{name: "flaky", fn: func(*Situation) error {
		return errors.New("boom")
	}})
	idx := r.RegisterPolicy(&fakePolicy{name: "broken", err: errors.New("bad policy")})
	r.SetActivePolicy(idx)

	r.Tick()

	assert.Contains(t, rec.calls, [2]string{"producer", "flaky"})
	assert.Contains(t, rec.calls, [2]string{"policy", "broken"})
}

type errRecorder struct {
	calls [][2]string
}

func (e *errRecorder) IncError(kind, name string) {
	e.calls = append(e.calls, [2]string{kind, name})
}

func TestSnapshotBudgetBeforeFirstTick(t *testing.T) {
	r := NewRegistry(testLogger())
	_, _, ok := r.SnapshotBudget()
	assert.False(t, ok)
}
