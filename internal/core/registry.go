package core

import (
	"sort"
	"sync"

	"github.com/devskill-org/p1budget/internal/corelog"
)

// Producer writes fresh measurements into the shared Situation before a
// tick's policy is evaluated. Implementations are expected to bound any I/O
// with their own timeout and to log-gate repeated identical errors rather
// than logging on every tick.
type Producer interface {
	Name() string
	Poll(sit *Situation) error
}

// Policy computes a Budget from a Situation. Policies must be pure
// functions of their settings and the Situation handed to them.
type Policy interface {
	Name() string
	Icon() string
	Label() string
	Description() string
	Apply(sit Situation) (Budget, error)
}

// Consumer drives downstream hardware from the tick's Budget and Situation.
type Consumer interface {
	Name() string
	Handle(budget Budget, sit Situation) error
}

// entry pairs a registered component with the index it was assigned.
type entry[T any] struct {
	index int
	value T
}

// Registry is the process-wide, mutually-exclusive collection of
// producers, policies and consumers. All registry operations — including
// the Scheduler's tick — serialize on a single mutex, guaranteeing each
// tick observes an internally consistent Situation and that RPC-driven
// writes never race a policy evaluation mid-tick.
type Registry struct {
	mu sync.Mutex

	producers []entry[Producer]
	policies  []entry[Policy]
	consumers []entry[Consumer]

	byNameProducer map[string]int
	byNamePolicy   map[string]int
	byNameConsumer map[string]int

	activePolicy      int
	lastAppliedPolicy int

	lastBudget    Budget
	lastSituation Situation
	haveTicked    bool

	log    *corelog.Logger
	errRec ErrorRecorder
}

// ErrorRecorder receives a count for each producer/policy/consumer error a
// tick encounters, keyed by component kind and name. Satisfied by
// internal/metrics.Metrics; left nil, errors are simply logged.
type ErrorRecorder interface {
	IncError(kind, name string)
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *corelog.Logger) *Registry {
	return &Registry{
		byNameProducer:    map[string]int{},
		byNamePolicy:      map[string]int{},
		byNameConsumer:    map[string]int{},
		lastAppliedPolicy: -1,
		log:               log,
	}
}

// SetErrorRecorder attaches a metrics recorder for component errors.
func (r *Registry) SetErrorRecorder(rec ErrorRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errRec = rec
}

func nextIndex[T any](entries []entry[T]) int {
	if len(entries) == 0 {
		return 0
	}
	max := entries[0].index
	for _, e := range entries[1:] {
		if e.index > max {
			max = e.index
		}
	}
	return max + 1
}

// RegisterProducer adds p to the registry, replacing any existing producer
// with the same name (overrule semantics — the superseded registration is
// simply dropped; the caller that still holds its handle must not use it
// again).
func (r *Registry) RegisterProducer(p Producer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byNameProducer[p.Name()]; ok {
		r.log.Infof("Overrule producer %s (index %d)", p.Name(), old)
		r.removeProducerLocked(old)
	}
	idx := nextIndex(r.producers)
	r.producers = append(r.producers, entry[Producer]{idx, p})
	r.byNameProducer[p.Name()] = idx
	r.log.Debugf("Register producer %s (index %d)", p.Name(), idx)
	return idx
}

// UnregisterProducer removes the producer at index, if still present.
func (r *Registry) UnregisterProducer(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeProducerLocked(index)
}

func (r *Registry) removeProducerLocked(index int) {
	for i, e := range r.producers {
		if e.index == index {
			name := e.value.Name()
			r.log.Debugf("Unregister producer %s (index %d)", name, index)
			r.producers = append(r.producers[:i:i], r.producers[i+1:]...)
			if r.byNameProducer[name] == index {
				delete(r.byNameProducer, name)
			}
			return
		}
	}
}

// RegisterPolicy adds p to the registry, replacing any existing policy with
// the same name.
func (r *Registry) RegisterPolicy(p Policy) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byNamePolicy[p.Name()]; ok {
		r.log.Infof("Overrule policy %s (index %d)", p.Name(), old)
		r.removePolicyLocked(old)
	}
	idx := nextIndex(r.policies)
	r.policies = append(r.policies, entry[Policy]{idx, p})
	r.byNamePolicy[p.Name()] = idx
	r.log.Debugf("Register policy %s (index %d)", p.Name(), idx)
	return idx
}

// UnregisterPolicy removes the policy at index, if still present. This
// corrects a historical bug in the source this control plane was modeled
// on, which erased from the producers map here instead of the policies map.
func (r *Registry) UnregisterPolicy(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removePolicyLocked(index)
}

func (r *Registry) removePolicyLocked(index int) {
	for i, e := range r.policies {
		if e.index == index {
			name := e.value.Name()
			r.log.Debugf("Unregister policy %s (index %d)", name, index)
			r.policies = append(r.policies[:i:i], r.policies[i+1:]...)
			if r.byNamePolicy[name] == index {
				delete(r.byNamePolicy, name)
			}
			return
		}
	}
}

// RegisterConsumer adds c to the registry, replacing any existing consumer
// with the same name.
func (r *Registry) RegisterConsumer(c Consumer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byNameConsumer[c.Name()]; ok {
		r.log.Infof("Overrule consumer %s (index %d)", c.Name(), old)
		r.removeConsumerLocked(old)
	}
	idx := nextIndex(r.consumers)
	r.consumers = append(r.consumers, entry[Consumer]{idx, c})
	r.byNameConsumer[c.Name()] = idx
	r.log.Debugf("Register consumer %s (index %d)", c.Name(), idx)
	return idx
}

// UnregisterConsumer removes the consumer at index, if still present.
func (r *Registry) UnregisterConsumer(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeConsumerLocked(index)
}

func (r *Registry) removeConsumerLocked(index int) {
	for i, e := range r.consumers {
		if e.index == index {
			name := e.value.Name()
			r.log.Debugf("Unregister consumer %s (index %d)", name, index)
			r.consumers = append(r.consumers[:i:i], r.consumers[i+1:]...)
			if r.byNameConsumer[name] == index {
				delete(r.byNameConsumer, name)
			}
			return
		}
	}
}

// SetActivePolicy sets the index consulted on the next tick. This call
// waits for any in-progress tick to finish (it shares the registry's
// mutex), giving RPC-driven policy switches natural serialization against
// the control loop.
func (r *Registry) SetActivePolicy(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activePolicy = index
}

// GetActivePolicy returns the currently selected policy index.
func (r *Registry) GetActivePolicy() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activePolicy
}

// PolicyInfo is the public description of a registered policy.
type PolicyInfo struct {
	Index       int
	Name        string
	Icon        string
	Label       string
	Description string
}

// ListPolicies returns all registered policies ordered by index.
func (r *Registry) ListPolicies() []PolicyInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PolicyInfo, 0, len(r.policies))
	for _, e := range r.policies {
		out = append(out, PolicyInfo{
			Index:       e.index,
			Name:        e.value.Name(),
			Icon:        e.value.Icon(),
			Label:       e.value.Label(),
			Description: e.value.Description(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// SnapshotBudget returns the most recently computed Budget and Situation,
// as last observed by the scheduler, and whether any tick has completed
// yet.
func (r *Registry) SnapshotBudget() (Budget, Situation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastBudget, r.lastSituation, r.haveTicked
}

// Tick runs one control cycle: poll every producer in index order, apply
// the active policy if one exists, then drive every consumer in index
// order. The entire cycle runs under the registry lock. Returns the active
// policy's name if it changed since the previous tick, with changed=true; the
// caller is expected to log the transition.
func (r *Registry) Tick() (changedTo string, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sit := r.lastSituation
	for _, e := range r.producers {
		if err := e.value.Poll(&sit); err != nil {
			r.log.Errorf("producer %s: %v", e.value.Name(), err)
			if r.errRec != nil {
				r.errRec.IncError("producer", e.value.Name())
			}
		}
	}
	sit.Clamp()

	var found Policy
	for _, e := range r.policies {
		if e.index == r.activePolicy {
			found = e.value
			break
		}
	}

	if r.activePolicy != r.lastAppliedPolicy {
		changed = true
		if found != nil {
			changedTo = found.Name()
		} else {
			changedTo = "null"
			r.log.Warnf("active policy index %d does not name a registered policy", r.activePolicy)
		}
		r.lastAppliedPolicy = r.activePolicy
	}

	if found != nil {
		budget, err := found.Apply(sit)
		if err != nil {
			r.log.Errorf("policy %s: %v", found.Name(), err)
			if r.errRec != nil {
				r.errRec.IncError("policy", found.Name())
			}
		} else {
			r.lastBudget = budget
		}
	}
	r.lastSituation = sit
	r.haveTicked = true

	for _, e := range r.consumers {
		if err := e.value.Handle(r.lastBudget, r.lastSituation); err != nil {
			r.log.Errorf("consumer %s: %v", e.value.Name(), err)
			if r.errRec != nil {
				r.errRec.IncError("consumer", e.value.Name())
			}
		}
	}

	return changedTo, changed
}
