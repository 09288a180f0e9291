// Package settings layers a persisted, JSON-backed parameter store on top
// of internal/config: a settings parameter resolves exactly like a config
// parameter, then is overridden by whatever was last saved to the
// settings document, and can subsequently only be mutated (and persisted)
// through Apply.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/devskill-org/p1budget/internal/config"
	"github.com/devskill-org/p1budget/internal/corelog"
)

// param is the type-erased half of a registered settings value, used by
// Settings.Apply to validate and assign an incoming JSON value without
// needing to know its concrete type.
type param interface {
	Key() string
	setFromJSON(raw json.RawMessage) error
}

// Settings is the persisted parameter store. It is safe for concurrent use;
// Apply is the only mutation path and always persists the whole document
// atomically afterward.
type Settings struct {
	mu     sync.Mutex
	path   string
	doc    map[string]json.RawMessage
	params map[string]param
	log    *corelog.Logger
}

// Load constructs a Settings backed by path, reading any existing document.
// A missing file is not an error: it means factory defaults, logged at info
// level.
func Load(path string, log *corelog.Logger) (*Settings, error) {
	s := &Settings{
		path:   path,
		doc:    map[string]json.RawMessage{},
		params: map[string]param{},
		log:    log,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Infof("settings: no existing document at %s, starting from factory defaults", path)
			return s, nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return s, nil
}

// Param is a typed settings value.
type Param[T any] struct {
	mu    sync.RWMutex
	key   string
	value T
}

// Key returns the parameter's dotted key.
func (p *Param[T]) Key() string { return p.key }

// Get returns the current value.
func (p *Param[T]) Get() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

func (p *Param[T]) setFromJSON(raw json.RawMessage) error {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
	return nil
}

// Subscribe declares a settings parameter under key: it first resolves like
// a config parameter against cfg (hard default, env, file/CLI), then, if
// the persisted document already has a value for key, that value takes
// precedence. If the document has no value yet, the config-resolved
// default is recorded into the in-memory document so a subsequent
// GET /api/settings reports it.
func Subscribe[T any](s *Settings, cfg *config.Config, key string, parser config.Parser[T], def T) *Param[T] {
	cp := config.Subscribe(cfg, key, parser, def)
	p := &Param[T]{key: key, value: cp.Get()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if raw, ok := s.doc[key]; ok {
		if err := json.Unmarshal(raw, &p.value); err != nil {
			s.log.Errorf("settings: stored value for %s: %v", key, err)
			p.value = cp.Get()
		}
	} else if raw, err := json.Marshal(p.value); err == nil {
		s.doc[key] = raw
	}
	s.params[key] = p
	return p
}

// ApplyResult reports what happened to each key in an Apply call.
type ApplyResult struct {
	Applied  []string
	Rejected map[string]string
}

// Apply validates and assigns each (key, value) pair against its
// registered subscriber. A value that fails to parse, or names an unknown
// key, is skipped and recorded in Rejected; the rest are still applied.
// The whole document is then persisted atomically, even on partial
// failure.
func (s *Settings) Apply(updates map[string]json.RawMessage) (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := ApplyResult{Rejected: map[string]string{}}
	for key, raw := range updates {
		p, ok := s.params[key]
		if !ok {
			result.Rejected[key] = "unknown setting"
			s.log.Warnf("settings: unknown key %s in apply request", key)
			continue
		}
		if err := p.setFromJSON(raw); err != nil {
			result.Rejected[key] = err.Error()
			s.log.Warnf("settings: value for %s rejected: %v", key, err)
			continue
		}
		s.doc[key] = raw
		result.Applied = append(result.Applied, key)
	}

	if err := s.saveLocked(); err != nil {
		return result, err
	}
	return result, nil
}

// Snapshot returns the full persisted document, for GET /api/settings.
func (s *Settings) Snapshot() map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]json.RawMessage, len(s.doc))
	for k, v := range s.doc {
		out[k] = v
	}
	return out
}

// Flush persists the current document; used on graceful shutdown.
func (s *Settings) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the document to <path>.tmp and renames it over path,
// so a crash mid-write never leaves a truncated settings file.
func (s *Settings) saveLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("settings: rename %s to %s: %w", tmp, s.path, err)
	}
	return nil
}
