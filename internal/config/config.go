// Package config implements a typed, dotted-key parameter store with
// subscriber semantics: declaring a parameter registers a parser and a
// default, which is then resolved against the environment and any
// previously stored string value (from a config file or the CLI).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/devskill-org/p1budget/internal/corelog"
)

// Parser converts a raw string into a typed value.
type Parser[T any] func(text string) (T, error)

// subscriber is the type-erased half of a Param's registration: it knows
// how to re-parse a new string value into the param's storage.
type subscriber struct {
	name  string
	parse func(text string) error
}

// Config is the process-wide parameter registry. It is safe for concurrent
// use. Declaring a new parameter from inside a subscriber's parse callback
// (a legitimate pattern when initialization of one component declares
// further parameters) is safe because Config never invokes a callback while
// its internal lock is held — critical sections only ever touch the map,
// never user code — which sidesteps the need for a recursive mutex
// entirely.
type Config struct {
	mu          sync.Mutex
	stored      map[string]string
	subscribers map[string][]subscriber
	log         *corelog.Logger
}

// New constructs an empty Config.
func New(log *corelog.Logger) *Config {
	return &Config{
		stored:      map[string]string{},
		subscribers: map[string][]subscriber{},
		log:         log,
	}
}

// SetParam stores text as the current string value for key and fans out
// parse(text) to every subscriber of key. This is the runtime write path
// used by CLI/file ingestion and by explicit RPC-driven overrides.
func (c *Config) SetParam(key, text string) {
	c.mu.Lock()
	c.stored[key] = text
	subs := append([]subscriber(nil), c.subscribers[key]...)
	c.mu.Unlock()

	for _, s := range subs {
		if err := s.parse(text); err != nil {
			c.log.Errorf("config: parse %q for %s: %v", text, key, err)
		}
	}
}

// envName derives the environment variable name consulted for a dotted
// config key by upper-casing it and replacing '.' with '_'.
func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Subscribe declares a parameter under key with the given default value and
// parser. Resolution order: hard default, then environment variable (if
// parseable), then any string already stored for key from a config file or
// CLI argument (if parseable). Parse failures at any stage are logged and
// the previous value is retained.
func Subscribe[T any](c *Config, key string, parser Parser[T], def T) *Param[T] {
	p := &Param[T]{key: key, value: def, parser: parser}

	if text, ok := os.LookupEnv(envName(key)); ok {
		if v, err := parser(text); err != nil {
			c.log.Errorf("config: env %s for %s: %v", envName(key), key, err)
		} else {
			p.value = v
		}
	}

	c.mu.Lock()
	text, hasStored := c.stored[key]
	c.subscribers[key] = append(c.subscribers[key], subscriber{name: key, parse: p.parseAndStore})
	c.mu.Unlock()

	if hasStored {
		if v, err := parser(text); err != nil {
			c.log.Errorf("config: stored value %q for %s: %v", text, key, err)
		} else {
			p.value = v
		}
	}

	return p
}

// Param is a typed, subscribed configuration value.
type Param[T any] struct {
	mu     sync.RWMutex
	key    string
	value  T
	parser Parser[T]
}

// Get returns the current value.
func (p *Param[T]) Get() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Key returns the parameter's dotted key.
func (p *Param[T]) Key() string { return p.key }

func (p *Param[T]) parseAndStore(text string) error {
	v, err := p.parser(text)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
	return nil
}

// Common parsers.

func ParseString(text string) (string, error) { return text, nil }

func ParseInt(text string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(text))
}

func ParseFloat(text string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(text), 64)
}

func ParseBool(text string) (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(text))
}

// LoadCLI applies "--key value" pairs as in argv (excluding argv[0]).
// Any token that does not start with "--", or that lacks a following
// value, is a usage error.
func (c *Config) LoadCLI(args []string) error {
	for len(args) > 0 {
		arg := args[0]
		if !strings.HasPrefix(arg, "--") || len(arg) <= 2 {
			return fmt.Errorf("usage: <binary> [--<key> <value>]*")
		}
		if len(args) < 2 {
			return fmt.Errorf("usage: <binary> [--<key> <value>]*")
		}
		key := arg[2:]
		c.SetParam(key, args[1])
		args = args[2:]
	}
	return nil
}
