// Package ignore suppresses known-noisy error text per workload. Rules are
// plain case-insensitive substrings, on purpose: operators paste a fragment
// of the offending message and it just matches, with no pattern language to
// get wrong.
//
// Rules come in two tiers. Config rules are declared in the config file and
// are immutable at runtime. Runtime rules are added by operator command and
// are persisted so they survive a restart.
package ignore

import (
	"slices"
	"strings"
	"sync"

	"github.com/fleetwatch/core/event"
	"github.com/fleetwatch/core/log"
	"github.com/fleetwatch/core/store/jsonfile"
)

// Source tells which tier a rule belongs to.
type Source string

const (
	SourceConfig  Source = "config"
	SourceRuntime Source = "runtime"
)

type Rule struct {
	Pattern string `json:"pattern"`
	Source  Source `json:"source"`
}

type Config struct {
	// Rules are the config-tier patterns per workload.
	Rules map[string][]string

	// Store persists the runtime tier. Optional; without it runtime rules
	// only live in memory.
	Store *jsonfile.Store

	Logger log.Logger
}

// Manager holds the ignore rules and owns the runtime-tier state file.
type Manager struct {
	config  map[string][]string
	runtime map[string][]string
	store   *jsonfile.Store
	logger  log.Logger

	lock sync.RWMutex
}

func New(config Config) *Manager {
	m := &Manager{
		config:  map[string][]string{},
		runtime: map[string][]string{},
		store:   config.Store,
		logger:  config.Logger,
	}

	if m.logger == nil {
		m.logger = log.New("")
	}

	for workload, patterns := range config.Rules {
		for _, pattern := range patterns {
			pattern = event.Normalize(pattern)
			if len(pattern) == 0 {
				continue
			}

			if slices.Contains(m.config[workload], pattern) {
				continue
			}

			m.config[workload] = append(m.config[workload], pattern)
		}
	}

	if m.store != nil {
		runtime := map[string][]string{}
		if err := m.store.Load(&runtime); err != nil {
			m.logger.Warn().WithError(err).Log("Loading ignore rules failed, starting empty")
		} else {
			m.runtime = runtime
		}
	}

	return m
}

// IsIgnored returns whether the message contains any config or runtime rule
// registered for the workload. Matching is case-insensitive substring.
func (m *Manager) IsIgnored(workload, message string) bool {
	message = event.Normalize(message)

	m.lock.RLock()
	defer m.lock.RUnlock()

	for _, pattern := range m.config[workload] {
		if contains(message, pattern) {
			return true
		}
	}

	for _, pattern := range m.runtime[workload] {
		if contains(message, pattern) {
			return true
		}
	}

	return false
}

func contains(message, pattern string) bool {
	if len(pattern) == 0 {
		return false
	}

	return strings.Contains(message, pattern)
}

// Add normalizes the pattern and inserts it into the runtime tier. It
// returns whether the pattern was newly added; a duplicate is a no-op. The
// in-memory state is updated even if persisting fails, but the failure is
// reported so the operator learns that the rule won't survive a restart.
func (m *Manager) Add(workload, pattern string) (bool, error) {
	pattern = event.Normalize(pattern)
	if len(pattern) == 0 {
		return false, nil
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if slices.Contains(m.runtime[workload], pattern) {
		return false, nil
	}

	m.runtime[workload] = append(m.runtime[workload], pattern)

	return true, m.persist()
}

// Remove deletes a runtime-tier pattern. Config rules can't be removed at
// runtime. It returns whether the pattern existed.
func (m *Manager) Remove(workload, pattern string) (bool, error) {
	pattern = event.Normalize(pattern)

	m.lock.Lock()
	defer m.lock.Unlock()

	patterns := m.runtime[workload]
	i := slices.Index(patterns, pattern)
	if i < 0 {
		return false, nil
	}

	m.runtime[workload] = append(patterns[:i], patterns[i+1:]...)
	if len(m.runtime[workload]) == 0 {
		delete(m.runtime, workload)
	}

	return true, m.persist()
}

// All returns the rules for a workload in stable order, config tier first.
func (m *Manager) All(workload string) []Rule {
	m.lock.RLock()
	defer m.lock.RUnlock()

	rules := []Rule{}

	for _, pattern := range m.config[workload] {
		rules = append(rules, Rule{Pattern: pattern, Source: SourceConfig})
	}

	for _, pattern := range m.runtime[workload] {
		rules = append(rules, Rule{Pattern: pattern, Source: SourceRuntime})
	}

	return rules
}

// persist is called with the lock held.
func (m *Manager) persist() error {
	if m.store == nil {
		return nil
	}

	if err := m.store.Store(m.runtime); err != nil {
		m.logger.Error().WithError(err).Log("Persisting ignore rules failed")
		return err
	}

	return nil
}
