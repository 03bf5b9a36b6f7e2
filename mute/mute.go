// Package mute suppresses all alerts for a workload, or globally, until an
// absolute expiry instant. An expired mute is equivalent to no mute; expired
// entries are evicted lazily on the next read and the eviction is persisted,
// so repeated reads after expiry do the persisted-state work exactly once.
package mute

import (
	"sort"
	"sync"
	gotime "time"

	"github.com/fleetwatch/core/log"
	"github.com/fleetwatch/core/store/jsonfile"
	"github.com/fleetwatch/core/time"
)

// GlobalKey mutes every workload at once. A workload can't be named this.
const GlobalKey = "all"

type Entry struct {
	Key    string      `json:"key"`
	Expiry gotime.Time `json:"expiry"`
}

type Config struct {
	// Store persists the mutes. Optional; without it mutes only live in
	// memory.
	Store *jsonfile.Store

	Source time.Source
	Logger log.Logger
}

// Manager holds at most one active mute per key and owns the mute state file.
type Manager struct {
	mutes  map[string]gotime.Time
	store  *jsonfile.Store
	ts     time.Source
	logger log.Logger

	lock sync.Mutex
}

func New(config Config) *Manager {
	m := &Manager{
		mutes:  map[string]gotime.Time{},
		store:  config.Store,
		ts:     config.Source,
		logger: config.Logger,
	}

	if m.ts == nil {
		m.ts = &time.StdSource{}
	}

	if m.logger == nil {
		m.logger = log.New("")
	}

	if m.store != nil {
		persisted := map[string]gotime.Time{}
		if err := m.store.Load(&persisted); err != nil {
			m.logger.Warn().WithError(err).Log("Loading mutes failed, starting empty")
		} else {
			m.mutes = persisted
		}
	}

	return m
}

// IsMuted returns whether the key is muted right now. An expired entry is
// evicted and the eviction persisted before returning false.
func (m *Manager) IsMuted(key string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	expiry, ok := m.mutes[key]
	if !ok {
		return false
	}

	if m.ts.Now().Before(expiry) {
		return true
	}

	delete(m.mutes, key)
	m.persist()

	return false
}

// Add sets or replaces the mute for a key and returns the computed expiry.
// A second mute before expiry replaces the window, it is not additive. The
// in-memory state is updated even if persisting fails, but the failure is
// reported so it can be surfaced to the operator.
func (m *Manager) Add(key string, duration gotime.Duration) (gotime.Time, error) {
	expiry := m.ts.Now().Add(duration)

	m.lock.Lock()
	defer m.lock.Unlock()

	m.mutes[key] = expiry

	return expiry, m.persist()
}

// Remove deletes the mute for a key. It returns whether an active mute
// existed; an already-expired mute counts as absent.
func (m *Manager) Remove(key string) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	expiry, ok := m.mutes[key]
	if !ok {
		return false, nil
	}

	active := m.ts.Now().Before(expiry)

	delete(m.mutes, key)

	return active, m.persist()
}

// Active returns all unexpired mutes sorted by expiry ascending, i.e. the
// next one to run out first. Expired entries are evicted on the way.
func (m *Manager) Active() []Entry {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.ts.Now()

	evicted := false
	entries := []Entry{}

	for key, expiry := range m.mutes {
		if !now.Before(expiry) {
			delete(m.mutes, key)
			evicted = true
			continue
		}

		entries = append(entries, Entry{Key: key, Expiry: expiry})
	}

	if evicted {
		m.persist()
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Expiry.Before(entries[j].Expiry)
	})

	return entries
}

// persist is called with the lock held.
func (m *Manager) persist() error {
	if m.store == nil {
		return nil
	}

	if err := m.store.Store(m.mutes); err != nil {
		m.logger.Error().WithError(err).Log("Persisting mutes failed")
		return err
	}

	return nil
}
