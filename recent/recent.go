// Package recent keeps a bounded, time-windowed buffer of the error messages
// recently seen per workload. The buffer reflects candidate errors, i.e. also
// those that were later suppressed by the rate limiter, because the operator
// picks ignore patterns from it.
package recent

import (
	"sync"
	gotime "time"

	"github.com/fleetwatch/core/event"
	"github.com/fleetwatch/core/time"
)

type Config struct {
	// MaxAge is how long an entry is kept.
	MaxAge gotime.Duration

	// MaxCount is how many entries are kept per workload. The oldest
	// entries are discarded first.
	MaxCount int

	Source time.Source
}

type entry struct {
	message    string
	observedAt gotime.Time
}

type workloadBuffer struct {
	entries []entry
}

// Buffer is the recent-error store for all workloads.
type Buffer struct {
	maxAge   gotime.Duration
	maxCount int
	ts       time.Source

	workloads map[string]*workloadBuffer
	lock      sync.Mutex
}

func New(config Config) *Buffer {
	b := &Buffer{
		maxAge:    config.MaxAge,
		maxCount:  config.MaxCount,
		ts:        config.Source,
		workloads: map[string]*workloadBuffer{},
	}

	if b.maxAge <= 0 {
		b.maxAge = 24 * gotime.Hour
	}

	if b.maxCount <= 0 {
		b.maxCount = 50
	}

	if b.ts == nil {
		b.ts = &time.StdSource{}
	}

	return b
}

// Add appends a message for a workload and prunes that workload's entries to
// the configured age and count. Concurrent adds for the same workload are
// serialized.
func (b *Buffer) Add(workload, message string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	w, ok := b.workloads[workload]
	if !ok {
		w = &workloadBuffer{}
		b.workloads[workload] = w
	}

	now := b.ts.Now()

	w.entries = append(w.entries, entry{
		message:    message,
		observedAt: now,
	})

	w.prune(now, b.maxAge, b.maxCount)
}

// prune drops entries that fell out of the age window and truncates to the
// maximum count, oldest first. Entries are in insertion order, so the
// survivors form a suffix.
func (w *workloadBuffer) prune(now gotime.Time, maxAge gotime.Duration, maxCount int) {
	cutoff := now.Add(-maxAge)

	i := 0
	for ; i < len(w.entries); i++ {
		if w.entries[i].observedAt.After(cutoff) {
			break
		}
	}

	if i > 0 {
		w.entries = append([]entry{}, w.entries[i:]...)
	}

	if len(w.entries) > maxCount {
		w.entries = append([]entry{}, w.entries[len(w.entries)-maxCount:]...)
	}
}

// Unique returns the messages still within the age window, deduplicated by
// normalized text, in first-seen order. The index into this list is what the
// operator refers to when adding an ignore rule interactively.
func (b *Buffer) Unique(workload string) []string {
	b.lock.Lock()
	defer b.lock.Unlock()

	w, ok := b.workloads[workload]
	if !ok {
		return []string{}
	}

	w.prune(b.ts.Now(), b.maxAge, b.maxCount)

	seen := map[string]struct{}{}
	messages := []string{}

	for _, e := range w.entries {
		key := event.Normalize(e.message)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		messages = append(messages, e.message)
	}

	return messages
}

// At resolves a 1-based position in the unique view. It returns false if the
// position is out of range.
func (b *Buffer) At(workload string, position int) (string, bool) {
	messages := b.Unique(workload)

	if position < 1 || position > len(messages) {
		return "", false
	}

	return messages[position-1], true
}
