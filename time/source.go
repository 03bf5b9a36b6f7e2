// Package time provides an injectable source for the current time such that
// everything that is based on expiry or windows can be tested without sleeping.
package time

import (
	"sync"
	"time"
)

type Source interface {
	Now() time.Time
}

type StdSource struct{}

func (s *StdSource) Now() time.Time {
	return time.Now()
}

// TestSource is a Source whose current time is set manually.
type TestSource struct {
	lock sync.Mutex
	N    time.Time
}

func (t *TestSource) Now() time.Time {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.N
}

func (t *TestSource) Set(sec int64, nsec int64) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.N = time.Unix(sec, nsec)
}

// Advance moves the current time of this source forward by d.
func (t *TestSource) Advance(d time.Duration) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.N = t.N.Add(d)
}
