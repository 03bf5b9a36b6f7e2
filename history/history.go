// Package history persists the alerts that went out such that an operator
// can ask "what happened to this workload lately" after the fact.
package history

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/fleetwatch/core/alert"
	"github.com/fleetwatch/core/encoding/json"
	"github.com/fleetwatch/core/log"

	"go.etcd.io/bbolt"
)

type Config struct {
	// Filepath is the path to the database file. Directories are expected
	// to exist.
	Filepath string

	// MaxMessageLength caps the persisted message text. 0 means the
	// default of 500.
	MaxMessageLength int

	Logger log.Logger
}

// Store is a bbolt-backed append store with one bucket per workload. The
// dispatch loop is the only writer.
type Store struct {
	db *bbolt.DB

	maxMessageLength int

	logger log.Logger
}

func New(config Config) (*Store, error) {
	s := &Store{
		maxMessageLength: config.MaxMessageLength,
		logger:           config.Logger,
	}

	if s.maxMessageLength <= 0 {
		s.maxMessageLength = 500
	}

	if s.logger == nil {
		s.logger = log.New("history")
	}

	db, err := bbolt.Open(config.Filepath, 0600, &bbolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("opening the history database: %w", err)
	}

	s.db = db

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// keyLayout is RFC 3339 with fixed-width nanoseconds. RFC3339Nano drops
// trailing zeros which would break the lexicographic ordering of the keys.
const keyLayout = "2006-01-02T15:04:05.000000000Z"

// key orders entries chronologically within a bucket. The alert ID suffix
// keeps two alerts in the same nanosecond from colliding.
func key(a alert.Alert) []byte {
	return []byte(a.Timestamp.UTC().Format(keyLayout) + "/" + a.ID)
}

func (s *Store) Append(a alert.Alert) error {
	if len([]rune(a.Message)) > s.maxMessageLength {
		a.Message = string([]rune(a.Message)[:s.maxMessageLength]) + "…"
	}

	value, err := json.Marshal(a)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(a.Workload))
		if err != nil {
			return err
		}

		return bucket.Put(key(a), value)
	})
}

// Latest returns the newest n alerts for a workload, newest first. An empty
// workload means all workloads.
func (s *Store) Latest(workload string, n int) ([]alert.Alert, error) {
	if n <= 0 {
		n = 10
	}

	alerts := []alert.Alert{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		if len(workload) != 0 {
			bucket := tx.Bucket([]byte(workload))
			if bucket == nil {
				return nil
			}

			return s.collect(bucket, n, &alerts)
		}

		err := tx.ForEach(func(name []byte, bucket *bbolt.Bucket) error {
			return s.collect(bucket, n, &alerts)
		})
		if err != nil {
			return err
		}

		sort.SliceStable(alerts, func(i, j int) bool {
			return alerts[i].Timestamp.After(alerts[j].Timestamp)
		})

		if len(alerts) > n {
			alerts = alerts[:n]
		}

		return nil
	})

	return alerts, err
}

func (s *Store) collect(bucket *bbolt.Bucket, n int, alerts *[]alert.Alert) error {
	cursor := bucket.Cursor()
	count := 0

	for k, v := cursor.Last(); k != nil && count < n; k, v = cursor.Prev() {
		a := alert.Alert{}

		if err := json.Unmarshal(v, &a); err != nil {
			s.logger.Warn().WithError(err).WithField("key", string(k)).Log("Skipping unreadable history entry")
			continue
		}

		*alerts = append(*alerts, a)
		count++
	}

	return nil
}

// Prune removes all entries older than the given instant and returns how
// many were removed.
func (s *Store) Prune(olderThan time.Time) (int, error) {
	cutoff := []byte(olderThan.UTC().Format(keyLayout))
	removed := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, bucket *bbolt.Bucket) error {
			cursor := bucket.Cursor()

			for k, _ := cursor.First(); k != nil && bytes.Compare(k, cutoff) < 0; k, _ = cursor.First() {
				if err := bucket.Delete(k); err != nil {
					return err
				}

				removed++
			}

			return nil
		})
	})

	return removed, err
}
