// Package jsonfile persists a manager's state as a versioned JSON document
// in a single file. The file is written atomically and a missing or
// unreadable file degrades to empty state. Each store owns exactly one file
// and each file has exactly one store.
package jsonfile

import (
	gojson "encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fleetwatch/core/encoding/json"
	"github.com/fleetwatch/core/log"
)

type Config struct {
	// Filepath is the full path to the database file.
	Filepath string

	// Version is the schema version this store reads and writes.
	Version uint64

	Logger log.Logger
}

type Store struct {
	filepath string
	version  uint64
	logger   log.Logger

	// Mutex to serialize access to the disk
	lock sync.Mutex
}

type envelope struct {
	Version uint64            `json:"version"`
	Data    gojson.RawMessage `json:"data"`
}

func New(config Config) (*Store, error) {
	s := &Store{
		filepath: config.Filepath,
		version:  config.Version,
		logger:   config.Logger,
	}

	if len(s.filepath) == 0 {
		return nil, fmt.Errorf("no file path provided")
	}

	if s.version == 0 {
		s.version = 1
	}

	if s.logger == nil {
		s.logger = log.New("")
	}

	return s, nil
}

// Load reads the persisted state into data. A missing file leaves data
// untouched. A malformed file or an unknown schema version is logged and
// leaves data untouched as well; state files are expendable by contract and
// must never prevent a start.
func (s *Store) Load(data interface{}) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	jsondata, err := os.ReadFile(s.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	e := envelope{}

	if err := json.Unmarshal(jsondata, &e); err != nil {
		s.logger.Warn().WithField("file", s.filepath).WithError(json.FormatError(jsondata, err)).Log("Discarding malformed state file")
		return nil
	}

	if e.Version != s.version {
		s.logger.Warn().WithFields(log.Fields{
			"file": s.filepath,
			"have": e.Version,
			"want": s.version,
		}).Log("Discarding state file with unsupported version")
		return nil
	}

	if err := json.Unmarshal(e.Data, data); err != nil {
		s.logger.Warn().WithField("file", s.filepath).WithError(json.FormatError(e.Data, err)).Log("Discarding malformed state file")
		return nil
	}

	s.logger.Debug().WithField("file", s.filepath).Log("Read data")

	return nil
}

// Store writes data to the backing file. The data is first written to a
// tempfile in the same directory which is then renamed to the actual path,
// such that a crash can never leave a half-written file behind.
func (s *Store) Store(data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	jsondata, err := json.MarshalIndent(&envelope{
		Version: s.version,
		Data:    raw,
	}, "", "    ")
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	dir := filepath.Dir(s.filepath)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating state directory failed: %w", err)
	}

	tmpfile, err := os.CreateTemp(dir, filepath.Base(s.filepath)+".*")
	if err != nil {
		return fmt.Errorf("creating tempfile failed: %w", err)
	}

	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write(jsondata); err != nil {
		tmpfile.Close()
		return fmt.Errorf("writing tempfile failed: %w", err)
	}

	if err := tmpfile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpfile.Name(), s.filepath); err != nil {
		return fmt.Errorf("replacing state file failed: %w", err)
	}

	s.logger.Debug().WithField("file", s.filepath).Log("Stored data")

	return nil
}
