package jsonfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, version uint64) (*Store, string) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := New(Config{
		Filepath: path,
		Version:  version,
	})
	require.NoError(t, err)

	return s, path
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	s, _ := newStore(t, 1)

	data := map[string][]string{"keep": {"me"}}

	require.NoError(t, s.Load(&data))
	assert.Equal(t, map[string][]string{"keep": {"me"}}, data)
}

func TestRoundtrip(t *testing.T) {
	s, path := newStore(t, 1)

	in := map[string][]string{
		"radarr": {"rate limit exceeded", "connection refused"},
		"sonarr": {"timeout"},
	}

	require.NoError(t, s.Store(in))

	other, err := New(Config{Filepath: path, Version: 1})
	require.NoError(t, err)

	out := map[string][]string{}
	require.NoError(t, other.Load(&out))

	assert.Equal(t, in, out)
}

func TestLoadMalformedFile(t *testing.T) {
	s, path := newStore(t, 1)

	require.NoError(t, os.WriteFile(path, []byte(`{"version": 1, "data"`), 0644))

	data := map[string]string{}
	require.NoError(t, s.Load(&data))
	assert.Empty(t, data)
}

func TestLoadWrongVersion(t *testing.T) {
	s, path := newStore(t, 1)

	require.NoError(t, s.Store(map[string]string{"a": "b"}))

	other, err := New(Config{Filepath: path, Version: 2})
	require.NoError(t, err)

	data := map[string]string{}
	require.NoError(t, other.Load(&data))
	assert.Empty(t, data)

	_ = s
}

func TestStoreLeavesNoTempfiles(t *testing.T) {
	s, path := newStore(t, 1)

	require.NoError(t, s.Store(map[string]string{"a": "b"}))
	require.NoError(t, s.Store(map[string]string{"a": "c"}))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)

	assert.Equal(t, 1, len(entries))
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}
