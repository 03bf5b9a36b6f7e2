package mute

import (
	"os"
	"path/filepath"
	"testing"
	gotime "time"

	"github.com/fleetwatch/core/store/jsonfile"
	"github.com/fleetwatch/core/time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*Manager, *time.TestSource, string) {
	path := filepath.Join(t.TempDir(), "mutes.json")

	s, err := jsonfile.New(jsonfile.Config{Filepath: path})
	require.NoError(t, err)

	ts := &time.TestSource{}
	ts.Set(1000, 0)

	return New(Config{Store: s, Source: ts}), ts, path
}

func TestExpiry(t *testing.T) {
	m, ts, _ := newManager(t)

	expiry, err := m.Add("radarr", gotime.Hour)
	require.NoError(t, err)
	assert.Equal(t, ts.Now().Add(gotime.Hour), expiry)

	assert.True(t, m.IsMuted("radarr"))

	ts.Advance(59 * gotime.Minute)
	assert.True(t, m.IsMuted("radarr"))

	ts.Advance(gotime.Minute)
	assert.False(t, m.IsMuted("radarr"))

	// Once evicted, it stays gone.
	assert.False(t, m.IsMuted("radarr"))
}

func TestAddReplacesWindow(t *testing.T) {
	m, ts, _ := newManager(t)

	m.Add("radarr", gotime.Hour)

	ts.Advance(30 * gotime.Minute)
	expiry, err := m.Add("radarr", 10*gotime.Minute)
	require.NoError(t, err)

	assert.Equal(t, ts.Now().Add(10*gotime.Minute), expiry)

	ts.Advance(11 * gotime.Minute)
	assert.False(t, m.IsMuted("radarr"))
}

func TestRemove(t *testing.T) {
	m, ts, _ := newManager(t)

	m.Add("radarr", gotime.Hour)

	removed, err := m.Remove("radarr")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = m.Remove("radarr")
	require.NoError(t, err)
	assert.False(t, removed)

	// Expired counts as absent.
	m.Add("sonarr", gotime.Minute)
	ts.Advance(2 * gotime.Minute)

	removed, err = m.Remove("sonarr")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestActiveSorted(t *testing.T) {
	m, ts, _ := newManager(t)

	m.Add("c", 3*gotime.Hour)
	m.Add("a", gotime.Hour)
	m.Add("b", 2*gotime.Hour)
	m.Add("gone", gotime.Minute)

	ts.Advance(10 * gotime.Minute)

	entries := m.Active()

	require.Equal(t, 3, len(entries))
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, "b", entries[1].Key)
	assert.Equal(t, "c", entries[2].Key)
}

func TestGlobalKey(t *testing.T) {
	m, _, _ := newManager(t)

	m.Add(GlobalKey, gotime.Hour)

	assert.True(t, m.IsMuted(GlobalKey))
	assert.False(t, m.IsMuted("radarr"))
}

func TestPersistenceRoundtrip(t *testing.T) {
	m, ts, path := newManager(t)

	m.Add("radarr", gotime.Hour)
	m.Add(GlobalKey, 2*gotime.Hour)

	s, err := jsonfile.New(jsonfile.Config{Filepath: path})
	require.NoError(t, err)

	restored := New(Config{Store: s, Source: ts})

	assert.True(t, restored.IsMuted("radarr"))
	assert.True(t, restored.IsMuted(GlobalKey))
	assert.False(t, restored.IsMuted("sonarr"))

	entries := restored.Active()
	assert.Equal(t, 2, len(entries))
}

func TestPersistedExpiryIsISO8601(t *testing.T) {
	m, _, path := newManager(t)

	_, err := m.Add("radarr", gotime.Hour)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, string(raw), `"radarr": "`)
	assert.Contains(t, string(raw), `T`)
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mutes.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s, err := jsonfile.New(jsonfile.Config{Filepath: path})
	require.NoError(t, err)

	m := New(Config{Store: s})

	assert.Empty(t, m.Active())
}
