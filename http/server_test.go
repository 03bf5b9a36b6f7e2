package http

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fleetwatch/core/alert"
	"github.com/fleetwatch/core/encoding/json"
	"github.com/fleetwatch/core/history"
	"github.com/fleetwatch/core/http/api"
	"github.com/fleetwatch/core/ignore"
	"github.com/fleetwatch/core/log"
	"github.com/fleetwatch/core/mute"
	"github.com/fleetwatch/core/recent"
	"github.com/fleetwatch/core/time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server  Server
	mutes   *mute.Manager
	ignores *ignore.Manager
	recent  *recent.Buffer
	history *history.Store
}

func newFixture(t *testing.T) *fixture {
	ts := &time.TestSource{}
	ts.Set(1000, 0)

	f := &fixture{
		mutes:   mute.New(mute.Config{Source: ts}),
		ignores: ignore.New(ignore.Config{Rules: map[string][]string{"radarr": {"known noise"}}}),
		recent:  recent.New(recent.Config{Source: ts}),
	}

	store, err := history.New(history.Config{
		Filepath: filepath.Join(t.TempDir(), "history.db"),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	f.history = store

	server, err := NewServer(Config{
		Mutes:   f.mutes,
		Ignores: f.ignores,
		Recent:  f.recent,
		History: f.history,
	})
	require.NoError(t, err)

	f.server = server

	return f
}

func (f *fixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request

	if len(body) != 0 {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	return rec
}

func TestPing(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodGet, "/ping", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestMuteRoundtrip(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/workload/radarr/mute", `{"duration": "1h"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	m := api.Mute{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "radarr", m.Key)
	assert.False(t, m.Expiry.IsZero())

	assert.True(t, f.mutes.IsMuted("radarr"))

	rec = f.request(t, http.MethodGet, "/api/v1/mutes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	mutes := []api.Mute{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mutes))
	require.Equal(t, 1, len(mutes))

	rec = f.request(t, http.MethodDelete, "/api/v1/workload/radarr/mute", "")
	require.Equal(t, http.StatusOK, rec.Code)

	removed := api.MuteRemoved{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &removed))
	assert.True(t, removed.Removed)

	assert.False(t, f.mutes.IsMuted("radarr"))
}

func TestMuteBadDuration(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/workload/radarr/mute", `{"duration": "forever"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	e := api.Error{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, http.StatusBadRequest, e.Code)
}

func TestMuteBadBody(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/workload/radarr/mute", `{"duration": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/v1/workload/radarr/mute", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIgnoreByPattern(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/workload/radarr/ignore", `{"pattern": "rate limit exceeded"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	response := api.IgnoreResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Changed)

	assert.True(t, f.ignores.IsIgnored("radarr", "Rate Limit Exceeded on API"))

	// Adding the same pattern again is not a change.
	rec = f.request(t, http.MethodPost, "/api/v1/workload/radarr/ignore", `{"pattern": "RATE LIMIT EXCEEDED"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.False(t, response.Changed)
}

func TestIgnoreByPosition(t *testing.T) {
	f := newFixture(t)

	f.recent.Add("radarr", "first error")
	f.recent.Add("radarr", "second error")

	rec := f.request(t, http.MethodGet, "/api/v1/workload/radarr/errors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	errors := []api.RecentError{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errors))
	require.Equal(t, 2, len(errors))
	assert.Equal(t, 1, errors[0].Position)
	assert.Equal(t, "first error", errors[0].Message)

	rec = f.request(t, http.MethodPost, "/api/v1/workload/radarr/ignore", `{"position": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	response := api.IgnoreResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "second error", response.Pattern)

	assert.True(t, f.ignores.IsIgnored("radarr", "second error"))

	rec = f.request(t, http.MethodPost, "/api/v1/workload/radarr/ignore", `{"position": 99}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIgnoreList(t *testing.T) {
	f := newFixture(t)

	f.ignores.Add("radarr", "added at runtime")

	rec := f.request(t, http.MethodGet, "/api/v1/workload/radarr/ignores", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rules := []api.IgnoreRule{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rules))
	require.Equal(t, 2, len(rules))
	assert.Equal(t, "config", rules[0].Source)
	assert.Equal(t, "runtime", rules[1].Source)
}

func TestAlerts(t *testing.T) {
	f := newFixture(t)

	f.history.Append(alert.Alert{ID: "a", Workload: "radarr", Message: "one"})
	f.history.Append(alert.Alert{ID: "b", Workload: "sonarr", Message: "two"})

	rec := f.request(t, http.MethodGet, "/api/v1/alerts?workload=radarr", "")
	require.Equal(t, http.StatusOK, rec.Code)

	alerts := []alert.Alert{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Equal(t, 1, len(alerts))
	assert.Equal(t, "one", alerts[0].Message)

	rec = f.request(t, http.MethodGet, "/api/v1/alerts?limit=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLog(t *testing.T) {
	buffer := log.NewBufferWriter(log.Linfo, 10)

	logger := log.New("core").WithOutput(buffer)
	logger.Info().Log("pipeline started")

	server, err := NewServer(Config{
		Mutes:     mute.New(mute.Config{}),
		Ignores:   ignore.New(ignore.Config{}),
		Recent:    recent.New(recent.Config{}),
		LogBuffer: buffer,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/log", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	lines := []string{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Equal(t, 1, len(lines))
	assert.Contains(t, lines[0], "pipeline started")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/log?format=raw", nil)
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	raw := []map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Equal(t, 1, len(raw))
	assert.Equal(t, "pipeline started", raw[0]["message"])
	assert.Equal(t, "core", raw[0]["component"])
}

func TestLogNotMounted(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodGet, "/api/v1/log", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	e := api.Error{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, http.StatusNotFound, e.Code)
}
