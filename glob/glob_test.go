package glob

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPatterns(t *testing.T) {
	ok, err := Match("radarr*", "radarr-4k")

	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Match("{radarr,sonarr}", "sonarr")

	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Match("media-*", "plex")

	require.NoError(t, err)
	require.False(t, ok)

	_, err = Match("[invalid", "radarr")

	require.Error(t, err)
}

func TestMustCompile(t *testing.T) {
	g := MustCompile("stack_*_db", '_')

	require.True(t, g.Match("stack_media_db"))
	require.False(t, g.Match("stack_media_cache_db"))
}
