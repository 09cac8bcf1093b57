package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranslatorToRemotePicksLongestPrefix(t *testing.T) {
	tr := NewTranslator([]PrefixMapping{
		{ServerPrefix: "/mnt/media", RemotePrefix: "/data"},
		{ServerPrefix: "/mnt/media/tv", RemotePrefix: "/data/tv-remote"},
	})
	require.Equal(t, "/data/tv-remote/show/ep1.mkv", tr.ToRemote("/mnt/media/tv/show/ep1.mkv"))
	require.Equal(t, "/data/movies/a.mkv", tr.ToRemote("/mnt/media/movies/a.mkv"))
}

func TestTranslatorToServerPicksLongestPrefix(t *testing.T) {
	tr := NewTranslator([]PrefixMapping{
		{ServerPrefix: "/mnt/media", RemotePrefix: "/data"},
		{ServerPrefix: "/mnt/media/tv", RemotePrefix: "/data/tv-remote"},
	})
	require.Equal(t, "/mnt/media/tv/show/ep1.mkv", tr.ToServer("/data/tv-remote/show/ep1.mkv"))
	require.Equal(t, "/mnt/media/movies/a.mkv", tr.ToServer("/data/movies/a.mkv"))
}

func TestTranslatorPassesThroughUnmatchedPaths(t *testing.T) {
	tr := NewTranslator(nil)
	require.Equal(t, "/unmapped/path", tr.ToRemote("/unmapped/path"))
	require.Equal(t, "/unmapped/path", tr.ToServer("/unmapped/path"))
}
