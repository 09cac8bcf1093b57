package delivery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMoviePath(t *testing.T) {
	got := MoviePath("/media/movies", "Inception", 2010, "27205", "1080p", "h264", "mkv")
	require.Equal(t, "/media/movies/Inception (2010) [tmdb-27205] [1080p h264].mkv", got)
}

func TestMoviePathSanitizesIllegalCharacters(t *testing.T) {
	got := MoviePath("/media/movies", `Ocean's 8: Heist`, 2018, "1", "1080p", "h264", "mkv")
	require.NotContains(t, got, ":")
}

func TestEpisodePath(t *testing.T) {
	got := EpisodePath("/media/tv", "Breaking Bad", 2008, 1, 3, "...And the Bag's in the River", "1080p", "h264", "mkv")
	require.Equal(t, "/media/tv/Breaking Bad (2008)/Season 01/Breaking Bad - S01E03 - ...And the Bag's in the River [1080p h264].mkv", got)
}
