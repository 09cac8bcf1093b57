// Package delivery builds the destination file paths for the Deliver step
// (§4.6); the transfer itself goes through collaborators.Delivery.
package delivery

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var nonFilenameSafe = regexp.MustCompile(`[<>:"/\\|?*]`)

func sanitize(s string) string {
	return strings.TrimSpace(nonFilenameSafe.ReplaceAllString(s, ""))
}

// MoviePath builds the destination path for a movie delivery:
// <moviesRoot>/<Title> (<Year>) [tmdb-<id>] [<res> <codec>].<ext>
func MoviePath(moviesRoot, title string, year int, tmdbID, resolution, codec, ext string) string {
	name := fmt.Sprintf("%s (%d) [tmdb-%s] [%s %s].%s",
		sanitize(title), year, tmdbID, resolution, codec, strings.TrimPrefix(ext, "."))
	return path.Join(moviesRoot, name)
}

// EpisodePath builds the destination path for a TV episode delivery:
// <tvRoot>/<Series> (<Year>)/Season <SS>/<Series> - S<SS>E<EE> - <EpTitle> [<res> <codec>].<ext>
func EpisodePath(tvRoot, series string, year, season, episode int, epTitle, resolution, codec, ext string) string {
	seriesDir := fmt.Sprintf("%s (%d)", sanitize(series), year)
	seasonDir := fmt.Sprintf("Season %02d", season)
	name := fmt.Sprintf("%s - S%02dE%02d - %s [%s %s].%s",
		sanitize(series), season, episode, sanitize(epTitle), resolution, codec, strings.TrimPrefix(ext, "."))
	return path.Join(tvRoot, seriesDir, seasonDir, name)
}
