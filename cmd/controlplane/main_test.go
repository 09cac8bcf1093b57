package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/livepeer-forks/ingestctl/internal/dispatch"
	"github.com/stretchr/testify/require"
)

func TestLoadTemplatesReadsEveryYAMLFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.yaml"), []byte(`
id: movie-default
mediaKind: movie
isDefault: true
steps:
  - type: search
    name: search
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	templates, err := loadTemplates(dir)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	require.Contains(t, templates, "movie-default")
}

func TestLoadTemplatesMissingDirReturnsEmpty(t *testing.T) {
	templates, err := loadTemplates(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Empty(t, templates)
}

func TestLoadProfilesParsesYAMLMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
h264-1080p:
  id: h264-1080p
  name: H264 1080p
  videoEncoder: libx264
`), 0o644))

	profiles, err := loadProfiles(path)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	require.Equal(t, "h264-1080p", profiles["h264-1080p"].ID)
}

func TestLoadProfilesMissingFileReturnsEmpty(t *testing.T) {
	profiles, err := loadProfiles(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Empty(t, profiles)
}

func TestPathMappingsFromConvertsMapToSlice(t *testing.T) {
	mappings := pathMappingsFrom(map[string]string{"/data": "/remote/data"})
	require.Equal(t, []dispatch.PrefixMapping{{ServerPrefix: "/data", RemotePrefix: "/remote/data"}}, mappings)
}
