package cover

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatSource caches under <dir>/flat.
type flatSource struct {
	stubSource
	dir string
}

func (s flatSource) CachePath(Song) (string, bool) { return filepath.Join(s.dir, "flat"), true }

func (s flatSource) CheckLocal(_ context.Context, song Song) (*Cover, error) {
	path, _ := s.CachePath(song)
	return CachedCover(s.kind, path), nil
}

func TestSongDirSource_NamedPath(t *testing.T) {
	src := PreferSongDir(stub(KindLastFM, 0.3), "/srv/music")

	tests := []struct {
		name string
		song Song
		want string
		ok   bool
	}{
		{"relative", Song{Album: "Abbey Road", Path: "beatles/01.flac"}, "/srv/music/beatles/Abbey Road", true},
		{"absolute", Song{Album: "Help", Path: "/mnt/usb/help/01.flac"}, "/mnt/usb/help/Help", true},
		{"stream", Song{Album: "Live", Path: "http://radio.example/stream"}, "", false},
		{"no path", Song{Album: "Help"}, "", false},
		{"no album", Song{Path: "beatles/01.flac"}, "", false},
		{"album with separator", Song{Album: "AC/DC Live", Path: "acdc/01.flac"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := src.NamedPath(tt.song)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}

	_, ok := PreferSongDir(stub(KindLastFM, 0.3), "").NamedPath(Song{Album: "Help", Path: "help/01.flac"})
	assert.False(t, ok, "relative path needs a music directory")
}

func TestSongDirSource_CheckLocal(t *testing.T) {
	musicDir := t.TempDir()
	cacheDir := t.TempDir()
	src := PreferSongDir(flatSource{stubSource: stubSource{kind: KindLastFM}, dir: cacheDir}, musicDir)
	song := Song{Album: "Help", Path: "01.flac"}

	c, err := src.CheckLocal(context.Background(), song)
	require.NoError(t, err)
	assert.Nil(t, c)

	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "flat"), imageBytes, 0644))
	c, err = src.CheckLocal(context.Background(), song)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, filepath.Join(cacheDir, "flat"), c.Path, "wrapped cache still served")

	require.NoError(t, os.WriteFile(filepath.Join(musicDir, "Help.png"), imageBytes, 0644))
	c, err = src.CheckLocal(context.Background(), song)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, filepath.Join(musicDir, "Help.png"), c.Path)
	assert.Equal(t, KindLastFM, c.Source)
}
