package cover

import (
	"context"
	"path/filepath"
	"strings"
)

// songDirExtensions are the file types a song-directory cover is stored as.
var songDirExtensions = []string{".jpg", ".png", ".gif", ".webp"}

// NamedCache is implemented by sources whose cache entry is named after the
// image format. NamedPath returns the entry without its extension; ok is
// false when the song has no such entry and CachePath applies.
type NamedCache interface {
	NamedPath(song Song) (base string, ok bool)
}

// SongDirSource stores the covers of a remote source next to the song as
// <album><ext>, the file name folder-art lookups try first. Songs without a
// local directory or with an album that is not a valid file name use the
// wrapped source's cache.
type SongDirSource struct {
	Source
	musicDir string
}

var (
	_ Source     = (*SongDirSource)(nil)
	_ NamedCache = (*SongDirSource)(nil)
)

// PreferSongDir wraps src. musicDir resolves relative song paths and may be
// empty when songs are addressed by absolute path.
func PreferSongDir(src Source, musicDir string) *SongDirSource {
	return &SongDirSource{Source: src, musicDir: musicDir}
}

// NamedPath is <song dir>/<album>.
func (s *SongDirSource) NamedPath(song Song) (string, bool) {
	if song.Path == "" || strings.Contains(song.Path, "://") || !ValidKey(song.Album) {
		return "", false
	}
	dir := filepath.Dir(song.Path)
	if !filepath.IsAbs(dir) {
		if s.musicDir == "" {
			return "", false
		}
		dir = filepath.Join(s.musicDir, dir)
	}
	return filepath.Join(dir, song.Album), true
}

// CheckLocal looks next to the song first, then in the wrapped cache.
func (s *SongDirSource) CheckLocal(ctx context.Context, song Song) (*Cover, error) {
	if base, ok := s.NamedPath(song); ok {
		for _, ext := range songDirExtensions {
			if c := CachedCover(s.Kind(), base+ext); c != nil {
				return c, nil
			}
		}
	}
	return s.Source.CheckLocal(ctx, song)
}
