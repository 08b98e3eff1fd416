// Package tags reads songs and embedded pictures straight from audio files.
// It is the host used when resolving covers for files on the command line.
package tags

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/artwork"
	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
)

// ErrNoTags is returned for files dhowden/tag cannot identify.
var ErrNoTags = errors.New("no readable tags")

// albumIDKeys are the raw keys under which taggers store the MusicBrainz
// release id (Vorbis comments, MP4 freeform atoms).
var albumIDKeys = []string{
	"musicbrainz_albumid",
	"musicbrainz album id",
}

// FileHost implements the host capabilities on top of the filesystem.
type FileHost struct {
	finder *artwork.FilesystemFinder
}

var (
	_ cover.PictureReader = (*FileHost)(nil)
	_ cover.CoverFinder   = (*FileHost)(nil)
)

// NewFileHost creates a file host. finder may be nil to disable folder art.
func NewFileHost(finder *artwork.FilesystemFinder) *FileHost {
	return &FileHost{finder: finder}
}

// ReadSong reads the tags of an audio file. Files without tags still yield
// a song so that folder art can be found for them.
func ReadSong(path string) (*cover.Song, error) {
	m, err := readMetadata(path)
	if err != nil {
		if errors.Is(err, ErrNoTags) {
			log.Debug().Str("path", path).Msg("File has no readable tags")
			return &cover.Song{Path: path}, nil
		}
		return nil, err
	}

	artist := strings.TrimSpace(m.AlbumArtist())
	if artist == "" {
		artist = strings.TrimSpace(m.Artist())
	}

	return &cover.Song{
		Artist:     artist,
		Album:      strings.TrimSpace(m.Album()),
		Path:       path,
		MBID:       albumID(m.Raw()),
		HasPicture: m.Picture() != nil && len(m.Picture().Data) > 0,
	}, nil
}

func readMetadata(path string) (tag.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return nil, ErrNoTags
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNoTags, filepath.Base(path), err)
	}
	return m, nil
}

// albumID looks the MusicBrainz release id up in the raw tag map.
func albumID(raw map[string]interface{}) string {
	for key, value := range raw {
		switch v := value.(type) {
		case *tag.Comm:
			// ID3v2 TXXX frames carry the name in the description.
			if strings.EqualFold(v.Description, "MusicBrainz Album Id") {
				return strings.TrimSpace(v.Text)
			}
		case string:
			if isAlbumIDKey(key) {
				return strings.TrimSpace(v)
			}
		case []byte:
			if isAlbumIDKey(key) {
				return strings.TrimSpace(string(v))
			}
		}
	}
	return ""
}

func isAlbumIDKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range albumIDKeys {
		if key == k || strings.HasSuffix(key, ":"+k) {
			return true
		}
	}
	return false
}

// ReadPicture returns the picture embedded in the song file.
func (h *FileHost) ReadPicture(ctx context.Context, song cover.Song) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := readMetadata(song.Path)
	if err != nil {
		return nil, err
	}
	if pic := m.Picture(); pic != nil {
		return pic.Data, nil
	}
	return nil, nil
}

// FindCover looks for folder art next to the song.
func (h *FileHost) FindCover(ctx context.Context, song cover.Song) (*cover.Cover, error) {
	if h.finder == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := h.finder.FindArtwork(song.Path, song.Album)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, nil
	}
	return &cover.Cover{Source: cover.KindLocal, Path: path}, nil
}
