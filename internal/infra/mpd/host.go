package mpd

import (
	"context"
	"fmt"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
)

// MPD tag names read into a cover.Song.
const (
	attrFile        = "file"
	attrArtist      = "Artist"
	attrAlbumArtist = "AlbumArtist"
	attrAlbum       = "Album"
	attrAlbumID     = "MUSICBRAINZ_ALBUMID"
)

// Backend is the subset of Client the host needs.
type Backend interface {
	CurrentSong() (mpd.Attrs, error)
	ReadPicture(uri string) ([]byte, error)
	AlbumArt(uri string) ([]byte, error)
}

var _ Backend = (*Client)(nil)

// Host exposes MPD as the resolver's host: the current song, the picture
// embedded in it and the cover file MPD finds in the song's directory.
type Host struct {
	backend Backend
}

var (
	_ cover.PictureReader = (*Host)(nil)
	_ cover.CoverFinder   = (*Host)(nil)
)

// NewHost creates a host backed by an MPD connection.
func NewHost(backend Backend) *Host {
	return &Host{backend: backend}
}

// SongFromAttrs maps MPD song attributes to a cover.Song. The album artist
// is preferred since covers belong to albums. MPD cannot tell whether a song
// has an embedded picture without reading it, so HasPicture is always set.
func SongFromAttrs(attrs mpd.Attrs) *cover.Song {
	if len(attrs) == 0 || attrs[attrFile] == "" {
		return nil
	}

	artist := attrs[attrAlbumArtist]
	if artist == "" {
		artist = attrs[attrArtist]
	}

	return &cover.Song{
		Artist:     artist,
		Album:      attrs[attrAlbum],
		Path:       attrs[attrFile],
		MBID:       attrs[attrAlbumID],
		HasPicture: true,
	}
}

// CurrentSong returns the song MPD is playing, or nil when the queue is
// stopped.
func (h *Host) CurrentSong(ctx context.Context) (*cover.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	attrs, err := h.backend.CurrentSong()
	if err != nil {
		return nil, fmt.Errorf("current song: %w", err)
	}
	return SongFromAttrs(attrs), nil
}

// ReadPicture implements cover.PictureReader with the readpicture command.
func (h *Host) ReadPicture(ctx context.Context, song cover.Song) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.backend.ReadPicture(song.Path)
}

// FindCover implements cover.CoverFinder with the albumart command, which
// serves cover files from the song's directory.
func (h *Host) FindCover(ctx context.Context, song cover.Song) (*cover.Cover, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := h.backend.AlbumArt(song.Path)
	if err != nil {
		log.Debug().Err(err).Str("uri", song.Path).Msg("MPD has no album art")
		return nil, nil
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &cover.Cover{Source: cover.KindLocal, Data: data}, nil
}
