package cache

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/artwork"
	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
)

// Recorder indexes every cover the resolver produces.
type Recorder struct {
	dao *DAO
	now func() time.Time
}

var _ cover.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder writing through dao.
func NewRecorder(dao *DAO) *Recorder {
	return &Recorder{dao: dao, now: time.Now}
}

// RecordCover reads the cover file and upserts its metadata. Covers that only
// exist in memory are not indexed.
func (r *Recorder) RecordCover(song cover.Song, c *cover.Cover) error {
	if c == nil || c.Path == "" {
		return nil
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("read cover: %w", err)
	}

	entry := &CachedCover{
		Path:      c.Path,
		Source:    string(c.Source),
		Artist:    song.Artist,
		Album:     song.Album,
		MBID:      song.MBID,
		MimeType:  c.MimeType,
		FileSize:  int64(len(data)),
		Checksum:  artwork.Checksum(data),
		FetchedAt: r.now(),
	}
	if entry.MimeType == "" {
		entry.MimeType = artwork.DetectMimeType(data)
	}
	if w, h, err := artwork.Dimensions(data); err == nil {
		entry.Width, entry.Height = w, h
	} else {
		log.Debug().Err(err).Str("path", c.Path).Msg("Could not read cover dimensions")
	}

	return r.dao.UpsertCover(entry)
}
