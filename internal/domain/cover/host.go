package cover

import (
	"context"
	"fmt"
)

// Default priorities of the built-in variants.
const (
	PriorityEmbeddedPreferred = 1.0
	PriorityEmbedded          = 0.5
	PriorityLocal             = 0.0
)

// PictureReader returns the picture embedded in a song's tags.
type PictureReader interface {
	ReadPicture(ctx context.Context, song Song) ([]byte, error)
}

// CoverFinder is the host's own cover lookup (folder art next to the song,
// host cache). It returns nil when nothing is found.
type CoverFinder interface {
	FindCover(ctx context.Context, song Song) (*Cover, error)
}

// hostSource carries what the host-backed variants have in common: no cache
// of their own and no remote step.
type hostSource struct {
	priority float64
}

func (h hostSource) Priority() float64 { return h.priority }

func (hostSource) CachePath(Song) (string, bool) { return "", false }

func (hostSource) BuildQuery(Song) (*Query, error) { return nil, ErrNotApplicable }

func (hostSource) ParseResponse(*Response) (*Location, error) { return nil, ErrNotApplicable }

// EmbeddedSource serves the picture embedded in the song file.
type EmbeddedSource struct {
	hostSource
	reader PictureReader
}

// NewEmbeddedSource creates the embedded-picture source. preferred ranks it
// above every remote source.
func NewEmbeddedSource(reader PictureReader, preferred bool) *EmbeddedSource {
	priority := PriorityEmbedded
	if preferred {
		priority = PriorityEmbeddedPreferred
	}
	return &EmbeddedSource{hostSource: hostSource{priority: priority}, reader: reader}
}

func (*EmbeddedSource) Kind() Kind { return KindEmbedded }

// CheckLocal reads the embedded picture when the song advertises one.
func (e *EmbeddedSource) CheckLocal(ctx context.Context, song Song) (*Cover, error) {
	if e.reader == nil || !song.HasPicture || song.Path == "" {
		return nil, nil
	}
	data, err := e.reader.ReadPicture(ctx, song)
	if err != nil {
		return nil, fmt.Errorf("read embedded picture: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &Cover{Source: KindEmbedded, Data: data}, nil
}

// LocalSource delegates to the host's cover lookup. It is the last resort.
type LocalSource struct {
	hostSource
	finder CoverFinder
}

// NewLocalSource creates the fallback source.
func NewLocalSource(finder CoverFinder) *LocalSource {
	return &LocalSource{hostSource: hostSource{priority: PriorityLocal}, finder: finder}
}

func (*LocalSource) Kind() Kind { return KindLocal }

// CheckLocal asks the host for a cover.
func (l *LocalSource) CheckLocal(ctx context.Context, song Song) (*Cover, error) {
	if l.finder == nil || song.Path == "" {
		return nil, nil
	}
	c, err := l.finder.FindCover(ctx, song)
	if err != nil {
		return nil, fmt.Errorf("host cover lookup: %w", err)
	}
	if c == nil || (c.Path == "" && len(c.Data) == 0) {
		return nil, nil
	}
	c.Source = KindLocal
	return c, nil
}
