package enrichment

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/artwork"
	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
)

const (
	// DefaultCAABaseURL is the Cover Art Archive API base URL
	DefaultCAABaseURL = "http://coverartarchive.org"

	// PriorityMusicBrainz ranks the archive high: an MBID is precise.
	PriorityMusicBrainz = 0.9
)

// CAASource fetches the front cover of a release from the Cover Art Archive.
// The cache entry is named after the MusicBrainz album id.
type CAASource struct {
	baseURL  string
	cacheDir string
	priority float64
}

var _ cover.Source = (*CAASource)(nil)

// CAAOption is a functional option for configuring the CAA source
type CAAOption func(*CAASource)

// WithBaseURL sets a custom base URL (useful for testing)
func WithBaseURL(u string) CAAOption {
	return func(s *CAASource) {
		if u != "" {
			s.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithCAAPriority overrides the default priority.
func WithCAAPriority(p float64) CAAOption {
	return func(s *CAASource) {
		s.priority = p
	}
}

// NewCAASource creates a Cover Art Archive source caching into cacheDir.
func NewCAASource(cacheDir string, opts ...CAAOption) *CAASource {
	s := &CAASource{
		baseURL:  DefaultCAABaseURL,
		cacheDir: cacheDir,
		priority: PriorityMusicBrainz,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CAASource) Kind() cover.Kind { return cover.KindMusicBrainz }

func (s *CAASource) Priority() float64 { return s.priority }

// CachePath is <cache>/<mbid>.
func (s *CAASource) CachePath(song cover.Song) (string, bool) {
	return cover.KeyPath(s.cacheDir, song.MBID)
}

// CheckLocal returns the cached cover for the song's MBID.
func (s *CAASource) CheckLocal(_ context.Context, song cover.Song) (*cover.Cover, error) {
	path, ok := s.CachePath(song)
	if !ok {
		return nil, nil
	}
	return cover.CachedCover(cover.KindMusicBrainz, path), nil
}

// BuildQuery builds /release/{mbid}/front. Rejections are not remembered: the
// archive answers 404 until someone uploads art, and that is cheap to ask.
func (s *CAASource) BuildQuery(song cover.Song) (*cover.Query, error) {
	if !cover.ValidKey(song.MBID) {
		return nil, cover.ErrNotApplicable
	}
	return &cover.Query{
		URL:     fmt.Sprintf("%s/release/%s/front", s.baseURL, url.PathEscape(song.MBID)),
		Backoff: false,
	}, nil
}

// ParseResponse accepts any status in [200,400); the body is the image.
func (s *CAASource) ParseResponse(resp *cover.Response) (*cover.Location, error) {
	if !resp.OK() {
		return nil, fmt.Errorf("%w: cover art archive status %d", cover.ErrRemoteRejected, resp.Status)
	}
	if len(resp.Body) == 0 {
		return nil, fmt.Errorf("%w: empty image", cover.ErrRemoteRejected)
	}
	if !isImage(resp) {
		return nil, fmt.Errorf("%w: body is not an image", cover.ErrParse)
	}
	return &cover.Location{Data: resp.Body}, nil
}

func isImage(resp *cover.Response) bool {
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		return true
	}
	return artwork.DetectMimeType(resp.Body) != "application/octet-stream"
}
