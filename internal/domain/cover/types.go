// Package cover resolves album covers for the song that is currently playing.
//
// A resolution walks a priority-ordered list of sources. Each source first
// checks its local cache and, on a miss, performs one remote fetch. The first
// source that produces a cover wins; failures move on to the next candidate.
package cover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Error taxonomy for a single source attempt.
var (
	// ErrNotApplicable means the source lacks the metadata it needs (no MBID,
	// no artist/album). It is never reported to the user.
	ErrNotApplicable = errors.New("source not applicable")

	// ErrTransport is a connectivity failure (DNS, refused, timeout, offline).
	// It never poisons the negative-result record.
	ErrTransport = errors.New("transport failure")

	// ErrRemoteRejected is a non-success HTTP status or an empty/invalid result.
	ErrRemoteRejected = errors.New("remote rejected")

	// ErrParse is a malformed response. It is treated as a rejection.
	ErrParse = fmt.Errorf("%w: malformed response", ErrRemoteRejected)

	// ErrWrite is a local persistence failure (disk full, permissions).
	ErrWrite = errors.New("cache write failure")

	// ErrSuppressed is returned when a query failed recently and is still
	// inside its cool-down window. No network request was made.
	ErrSuppressed = errors.New("suppressed by negative-result record")

	// ErrExhausted is the only error a session reports: no source succeeded.
	ErrExhausted = errors.New("no cover found")

	// ErrCancelled is returned by Resolve when the session was superseded.
	ErrCancelled = errors.New("resolution cancelled")
)

// Poisons reports whether a failure should be remembered in the
// negative-result record.
func Poisons(err error) bool {
	return errors.Is(err, ErrRemoteRejected)
}

// Kind tags a source variant.
type Kind string

const (
	KindEmbedded    Kind = "embedded"
	KindMusicBrainz Kind = "musicbrainz"
	KindLastFM      Kind = "lastfm"
	KindLocal       Kind = "local"
)

// Song is the read-only view of the track being resolved.
type Song struct {
	Artist     string
	Album      string
	Path       string
	MBID       string // MusicBrainz album id, optional
	HasPicture bool   // song carries an embedded picture
}

// Empty reports whether the song has no usable identity at all.
func (s Song) Empty() bool {
	return s.Artist == "" && s.Album == "" && s.MBID == "" && s.Path == ""
}

// Cover is a resolved album cover.
type Cover struct {
	Source   Kind
	Path     string // cache or local file; empty for in-memory covers
	Data     []byte // set when the source produced the image in memory
	MimeType string
}

// Query is one remote lookup. URL doubles as the negative-record identity.
type Query struct {
	URL string
	// Backoff marks queries whose rejections are remembered for the
	// cool-down window.
	Backoff bool
}

// Response is a raw HTTP response as returned by a Fetcher.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is in the retrievable [200,400) range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 400
}

// Location is what a source extracts from a remote response: either the
// image itself or a secondary URL that must be fetched.
type Location struct {
	URL  string
	Data []byte
}

// Source is one origin of album covers.
type Source interface {
	Kind() Kind
	Priority() float64
	// CachePath returns the on-disk cache entry for the song, if the source
	// keeps one.
	CachePath(song Song) (string, bool)
	// CheckLocal returns a cover without touching the network. A nil cover
	// with a nil error is a miss.
	CheckLocal(ctx context.Context, song Song) (*Cover, error)
	// BuildQuery returns ErrNotApplicable when the song lacks the metadata
	// the source needs.
	BuildQuery(song Song) (*Query, error)
	ParseResponse(resp *Response) (*Location, error)
}

// Fetcher performs HTTP GETs. Transport failures are errors; any HTTP status
// is a response.
type Fetcher interface {
	// Get buffers the whole body.
	Get(ctx context.Context, url string) (*Response, error)
	// Open hands the body over as a stream. The caller closes it.
	Open(ctx context.Context, url string) (status int, body io.ReadCloser, err error)
}

// Outcome is the final result of a session, delivered to the display.
type Outcome struct {
	SessionID string
	Song      Song
	Cover     *Cover
	Err       error
	Elapsed   time.Duration
}

// Recorder persists metadata about covers written to the cache.
type Recorder interface {
	RecordCover(song Song, c *Cover) error
}

// Observer receives per-attempt and per-session events.
type Observer interface {
	ObserveAttempt(kind Kind, err error, elapsed time.Duration)
	ObserveOutcome(o Outcome)
}
