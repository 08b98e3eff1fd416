package cover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/artwork"
)

// State is the position of a session in its state machine:
// Idle -> Trying(i) -> Success | Trying(i+1) | Exhausted, or Cancelled.
type State int

const (
	StateIdle State = iota
	StateTrying
	StateSuccess
	StateExhausted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTrying:
		return "trying"
	case StateSuccess:
		return "success"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// completion is posted by an attempt when its source has finished.
type completion struct {
	index   int
	cover   *Cover
	err     error
	elapsed time.Duration
}

// Session resolves the cover of one song. A single driver goroutine walks the
// candidate list; each attempt runs on its own goroutine and reports back on
// the events channel, one at a time.
type Session struct {
	id         string
	song       Song
	sources    []Source
	localFirst bool

	fetcher  Fetcher
	writer   *Writer
	negative *NegativeCache
	observer Observer

	// done receives the outcome unless the session was superseded.
	done func(s *Session, o Outcome)

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	events    chan completion
	finished  chan struct{}
	startOnce sync.Once

	mu      sync.Mutex
	state   State
	cursor  int
	outcome *Outcome
	started time.Time
}

func newSession(parent context.Context, song Song, sources []Source, deps sessionDeps) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:         uuid.NewString(),
		song:       song,
		sources:    sources,
		localFirst: deps.localFirst,
		fetcher:    deps.fetcher,
		writer:     deps.writer,
		negative:   deps.negative,
		observer:   deps.observer,
		done:       deps.done,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan completion, 1),
		finished:   make(chan struct{}),
	}
}

type sessionDeps struct {
	fetcher    Fetcher
	writer     *Writer
	negative   *NegativeCache
	observer   Observer
	localFirst bool
	done       func(s *Session, o Outcome)
}

// ID returns the session identifier used in logs and outcomes.
func (s *Session) ID() string { return s.id }

// Song returns the song being resolved.
func (s *Session) Song() Song { return s.song }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cursor returns the index of the candidate currently being tried.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Outcome returns the final outcome once the session has finished
// successfully or exhausted its candidates.
func (s *Session) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return Outcome{}, false
	}
	return *s.outcome, true
}

// Cancel marks the session as superseded. Safe to call more than once.
func (s *Session) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.cancel()
	log.Debug().Str("session", s.id).Str("album", s.song.Album).Msg("Cover session cancelled")
}

// Cancelled reports whether Cancel was called.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

// stopped also covers cancellation of the parent context.
func (s *Session) stopped() bool {
	return s.Cancelled() || s.ctx.Err() != nil
}

// Done is closed when the driver has exited.
func (s *Session) Done() <-chan struct{} {
	return s.finished
}

// Wait blocks until the driver has exited.
func (s *Session) Wait() {
	<-s.finished
}

// Start launches the driver. Subsequent calls do nothing.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.started = time.Now()
		go s.drive()
	})
}

func (s *Session) setState(state State, cursor int) {
	s.mu.Lock()
	s.state = state
	s.cursor = cursor
	s.mu.Unlock()
}

func (s *Session) drive() {
	defer close(s.finished)
	defer s.cancel()

	log.Debug().
		Str("session", s.id).
		Str("artist", s.song.Artist).
		Str("album", s.song.Album).
		Str("mbid", s.song.MBID).
		Int("candidates", len(s.sources)).
		Msg("Cover session started")

	if s.localFirst {
		if c := s.checkAllLocal(); c != nil && !s.stopped() {
			s.finish(c, nil)
			return
		}
	}

	var lastErr error
	for i := 0; i < len(s.sources); i++ {
		if s.stopped() {
			s.setState(StateCancelled, i)
			return
		}
		s.setState(StateTrying, i)
		go s.attempt(i)

		ev := <-s.events
		src := s.sources[ev.index]
		if s.observer != nil {
			s.observer.ObserveAttempt(src.Kind(), ev.err, ev.elapsed)
		}

		if s.stopped() {
			// Superseded while the fetch was in flight: drop whatever it returned.
			s.setState(StateCancelled, i)
			log.Debug().Str("session", s.id).Str("source", string(src.Kind())).Msg("Discarding result of superseded session")
			return
		}

		if ev.err == nil && ev.cover != nil {
			s.finish(ev.cover, nil)
			return
		}

		logAttemptFailure(s.id, src.Kind(), ev.err)
		if lastErr == nil || !errors.Is(ev.err, ErrNotApplicable) {
			lastErr = ev.err
		}
	}

	if lastErr == nil {
		lastErr = ErrNotApplicable
	}
	s.finish(nil, fmt.Errorf("%w: %w", ErrExhausted, lastErr))
}

func logAttemptFailure(id string, kind Kind, err error) {
	ev := log.Debug().Str("session", id).Str("source", string(kind))
	switch {
	case errors.Is(err, ErrNotApplicable):
		ev.Msg("Cover source not applicable")
	case errors.Is(err, ErrSuppressed):
		ev.Msg("Cover source suppressed by recent failure")
	default:
		ev.Err(err).Msg("Cover source failed")
	}
}

// attempt runs one source and posts its completion.
func (s *Session) attempt(i int) {
	start := time.Now()
	c, err := s.fetchCover(s.ctx, s.sources[i])
	if err == nil && c == nil {
		err = ErrNotApplicable
	}
	s.events <- completion{index: i, cover: c, err: err, elapsed: time.Since(start)}
}

func (s *Session) checkAllLocal() *Cover {
	for i, src := range s.sources {
		if s.stopped() {
			return nil
		}
		c, err := src.CheckLocal(s.ctx, s.song)
		if err != nil {
			log.Debug().Err(err).Str("session", s.id).Str("source", string(src.Kind())).Msg("Local cover check failed")
			continue
		}
		if c != nil {
			s.setState(StateTrying, i)
			return withMime(c)
		}
	}
	return nil
}

// fetchCover is the per-source step: local check, then one remote fetch.
func (s *Session) fetchCover(ctx context.Context, src Source) (*Cover, error) {
	if !s.localFirst {
		c, err := src.CheckLocal(ctx, s.song)
		if err != nil {
			log.Debug().Err(err).Str("session", s.id).Str("source", string(src.Kind())).Msg("Local cover check failed")
		}
		if c != nil {
			return withMime(c), nil
		}
	}

	q, err := src.BuildQuery(s.song)
	if err != nil {
		return nil, err
	}
	dest, ok := src.CachePath(s.song)
	named := false
	if nc, isNamed := src.(NamedCache); isNamed {
		if base, hasBase := nc.NamedPath(s.song); hasBase {
			dest, ok, named = base, true, true
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: no cache location", ErrNotApplicable)
	}
	if q.Backoff && s.negative != nil && s.negative.Suppressed(q.URL) {
		return nil, ErrSuppressed
	}

	resp, err := s.fetcher.Get(ctx, q.URL)
	if err != nil {
		if !Poisons(err) {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if q.Backoff && s.negative != nil {
			s.negative.Record(q.URL)
		}
		return nil, err
	}
	if resp.Status < 100 {
		return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.Status)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loc, err := src.ParseResponse(resp)
	if err != nil {
		if q.Backoff && Poisons(err) && s.negative != nil {
			s.negative.Record(q.URL)
		}
		return nil, err
	}

	// Nothing is written for a session that was superseded meanwhile.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := dest
	switch {
	case len(loc.Data) > 0 && named:
		path, err = s.writer.StoreNamed(dest, loc.Data)
	case len(loc.Data) > 0:
		err = s.writer.Store(dest, loc.Data)
	case loc.URL != "" && named:
		path, err = s.writer.PersistNamed(ctx, loc.URL, dest)
	case loc.URL != "":
		err = s.writer.Persist(ctx, loc.URL, dest)
	default:
		err = fmt.Errorf("%w: no image location", ErrParse)
	}
	if err != nil {
		return nil, err
	}

	return withMime(&Cover{Source: src.Kind(), Path: path}), nil
}

func withMime(c *Cover) *Cover {
	if c.MimeType != "" {
		return c
	}
	if len(c.Data) > 0 {
		c.MimeType = artwork.DetectMimeType(c.Data)
	} else if c.Path != "" {
		c.MimeType = artwork.DetectFileMimeType(c.Path)
	}
	return c
}

func (s *Session) finish(c *Cover, err error) {
	o := Outcome{
		SessionID: s.id,
		Song:      s.song,
		Cover:     c,
		Err:       err,
		Elapsed:   time.Since(s.started),
	}

	s.mu.Lock()
	if err == nil {
		s.state = StateSuccess
	} else {
		s.state = StateExhausted
	}
	s.outcome = &o
	s.mu.Unlock()

	if s.stopped() {
		return
	}
	if s.done != nil {
		s.done(s, o)
	}
}
