package cover

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Resolver is the capability a host is constructed with. It owns the
// process-wide negative-result record and the current session.
//
// Resolution order is the registry order: each source checks its local cache
// and then fetches remotely before the next source is considered.
type Resolver struct {
	registry   *Registry
	fetcher    Fetcher
	writer     *Writer
	negative   *NegativeCache
	recorder   Recorder
	observer   Observer
	onResult   func(Outcome)
	localFirst bool

	// emitMu serialises delivering an outcome against superseding a
	// session, so a cancelled session can never reach onResult.
	emitMu  sync.Mutex
	mu      sync.Mutex
	current *Session
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithNegativeCache shares an existing negative-result record.
func WithNegativeCache(n *NegativeCache) Option {
	return func(r *Resolver) {
		r.negative = n
	}
}

// WithRecorder stores metadata of every cover that was resolved.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) {
		r.recorder = rec
	}
}

// WithObserver reports attempts and outcomes, e.g. to metrics.
func WithObserver(o Observer) Option {
	return func(r *Resolver) {
		r.observer = o
	}
}

// WithResultHandler sets the callback that receives outcomes of sessions
// started by OnSongStarted. The handler must not call OnSongStarted
// synchronously.
func WithResultHandler(fn func(Outcome)) Option {
	return func(r *Resolver) {
		r.onResult = fn
	}
}

// WithLocalFirst checks every source's local cache before the first remote
// fetch.
func WithLocalFirst(enabled bool) Option {
	return func(r *Resolver) {
		r.localFirst = enabled
	}
}

// NewResolver creates a resolver over the registry's sources.
func NewResolver(registry *Registry, fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry,
		fetcher:  fetcher,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.negative == nil {
		r.negative = NewNegativeCache(DefaultCoolDown)
	}
	r.writer = NewWriter(fetcher, r.negative)
	return r
}

// NegativeCache returns the shared negative-result record.
func (r *Resolver) NegativeCache() *NegativeCache {
	return r.negative
}

// Registry returns the source registry.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Current returns the session that is still allowed to report, if any.
func (r *Resolver) Current() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// OnSongStarted supersedes the running session and starts resolving song.
// A nil song is a no-op.
func (r *Resolver) OnSongStarted(song *Song) *Session {
	if song == nil {
		return nil
	}

	s := r.newSession(context.Background(), *song, r.deliver)

	r.emitMu.Lock()
	r.mu.Lock()
	prev := r.current
	r.current = s
	r.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
	r.emitMu.Unlock()

	s.Start()
	return s
}

// Resolve runs a session to completion and returns its cover. It does not
// touch the current session and does not call the result handler.
func (r *Resolver) Resolve(ctx context.Context, song Song) (*Cover, error) {
	s := r.newSession(ctx, song, func(s *Session, o Outcome) {
		r.record(o)
	})
	s.Start()

	select {
	case <-s.Done():
	case <-ctx.Done():
		s.Cancel()
		s.Wait()
	}

	o, ok := s.Outcome()
	if !ok || s.Cancelled() || ctx.Err() != nil {
		return nil, ErrCancelled
	}
	if r.observer != nil {
		r.observer.ObserveOutcome(o)
	}
	return o.Cover, o.Err
}

// Disable cancels the running session and clears the negative-result record.
func (r *Resolver) Disable() {
	r.emitMu.Lock()
	r.mu.Lock()
	prev := r.current
	r.current = nil
	r.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
	r.emitMu.Unlock()

	r.negative.Clear()
	log.Info().Msg("Cover resolver disabled")
}

func (r *Resolver) newSession(ctx context.Context, song Song, done func(*Session, Outcome)) *Session {
	return newSession(ctx, song, r.registry.Sources(), sessionDeps{
		fetcher:    r.fetcher,
		writer:     r.writer,
		negative:   r.negative,
		observer:   r.observer,
		localFirst: r.localFirst,
		done:       done,
	})
}

// deliver hands the outcome of a current session to the result handler.
func (r *Resolver) deliver(s *Session, o Outcome) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	if s.Cancelled() {
		return
	}

	r.mu.Lock()
	if r.current == s {
		r.current = nil
	}
	r.mu.Unlock()

	r.record(o)
	if r.observer != nil {
		r.observer.ObserveOutcome(o)
	}

	if o.Err != nil {
		log.Info().
			Str("session", o.SessionID).
			Str("artist", o.Song.Artist).
			Str("album", o.Song.Album).
			Dur("elapsed", o.Elapsed).
			Msg("No cover found")
	} else {
		log.Info().
			Str("session", o.SessionID).
			Str("album", o.Song.Album).
			Str("source", string(o.Cover.Source)).
			Str("path", o.Cover.Path).
			Dur("elapsed", o.Elapsed).
			Msg("Cover resolved")
	}

	if r.onResult != nil {
		r.onResult(o)
	}
}

func (r *Resolver) record(o Outcome) {
	if r.recorder == nil || o.Err != nil || o.Cover == nil || o.Cover.Path == "" {
		return
	}
	if err := r.recorder.RecordCover(o.Song, o.Cover); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Str("path", o.Cover.Path).Msg("Failed to record cover metadata")
	}
}
