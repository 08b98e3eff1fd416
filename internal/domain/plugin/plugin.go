// Package plugin ties the cover resolver to a music player: it follows the
// player's current song and hands resolved covers to a display.
package plugin

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
)

// SongSource returns the song the player is on, or nil when it is stopped.
type SongSource interface {
	CurrentSong(ctx context.Context) (*cover.Song, error)
}

// Display receives the outcome of every resolution that was not superseded.
type Display interface {
	ShowCover(o cover.Outcome)
}

// Plugin owns the resolver and decides when a resolution starts.
type Plugin struct {
	resolver *cover.Resolver
	songs    SongSource
	display  Display
	debounce time.Duration

	resolverOpts []cover.Option

	enabled atomic.Bool

	// mu orders song changes; lastPath is the song of the latest resolution.
	mu       sync.Mutex
	lastPath string
}

// PluginOption configures a Plugin.
type PluginOption func(*Plugin)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) PluginOption {
	return func(p *Plugin) {
		p.debounce = d
	}
}

// WithResolverOptions passes options through to the resolver.
func WithResolverOptions(opts ...cover.Option) PluginOption {
	return func(p *Plugin) {
		p.resolverOpts = append(p.resolverOpts, opts...)
	}
}

// New builds the resolver over registry and fetcher and delivers its
// outcomes to display. The plugin starts disabled.
func New(registry *cover.Registry, fetcher cover.Fetcher, songs SongSource, display Display, opts ...PluginOption) *Plugin {
	p := &Plugin{
		songs:    songs,
		display:  display,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(p)
	}

	resolverOpts := append(p.resolverOpts, cover.WithResultHandler(p.deliver))
	p.resolver = cover.NewResolver(registry, fetcher, resolverOpts...)
	p.resolverOpts = nil
	return p
}

// Resolver returns the underlying resolver.
func (p *Plugin) Resolver() *cover.Resolver {
	return p.resolver
}

// Enabled reports whether the plugin follows the player.
func (p *Plugin) Enabled() bool {
	return p.enabled.Load()
}

// Enable starts following the player and resolves the current song right
// away.
func (p *Plugin) Enable(ctx context.Context) error {
	p.mu.Lock()
	p.lastPath = ""
	p.mu.Unlock()
	p.enabled.Store(true)

	log.Info().Strs("sources", kindNames(p.resolver.Registry().Kinds())).Msg("Cover plugin enabled")
	return p.checkSong(ctx)
}

// Disable stops following the player, cancels the running resolution and
// forgets recent remote failures.
func (p *Plugin) Disable() {
	p.enabled.Store(false)
	p.mu.Lock()
	p.lastPath = ""
	p.mu.Unlock()

	p.resolver.Disable()
}

// OnSongStarted resolves song unless the plugin is disabled.
func (p *Plugin) OnSongStarted(song *cover.Song) *cover.Session {
	if song == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.Enabled() {
		return nil
	}
	p.lastPath = song.Path
	return p.resolver.OnSongStarted(song)
}

// Watch consumes MPD subsystem events until ctx is done or events is
// closed. After each burst of player events the current song is read, and a
// resolution starts only when the song changed.
func (p *Plugin) Watch(ctx context.Context, events <-chan string) {
	d := NewDebouncer(p.debounce, func() {
		if err := p.checkSong(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("Failed to read current song")
		}
	})
	defer d.Stop()

	log.Info().Msg("Cover watcher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Cover watcher stopped")
			return
		case subsystem, ok := <-events:
			if !ok {
				log.Warn().Msg("MPD event channel closed")
				return
			}
			log.Debug().Str("subsystem", subsystem).Msg("MPD subsystem changed")
			d.Trigger(subsystem)
		}
	}
}

// checkSong starts a resolution when the player moved to another song.
func (p *Plugin) checkSong(ctx context.Context) error {
	if !p.Enabled() || p.songs == nil {
		return nil
	}

	song, err := p.songs.CurrentSong(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.Enabled() {
		return nil
	}
	if song == nil {
		p.lastPath = ""
		return nil
	}
	if song.Path == p.lastPath {
		return nil
	}

	log.Debug().Str("path", song.Path).Str("album", song.Album).Msg("Song changed")
	p.lastPath = song.Path
	p.resolver.OnSongStarted(song)
	return nil
}

func (p *Plugin) deliver(o cover.Outcome) {
	if !p.Enabled() || p.display == nil {
		return
	}
	p.display.ShowCover(o)
}

func kindNames(kinds []cover.Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}
