package plugin

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
)

// memSource serves covers from memory, keyed by song path.
type memSource struct {
	covers map[string][]byte
	gate   chan struct{}
	calls  atomic.Int32
}

func (m *memSource) Kind() cover.Kind { return cover.KindEmbedded }
func (m *memSource) Priority() float64 { return 1 }
func (m *memSource) CachePath(cover.Song) (string, bool) { return "", false }
func (m *memSource) BuildQuery(cover.Song) (*cover.Query, error) {
	return nil, cover.ErrNotApplicable
}
func (m *memSource) ParseResponse(*cover.Response) (*cover.Location, error) {
	return nil, cover.ErrNotApplicable
}

func (m *memSource) CheckLocal(ctx context.Context, song cover.Song) (*cover.Cover, error) {
	m.calls.Add(1)
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	data := m.covers[song.Path]
	if data == nil {
		return nil, nil
	}
	return &cover.Cover{Source: cover.KindEmbedded, Data: data}, nil
}

type offlineFetcher struct{}

func (offlineFetcher) Get(context.Context, string) (*cover.Response, error) {
	return nil, errors.New("offline")
}

func (offlineFetcher) Open(context.Context, string) (int, io.ReadCloser, error) {
	return 0, nil, errors.New("offline")
}

// player is a SongSource whose current song can be changed by the test.
type player struct {
	mu    sync.Mutex
	song  *cover.Song
	err   error
	reads int
}

func (p *player) CurrentSong(ctx context.Context) (*cover.Song, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if p.err != nil {
		return nil, p.err
	}
	if p.song == nil {
		return nil, nil
	}
	s := *p.song
	return &s, nil
}

func (p *player) play(song *cover.Song) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.song = song
}

func (p *player) readCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

type chanDisplay struct {
	ch chan cover.Outcome
}

func newChanDisplay() *chanDisplay {
	return &chanDisplay{ch: make(chan cover.Outcome, 16)}
}

func (d *chanDisplay) ShowCover(o cover.Outcome) {
	d.ch <- o
}

func (d *chanDisplay) next(t *testing.T) cover.Outcome {
	t.Helper()
	select {
	case o := <-d.ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a cover")
	}
	return cover.Outcome{}
}

func (d *chanDisplay) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case o := <-d.ch:
		t.Fatalf("unexpected outcome for %q", o.Song.Path)
	case <-time.After(wait):
	}
}

var (
	songA = &cover.Song{Artist: "Artist", Album: "A", Path: "a/01.flac", HasPicture: true}
	songB = &cover.Song{Artist: "Artist", Album: "B", Path: "b/01.flac", HasPicture: true}
)

func newTestPlugin(src *memSource, songs SongSource, display Display) *Plugin {
	return New(cover.NewRegistry(src), offlineFetcher{}, songs, display, WithDebounce(10*time.Millisecond))
}

func TestEnableResolvesCurrentSong(t *testing.T) {
	src := &memSource{covers: map[string][]byte{songA.Path: []byte("cover-a")}}
	display := newChanDisplay()
	p := newTestPlugin(src, &player{song: songA}, display)

	require.NoError(t, p.Enable(context.Background()))

	o := display.next(t)
	require.NoError(t, o.Err)
	assert.Equal(t, songA.Path, o.Song.Path)
	assert.Equal(t, []byte("cover-a"), o.Cover.Data)
}

func TestEnableWithStoppedPlayer(t *testing.T) {
	src := &memSource{}
	display := newChanDisplay()
	p := newTestPlugin(src, &player{}, display)

	require.NoError(t, p.Enable(context.Background()))

	display.none(t, 50*time.Millisecond)
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestEnableReportsSongSourceError(t *testing.T) {
	p := newTestPlugin(&memSource{}, &player{err: errors.New("connection refused")}, newChanDisplay())

	assert.Error(t, p.Enable(context.Background()))
	assert.True(t, p.Enabled())
}

func TestSameSongIsResolvedOnce(t *testing.T) {
	src := &memSource{covers: map[string][]byte{songA.Path: []byte("cover-a")}}
	display := newChanDisplay()
	songs := &player{song: songA}
	p := newTestPlugin(src, songs, display)

	require.NoError(t, p.Enable(context.Background()))
	display.next(t)

	require.NoError(t, p.checkSong(context.Background()))
	require.NoError(t, p.checkSong(context.Background()))

	display.none(t, 50*time.Millisecond)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestSongChangeStartsResolution(t *testing.T) {
	src := &memSource{covers: map[string][]byte{
		songA.Path: []byte("cover-a"),
		songB.Path: []byte("cover-b"),
	}}
	display := newChanDisplay()
	songs := &player{song: songA}
	p := newTestPlugin(src, songs, display)

	require.NoError(t, p.Enable(context.Background()))
	assert.Equal(t, songA.Path, display.next(t).Song.Path)

	songs.play(songB)
	require.NoError(t, p.checkSong(context.Background()))

	o := display.next(t)
	assert.Equal(t, songB.Path, o.Song.Path)
	assert.Equal(t, []byte("cover-b"), o.Cover.Data)
}

func TestReplayAfterStopResolvesAgain(t *testing.T) {
	src := &memSource{covers: map[string][]byte{songA.Path: []byte("cover-a")}}
	display := newChanDisplay()
	songs := &player{song: songA}
	p := newTestPlugin(src, songs, display)

	require.NoError(t, p.Enable(context.Background()))
	display.next(t)

	songs.play(nil)
	require.NoError(t, p.checkSong(context.Background()))
	songs.play(songA)
	require.NoError(t, p.checkSong(context.Background()))

	assert.Equal(t, songA.Path, display.next(t).Song.Path)
}

func TestDisabledPluginIgnoresSongs(t *testing.T) {
	src := &memSource{covers: map[string][]byte{songA.Path: []byte("cover-a")}}
	display := newChanDisplay()
	p := newTestPlugin(src, &player{song: songA}, display)

	assert.Nil(t, p.OnSongStarted(songA))
	require.NoError(t, p.checkSong(context.Background()))

	display.none(t, 50*time.Millisecond)
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestOnSongStarted(t *testing.T) {
	src := &memSource{covers: map[string][]byte{songB.Path: []byte("cover-b")}}
	display := newChanDisplay()
	p := newTestPlugin(src, &player{}, display)
	require.NoError(t, p.Enable(context.Background()))

	assert.Nil(t, p.OnSongStarted(nil))

	s := p.OnSongStarted(songB)
	require.NotNil(t, s)
	s.Wait()

	assert.Equal(t, songB.Path, display.next(t).Song.Path)
}

func TestDisableDropsRunningResolution(t *testing.T) {
	src := &memSource{
		covers: map[string][]byte{songA.Path: []byte("cover-a")},
		gate:   make(chan struct{}),
	}
	display := newChanDisplay()
	p := newTestPlugin(src, &player{song: songA}, display)

	require.NoError(t, p.Enable(context.Background()))
	s := p.Resolver().Current()
	require.NotNil(t, s)

	p.Disable()
	close(src.gate)
	s.Wait()

	display.none(t, 50*time.Millisecond)
	assert.False(t, p.Enabled())
	assert.Equal(t, cover.StateCancelled, s.State())
}

func TestNoCoverIsStillDisplayed(t *testing.T) {
	display := newChanDisplay()
	p := newTestPlugin(&memSource{}, &player{song: songA}, display)

	require.NoError(t, p.Enable(context.Background()))

	o := display.next(t)
	assert.ErrorIs(t, o.Err, cover.ErrExhausted)
	assert.Nil(t, o.Cover)
}

func TestWatchDebouncesPlayerEvents(t *testing.T) {
	src := &memSource{covers: map[string][]byte{
		songA.Path: []byte("cover-a"),
		songB.Path: []byte("cover-b"),
	}}
	display := newChanDisplay()
	songs := &player{song: songA}
	p := newTestPlugin(src, songs, display)
	require.NoError(t, p.Enable(context.Background()))
	display.next(t)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan string)
	done := make(chan struct{})
	go func() {
		p.Watch(ctx, events)
		close(done)
	}()

	songs.play(songB)
	before := songs.readCount()
	for i := 0; i < 5; i++ {
		events <- "player"
	}

	assert.Equal(t, songB.Path, display.next(t).Song.Path)
	assert.Greater(t, songs.readCount(), before)
	display.none(t, 50*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchReturnsWhenEventsClose(t *testing.T) {
	p := newTestPlugin(&memSource{}, &player{}, newChanDisplay())

	events := make(chan string)
	done := make(chan struct{})
	go func() {
		p.Watch(context.Background(), events)
		close(done)
	}()

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after the channel closed")
	}
}
