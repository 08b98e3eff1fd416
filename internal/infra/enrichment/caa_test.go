package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
)

var jpegData = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func TestCAA_BuildQuery(t *testing.T) {
	src := NewCAASource(t.TempDir())

	q, err := src.BuildQuery(cover.Song{MBID: "test-mbid-1234"})
	require.NoError(t, err)
	assert.Equal(t, "http://coverartarchive.org/release/test-mbid-1234/front", q.URL)
	assert.False(t, q.Backoff)
}

func TestCAA_BuildQuery_NoMBID(t *testing.T) {
	src := NewCAASource(t.TempDir())

	_, err := src.BuildQuery(cover.Song{Artist: "Artist", Album: "Album"})
	assert.ErrorIs(t, err, cover.ErrNotApplicable)

	_, err = src.BuildQuery(cover.Song{MBID: "../escape"})
	assert.ErrorIs(t, err, cover.ErrNotApplicable)
}

func TestCAA_CachePath(t *testing.T) {
	dir := t.TempDir()
	src := NewCAASource(dir)

	path, ok := src.CachePath(cover.Song{MBID: "abc"})
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "abc"), path)

	_, ok = src.CachePath(cover.Song{})
	assert.False(t, ok)
}

func TestCAA_CheckLocal(t *testing.T) {
	dir := t.TempDir()
	src := NewCAASource(dir)
	song := cover.Song{MBID: "abc"}

	c, err := src.CheckLocal(context.Background(), song)
	require.NoError(t, err)
	assert.Nil(t, c, "miss before the file exists")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc"), jpegData, 0644))

	c, err = src.CheckLocal(context.Background(), song)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, cover.KindMusicBrainz, c.Source)
	assert.Equal(t, filepath.Join(dir, "abc"), c.Path)
}

func TestCAA_ParseResponse(t *testing.T) {
	src := NewCAASource(t.TempDir())

	t.Run("image", func(t *testing.T) {
		loc, err := src.ParseResponse(&cover.Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": {"image/jpeg"}},
			Body:   jpegData,
		})
		require.NoError(t, err)
		assert.Equal(t, jpegData, loc.Data)
	})

	t.Run("sniffed without content type", func(t *testing.T) {
		loc, err := src.ParseResponse(&cover.Response{Status: http.StatusOK, Body: jpegData})
		require.NoError(t, err)
		assert.Equal(t, jpegData, loc.Data)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := src.ParseResponse(&cover.Response{Status: http.StatusNotFound})
		assert.ErrorIs(t, err, cover.ErrRemoteRejected)
	})

	t.Run("empty body", func(t *testing.T) {
		_, err := src.ParseResponse(&cover.Response{Status: http.StatusOK})
		assert.ErrorIs(t, err, cover.ErrRemoteRejected)
	})

	t.Run("html page", func(t *testing.T) {
		_, err := src.ParseResponse(&cover.Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": {"text/html"}},
			Body:   []byte("<html>maintenance</html>"),
		})
		assert.ErrorIs(t, err, cover.ErrParse)
	})
}

// Scenario: the archive has the art and the client follows its redirect.
func TestCAA_ResolveThroughServer(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/release/test-mbid-1234/front":
			http.Redirect(w, r, "/images/front.jpg", http.StatusTemporaryRedirect)
		case "/images/front.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(jpegData)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	src := NewCAASource(dir, WithBaseURL(server.URL))
	resolver := cover.NewResolver(cover.NewRegistry(src), NewClient(WithRateLimit(0)))

	c, err := resolver.Resolve(context.Background(), cover.Song{MBID: "test-mbid-1234"})
	require.NoError(t, err)
	assert.Equal(t, cover.KindMusicBrainz, c.Source)
	assert.Equal(t, "image/jpeg", c.MimeType)

	data, err := os.ReadFile(filepath.Join(dir, "test-mbid-1234"))
	require.NoError(t, err)
	assert.Equal(t, jpegData, data)

	// Second resolution is served from the cache.
	before := hits.Load()
	_, err = resolver.Resolve(context.Background(), cover.Song{MBID: "test-mbid-1234"})
	require.NoError(t, err)
	assert.Equal(t, before, hits.Load())
}

func TestCAA_OversizedImageIsNotCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		body := make([]byte, MaxResponseSize+1)
		copy(body, jpegData)
		w.Write(body)
	}))
	defer server.Close()

	dir := t.TempDir()
	src := NewCAASource(dir, WithBaseURL(server.URL))
	resolver := cover.NewResolver(cover.NewRegistry(src), NewClient(WithRateLimit(0)))
	song := cover.Song{MBID: "1234"}

	c, err := resolver.Resolve(context.Background(), song)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, cover.ErrExhausted)
	assert.ErrorIs(t, err, cover.ErrRemoteRejected)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no truncated cache entry")

	// Nothing cached, so the next resolution asks again.
	_, err = resolver.Resolve(context.Background(), song)
	require.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCAA_PreferSongDir(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jpegData)
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	musicDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(musicDir, "Artist", "Album"), 0755))

	src := cover.PreferSongDir(NewCAASource(cacheDir, WithBaseURL(server.URL)), musicDir)
	resolver := cover.NewResolver(cover.NewRegistry(src), NewClient(WithRateLimit(0)))
	song := cover.Song{MBID: "1234", Album: "Album", Path: "Artist/Album/01.flac"}

	c, err := resolver.Resolve(context.Background(), song)
	require.NoError(t, err)
	want := filepath.Join(musicDir, "Artist", "Album", "Album.jpg")
	assert.Equal(t, want, c.Path)
	assert.Equal(t, cover.KindMusicBrainz, c.Source)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, jpegData, data)

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "shared cache untouched")
}

func TestCAA_Priority(t *testing.T) {
	assert.Equal(t, PriorityMusicBrainz, NewCAASource("").Priority())
	assert.Equal(t, 0.1, NewCAASource("", WithCAAPriority(0.1)).Priority())
}
