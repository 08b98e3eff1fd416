package cover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/artwork"
)

// MaxImageSize caps a single download (10MB).
const MaxImageSize = 10 * 1024 * 1024

// Writer downloads images into the cover cache. Files are written to a
// temporary name in the destination directory and renamed into place, so a
// reader never sees a partial cache entry.
type Writer struct {
	fetcher  Fetcher
	negative *NegativeCache
	group    singleflight.Group
	maxSize  int64
}

// NewWriter creates a cache writer. negative may be nil to disable backoff.
func NewWriter(fetcher Fetcher, negative *NegativeCache) *Writer {
	return &Writer{
		fetcher:  fetcher,
		negative: negative,
		maxSize:  MaxImageSize,
	}
}

// Persist fetches url and stores the body at dest. Concurrent calls for the
// same destination share a single download, which keeps running for the
// remaining callers when one of them gives up.
func (w *Writer) Persist(ctx context.Context, url, dest string) error {
	_, err := w.persist(ctx, url, dest, false)
	return err
}

// PersistNamed is Persist for a destination named after the image format.
// base is the path without extension; the path written is returned.
func (w *Writer) PersistNamed(ctx context.Context, url, base string) (string, error) {
	return w.persist(ctx, url, base, true)
}

// Store writes data to dest atomically.
func (w *Writer) Store(dest string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty image", ErrRemoteRejected)
	}
	_, _, err := w.writeAtomic(dest, bytes.NewReader(data), false)
	return err
}

// StoreNamed is Store for a destination named after the image format.
func (w *Writer) StoreNamed(base string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrRemoteRejected)
	}
	path, _, err := w.writeAtomic(base, bytes.NewReader(data), true)
	return path, err
}

func (w *Writer) suppressed(url string) bool {
	return w.negative != nil && w.negative.Suppressed(url)
}

func (w *Writer) persist(ctx context.Context, url, dest string, named bool) (string, error) {
	if w.suppressed(url) {
		log.Debug().Str("url", url).Msg("Image download suppressed by negative-result record")
		return "", ErrSuppressed
	}

	shared := context.WithoutCancel(ctx)
	ch := w.group.DoChan(dest, func() (any, error) {
		path, err := w.download(shared, url, dest, named)
		if err != nil && Poisons(err) && w.negative != nil {
			w.negative.Record(url)
		}
		return path, err
	})

	select {
	case res := <-ch:
		if res.Shared {
			log.Debug().Str("dest", dest).Msg("Joined in-flight download")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (w *Writer) download(ctx context.Context, url, dest string, named bool) (string, error) {
	status, body, err := w.fetcher.Open(ctx, url)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer body.Close()

	if status < 100 {
		return "", fmt.Errorf("%w: status %d", ErrTransport, status)
	}
	if status < 200 || status >= 400 {
		return "", fmt.Errorf("%w: status %d", ErrRemoteRejected, status)
	}

	path, n, err := w.writeAtomic(dest, body, named)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("url", url).
		Str("dest", path).
		Int64("size", n).
		Msg("Stored cover image")
	return path, nil
}

// readTracker remembers the first read error so a failed copy can be blamed
// on the network rather than the disk.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}
	return n, err
}

// writeAtomic copies r into a temp file next to dest and renames it into
// place. With named set, the extension of the sniffed image format is
// appended to dest. On any failure the temp file is removed and the final
// path is left untouched.
func (w *Writer) writeAtomic(dest string, r io.Reader, named bool) (string, int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("%w: create cache directory: %v", ErrWrite, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("%w: create temp file: %v", ErrWrite, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	// One byte past the limit tells an oversized body from one that fits.
	tracker := &readTracker{r: r}
	n, err := io.Copy(tmp, io.LimitReader(tracker, w.maxSize+1))
	if err != nil {
		if tracker.err != nil {
			return "", 0, fmt.Errorf("%w: read body: %v", ErrTransport, tracker.err)
		}
		return "", 0, fmt.Errorf("%w: write temp file: %v", ErrWrite, err)
	}
	if n == 0 {
		return "", 0, fmt.Errorf("%w: empty image", ErrRemoteRejected)
	}
	if n > w.maxSize {
		return "", 0, fmt.Errorf("%w: image too large (over %d bytes)", ErrRemoteRejected, w.maxSize)
	}
	if err := tmp.Sync(); err != nil {
		return "", 0, fmt.Errorf("%w: sync temp file: %v", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("%w: close temp file: %v", ErrWrite, err)
	}

	final := dest
	if named {
		mime := artwork.DetectFileMimeType(tmpPath)
		if !strings.HasPrefix(mime, "image/") {
			return "", 0, fmt.Errorf("%w: body is not an image", ErrRemoteRejected)
		}
		final = dest + artwork.GetExtensionForMime(mime)
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		return "", 0, fmt.Errorf("%w: chmod temp file: %v", ErrWrite, err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return "", 0, fmt.Errorf("%w: rename into place: %v", ErrWrite, err)
	}
	committed = true
	return final, n, nil
}

// CachedCover returns a cover for path if a non-empty cache entry exists.
func CachedCover(kind Kind, path string) *Cover {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return nil
	}
	return &Cover{Source: kind, Path: path}
}
