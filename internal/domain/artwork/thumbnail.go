package artwork

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// ThumbnailSize is the longest side of a display thumbnail in pixels.
type ThumbnailSize int

const (
	// ThumbSmall is 150x150 pixels - for list views
	ThumbSmall ThumbnailSize = 150
	// ThumbMedium is 300x300 pixels - for now-playing widgets
	ThumbMedium ThumbnailSize = 300
	// ThumbLarge is 500x500 pixels - for full screen views
	ThumbLarge ThumbnailSize = 500
)

// ParseThumbnailSize maps a size name to its dimension.
func ParseThumbnailSize(name string) (ThumbnailSize, bool) {
	switch name {
	case "small":
		return ThumbSmall, true
	case "medium":
		return ThumbMedium, true
	case "large":
		return ThumbLarge, true
	}
	return 0, false
}

// Thumbnailer scales resolved covers for display. Thumbnails are keyed by the
// checksum of the source image, so a new cover for the same album never
// reuses a stale thumbnail.
type Thumbnailer struct {
	dir string
}

// NewThumbnailer stores thumbnails under dir.
func NewThumbnailer(dir string) *Thumbnailer {
	return &Thumbnailer{dir: dir}
}

// Checksum returns the content key used for thumbnails and the cover index.
func Checksum(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}

// Thumbnail returns the path of a JPEG thumbnail for the image data,
// generating it on first use.
func (t *Thumbnailer) Thumbnail(data []byte, size ThumbnailSize) (string, error) {
	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	thumbPath := filepath.Join(t.dir, fmt.Sprintf("%s_%d.jpg", Checksum(data), size))
	if _, err := os.Stat(thumbPath); err == nil {
		return thumbPath, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	log.Debug().
		Str("format", format).
		Int("size", int(size)).
		Msg("Generating thumbnail")

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scale(img, int(size)), &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	tmp, err := os.CreateTemp(t.dir, ".thumb-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close thumbnail: %w", err)
	}
	if err := os.Rename(tmp.Name(), thumbPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to store thumbnail: %w", err)
	}

	return thumbPath, nil
}

// Remove deletes every thumbnail generated for the image data.
func (t *Thumbnailer) Remove(data []byte) {
	sum := Checksum(data)
	for _, size := range []ThumbnailSize{ThumbSmall, ThumbMedium, ThumbLarge} {
		path := filepath.Join(t.dir, fmt.Sprintf("%s_%d.jpg", sum, size))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove thumbnail")
		}
	}
}

// scale fits src within maxSize keeping its aspect ratio. Images that are
// already small enough are not upscaled.
func scale(src image.Image, maxSize int) image.Image {
	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	if srcW <= maxSize && srcH <= maxSize {
		return src
	}

	var newW, newH int
	if srcW > srcH {
		newW = maxSize
		newH = int(float64(srcH) * float64(maxSize) / float64(srcW))
	} else {
		newH = maxSize
		newW = int(float64(srcW) * float64(maxSize) / float64(srcH))
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
