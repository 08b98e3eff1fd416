package artwork

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// ArtworkFilenames defines common artwork filenames in priority order.
var ArtworkFilenames = []string{
	"cover",
	"folder",
	"front",
	"album",
	"artwork",
}

// ArtworkExtensions defines the image extensions looked for next to songs.
var ArtworkExtensions = []string{
	".jpg",
	".jpeg",
	".png",
	".gif",
	".webp",
}

// DefaultMaxLevels searches the song's directory and its parent, which
// covers multi-disc layouts like Album/CD1/track.flac.
const DefaultMaxLevels = 1

// FilesystemFinder searches for artwork files next to a song.
type FilesystemFinder struct {
	musicDir  string // root for relative song paths; also the search boundary
	maxLevels int    // parent directories to search above the song's own
}

// NewFilesystemFinder creates a finder. musicDir may be empty when songs are
// addressed by absolute path.
func NewFilesystemFinder(musicDir string) *FilesystemFinder {
	return &FilesystemFinder{
		musicDir:  musicDir,
		maxLevels: DefaultMaxLevels,
	}
}

// WithMaxLevels returns the finder with a different search depth.
func (f *FilesystemFinder) WithMaxLevels(levels int) *FilesystemFinder {
	if levels < 0 {
		levels = 0
	}
	f.maxLevels = levels
	return f
}

// FindArtwork searches for an artwork file starting from the song's
// directory. A file named after the album (the layout older versions wrote
// next to songs) wins over the generic names. Returns "" when nothing is
// found.
func (f *FilesystemFinder) FindArtwork(songPath, album string) (string, error) {
	if songPath == "" {
		return "", nil
	}

	fullPath := songPath
	if !filepath.IsAbs(songPath) && f.musicDir != "" {
		fullPath = filepath.Join(f.musicDir, songPath)
	}
	songDir := filepath.Dir(fullPath)

	var rootAbs string
	if f.musicDir != "" {
		abs, err := filepath.Abs(f.musicDir)
		if err != nil {
			return "", err
		}
		rootAbs = abs
	}

	currentDir := songDir
	for level := 0; level <= f.maxLevels; level++ {
		currentAbs, err := filepath.Abs(currentDir)
		if err != nil {
			break
		}
		if rootAbs != "" && !withinDir(currentAbs, rootAbs) {
			log.Debug().
				Str("dir", currentAbs).
				Str("musicDir", rootAbs).
				Msg("Reached music root boundary, stopping search")
			break
		}

		if artPath := f.searchDirectory(currentDir, album); artPath != "" {
			log.Debug().
				Str("artPath", artPath).
				Int("level", level).
				Msg("Found artwork file")
			return artPath, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	return "", nil
}

func withinDir(dir, root string) bool {
	if dir == root {
		return true
	}
	return strings.HasPrefix(dir, root+string(filepath.Separator))
}

// searchDirectory searches a single directory for artwork files.
func (f *FilesystemFinder) searchDirectory(dir, album string) string {
	names := ArtworkFilenames
	if album != "" && !strings.ContainsAny(album, `/\`) {
		names = append([]string{album}, ArtworkFilenames...)
	}

	for _, name := range names {
		for _, ext := range ArtworkExtensions {
			for _, candidate := range []string{
				name + ext,
				capitalize(name) + ext,
				strings.ToUpper(name) + strings.ToUpper(ext),
			} {
				path := filepath.Join(dir, candidate)
				if fileExists(path) {
					return path
				}
			}
		}
	}

	// No standard names, take any image file
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		// Skip macOS AppleDouble resource fork files (._filename)
		if strings.HasPrefix(entry.Name(), "._") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, validExt := range ArtworkExtensions {
			if ext == validExt {
				return filepath.Join(dir, entry.Name())
			}
		}
	}

	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// fileExists checks if a non-empty regular file exists.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
