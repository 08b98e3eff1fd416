package cover

import (
	"crypto/md5"
	"fmt"
	"path/filepath"
	"strings"
)

// ContentKey hashes artist and album into a stable cache key, for songs that
// have no MusicBrainz id.
func ContentKey(artist, album string) string {
	data := artist + "\x00" + album
	return fmt.Sprintf("%x", md5.Sum([]byte(data)))
}

// ValidKey reports whether key can be used as a file name inside the cache
// root.
func ValidKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && !strings.ContainsRune(key, 0)
}

// KeyPath joins the cache root and a key. ok is false for keys that would
// escape the root.
func KeyPath(root, key string) (string, bool) {
	if root == "" || !ValidKey(key) {
		return "", false
	}
	return filepath.Join(root, key), true
}
