// Package cache provides the SQLite index of resolved covers.
package cache

import "time"

// CachedCover is the metadata of one cover file.
type CachedCover struct {
	Path      string    `json:"path"`             // Cover file, primary key
	Source    string    `json:"source"`           // 'embedded', 'musicbrainz', 'lastfm', 'local'
	Artist    string    `json:"artist"`           // Album artist of the song that resolved it
	Album     string    `json:"album"`            // Album title
	MBID      string    `json:"mbid,omitempty"`   // MusicBrainz album id
	MimeType  string    `json:"mimeType"`         // MIME type
	Width     int       `json:"width"`            // Image width
	Height    int       `json:"height"`           // Image height
	FileSize  int64     `json:"fileSize"`         // File size in bytes
	Checksum  string    `json:"checksum"`         // MD5 of image data
	FetchedAt time.Time `json:"fetchedAt"`        // When last resolved
	CreatedAt time.Time `json:"createdAt"`        // Index entry creation
}

// CacheStats provides statistics about the cover index.
type CacheStats struct {
	CoverCount    int            `json:"coverCount"`
	TotalSize     int64          `json:"totalSize"`
	BySource      map[string]int `json:"bySource"`
	SchemaVersion string         `json:"schemaVersion"`
	LastUpdated   time.Time      `json:"lastUpdated"`
}

// CoverFilter narrows a cover listing.
type CoverFilter struct {
	Source string // exact source kind
	Query  string // substring of artist or album
}

// Pagination defines pagination parameters.
type Pagination struct {
	Page   int
	Limit  int
	Offset int // Calculated from Page and Limit
}

// NewPagination creates a new pagination with defaults.
func NewPagination(page, limit int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}
