package cache

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DAO provides data access operations for the cover index.
type DAO struct {
	db *DB
}

// NewDAO creates a new DAO instance.
func NewDAO(db *DB) *DAO {
	return &DAO{db: db}
}

const coverColumns = `path, source, artist, album, mbid, mime_type, width, height, file_size, checksum, fetched_at, created_at`

// UpsertCover inserts or updates the metadata of a cover file.
func (dao *DAO) UpsertCover(c *CachedCover) error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}

	now := time.Now().Format(time.RFC3339)
	fetchedAt := now
	if !c.FetchedAt.IsZero() {
		fetchedAt = c.FetchedAt.Format(time.RFC3339)
	}

	_, err := db.Exec(`
		INSERT INTO covers (`+coverColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source = ?, artist = ?, album = ?, mbid = COALESCE(NULLIF(?, ''), covers.mbid),
			mime_type = ?, width = ?, height = ?, file_size = ?, checksum = ?, fetched_at = ?
	`,
		c.Path, c.Source, c.Artist, c.Album, c.MBID, c.MimeType, c.Width, c.Height, c.FileSize, c.Checksum, fetchedAt, now,
		c.Source, c.Artist, c.Album, c.MBID, c.MimeType, c.Width, c.Height, c.FileSize, c.Checksum, fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert cover: %w", err)
	}

	dao.db.touch()
	return nil
}

// GetCover retrieves a cover by file path. Returns nil when not indexed.
func (dao *DAO) GetCover(path string) (*CachedCover, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	row := db.QueryRow(`SELECT `+coverColumns+` FROM covers WHERE path = ?`, path)
	c, err := scanCover(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// FindAlbumCover returns the most recently resolved cover of an album.
// The MBID wins over the names when given.
func (dao *DAO) FindAlbumCover(artist, album, mbid string) (*CachedCover, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}

	var row *sql.Row
	if mbid != "" {
		row = db.QueryRow(`SELECT `+coverColumns+` FROM covers WHERE mbid = ? ORDER BY fetched_at DESC LIMIT 1`, mbid)
	} else {
		row = db.QueryRow(`
			SELECT `+coverColumns+` FROM covers
			WHERE artist = ? COLLATE NOCASE AND album = ? COLLATE NOCASE
			ORDER BY fetched_at DESC LIMIT 1
		`, artist, album)
	}

	c, err := scanCover(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListCovers returns covers matching the filter, newest first, and the total
// number of matches.
func (dao *DAO) ListCovers(filter CoverFilter, pag Pagination) ([]*CachedCover, int, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, 0, fmt.Errorf("database not open")
	}

	var conditions []string
	var args []interface{}

	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Query != "" {
		conditions = append(conditions, "(artist LIKE ? OR album LIKE ?)")
		like := "%" + filter.Query + "%"
		args = append(args, like, like)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := db.QueryRow("SELECT COUNT(*) FROM covers "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM covers %s ORDER BY fetched_at DESC, path LIMIT ? OFFSET ?`, coverColumns, where)
	rows, err := db.Query(query, append(args, pag.Limit, pag.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var covers []*CachedCover
	for rows.Next() {
		c, err := scanCover(rows)
		if err != nil {
			return nil, 0, err
		}
		covers = append(covers, c)
	}

	return covers, total, rows.Err()
}

// DeleteCover removes a cover from the index.
func (dao *DAO) DeleteCover(path string) error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}

	if _, err := db.Exec("DELETE FROM covers WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete cover: %w", err)
	}
	dao.db.touch()
	return nil
}

// PruneMissing drops entries whose file no longer exists on disk.
func (dao *DAO) PruneMissing() (int, error) {
	db := dao.db.DB()
	if db == nil {
		return 0, fmt.Errorf("database not open")
	}

	rows, err := db.Query("SELECT path FROM covers")
	if err != nil {
		return 0, err
	}
	var missing []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			missing = append(missing, path)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, path := range missing {
		if err := dao.DeleteCover(path); err != nil {
			return 0, err
		}
	}

	if len(missing) > 0 {
		log.Info().Int("count", len(missing)).Msg("Pruned index entries of deleted covers")
	}
	return len(missing), nil
}

// LogCacheStats logs index statistics.
func (dao *DAO) LogCacheStats() {
	stats, err := dao.db.GetStats()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get cover index stats")
		return
	}

	log.Info().
		Int("covers", stats.CoverCount).
		Int64("bytes", stats.TotalSize).
		Str("schema", stats.SchemaVersion).
		Msg("Cover index stats")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCover(row rowScanner) (*CachedCover, error) {
	c := &CachedCover{}
	var artist, album, mbid, mimeType, checksum sql.NullString
	var width, height, fileSize sql.NullInt64
	var fetchedAt, createdAt sql.NullString

	err := row.Scan(
		&c.Path, &c.Source, &artist, &album, &mbid, &mimeType,
		&width, &height, &fileSize, &checksum, &fetchedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.Artist = artist.String
	c.Album = album.String
	c.MBID = mbid.String
	c.MimeType = mimeType.String
	c.Checksum = checksum.String
	if width.Valid {
		c.Width = int(width.Int64)
	}
	if height.Valid {
		c.Height = int(height.Int64)
	}
	if fileSize.Valid {
		c.FileSize = fileSize.Int64
	}
	if fetchedAt.Valid {
		c.FetchedAt, _ = time.Parse(time.RFC3339, fetchedAt.String)
	}
	if createdAt.Valid {
		c.CreatedAt = parseTimestamp(createdAt.String)
	}

	return c, nil
}

// parseTimestamp accepts RFC3339 and SQLite's CURRENT_TIMESTAMP format.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}
