// Package config loads coverfetch settings from TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const appName = "coverfetch"

// Config holds every setting. Command-line flags override it in main.
type Config struct {
	MusicDir      string        `koanf:"music_dir"`       // root for relative song paths
	CacheDir      string        `koanf:"cache_dir"`       // downloaded covers
	DBPath        string        `koanf:"db_path"`         // cover index
	ThumbnailDir  string        `koanf:"thumbnail_dir"`   // scaled covers served over HTTP
	LocalFirst    bool          `koanf:"local_first"`     // check every cache before any fetch
	PreferSongDir bool          `koanf:"prefer_song_dir"` // store remote covers next to the song as <album><ext>
	CoolDown      time.Duration `koanf:"cool_down"`       // negative-result window, e.g. "1h"
	UserAgent     string        `koanf:"user_agent"`
	RateLimit     int           `koanf:"rate_limit"` // requests per second, 0 disables
	Timeout       time.Duration `koanf:"timeout"`

	Embedded    EmbeddedConfig    `koanf:"embedded"`
	MusicBrainz MusicBrainzConfig `koanf:"musicbrainz"`
	Lastfm      LastfmConfig      `koanf:"lastfm"`
	Local       LocalConfig       `koanf:"local"`

	MPD    MPDConfig    `koanf:"mpd"`
	Server ServerConfig `koanf:"server"`
}

// EmbeddedConfig controls the embedded-picture source.
type EmbeddedConfig struct {
	Enabled   *bool `koanf:"enabled"`   // default: true
	Preferred bool  `koanf:"preferred"` // rank above the remote sources
}

// MusicBrainzConfig controls the Cover Art Archive source.
type MusicBrainzConfig struct {
	Enabled  *bool    `koanf:"enabled"` // default: true
	BaseURL  string   `koanf:"base_url"`
	Priority *float64 `koanf:"priority"`
}

// LastfmConfig controls the Last.fm source. It needs an API key.
type LastfmConfig struct {
	Enabled  *bool    `koanf:"enabled"` // default: true when api_key is set
	APIKey   string   `koanf:"api_key"`
	BaseURL  string   `koanf:"base_url"`
	Priority *float64 `koanf:"priority"`
}

// LocalConfig controls the host fallback source.
type LocalConfig struct {
	Enabled   *bool `koanf:"enabled"`    // default: true
	MaxLevels int   `koanf:"max_levels"` // parent directories searched for folder art
}

// MPDConfig holds the MPD connection.
type MPDConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port string `koanf:"port"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		CacheDir:     filepath.Join(xdg.CacheHome, appName, "covers"),
		DBPath:       filepath.Join(xdg.DataHome, appName, "covers.db"),
		ThumbnailDir: filepath.Join(xdg.CacheHome, appName, "thumbnails"),
		CoolDown:     time.Hour,
		RateLimit:    1,
		Timeout:      30 * time.Second,
		Local: LocalConfig{
			MaxLevels: 1,
		},
		MPD: MPDConfig{
			Host: "localhost",
			Port: 6600,
		},
		Server: ServerConfig{
			Port: "3002",
		},
	}
}

// DefaultPaths lists the config files read by Load, lowest priority first.
func DefaultPaths() []string {
	return []string{
		filepath.Join(xdg.ConfigHome, appName, "config.toml"),
		"config.toml",
	}
}

// Load reads the given files over the defaults; later files win. Missing
// files are skipped. Without arguments DefaultPaths is used.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = DefaultPaths()
	}

	k := koanf.New(".")
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.MusicDir = expandPath(cfg.MusicDir)
	cfg.CacheDir = expandPath(cfg.CacheDir)
	cfg.DBPath = expandPath(cfg.DBPath)
	cfg.ThumbnailDir = expandPath(cfg.ThumbnailDir)
	cfg.MusicBrainz.BaseURL = strings.TrimSuffix(cfg.MusicBrainz.BaseURL, "/")
	cfg.Lastfm.BaseURL = strings.TrimSuffix(cfg.Lastfm.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the resolver cannot run with.
func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	if c.CoolDown < 0 {
		return fmt.Errorf("cool_down must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.MPD.Port <= 0 || c.MPD.Port > 65535 {
		return fmt.Errorf("mpd.port %d out of range", c.MPD.Port)
	}
	return nil
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

func enabled(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// EmbeddedEnabled reports whether the embedded-picture source is used.
func (c *Config) EmbeddedEnabled() bool {
	return enabled(c.Embedded.Enabled, true)
}

// MusicBrainzEnabled reports whether the Cover Art Archive is used.
func (c *Config) MusicBrainzEnabled() bool {
	return enabled(c.MusicBrainz.Enabled, true)
}

// LastfmEnabled reports whether Last.fm is used.
func (c *Config) LastfmEnabled() bool {
	return c.Lastfm.APIKey != "" && enabled(c.Lastfm.Enabled, true)
}

// LocalEnabled reports whether the host fallback is used.
func (c *Config) LocalEnabled() bool {
	return enabled(c.Local.Enabled, true)
}
