// Package main is the entry point for coverfetch, the album cover resolver.
//
// Usage:
//
//	coverfetch [flags] [serve]          follow MPD and push covers to UI clients
//	coverfetch [flags] resolve FILE...  resolve covers for audio files
//	coverfetch [flags] index [list|stats|prune|clear]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverfetch/internal/config"
	"github.com/edumarques81/stellar-coverfetch/internal/version"
)

// options holds the command line. Flags that are set override the config
// file.
type options struct {
	config      string
	port        string
	mpdHost     string
	mpdPort     int
	mpdPassword string
	musicDir    string
	cacheDir    string
	lastfmKey   string
	localFirst  bool
	songDir     bool
	debug       bool
	showVersion bool
}

func newFlagSet(opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet("coverfetch", flag.ContinueOnError)
	fs.StringVar(&opts.config, "config", "", "Config file (default: $XDG_CONFIG_HOME/coverfetch/config.toml, then ./config.toml)")
	fs.StringVar(&opts.port, "port", "", "HTTP server port")
	fs.StringVar(&opts.mpdHost, "mpd-host", "", "MPD host")
	fs.IntVar(&opts.mpdPort, "mpd-port", 0, "MPD port")
	fs.StringVar(&opts.mpdPassword, "mpd-password", "", "MPD password")
	fs.StringVar(&opts.musicDir, "music-dir", "", "Music directory for relative song paths")
	fs.StringVar(&opts.cacheDir, "cache-dir", "", "Directory for downloaded covers")
	fs.StringVar(&opts.lastfmKey, "lastfm-key", "", "Last.fm API key")
	fs.BoolVar(&opts.localFirst, "local-first", false, "Check every cached cover before any remote fetch")
	fs.BoolVar(&opts.songDir, "prefer-song-dir", false, "Store downloaded covers next to the song as <album><ext>")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: coverfetch [flags] [serve | resolve FILE... | index [list|stats|prune|clear]]\n\n")
		fs.PrintDefaults()
	}
	return fs
}

// apply copies the flags that were given on the command line into cfg.
func (o *options) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = o.port
		case "mpd-host":
			cfg.MPD.Host = o.mpdHost
		case "mpd-port":
			cfg.MPD.Port = o.mpdPort
		case "mpd-password":
			cfg.MPD.Password = o.mpdPassword
		case "music-dir":
			cfg.MusicDir = o.musicDir
		case "cache-dir":
			cfg.CacheDir = o.cacheDir
		case "lastfm-key":
			cfg.Lastfm.APIKey = o.lastfmKey
		case "local-first":
			cfg.LocalFirst = o.localFirst
		case "prefer-song-dir":
			cfg.PreferSongDir = o.songDir
		}
	})
}

func loadConfig(opts *options) (*config.Config, error) {
	if opts.config != "" {
		if _, err := os.Stat(opts.config); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		return config.Load(opts.config)
	}
	return config.Load()
}

func setupLogging(debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func main() {
	opts := &options{}
	fs := newFlagSet(opts)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}

	setupLogging(opts.debug)

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	opts.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := "serve", fs.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg)
	case "resolve":
		err = runResolve(ctx, cfg, args, os.Stdout)
	case "index":
		err = runIndex(cfg, args, os.Stdout)
	default:
		fs.Usage()
		os.Exit(2)
	}

	if err != nil {
		stop()
		log.Fatal().Err(err).Str("command", cmd).Msg("Command failed")
	}
}
