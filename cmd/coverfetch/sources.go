package main

import (
	"github.com/edumarques81/stellar-coverfetch/internal/config"
	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
	"github.com/edumarques81/stellar-coverfetch/internal/infra/enrichment"
)

// buildRegistry creates the enabled sources. The host provides the embedded
// picture and the fallback lookup.
func buildRegistry(cfg *config.Config, pictures cover.PictureReader, finder cover.CoverFinder) *cover.Registry {
	var sources []cover.Source

	if cfg.EmbeddedEnabled() {
		sources = append(sources, cover.NewEmbeddedSource(pictures, cfg.Embedded.Preferred))
	}

	if cfg.MusicBrainzEnabled() {
		var opts []enrichment.CAAOption
		if cfg.MusicBrainz.BaseURL != "" {
			opts = append(opts, enrichment.WithBaseURL(cfg.MusicBrainz.BaseURL))
		}
		if cfg.MusicBrainz.Priority != nil {
			opts = append(opts, enrichment.WithCAAPriority(*cfg.MusicBrainz.Priority))
		}
		sources = append(sources, remote(cfg, enrichment.NewCAASource(cfg.CacheDir, opts...)))
	}

	if cfg.LastfmEnabled() {
		var opts []enrichment.LastFMOption
		if cfg.Lastfm.BaseURL != "" {
			opts = append(opts, enrichment.WithLastFMBaseURL(cfg.Lastfm.BaseURL))
		}
		if cfg.Lastfm.Priority != nil {
			opts = append(opts, enrichment.WithLastFMPriority(*cfg.Lastfm.Priority))
		}
		sources = append(sources, remote(cfg, enrichment.NewLastFMSource(cfg.Lastfm.APIKey, cfg.CacheDir, opts...)))
	}

	if cfg.LocalEnabled() {
		sources = append(sources, cover.NewLocalSource(finder))
	}

	return cover.NewRegistry(sources...)
}

// remote stores the source's downloads next to songs when configured.
func remote(cfg *config.Config, src cover.Source) cover.Source {
	if cfg.PreferSongDir {
		return cover.PreferSongDir(src, cfg.MusicDir)
	}
	return src
}

func newFetcher(cfg *config.Config) *enrichment.Client {
	return enrichment.NewClient(
		enrichment.WithUserAgent(cfg.UserAgent),
		enrichment.WithRateLimit(cfg.RateLimit),
		enrichment.WithTimeout(cfg.Timeout),
	)
}

// resolverOptions wires the shared negative record and the optional hooks.
// rec and obs may be nil.
func resolverOptions(cfg *config.Config, rec cover.Recorder, obs cover.Observer) []cover.Option {
	opts := []cover.Option{
		cover.WithNegativeCache(cover.NewNegativeCache(cfg.CoolDown)),
		cover.WithLocalFirst(cfg.LocalFirst),
	}
	if rec != nil {
		opts = append(opts, cover.WithRecorder(rec))
	}
	if obs != nil {
		opts = append(opts, cover.WithObserver(obs))
	}
	return opts
}
