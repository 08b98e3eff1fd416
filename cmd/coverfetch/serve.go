package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverfetch/internal/config"
	"github.com/edumarques81/stellar-coverfetch/internal/domain/artwork"
	"github.com/edumarques81/stellar-coverfetch/internal/domain/plugin"
	"github.com/edumarques81/stellar-coverfetch/internal/infra/cache"
	"github.com/edumarques81/stellar-coverfetch/internal/infra/mpd"
	"github.com/edumarques81/stellar-coverfetch/internal/metrics"
	"github.com/edumarques81/stellar-coverfetch/internal/transport/socketio"
	"github.com/edumarques81/stellar-coverfetch/internal/version"
)

// watchedSubsystems are the MPD idle subsystems that can change the song.
var watchedSubsystems = []string{"player", "playlist"}

func printBanner(cfg *config.Config, kinds []string) {
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", version.GetInfo().String())
	log.Info().Msg("  Album Cover Resolver")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("port", cfg.Server.Port).
		Str("mpd_host", cfg.MPD.Host).
		Int("mpd_port", cfg.MPD.Port).
		Bool("password_set", cfg.MPD.Password != "").
		Str("cache_dir", cfg.CacheDir).
		Str("db_path", cfg.DBPath).
		Strs("sources", kinds).
		Bool("local_first", cfg.LocalFirst).
		Bool("prefer_song_dir", cfg.PreferSongDir).
		Dur("cool_down", cfg.CoolDown).
		Msg("Configuration")
}

// openIndex opens the cover index and drops entries whose file is gone.
func openIndex(path string) (*cache.DB, *cache.DAO, error) {
	db := cache.NewDB(path)
	if err := db.Open(); err != nil {
		return nil, nil, err
	}
	dao := cache.NewDAO(db)
	if n, err := dao.PruneMissing(); err != nil {
		log.Warn().Err(err).Msg("Failed to prune cover index")
	} else if n > 0 {
		log.Info().Int("removed", n).Msg("Pruned cover index")
	}
	return db, dao, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	mpdClient := mpd.NewClient(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
	if err := mpdClient.Connect(); err != nil {
		return fmt.Errorf("connect to MPD: %w", err)
	}
	defer mpdClient.Close()

	if err := mpdClient.Ping(); err != nil {
		return fmt.Errorf("MPD ping failed: %w", err)
	}
	log.Info().Msg("MPD connection verified")

	host := mpd.NewHost(mpdClient)
	registry := buildRegistry(cfg, host, host)
	printBanner(cfg, kindNames(registry))

	db, dao, err := openIndex(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open cover index: %w", err)
	}
	defer db.Close()
	dao.LogCacheStats()

	m := metrics.New()

	socketServer, err := socketio.NewServer(artwork.NewThumbnailer(cfg.ThumbnailDir))
	if err != nil {
		return fmt.Errorf("create Socket.io server: %w", err)
	}
	defer socketServer.Close()

	p := plugin.New(registry, newFetcher(cfg), host, socketServer,
		plugin.WithResolverOptions(resolverOptions(cfg, cache.NewRecorder(dao), m)...))
	defer p.Disable()

	events, err := mpdClient.Watch(watchedSubsystems...)
	if err != nil {
		return fmt.Errorf("start MPD watcher: %w", err)
	}
	go p.Watch(ctx, events)

	if err := p.Enable(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to resolve the current song")
	}

	a := &api{
		ping:    mpdClient.Ping,
		db:      db,
		dao:     dao,
		socket:  socketServer,
		metrics: m,
		plugin:  p,
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      corsMiddleware(a.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}
