package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
	"github.com/edumarques81/stellar-coverfetch/internal/domain/plugin"
	"github.com/edumarques81/stellar-coverfetch/internal/infra/cache"
	"github.com/edumarques81/stellar-coverfetch/internal/metrics"
	"github.com/edumarques81/stellar-coverfetch/internal/transport/socketio"
	"github.com/edumarques81/stellar-coverfetch/internal/version"
)

// api is the HTTP surface of serve mode.
type api struct {
	ping    func() error
	db      *cache.DB
	dao     *cache.DAO
	socket  *socketio.Server
	metrics *metrics.Metrics
	plugin  *plugin.Plugin
}

// CoverList is the response of /api/v1/covers.
type CoverList struct {
	Covers []*cache.CachedCover `json:"covers"`
	Total  int                  `json:"total"`
	Page   int                  `json:"page"`
	Limit  int                  `json:"limit"`
}

// PluginStatus is the response of /api/v1/plugin.
type PluginStatus struct {
	Enabled bool     `json:"enabled"`
	Sources []string `json:"sources"`
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/socket.io/", a.socket)
	mux.Handle(socketio.CoverPath, a.socket.CoverHandler())
	mux.Handle("/metrics", a.metrics.Handler())

	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.GetInfo())
	})
	mux.HandleFunc("/api/v1/covers", a.handleCovers)
	mux.HandleFunc("/api/v1/covers/stats", a.handleStats)
	mux.HandleFunc("/api/v1/plugin", a.handlePlugin)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.ping != nil {
		if err := a.ping(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "mpd": "disconnected"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mpd": "connected"})
}

// handleCovers lists the index. With path it returns a single entry; with
// album (and optionally artist and mbid) the latest cover of that album.
func (a *api) handleCovers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if path := q.Get("path"); path != "" {
		c, err := a.dao.GetCover(path)
		a.writeCover(w, c, err)
		return
	}
	if album := q.Get("album"); album != "" {
		c, err := a.dao.FindAlbumCover(q.Get("artist"), album, q.Get("mbid"))
		a.writeCover(w, c, err)
		return
	}

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	pag := cache.NewPagination(page, limit)

	covers, total, err := a.dao.ListCovers(cache.CoverFilter{
		Source: q.Get("source"),
		Query:  q.Get("q"),
	}, pag)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list covers")
		http.Error(w, "failed to list covers", http.StatusInternalServerError)
		return
	}
	if covers == nil {
		covers = []*cache.CachedCover{}
	}

	writeJSON(w, http.StatusOK, CoverList{
		Covers: covers,
		Total:  total,
		Page:   pag.Page,
		Limit:  pag.Limit,
	})
}

func (a *api) writeCover(w http.ResponseWriter, c *cache.CachedCover, err error) {
	if err != nil {
		log.Error().Err(err).Msg("Failed to read cover index")
		http.Error(w, "failed to read cover index", http.StatusInternalServerError)
		return
	}
	if c == nil {
		http.Error(w, "cover not indexed", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.db.GetStats()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read index stats")
		http.Error(w, "failed to read index stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handlePlugin reports the plugin state. POST with enabled=true|false
// switches it.
func (a *api) handlePlugin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		enable, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
		if err != nil {
			http.Error(w, "enabled must be true or false", http.StatusBadRequest)
			return
		}
		if enable {
			if err := a.plugin.Enable(r.Context()); err != nil {
				log.Warn().Err(err).Msg("Failed to resolve the current song")
			}
		} else {
			a.plugin.Disable()
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, PluginStatus{
		Enabled: a.plugin.Enabled(),
		Sources: kindNames(a.plugin.Resolver().Registry()),
	})
}

func kindNames(r *cover.Registry) []string {
	kinds := r.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}
