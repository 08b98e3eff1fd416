// Package socketio provides the Socket.io server that pushes resolved covers
// to UI clients.
package socketio

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/stellar-coverfetch/internal/domain/artwork"
	"github.com/edumarques81/stellar-coverfetch/internal/domain/cover"
)

// Events exchanged with clients.
const (
	EventGetCover  = "getCover"
	EventPushCover = "pushCover"
)

// CoverPath is where CoverHandler is mounted.
const CoverPath = "/cover"

// CoverState is the payload of pushCover.
type CoverState struct {
	Session  string `json:"session,omitempty"`
	Found    bool   `json:"found"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Source   string `json:"source,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Server handles Socket.io connections and is the display of the cover
// plugin: every delivered outcome is broadcast to all clients.
type Server struct {
	io     *socket.Server
	thumbs *artwork.Thumbnailer

	mu      sync.RWMutex
	clients map[string]*socket.Socket
	current *cover.Outcome
}

// NewServer creates a new Socket.io server. thumbs may be nil, in which case
// size requests are answered with the full image.
func NewServer(thumbs *artwork.Thumbnailer) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:      socket.NewServer(nil, opts),
		thumbs:  thumbs,
		clients: make(map[string]*socket.Socket),
	}

	s.setupHandlers()

	return s, nil
}

func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())

		log.Info().Str("id", clientID).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		// Send the current cover after a small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			client.Emit(EventPushCover, s.State())
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On(EventGetCover, func(args ...any) {
			log.Debug().Str("id", clientID).Msg(EventGetCover)
			client.Emit(EventPushCover, s.State())
		})
	})
}

// ShowCover stores the outcome and broadcasts it to all clients.
func (s *Server) ShowCover(o cover.Outcome) {
	s.mu.Lock()
	s.current = &o
	clientCount := len(s.clients)
	s.mu.Unlock()

	state := stateOf(&o)
	s.io.Emit(EventPushCover, state)

	log.Debug().
		Str("session", o.SessionID).
		Bool("found", state.Found).
		Str("source", state.Source).
		Int("clients", clientCount).
		Msg("Broadcast cover")
}

// State returns the payload for the latest outcome.
func (s *Server) State() CoverState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stateOf(s.current)
}

func stateOf(o *cover.Outcome) CoverState {
	if o == nil {
		return CoverState{}
	}

	state := CoverState{
		Session: o.SessionID,
		Artist:  o.Song.Artist,
		Album:   o.Song.Album,
	}
	if o.Err != nil || o.Cover == nil {
		return state
	}

	state.Found = true
	state.Source = string(o.Cover.Source)
	state.MimeType = o.Cover.MimeType
	state.URL = fmt.Sprintf("%s?session=%s", CoverPath, o.SessionID)
	return state
}

// currentImage returns the bytes of the displayed cover, or nil.
func (s *Server) currentImage() (*cover.Cover, []byte, error) {
	s.mu.RLock()
	o := s.current
	s.mu.RUnlock()

	if o == nil || o.Err != nil || o.Cover == nil {
		return nil, nil, nil
	}
	if len(o.Cover.Data) > 0 {
		return o.Cover, o.Cover.Data, nil
	}
	if o.Cover.Path == "" {
		return nil, nil, nil
	}
	data, err := os.ReadFile(o.Cover.Path)
	if err != nil {
		return nil, nil, err
	}
	return o.Cover, data, nil
}

// CoverHandler serves the image of the displayed cover. The optional size
// parameter (small, medium, large) selects a JPEG thumbnail.
func (s *Server) CoverHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var size artwork.ThumbnailSize
		if name := r.URL.Query().Get("size"); name != "" {
			var ok bool
			if size, ok = artwork.ParseThumbnailSize(name); !ok {
				http.Error(w, "size must be small, medium or large", http.StatusBadRequest)
				return
			}
		}

		c, data, err := s.currentImage()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read current cover")
			http.Error(w, "cover unavailable", http.StatusNotFound)
			return
		}
		if data == nil {
			http.Error(w, "no cover", http.StatusNotFound)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")

		if size > 0 && s.thumbs != nil {
			thumbPath, err := s.thumbs.Thumbnail(data, size)
			if err == nil {
				w.Header().Set("Content-Type", "image/jpeg")
				http.ServeFile(w, r, thumbPath)
				return
			}
			log.Warn().Err(err).Int("size", int(size)).Msg("Thumbnail failed, serving original")
		}

		mime := c.MimeType
		if mime == "" {
			mime = artwork.DetectMimeType(data)
		}
		w.Header().Set("Content-Type", mime)
		w.Header().Set("ETag", `"`+artwork.Checksum(data)+`"`)
		http.ServeContent(w, r, "cover"+artwork.GetExtensionForMime(mime), time.Time{}, bytes.NewReader(data))
	})
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.io server.
func (s *Server) Close() error {
	s.io.Close(nil)
	return nil
}
