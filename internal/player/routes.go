package player

import (
	_ "embed"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/strefethen/harmony-go/internal/api"
	"github.com/strefethen/harmony-go/internal/apperrors"
)

//go:embed web/player.html
var playerPage []byte

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The page may be opened from another host on the LAN
	},
}

// RegisterRoutes wires the player page, its audio source and its websocket.
func RegisterRoutes(router chi.Router, manager *ConnectionManager) {
	router.HandleFunc("/ws/player", websocketHandler(manager))
	router.Get("/", pageHandler)
	router.Method(http.MethodGet, "/audio", api.Handler(audioHandler(manager)))
	router.Method(http.MethodGet, "/v1/player/status", api.Handler(statusHandler(manager)))
}

func websocketHandler(manager *ConnectionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade failed - error already written to response
			return
		}

		manager.SetConnection(conn)
	}
}

func pageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(playerPage)
}

func audioHandler(manager *ConnectionManager) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		current, ok := manager.Current()
		if !ok {
			return apperrors.NewNotFoundError("Nothing is playing", nil)
		}
		if v := r.URL.Query().Get("v"); v != "" && v != current.PlaybackID {
			return apperrors.NewNotFoundError("Playback has moved on", map[string]any{"playback_id": v})
		}

		file, err := os.Open(current.Path)
		if err != nil {
			return apperrors.NewNotFoundError("Audio file is gone", nil)
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			return apperrors.NewInternalError("Failed to stat audio file")
		}

		w.Header().Set("Cache-Control", "no-store")
		http.ServeContent(w, r, filepath.Base(current.Path), info.ModTime(), file)
		return nil
	}
}

func statusHandler(manager *ConnectionManager) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		status := manager.GetStatus()
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":      "player_status",
			"player":      status.Player,
			"playback_id": status.PlaybackID,
			"title":       status.Title,
			"volume":      status.Volume,
			"paused":      status.Paused,
		})
	}
}
