package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

const (
	queryTimeout    = 2 * time.Second
	qrSize          = 256
	recentMatches   = 20
	eventWindowDays = 7
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub, cfg *Config, db *DB) *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		// Ids follow handshake order
		id := hub.NextConnID()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			Log.Infow("WebSocket upgrade failed", "addr", ip, "error", err)
			return
		}

		hub.TrackConnect(ip)
		client := NewClient(hub, conn, id, ip)
		if !hub.join(client) {
			hub.TrackDisconnect(ip)
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	mux.HandleFunc("GET /api/lobbies", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
		defer cancel()
		lobbies, err := hub.Lobbies(ctx)
		if err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"lobbies": lobbies})
	})

	mux.HandleFunc("GET /api/lobbies/{id}/invite", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
		defer cancel()
		ok, err := hub.LobbyExists(ctx, id)
		if err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if !ok {
			http.Error(w, ErrLobbyNotFound.Error(), http.StatusNotFound)
			return
		}
		png, err := qrcode.Encode(cfg.InviteURL(id), qrcode.Medium, qrSize)
		if err != nil {
			Log.Errorw("QR encode failed", "lobby", id, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(png)
	})

	mux.HandleFunc("GET /api/matches", func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			writeJSON(w, http.StatusOK, map[string]any{"matches": []MatchRecord{}, "outcomes": map[string]int{}})
			return
		}
		matches, err := db.RecentMatches(recentMatches)
		if err != nil {
			Log.Errorw("Loading match history failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		outcomes, err := db.OutcomeCounts()
		if err != nil {
			Log.Errorw("Counting match outcomes failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "outcomes": outcomes})
	})

	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
		defer cancel()
		clients, err := hub.ClientCount(ctx)
		if err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		events, err := hub.analytics.EventCounts(eventWindowDays)
		if err != nil {
			Log.Warnw("Counting analytics events failed", "error", err)
		}
		if events == nil {
			events = map[string]int{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"clients":     clients,
			"connections": hub.TotalConns(),
			"metrics":     hub.metrics.Snapshot(),
			"events":      events,
		})
	})

	return mux
}
