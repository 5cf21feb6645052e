package network

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"breakout/store"
	"breakout/transport"
)

var upgrader = websocket.Upgrader{
	// For dev, allow all origins. Lock this down in prod.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StatusFunc reports the session state for /healthz.
type StatusFunc func(ctx context.Context) (any, error)

type MatchLister interface {
	RecentMatches(ctx context.Context, limit int) ([]store.Match, error)
}

func loggerOrStderr(logger *log.Logger) *log.Logger {
	if logger != nil {
		return logger
	}
	return log.New(os.Stderr, "network: ", log.LstdFlags)
}

// Handler upgrades a request, waits for Hello and attaches the connection to srv.
func Handler(srv *transport.Server, logger *log.Logger) http.Handler {
	logger = loggerOrStderr(logger)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Println("upgrade:", err)
			return
		}
		c := newWSConn(ws)
		hello, err := c.readHello()
		if err != nil {
			logger.Printf("%s: %v", r.RemoteAddr, err)
			_ = ws.Close()
			return
		}
		go c.writePump()

		id, err := srv.Attach(c, hello)
		if err != nil {
			logger.Printf("%s: attach: %v", r.RemoteAddr, err)
			_ = c.Close()
			return
		}
		err = c.readPump(func(frame []byte) { srv.Deliver(id, frame) })
		srv.Detach(id, err)
		_ = c.Close()
	})
}

// NewRouter serves /ws, /healthz and /matches. status and matches may be nil.
func NewRouter(srv *transport.Server, status StatusFunc, matches MatchLister, logger *log.Logger) *mux.Router {
	logger = loggerOrStderr(logger)
	r := mux.NewRouter()
	r.Handle("/ws", Handler(srv, logger))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]any{"ok": true, "peers": len(srv.Peers())}
		if status != nil {
			ctx, cancel := context.WithTimeout(req.Context(), time.Second)
			defer cancel()
			st, err := status(ctx)
			if err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()}, logger)
				return
			}
			body["room"] = st
		}
		writeJSON(w, http.StatusOK, body, logger)
	}).Methods(http.MethodGet)
	r.HandleFunc("/matches", func(w http.ResponseWriter, req *http.Request) {
		if matches == nil {
			http.Error(w, "match history is disabled", http.StatusServiceUnavailable)
			return
		}
		limit := 0
		if v := req.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		list, err := matches.RecentMatches(req.Context(), limit)
		if err != nil {
			logger.Printf("matches: %v", err)
			http.Error(w, "could not load matches", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []store.Match{}
		}
		writeJSON(w, http.StatusOK, list, logger)
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *log.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf("write response: %v", err)
	}
}
