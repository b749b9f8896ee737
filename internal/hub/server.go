package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sanity-io/litter"

	"LiveBoard/internal/export"
)

// Server exposes a hub over HTTP: the websocket endpoint plus read-only views
// of the history.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	router   *mux.Router
	log      *slog.Logger
}

// NewServer builds the router for h.
func NewServer(h *Hub) *Server {
	s := &Server{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: h.cfg.Logger.With("component", "http"),
	}

	r := mux.NewRouter()
	r.Use(s.accessLog)
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.handleSocket)
	r.Methods(http.MethodGet).Path("/history").HandlerFunc(s.handleHistory)
	r.Methods(http.MethodGet).Path("/export.pdf").HandlerFunc(s.handleExport)
	r.Methods(http.MethodGet).Path("/debug/state").HandlerFunc(s.handleDebug)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.handleHealth)
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.Info("handled", "method", r.Method, "url", r.URL, "duration", m.Duration, "status", m.Code)
	})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade", "err", err)
		return
	}

	peer := newWSPeer(conn, s.hub.cfg)
	id, err := s.hub.Join(peer)
	if err != nil {
		s.log.Error("failed to join", "err", err)
		_ = conn.Close()
		return
	}

	go peer.writePump()
	peer.readPump(id, s.hub)
	_ = s.hub.Leave(id)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.hub.Store().SnapshotHistory())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/pdf")
	if err := export.WritePDF(w, s.hub.Store().SnapshotHistory(), export.Options{}); err != nil {
		s.log.Error("failed to export", "err", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
	}
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.hub.Sessions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "store:\n%s\n\nsessions:\n%s\n", s.hub.Store().Dump(), litter.Sdump(sessions))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.hub.Sessions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{
		"status":   "ok",
		"sessions": len(sessions),
		"store":    s.hub.Store().Stats(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "err", err)
	}
}
