package httpapi

import (
	"context"
	"embed"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/homewatch/internal/domain"
	apimw "github.com/hamed0406/homewatch/internal/httpapi/middleware"
)

//go:embed static/index.html static/favicon.svg
var static embed.FS

// Snapshotter produces the sorted view served on /status.
type Snapshotter interface {
	Snapshot(ctx context.Context) domain.Snapshot
}

type Server struct {
	Logger    *zap.Logger
	Snapshots Snapshotter
}

func NewServer(l *zap.Logger, s Snapshotter) *Server {
	return &Server{Logger: l, Snapshots: s}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(apimw.AccessLog(s.Logger))
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/status", s.handleStatus)
	r.Get("/", s.serveStatic("static/index.html", "text/html; charset=utf-8"))
	r.Get("/favicon.svg", s.serveStatic("static/favicon.svg", "image/svg+xml"))

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Snapshots.Snapshot(r.Context())
	body, err := json.Marshal(snap)
	if err != nil {
		s.Logger.Error("status_encode_error", zap.Error(err))
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(body)
}

func (s *Server) serveStatic(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := static.ReadFile(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(b)
	}
}
