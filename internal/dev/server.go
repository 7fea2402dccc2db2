package dev

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-json-experiment/json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/propgen/pkg/propgen"
)

// ArtifactSource is the view of the controller the status server needs.
type ArtifactSource interface {
	Artifacts() []propgen.Artifact
	Passes() int64
}

// ServerOptions configures the status server.
type ServerOptions struct {
	// Addr is the listen address, e.g. "localhost:7070".
	Addr string

	// Artifacts backs /artifacts and /healthz.
	Artifacts ArtifactSource

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Hub backs /events. Nil disables the endpoint.
	Hub *Hub

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the watch mode status server.
type Server struct {
	options    ServerOptions
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
	mu         sync.Mutex
	running    bool
}

// NewServer creates a new status server.
func NewServer(options ServerOptions) *Server {
	if options.Gatherer == nil {
		options.Gatherer = prometheus.DefaultGatherer
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{options: options, logger: logger}
	s.router = s.routes()
	return s
}

type artifactInfo struct {
	Key    string `json:"key"`
	File   string `json:"file"`
	Digest string `json:"digest"`
	Size   int    `json:"size"`
}

type health struct {
	Status    string `json:"status"`
	Passes    int64  `json:"passes"`
	Artifacts int    `json:"artifacts"`
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.options.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/artifacts", s.handleArtifacts)
	r.Get("/artifacts/*", s.handleArtifact)
	if s.options.Hub != nil {
		r.Get("/events", s.options.Hub.HandleWebSocket)
	}
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := health{Status: "ok"}
	if s.options.Artifacts != nil {
		h.Passes = s.options.Artifacts.Passes()
		h.Artifacts = len(s.options.Artifacts.Artifacts())
	}
	s.writeJSON(w, h)
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	list := []artifactInfo{}
	if s.options.Artifacts != nil {
		for _, a := range s.options.Artifacts.Artifacts() {
			list = append(list, artifactInfo{
				Key:    a.Key(),
				File:   a.Path(),
				Digest: a.Digest.String(),
				Size:   len(a.Source),
			})
		}
	}
	s.writeJSON(w, list)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	// Keys are import paths and contain slashes.
	key := chi.URLParam(r, "*")
	if s.options.Artifacts != nil {
		for _, a := range s.options.Artifacts.Artifacts() {
			if a.Key() == key {
				w.Header().Set("Content-Type", "text/x-go; charset=utf-8")
				w.Header().Set("ETag", `"`+a.Digest.String()+`"`)
				w.Write(a.Source)
				return
			}
		}
	}
	http.NotFound(w, r)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, v, json.Deterministic(true)); err != nil {
		s.logger.Warn("status response failed", "error", err)
	}
}

// Start binds Addr and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	ln, err := net.Listen("tcp", s.options.Addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("status server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		return err
	}
}

// Stop stops the server.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	if s.options.Hub != nil {
		s.options.Hub.Close()
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}
