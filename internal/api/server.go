// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/feedd/internal/api/middleware"
	"github.com/newthinker/feedd/internal/api/response"
	"github.com/newthinker/feedd/internal/core"
	"github.com/newthinker/feedd/internal/feed"
	"github.com/newthinker/feedd/internal/health"
	"github.com/newthinker/feedd/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server serves the read-only price API over the cache.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux

	cache   *feed.Cache
	tracker *health.Tracker
	metrics *metrics.Registry
}

// Config holds server configuration.
type Config struct {
	Host   string
	Port   int
	APIKey string // empty disables authentication
}

// Dependencies holds the collaborators the API reads from.
type Dependencies struct {
	Cache   *feed.Cache
	Tracker *health.Tracker
	Metrics *metrics.Registry // optional
}

// NewServer creates the HTTP server and wires its routes.
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Cache == nil || deps.Tracker == nil {
		return nil, fmt.Errorf("cache and tracker are required")
	}

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			ReadTimeout: 15 * time.Second,
			// No WriteTimeout: /api/v1/stream holds its connection open.
			IdleTimeout: 60 * time.Second,
		},
		logger:  logger,
		mux:     mux,
		cache:   deps.Cache,
		tracker: deps.Tracker,
		metrics: deps.Metrics,
	}

	s.setupRoutes(cfg.APIKey)

	var handler http.Handler = mux
	if s.metrics != nil {
		handler = metrics.HTTPMiddleware(s.metrics)(handler)
	}
	s.httpServer.Handler = handler

	return s, nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(apiKey string) {
	auth := middleware.APIKeyAuth(apiKey)

	s.mux.Handle("GET /api/v1/snapshot", auth(http.HandlerFunc(s.handleSnapshot)))
	s.mux.Handle("GET /api/v1/assets/{id}", auth(http.HandlerFunc(s.handleAsset)))
	s.mux.Handle("GET /api/v1/providers", auth(http.HandlerFunc(s.handleProviders)))
	s.mux.Handle("GET /api/v1/stream", auth(http.HandlerFunc(s.handleStream)))

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleSnapshot returns the current snapshot. Reads never block on a
// refresh cycle; a stale snapshot carries Stale=true rather than an
// error.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, s.cache.Get())
}

// handleAsset returns the latest record for one tracked asset.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap := s.cache.Get()

	record, ok := snap.PerAsset[id]
	if !ok {
		response.Error(w, http.StatusNotFound,
			core.WrapError(core.ErrAssetUnknown, fmt.Errorf("asset %q", id)))
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"record":       record,
		"stale":        snap.Stale,
		"refreshed_at": snap.RefreshedAt,
	})
}

// handleProviders returns the per-provider health view.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"providers":    s.tracker.Snapshot(),
		"health_score": s.tracker.AggregateScore(),
	})
}

// handleStream pushes every published snapshot to the client as
// server-sent events. The subscription starts with the current state,
// so a client is never without data while waiting for the next cycle.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, http.StatusInternalServerError,
			core.WrapError(core.ErrNoData, fmt.Errorf("streaming unsupported")))
		return
	}

	sub := s.cache.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-sub.C:
			if !open {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				s.logger.Warn("encoding stream event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
