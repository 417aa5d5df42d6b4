// Package server exposes playlist editing, publishing and merging over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/agleyzer/hlsclip/internal/merge"
	"github.com/agleyzer/hlsclip/internal/segment"
	"github.com/agleyzer/hlsclip/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PublishedName is the store key of the edited playlist.
const PublishedName = "updated_playlist.m3u8"

// Config holds the server settings.
type Config struct {
	// Addr is the listen address (host:port).
	Addr string
	// HLSDir holds the source playlist and its segment files.
	HLSDir string
	// Playlist is the source playlist file name inside HLSDir.
	Playlist string
	// OutputDir holds merged files available for download.
	OutputDir string
	// SourceURL is the locator handed to the merge collaborator.
	SourceURL string
	// MergeTimeout bounds a single merge; zero means no limit.
	MergeTimeout time.Duration
	// CORSOrigins lists the allowed origins.
	CORSOrigins []string
}

// Server serves the source stream, the published playlist and merge requests.
type Server struct {
	cfg        Config
	store      store.Store
	merger     *merge.Builder
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server

	// Parsed source playlist, reloaded when the file changes.
	mu       sync.RWMutex
	index    *segment.Index
	indexMod time.Time
	indexLen int64
}

// New creates a new HTTP server.
func New(cfg Config, st store.Store, merger *merge.Builder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	s := &Server{
		cfg:    cfg,
		store:  st,
		merger: merger,
		logger: logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     s.cfg.CORSOrigins,
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Accept", "Content-Type", "Range"},
		ExposedHeaders:     []string{"Content-Disposition", "Content-Length"},
		MaxAge:             300,
		OptionsPassthrough: false,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/cluster/status", s.handleClusterStatus)

	r.Route("/api", func(r chi.Router) {
		r.Get("/hls", s.handleSourcePlaylist)
		r.Get("/index", s.handleIndex)
		r.Get("/video-stream", s.handleVideoStream)
		r.Post("/hls/update", s.handleUpdate)
		r.Post("/hls/reconstruct", s.handleReconstruct)
		r.Get("/published", s.handleListPublished)
		r.Get("/"+PublishedName, s.handlePublished)
		r.Post("/merge-video", s.handleMerge)
		r.Post("/extract-video", s.handleExtract)
		r.Get("/output/{name}", s.handleOutput)
		r.Get("/{filename}", s.handleSegment)
	})

	return r
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		s.logger.Info("HTTP request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
