// Package web serves calculator and decoder pages with shared footer and menu fragments injected, and JSON API used
// by these pages.
package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/aldas/go-canxl-regs/bittiming"
	"github.com/aldas/go-canxl-regs/partial"
	"github.com/aldas/go-canxl-regs/regmap"
	"github.com/aldas/go-canxl-regs/web/static"
)

const shutdownTimeout = 5 * time.Second

// Config holds server settings.
type Config struct {
	Listen      string
	ReadTimeout time.Duration
	// FragmentBaseURL is where footer and menu are fetched from. Empty means embedded static files.
	FragmentBaseURL    string
	CalculatorDefaults bittiming.Params
}

type Server struct {
	config   Config
	logger   *slog.Logger
	registry *regmap.Registry
	static   fs.FS
	fetcher  partial.Fetcher
	loaders  []*partial.Loader
	handler  http.Handler
}

// NewServer creates server serving embedded static site.
func NewServer(config Config, registry *regmap.Registry, logger *slog.Logger) *Server {
	return NewServerWithFS(config, registry, logger, static.FS)
}

// NewServerWithFS creates server serving pages and fragments from given file system.
func NewServerWithFS(config Config, registry *regmap.Registry, logger *slog.Logger, site fs.FS) *Server {
	s := &Server{
		config:   config,
		logger:   logger,
		registry: registry,
		static:   site,
	}
	if config.FragmentBaseURL != "" {
		s.fetcher = partial.NewHTTPFetcher(config.FragmentBaseURL, config.ReadTimeout)
	} else {
		s.fetcher = partial.FSFetcher{FS: site}
	}
	s.loaders = []*partial.Loader{
		partial.NewLoader(partial.FooterConfig(), s.fetcher),
		partial.NewLoader(partial.MenuConfig(), s.fetcher),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /api/bittiming", s.bitTimingHandler)
	mux.HandleFunc("POST /api/decode/{variant}/{block}", s.decodeHandler)
	mux.HandleFunc("GET /api/modules", s.modulesHandler)
	mux.HandleFunc("GET /", s.staticHandler)
	s.handler = requestLogger(logger, mux)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves requests until context is cancelled and then shuts server down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.ReadTimeout,
		ReadTimeout:       s.config.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if c, ok := s.fetcher.(*partial.HTTPFetcher); ok {
		return c.Close()
	}
	return nil
}
