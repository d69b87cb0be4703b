// Package server exposes the advisor over a small JSON HTTP API with
// per-client rate limiting, a connection cap and prometheus metrics.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/ppiankov/medrights/internal/advisor"
	"github.com/ppiankov/medrights/internal/model"
	"github.com/ppiankov/medrights/internal/worker"
)

const (
	serviceName     = "MedRights"
	serviceSystem   = "Proof-carrying medical rights advisor"
	historyLimit    = 50
	shutdownTimeout = 10 * time.Second
)

// Option configures a Server
type Option func(*Server)

// WithLogger sets the structured logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCollectors registers extra prometheus collectors on the server's
// registry
func WithCollectors(cs ...prometheus.Collector) Option {
	return func(s *Server) { s.extra = append(s.extra, cs...) }
}

// Server serves the HTTP API
type Server struct {
	advisor  *advisor.Advisor
	cfg      model.ServerConfig
	limiter  *worker.Limiter
	history  *History
	markdown goldmark.Markdown
	registry *prometheus.Registry
	metrics  *metrics
	logger   *zap.Logger
	extra    []prometheus.Collector
	handler  http.Handler
}

// New builds a server for adv
func New(adv *advisor.Advisor, cfg model.ServerConfig, opts ...Option) *Server {
	s := &Server{
		advisor:  adv,
		cfg:      cfg,
		limiter:  worker.NewLimiter(cfg.RequestsPerSecond, cfg.Burst, cfg.TrackedClients),
		history:  NewHistory(cfg.TrackedClients, historyLimit),
		markdown: goldmark.New(),
		registry: prometheus.NewRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.metrics = newMetrics(s.registry, adv)
	s.registry.MustRegister(s.extra...)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /api/system/stats", s.limited(s.handleStats))
	mux.Handle("POST /api/query", s.limited(s.handleQuery))
	mux.Handle("GET /api/examples", s.limited(s.handleExamples))
	mux.Handle("GET /api/knowledge/search", s.limited(s.handleSearch))
	mux.Handle("GET /api/clauses/{id}", s.limited(s.handleClause))
	mux.Handle("GET /api/history", s.limited(s.handleHistory))
	mux.Handle("POST /api/history/clear", s.limited(s.handleHistoryClear))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.handler = s.instrument(mux)
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln, capped at the configured number of concurrent
// connections, and shuts down gracefully when ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("serving", zap.String("addr", ln.Addr().String()), zap.Int("max_connections", s.cfg.MaxConnections))

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-shutdownErr
}

// renderHTML converts an answer to HTML for browser front ends. Raw HTML in
// the answer, including anything echoed from the query, is dropped.
func (s *Server) renderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(markdown), &buf); err != nil {
		s.logger.Warn("render answer html", zap.Error(err))
		return ""
	}
	return buf.String()
}
