// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/termmcp/term-mcp-deepseek/pkg/logging"
)

// serviceName tags logs, metrics and spans.
const serviceName = "relay"

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Server is the relay HTTP server.
type Server struct {
	cfg       Config
	completer ChatCompleter
	store     *ConversationStore
	limiter   *RateLimiter
	metrics   *Metrics
	logger    *logging.Logger
	router    *gin.Engine
}

// NewServer wires the routes. logger may be nil.
func NewServer(cfg Config, completer ChatCompleter, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:       cfg,
		completer: completer,
		store:     NewConversationStore(cfg.SystemPrompt, cfg.SessionTTL, cfg.MaxSessions, cfg.MaxHistory, nil),
		limiter:   NewRateLimiter(cfg.ChatRate, cfg.ChatBurst),
		metrics:   NewMetrics(),
		logger:    logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(SecurityHeaders())
	r.Use(Instrument(s.metrics))
	r.Use(otelgin.Middleware(serviceName))

	r.GET("/health", s.HandleHealth)
	r.POST("/chat", s.limiter.Middleware(s.metrics), s.HandleChat)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	s.router = r
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store exposes the conversation store.
func (s *Server) Store() *ConversationStore {
	return s.store
}

// Serve runs the server on ln until ctx is cancelled.
//
// # Description
//
// The HTTP server and the session janitor run in one errgroup: a listener
// failure stops the janitor, and cancelling ctx shuts the server down
// gracefully (in-flight requests get shutdownTimeout).
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("relay listening", "addr", ln.Addr().String(), "model", s.cfg.Model)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("relay stopped")
		return nil
	})

	g.Go(func() error {
		s.runJanitor(gctx)
		return nil
	})

	return g.Wait()
}

// runJanitor expires idle conversations and rate-limiter entries.
func (s *Server) runJanitor(ctx context.Context) {
	interval := s.cfg.JanitorInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() {
	expired := s.store.Expire()
	pruned := s.limiter.Prune(s.cfg.SessionTTL)
	s.metrics.ActiveSessions.Set(float64(s.store.Len()))
	if expired > 0 || pruned > 0 {
		s.logger.Info("janitor sweep", "expired_sessions", expired, "pruned_clients", pruned)
	}
}

// Run listens on cfg.Host:cfg.Port and serves until ctx is cancelled,
// with tracing set up per cfg.TraceStdout.
func Run(ctx context.Context, cfg Config, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Nop()
	}

	shutdownTracing, err := initTracing(cfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	return NewServer(cfg, NewDeepSeekClient(cfg), logger).Serve(ctx, ln)
}

// initTracing installs a tracer provider exporting to stderr when enabled.
// Disabled tracing leaves the global no-op provider in place.
func initTracing(cfg Config) (func(context.Context) error, error) {
	if !cfg.TraceStdout {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}
