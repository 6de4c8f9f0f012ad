/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires configuration, storage, rule services and transport
// into one runnable HTTP process.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/lopan_factory/internal/api"
	"github.com/friendsincode/lopan_factory/internal/audit"
	"github.com/friendsincode/lopan_factory/internal/cache"
	"github.com/friendsincode/lopan_factory/internal/clock"
	"github.com/friendsincode/lopan_factory/internal/config"
	"github.com/friendsincode/lopan_factory/internal/cutoff"
	"github.com/friendsincode/lopan_factory/internal/db"
	"github.com/friendsincode/lopan_factory/internal/events"
	"github.com/friendsincode/lopan_factory/internal/logbuffer"
	"github.com/friendsincode/lopan_factory/internal/migration"
	"github.com/friendsincode/lopan_factory/internal/outofstock"
	"github.com/friendsincode/lopan_factory/internal/permission"
	"github.com/friendsincode/lopan_factory/internal/repository"
	"github.com/friendsincode/lopan_factory/internal/scheduling"
	"github.com/friendsincode/lopan_factory/internal/telemetry"
	"github.com/friendsincode/lopan_factory/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error
	logBuf     *logbuffer.Buffer
	updates    *version.Checker

	db         *gorm.DB
	cache      *cache.Cache
	bus        *events.Bus
	repo       *repository.BatchRepository
	policy     *cutoff.Policy
	validator  *scheduling.Validator
	permission *permission.Service
	outOfStock *outofstock.Service
	migration  *migration.Service
	auditSvc   *audit.Service
	api        *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. logBuf may be nil when
// the caller does not capture logs.
func New(cfg *config.Config, logger zerolog.Logger, logBuf *logbuffer.Buffer) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.TracingMiddleware("lopan-factory-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		logBuf: logBuf,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	// Redis cache for machine/color/batch lookups; absent Redis degrades to
	// direct database reads.
	if s.cfg.RedisAddr != "" {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		entityCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			s.cache = entityCache
			s.DeferClose(func() error { return s.cache.Close() })
		}
	}

	clk := clock.NewSystem(s.cfg.Location())
	s.policy = cutoff.NewPolicy(s.cfg.CutoffHour, clk)
	s.repo = repository.NewBatchRepository(database)
	s.validator = scheduling.NewValidator(s.repo, s.policy, clk, s.logger)
	s.permission = permission.NewService(s.logger)
	s.outOfStock = outofstock.NewService(database, s.cache, s.bus, s.logger)
	s.migration = migration.NewService(s.repo, s.policy, s.bus, s.logger)
	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	s.api = api.New(database, []byte(s.cfg.JWTSigningKey), s.cfg.JWTTokenTTL, s.repo, s.validator, s.permission, s.policy, clk, s.cache, s.outOfStock, s.migration, s.auditSvc, s.bus, s.logBuf, s.logger)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Audit service consumes bus events and persists them.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.auditSvc.Start(ctx)
	}()

	// Database connection pool metrics.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()

	// Periodic check for newer releases; failures only log at debug.
	s.updates = version.NewChecker(s.logger)
	s.updates.Start(ctx)

	// Prometheus metrics on the internal bind address.
	if s.cfg.MetricsBind != "" {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.startMetricsServer(ctx)
		}()
	}

	// Cache invalidation listener keeps batch snapshots honest after writes.
	if s.cache != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}
}

// runCacheInvalidationListener subscribes to mutation events and drops the
// affected cache entries.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	batchUpdated := s.bus.Subscribe(events.EventBatchUpdated)
	batchSubmitted := s.bus.Subscribe(events.EventBatchSubmitted)
	batchDeleted := s.bus.Subscribe(events.EventBatchDeleted)
	batchMigrated := s.bus.Subscribe(events.EventBatchMigrated)
	productEdited := s.bus.Subscribe(events.EventProductEdited)

	defer func() {
		s.bus.Unsubscribe(events.EventBatchUpdated, batchUpdated)
		s.bus.Unsubscribe(events.EventBatchSubmitted, batchSubmitted)
		s.bus.Unsubscribe(events.EventBatchDeleted, batchDeleted)
		s.bus.Unsubscribe(events.EventBatchMigrated, batchMigrated)
		s.bus.Unsubscribe(events.EventProductEdited, productEdited)
	}()

	s.logger.Info().Msg("cache invalidation listener started")

	invalidateBatch := func(payload events.Payload) {
		if batchID, ok := payload["entity_id"].(string); ok {
			s.cache.InvalidateBatch(ctx, batchID)
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return
		case payload := <-batchUpdated:
			invalidateBatch(payload)
		case payload := <-batchSubmitted:
			invalidateBatch(payload)
		case payload := <-batchDeleted:
			invalidateBatch(payload)
		case payload := <-batchMigrated:
			invalidateBatch(payload)
		case payload := <-productEdited:
			if batchID, ok := payload["batch_id"].(string); ok {
				s.cache.InvalidateBatch(ctx, batchID)
			}
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.api.Routes(s.router)
}

// startMetricsServer serves Prometheus metrics on the internal bind address
// so they are never exposed on the public API port.
func (s *Server) startMetricsServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())

	metricsServer := &http.Server{
		Addr:              s.cfg.MetricsBind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("bind", s.cfg.MetricsBind).Msg("metrics server listening")
	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("metrics server exited")
	}
}
