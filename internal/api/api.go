/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface for batch scheduling, validation and
// edit-permission decisions.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/lopan_factory/internal/audit"
	"github.com/friendsincode/lopan_factory/internal/auth"
	"github.com/friendsincode/lopan_factory/internal/cache"
	"github.com/friendsincode/lopan_factory/internal/clock"
	"github.com/friendsincode/lopan_factory/internal/cutoff"
	"github.com/friendsincode/lopan_factory/internal/events"
	"github.com/friendsincode/lopan_factory/internal/logbuffer"
	"github.com/friendsincode/lopan_factory/internal/migration"
	"github.com/friendsincode/lopan_factory/internal/models"
	"github.com/friendsincode/lopan_factory/internal/outofstock"
	"github.com/friendsincode/lopan_factory/internal/permission"
	"github.com/friendsincode/lopan_factory/internal/repository"
	"github.com/friendsincode/lopan_factory/internal/scheduling"
	"github.com/friendsincode/lopan_factory/internal/version"
)

// API exposes HTTP handlers.
type API struct {
	db          *gorm.DB
	jwtSecret   []byte
	tokenTTL    time.Duration
	repo        *repository.BatchRepository
	validator   *scheduling.Validator
	permissions *permission.Service
	policy      *cutoff.Policy
	clock       clock.Provider
	cache       *cache.Cache
	outOfStock  *outofstock.Service
	migration   *migration.Service
	auditSvc    *audit.Service
	bus         *events.Bus
	logs        *logbuffer.Buffer
	logger      zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, jwtSecret []byte, tokenTTL time.Duration, repo *repository.BatchRepository, validator *scheduling.Validator, permissions *permission.Service, policy *cutoff.Policy, clk clock.Provider, c *cache.Cache, outOfStock *outofstock.Service, migrationSvc *migration.Service, auditSvc *audit.Service, bus *events.Bus, logs *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		db:          db,
		jwtSecret:   jwtSecret,
		tokenTTL:    tokenTTL,
		repo:        repo,
		validator:   validator,
		permissions: permissions,
		policy:      policy,
		clock:       clk,
		cache:       c,
		outOfStock:  outOfStock,
		migration:   migrationSvc,
		auditSvc:    auditSvc,
		bus:         bus,
		logs:        logs,
		logger:      logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Public endpoints (no auth required)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Route("/shifts", func(r chi.Router) {
				r.Get("/allowed", a.handleAllowedShifts)
				r.Get("/cutoff-info", a.handleCutoffInfo)
			})

			pr.Route("/machines", func(r chi.Router) {
				r.Get("/", a.handleMachinesList)
				r.Get("/{machineID}/availability", a.handleMachineAvailability)
			})

			pr.Get("/colors", a.handleColorsList)

			pr.Route("/batches", func(r chi.Router) {
				r.Get("/", a.handleBatchesList)
				r.With(a.requireRoles(models.RoleSalesperson, models.RoleWorkshopManager, models.RoleAdministrator)).Post("/", a.handleBatchCreate)
				r.Route("/{batchID}", func(r chi.Router) {
					r.Get("/", a.handleBatchGet)
					r.With(a.requireRoles(models.RoleSalesperson, models.RoleWorkshopManager, models.RoleAdministrator)).Put("/", a.handleBatchUpdate)
					r.With(a.requireRoles(models.RoleWorkshopManager, models.RoleAdministrator)).Delete("/", a.handleBatchDelete)
					r.With(a.requireRoles(models.RoleSalesperson, models.RoleWorkshopManager, models.RoleAdministrator)).Post("/submit", a.handleBatchSubmit)
					r.With(a.requireRoles(models.RoleWorkshopManager, models.RoleAdministrator)).Post("/status", a.handleBatchStatus)
					r.Post("/validate", a.handleBatchValidate)
					r.Get("/cross-time-point", a.handleBatchCrossTimePoint)
					r.Get("/edit-guidance", a.handleBatchEditGuidance)
					r.With(a.requireRoles(models.RoleSalesperson, models.RoleWorkshopManager, models.RoleAdministrator)).Put("/products/{productID}", a.handleProductEdit)
				})
			})

			pr.Route("/out-of-stock", func(r chi.Router) {
				r.Get("/", a.handleOutOfStockList)
				r.With(a.requireRoles(models.RoleSalesperson, models.RoleAdministrator)).Post("/", a.handleOutOfStockCreate)
				r.With(a.requireRoles(models.RoleWarehouseKeeper, models.RoleAdministrator)).Post("/{recordID}/complete", a.handleOutOfStockComplete)
				r.With(a.requireRoles(models.RoleWarehouseKeeper, models.RoleAdministrator)).Post("/{recordID}/return", a.handleOutOfStockReturn)
			})

			// Migration routes (admin only)
			pr.Group(func(mr chi.Router) {
				mr.Use(a.requireRoles(models.RoleAdministrator))
				mr.Get("/migration/status", a.handleMigrationStatus)
				mr.Post("/migration/run", a.handleMigrationRun)
			})

			// Audit log routes (admin only)
			pr.With(a.requireRoles(models.RoleAdministrator)).Get("/audit", a.handleAuditList)

			// Recent process logs (admin only)
			pr.With(a.requireRoles(models.RoleAdministrator)).Get("/logs", a.handleLogsList)

			// Cache flush, for recovering from out-of-band writes such as a
			// CLI store import (admin only)
			pr.With(a.requireRoles(models.RoleAdministrator)).Post("/cache/flush", a.handleCacheFlush)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (a *API) handleCacheFlush(w http.ResponseWriter, r *http.Request) {
	if a.cache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"flushed": false})
		return
	}
	if err := a.cache.FlushAll(r.Context()); err != nil {
		a.logger.Error().Err(err).Msg("cache flush failed")
		writeError(w, http.StatusInternalServerError, "cache_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flushed": true})
}

func (a *API) requireRoles(allowed ...models.RoleName) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !claims.HasRole(allowed...) {
				writeError(w, http.StatusForbidden, "insufficient_role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// actorPayload builds the common audit fields from the request's claims.
func (a *API) actorPayload(r *http.Request) events.Payload {
	payload := events.Payload{"ip_address": r.RemoteAddr}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		payload["actor_id"] = claims.UserID
		payload["actor_name"] = claims.Name
	}
	return payload
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
