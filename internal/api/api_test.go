/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/lopan_factory/internal/audit"
	"github.com/friendsincode/lopan_factory/internal/auth"
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
)

var testSecret = []byte("test-signing-key")

type testHarness struct {
	router chi.Router
	db     *gorm.DB
	repo   *repository.BatchRepository
}

func newTestHarness(t *testing.T, now time.Time) *testHarness {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = database.AutoMigrate(
		&models.User{},
		&models.Machine{},
		&models.ColorCard{},
		&models.ProductionBatch{},
		&models.ProductConfig{},
		&models.CustomerOutOfStock{},
		&models.AuditLog{},
	)
	if err != nil {
		t.Fatalf("migrate schema: %v", err)
	}

	clk := clock.Fixed{Instant: now}
	policy := cutoff.NewPolicy(12, clk)
	repo := repository.NewBatchRepository(database)
	validator := scheduling.NewValidator(repo, policy, clk, zerolog.Nop())
	permissions := permission.NewService(zerolog.Nop())
	bus := events.NewBus()
	outOfStock := outofstock.NewService(database, nil, bus, zerolog.Nop())
	migrationSvc := migration.NewService(repo, policy, bus, zerolog.Nop())
	auditSvc := audit.NewService(database, bus, zerolog.Nop())

	apiHandler := New(database, testSecret, time.Hour, repo, validator, permissions, policy, clk, nil, outOfStock, migrationSvc, auditSvc, bus, logbuffer.New(64), zerolog.Nop())

	router := chi.NewRouter()
	apiHandler.Routes(router)

	return &testHarness{router: router, db: database, repo: repo}
}

func (h *testHarness) token(t *testing.T, role models.RoleName) string {
	t.Helper()
	token, err := auth.Issue(testSecret, auth.Claims{UserID: "user-1", Name: "张伟", Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (h *testHarness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func beforeCutoff() time.Time {
	return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
}

func afterCutoff() time.Time {
	return time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
}

func batchBody(shift cutoff.Shift) map[string]any {
	return map[string]any{
		"batch_number": "PC-100",
		"machine_id":   "machine-1",
		"target_date":  "2026-03-10",
		"shift":        string(shift),
		"products": []map[string]any{
			{"product_name": "毛衣A", "primary_color_id": "red", "occupied_stations": []int{1, 2}},
		},
	}
}

func TestLogin(t *testing.T) {
	h := newTestHarness(t, beforeCutoff())

	hash, err := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := models.User{ID: "u1", Username: "zhangwei", Name: "张伟", Password: string(hash), Role: models.RoleWorkshopManager}
	if err := h.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	rec := h.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "zhangwei",
		"password": "secret-pass",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body)
	}
	var resp loginResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" || resp.User.Role != models.RoleWorkshopManager {
		t.Fatalf("login response = %+v", resp)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "zhangwei",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d, want 401", rec.Code)
	}
}

func TestBatchesRequireAuthentication(t *testing.T) {
	h := newTestHarness(t, beforeCutoff())

	rec := h.do(t, http.MethodGet, "/api/v1/batches/?date=2026-03-10&shift=morning", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBatchCreateAndList(t *testing.T) {
	h := newTestHarness(t, beforeCutoff())
	token := h.token(t, models.RoleWorkshopManager)

	rec := h.do(t, http.MethodPost, "/api/v1/batches/", token, batchBody(cutoff.ShiftMorning))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/batches/?date=2026-03-10&shift=morning", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var resp struct {
		Batches []models.ProductionBatch `json:"batches"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Batches) != 1 || resp.Batches[0].BatchNumber != "PC-100" {
		t.Fatalf("batches = %+v", resp.Batches)
	}
}

func TestBatchCreateRejectsMorningShiftAfterCutoff(t *testing.T) {
	h := newTestHarness(t, afterCutoff())
	token := h.token(t, models.RoleWorkshopManager)

	rec := h.do(t, http.MethodPost, "/api/v1/batches/", token, batchBody(cutoff.ShiftMorning))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("create status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "班次") {
		t.Fatalf("body %s missing shift failure", rec.Body)
	}

	// Evening shift is still allowed after the cutoff.
	rec = h.do(t, http.MethodPost, "/api/v1/batches/", token, batchBody(cutoff.ShiftEvening))
	if rec.Code != http.StatusCreated {
		t.Fatalf("evening create status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestBatchCreateForbiddenForWarehouseKeeper(t *testing.T) {
	h := newTestHarness(t, beforeCutoff())
	token := h.token(t, models.RoleWarehouseKeeper)

	rec := h.do(t, http.MethodPost, "/api/v1/batches/", token, batchBody(cutoff.ShiftMorning))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestBatchSubmitFlow(t *testing.T) {
	h := newTestHarness(t, beforeCutoff())
	token := h.token(t, models.RoleWorkshopManager)

	rec := h.do(t, http.MethodPost, "/api/v1/batches/", token, batchBody(cutoff.ShiftMorning))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created models.ProductionBatch
	decodeBody(t, rec, &created)

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/batches/%s/submit", created.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body)
	}

	loaded, err := h.repo.FetchBatchByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("fetch batch: %v", err)
	}
	if loaded.Status != models.BatchPending {
		t.Fatalf("status = %s, want pending", loaded.Status)
	}
	if loaded.SubmitterName != "张伟" {
		t.Fatalf("submitter = %q", loaded.SubmitterName)
	}

	// Second submit conflicts.
	rec = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/batches/%s/submit", created.ID), token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double submit status = %d, want 409", rec.Code)
	}
}

func TestBatchStatusTransitions(t *testing.T) {
	h := newTestHarness(t, beforeCutoff())
	token := h.token(t, models.RoleWorkshopManager)

	rec := h.do(t, http.MethodPost, "/api/v1/batches/", token, batchBody(cutoff.ShiftMorning))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created models.ProductionBatch
	decodeBody(t, rec, &created)

	statusURL := fmt.Sprintf("/api/v1/batches/%s/status", created.ID)

	// Unsubmitted batches only move through the submit flow.
	rec = h.do(t, http.MethodPost, statusURL, token, map[string]any{"status": "active"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("unsubmitted transition status = %d, want 409", rec.Code)
	}

	rec = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/batches/%s/submit", created.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body)
	}

	rec = h.do(t, http.MethodPost, statusURL, token, map[string]any{"status": "completed"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("pending->completed status = %d, want 409", rec.Code)
	}

	rec = h.do(t, http.MethodPost, statusURL, token, map[string]any{"status": "active"})
	if rec.Code != http.StatusOK {
		t.Fatalf("pending->active status = %d, body %s", rec.Code, rec.Body)
	}

	rec = h.do(t, http.MethodPost, statusURL, token, map[string]any{"status": "completed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("active->completed status = %d, body %s", rec.Code, rec.Body)
	}

	loaded, err := h.repo.FetchBatchByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("fetch batch: %v", err)
	}
	if loaded.Status != models.BatchCompleted {
		t.Fatalf("status = %s, want completed", loaded.Status)
	}

	// Salespeople cannot drive the production lifecycle.
	salesToken := h.token(t, models.RoleSalesperson)
	rec = h.do(t, http.MethodPost, statusURL, salesToken, map[string]any{"status": "cancelled"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("salesperson transition status = %d, want 403", rec.Code)
	}
}

func TestProductEditColorOnlyRestriction(t *testing.T) {
	h := newTestHarness(t, beforeCutoff())
	token := h.token(t, models.RoleWorkshopManager)

	target := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	shift := cutoff.ShiftMorning
	batch := &models.ProductionBatch{
		ID:                          "locked",
		BatchNumber:                 "PC-200",
		MachineID:                   "machine-1",
		Status:                      models.BatchPending,
		TargetDate:                  &target,
		Shift:                       &shift,
		AllowsColorModificationOnly: true,
		Products: []models.ProductConfig{
			{ID: "prod-1", ProductName: "毛衣A", PrimaryColorID: "red", OccupiedStations: models.StationList{1, 2}},
		},
	}
	if err := h.db.Create(batch).Error; err != nil {
		t.Fatalf("create locked batch: %v", err)
	}

	// Color change is allowed.
	rec := h.do(t, http.MethodPut, "/api/v1/batches/locked/products/prod-1", token, map[string]any{
		"primary_color_id": "blue",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("color edit status = %d, body %s", rec.Code, rec.Body)
	}

	// Renaming the product is redirected, not applied.
	rec = h.do(t, http.MethodPut, "/api/v1/batches/locked/products/prod-1", token, map[string]any{
		"product_name": "毛衣B",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("structural edit status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "颜色修改") {
		t.Fatalf("body %s missing color-only reason", rec.Body)
	}

	var stored models.ProductConfig
	if err := h.db.First(&stored, "id = ?", "prod-1").Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	if stored.ProductName != "毛衣A" || stored.PrimaryColorID != "blue" {
		t.Fatalf("stored product = %+v", stored)
	}
}

func TestAllowedShiftsEndpoint(t *testing.T) {
	type shiftsResponse struct {
		Shifts []shiftOption `json:"shifts"`
	}

	h := newTestHarness(t, beforeCutoff())
	token := h.token(t, models.RoleSalesperson)

	rec := h.do(t, http.MethodGet, "/api/v1/shifts/allowed?date=2026-03-10", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp shiftsResponse
	decodeBody(t, rec, &resp)
	for _, opt := range resp.Shifts {
		if !opt.Allowed {
			t.Fatalf("shift %s not allowed before cutoff", opt.Shift)
		}
	}

	late := newTestHarness(t, afterCutoff())
	rec = late.do(t, http.MethodGet, "/api/v1/shifts/allowed?date=2026-03-10", late.token(t, models.RoleSalesperson), nil)
	decodeBody(t, rec, &resp)
	for _, opt := range resp.Shifts {
		if opt.Shift == cutoff.ShiftMorning && opt.Allowed {
			t.Fatal("morning shift allowed after cutoff")
		}
		if opt.Shift == cutoff.ShiftEvening && !opt.Allowed {
			t.Fatal("evening shift blocked after cutoff")
		}
	}
}

func TestCutoffInfoEndpoint(t *testing.T) {
	h := newTestHarness(t, time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC))
	token := h.token(t, models.RoleSalesperson)

	rec := h.do(t, http.MethodGet, "/api/v1/shifts/cutoff-info?date=2026-03-10", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Cutoff cutoff.Info `json:"cutoff"`
	}
	decodeBody(t, rec, &resp)
	if resp.Cutoff.IsAfterCutoff {
		t.Fatal("11:30 reported as after cutoff")
	}
	if resp.Cutoff.RemainingMinutes == nil || *resp.Cutoff.RemainingMinutes != 30 {
		t.Fatalf("remaining minutes = %v, want 30", resp.Cutoff.RemainingMinutes)
	}
}

func TestOutOfStockEndpoints(t *testing.T) {
	h := newTestHarness(t, beforeCutoff())
	sales := h.token(t, models.RoleSalesperson)
	keeper := h.token(t, models.RoleWarehouseKeeper)

	rec := h.do(t, http.MethodPost, "/api/v1/out-of-stock/", sales, map[string]any{
		"customer_name": "王记针织",
		"product_name":  "毛衣A",
		"quantity":      20,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	var created models.CustomerOutOfStock
	decodeBody(t, rec, &created)

	// Salespeople cannot complete requests.
	rec = h.do(t, http.MethodPost, "/api/v1/out-of-stock/"+created.ID+"/complete", sales, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("salesperson complete status = %d, want 403", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/out-of-stock/"+created.ID+"/complete", keeper, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("keeper complete status = %d, body %s", rec.Code, rec.Body)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/out-of-stock/?status=completed", sales, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Total int64 `json:"total"`
	}
	decodeBody(t, rec, &list)
	if list.Total != 1 {
		t.Fatalf("completed total = %d, want 1", list.Total)
	}
}

func TestMigrationEndpointsRequireAdmin(t *testing.T) {
	h := newTestHarness(t, afterCutoff())

	legacy := &models.ProductionBatch{
		ID:          "legacy",
		BatchNumber: "PC-OLD",
		MachineID:   "machine-1",
		Status:      models.BatchCompleted,
		CreatedAt:   time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := h.db.Create(legacy).Error; err != nil {
		t.Fatalf("create legacy batch: %v", err)
	}

	manager := h.token(t, models.RoleWorkshopManager)
	rec := h.do(t, http.MethodGet, "/api/v1/migration/status", manager, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("manager status = %d, want 403", rec.Code)
	}

	admin := h.token(t, models.RoleAdministrator)
	rec = h.do(t, http.MethodGet, "/api/v1/migration/status", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d", rec.Code)
	}
	var status struct {
		Pending int `json:"pending"`
	}
	decodeBody(t, rec, &status)
	if status.Pending != 1 {
		t.Fatalf("pending = %d, want 1", status.Pending)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/migration/run", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d, body %s", rec.Code, rec.Body)
	}
	var summary migration.Summary
	decodeBody(t, rec, &summary)
	if summary.Migrated != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestCacheFlushRequiresAdmin(t *testing.T) {
	h := newTestHarness(t, beforeCutoff())

	rec := h.do(t, http.MethodPost, "/api/v1/cache/flush", h.token(t, models.RoleWorkshopManager), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("manager flush status = %d, want 403", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/cache/flush", h.token(t, models.RoleAdministrator), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin flush status = %d", rec.Code)
	}
	var resp struct {
		Flushed bool `json:"flushed"`
	}
	decodeBody(t, rec, &resp)
	if resp.Flushed {
		t.Fatalf("flushed = true with no cache configured")
	}
}
