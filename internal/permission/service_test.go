/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package permission

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/lopan_factory/internal/auth"
	"github.com/friendsincode/lopan_factory/internal/cutoff"
	"github.com/friendsincode/lopan_factory/internal/models"
)

func testUser() *auth.Claims {
	return &auth.Claims{UserID: "user-1", Name: "李娜", Role: models.RoleWorkshopManager}
}

func testProduct(name, colorID string, stations ...int) *models.ProductConfig {
	return &models.ProductConfig{
		ID:               "prod-1",
		BatchID:          "batch-1",
		ProductName:      name,
		PrimaryColorID:   colorID,
		OccupiedStations: models.StationList(stations),
	}
}

func TestCanEditProductGatedByStatus(t *testing.T) {
	svc := NewService(zerolog.Nop())
	product := testProduct("A", "red", 1)

	tests := []struct {
		name   string
		user   *auth.Claims
		status models.BatchStatus
		want   bool
	}{
		{name: "unsubmitted with user", user: testUser(), status: models.BatchUnsubmitted, want: true},
		{name: "no user", user: nil, status: models.BatchUnsubmitted, want: false},
		{name: "pending", user: testUser(), status: models.BatchPending, want: false},
		{name: "active", user: testUser(), status: models.BatchActive, want: false},
		{name: "completed", user: testUser(), status: models.BatchCompleted, want: false},
		{name: "cancelled", user: testUser(), status: models.BatchCancelled, want: false},
		{name: "rejected", user: testUser(), status: models.BatchRejected, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := &models.ProductionBatch{ID: "batch-1", Status: tt.status, AllowsColorModificationOnly: true}
			if got := svc.CanEditProduct(tt.user, product, batch); got != tt.want {
				t.Errorf("CanEditProduct = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsOnlyColorModification(t *testing.T) {
	svc := NewService(zerolog.Nop())

	tests := []struct {
		name     string
		original *models.ProductConfig
		modified *models.ProductConfig
		want     bool
	}{
		{
			name:     "identical snapshots",
			original: testProduct("A", "red", 1, 2),
			modified: testProduct("A", "red", 1, 2),
			want:     true,
		},
		{
			name:     "only color changed",
			original: testProduct("A", "red", 1, 2),
			modified: testProduct("A", "blue", 1, 2),
			want:     true,
		},
		{
			name:     "stations reordered",
			original: testProduct("A", "red", 2, 1),
			modified: testProduct("A", "blue", 1, 2),
			want:     true,
		},
		{
			name:     "name changed",
			original: testProduct("A", "red", 1, 2),
			modified: testProduct("B", "red", 1, 2),
			want:     false,
		},
		{
			name:     "stations changed",
			original: testProduct("A", "red", 1, 2),
			modified: testProduct("A", "red", 1, 3),
			want:     false,
		},
		{
			name:     "color and stations changed together",
			original: testProduct("A", "red", 1, 2),
			modified: testProduct("A", "blue", 1, 2, 3),
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.IsOnlyColorModification(tt.original, tt.modified); got != tt.want {
				t.Errorf("IsOnlyColorModification = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateEditBlocksWithoutUser(t *testing.T) {
	svc := NewService(zerolog.Nop())
	batch := &models.ProductionBatch{ID: "batch-1", Status: models.BatchUnsubmitted}

	result := svc.ValidateEdit(nil, testProduct("A", "red", 1), testProduct("A", "blue", 1), batch)
	if result.Decision != DecisionBlocked {
		t.Fatalf("decision = %s, want blocked", result.Decision)
	}
	if !strings.Contains(result.Reason, "权限") {
		t.Fatalf("reason %q missing 权限", result.Reason)
	}
}

func TestValidateEditColorLockedBatch(t *testing.T) {
	svc := NewService(zerolog.Nop())
	batch := &models.ProductionBatch{ID: "batch-1", Status: models.BatchPending, AllowsColorModificationOnly: true}

	// Changing only the color from red to blue is allowed.
	result := svc.ValidateEdit(testUser(), testProduct("A", "red", 1), testProduct("A", "blue", 1), batch)
	if !result.Allowed() {
		t.Fatalf("color-only edit decision = %s, want allowed", result.Decision)
	}

	// Changing the name is redirected to the full flow, not blocked outright.
	result = svc.ValidateEdit(testUser(), testProduct("A", "red", 1), testProduct("B", "red", 1), batch)
	if result.Decision != DecisionColorOnlyAllowed {
		t.Fatalf("structural edit decision = %s, want color_only_allowed", result.Decision)
	}
	if !strings.Contains(result.Reason, "颜色修改") {
		t.Fatalf("reason %q missing 颜色修改", result.Reason)
	}
}

func TestValidateEditBlocksSubmittedUnlockedBatch(t *testing.T) {
	svc := NewService(zerolog.Nop())
	batch := &models.ProductionBatch{ID: "batch-1", Status: models.BatchPending}

	result := svc.ValidateEdit(testUser(), testProduct("A", "red", 1), testProduct("A", "blue", 1), batch)
	if result.Decision != DecisionBlocked {
		t.Fatalf("decision = %s, want blocked", result.Decision)
	}
	if !strings.Contains(result.Reason, "权限") {
		t.Fatalf("reason %q missing 权限", result.Reason)
	}
}

func TestValidateEditUnrestrictedBatch(t *testing.T) {
	svc := NewService(zerolog.Nop())
	batch := &models.ProductionBatch{ID: "batch-1", Status: models.BatchUnsubmitted}

	result := svc.ValidateEdit(testUser(), testProduct("A", "red", 1), testProduct("B", "blue", 2, 3), batch)
	if !result.Allowed() {
		t.Fatalf("unrestricted edit decision = %s, want allowed", result.Decision)
	}
}

func TestEditRestrictionReason(t *testing.T) {
	svc := NewService(zerolog.Nop())

	legacy := &models.ProductionBatch{ID: "legacy", Status: models.BatchUnsubmitted}
	if reason := svc.EditRestrictionReason(legacy); reason != nil {
		t.Fatalf("legacy batch restriction = %q, want nil", *reason)
	}

	unlocked := shiftAwareTestBatch(false)
	if reason := svc.EditRestrictionReason(unlocked); reason != nil {
		t.Fatalf("unlocked batch restriction = %q, want nil", *reason)
	}

	locked := shiftAwareTestBatch(true)
	reason := svc.EditRestrictionReason(locked)
	if reason == nil || !strings.Contains(*reason, "颜色修改") {
		t.Fatalf("locked batch restriction = %v, want message containing 颜色修改", reason)
	}
}

func shiftAwareTestBatch(colorOnly bool) *models.ProductionBatch {
	target := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	shift := cutoff.ShiftMorning
	return &models.ProductionBatch{
		ID:                          "b1",
		Status:                      models.BatchPending,
		TargetDate:                  &target,
		Shift:                       &shift,
		AllowsColorModificationOnly: colorOnly,
	}
}

func TestEditGuidance(t *testing.T) {
	svc := NewService(zerolog.Nop())

	full := svc.EditGuidance(&models.ProductionBatch{ID: "b1", Status: models.BatchUnsubmitted})
	if !full.CanEdit || full.ColorOnly || !strings.Contains(full.Message, "完整编辑") {
		t.Fatalf("full guidance = %+v", full)
	}

	colorOnly := svc.EditGuidance(shiftAwareTestBatch(true))
	if !colorOnly.CanEdit || !colorOnly.ColorOnly || !strings.Contains(colorOnly.Message, "颜色修改") {
		t.Fatalf("color-only guidance = %+v", colorOnly)
	}
}

func TestRedirectionMessage(t *testing.T) {
	svc := NewService(zerolog.Nop())

	if msg := svc.RedirectionMessage(IntentModifyProductStructure); !strings.Contains(msg, "生产配置") {
		t.Fatalf("structure redirection %q missing 生产配置", msg)
	}
	if msg := svc.RedirectionMessage(IntentAddProduct); !strings.Contains(msg, "生产配置") {
		t.Fatalf("add-product redirection %q missing 生产配置", msg)
	}
	if msg := svc.RedirectionMessage(IntentModifyColors); msg != "" {
		t.Fatalf("color redirection = %q, want empty", msg)
	}
}
