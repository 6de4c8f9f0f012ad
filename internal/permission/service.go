/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package permission decides whether a product edit is allowed given the
// batch's lifecycle state and shift-lock flags. Decisions are pure functions
// of the caller's claims and the batch/product snapshots.
package permission

import (
	"github.com/rs/zerolog"

	"github.com/friendsincode/lopan_factory/internal/auth"
	"github.com/friendsincode/lopan_factory/internal/models"
	"github.com/friendsincode/lopan_factory/internal/telemetry"
)

// Decision classifies an edit attempt.
type Decision string

const (
	DecisionAllowed          Decision = "allowed"
	DecisionColorOnlyAllowed Decision = "color_only_allowed"
	DecisionBlocked          Decision = "blocked"
)

// EditValidationResult is the tagged outcome of validating an edit attempt.
// Reason is set for every non-allowed decision and is suitable for direct
// display.
type EditValidationResult struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

// Allowed reports whether the edit may be applied as-is.
func (r EditValidationResult) Allowed() bool { return r.Decision == DecisionAllowed }

// EditIntent names what the user is trying to change.
type EditIntent string

const (
	IntentModifyColors           EditIntent = "modify_colors"
	IntentModifyProductStructure EditIntent = "modify_product_structure"
	IntentAddProduct             EditIntent = "add_product"
)

// Guidance summarizes what kind of editing the batch currently supports.
type Guidance struct {
	CanEdit   bool   `json:"can_edit"`
	ColorOnly bool   `json:"color_only"`
	Message   string `json:"message"`
}

// Service evaluates edit permissions.
type Service struct {
	logger zerolog.Logger
}

// NewService creates a permission service.
func NewService(logger zerolog.Logger) *Service {
	return &Service{logger: logger.With().Str("component", "edit_permission").Logger()}
}

// CanEditProduct reports whether the user may attempt an edit at all. The
// color-only restriction does not gate the attempt, only what may change;
// that is enforced by ValidateEdit.
func (s *Service) CanEditProduct(user *auth.Claims, product *models.ProductConfig, batch *models.ProductionBatch) bool {
	if user == nil {
		return false
	}
	return batch.Status == models.BatchUnsubmitted
}

// IsOnlyColorModification reports whether the diff between two product
// snapshots touches nothing but the primary color. An edit that changes
// nothing at all is trivially color-only.
func (s *Service) IsOnlyColorModification(original, modified *models.ProductConfig) bool {
	if original.ProductName != modified.ProductName {
		return false
	}
	return original.OccupiedStations.EqualSet(modified.OccupiedStations)
}

// ValidateEdit classifies an edit attempt against the batch's shift-lock
// state.
func (s *Service) ValidateEdit(user *auth.Claims, original, modified *models.ProductConfig, batch *models.ProductionBatch) EditValidationResult {
	if user == nil {
		telemetry.EditDecisionsTotal.WithLabelValues(string(DecisionBlocked)).Inc()
		return EditValidationResult{
			Decision: DecisionBlocked,
			Reason:   "没有登录用户，无编辑权限",
		}
	}

	if batch.Status != models.BatchUnsubmitted && !batch.AllowsColorModificationOnly {
		telemetry.EditDecisionsTotal.WithLabelValues(string(DecisionBlocked)).Inc()
		return EditValidationResult{
			Decision: DecisionBlocked,
			Reason:   "批次已提交，无编辑权限",
		}
	}

	if batch.AllowsColorModificationOnly {
		if s.IsOnlyColorModification(original, modified) {
			telemetry.EditDecisionsTotal.WithLabelValues(string(DecisionAllowed)).Inc()
			return EditValidationResult{Decision: DecisionAllowed}
		}

		s.logger.Debug().
			Str("batch_id", batch.ID).
			Str("product", original.ProductName).
			Msg("structural edit redirected on color-locked batch")
		telemetry.EditDecisionsTotal.WithLabelValues(string(DecisionColorOnlyAllowed)).Inc()
		return EditValidationResult{
			Decision: DecisionColorOnlyAllowed,
			Reason:   "该批次仅支持颜色修改，结构调整请使用生产配置流程",
		}
	}

	telemetry.EditDecisionsTotal.WithLabelValues(string(DecisionAllowed)).Inc()
	return EditValidationResult{Decision: DecisionAllowed}
}

// EditRestrictionReason returns the display reason the batch restricts
// edits, or nil when it doesn't (legacy batches and unlocked batches).
func (s *Service) EditRestrictionReason(batch *models.ProductionBatch) *string {
	if batch.IsLegacy() {
		return nil
	}
	if !batch.AllowsColorModificationOnly {
		return nil
	}
	reason := "班次批次已锁定结构，仅允许颜色修改"
	return &reason
}

// EditGuidance summarizes the editing mode for the batch.
func (s *Service) EditGuidance(batch *models.ProductionBatch) Guidance {
	if batch.AllowsColorModificationOnly && !batch.IsLegacy() {
		return Guidance{
			CanEdit:   true,
			ColorOnly: true,
			Message:   "当前批次仅支持颜色修改",
		}
	}
	return Guidance{
		CanEdit:   true,
		ColorOnly: false,
		Message:   "支持完整编辑",
	}
}

// RedirectionMessage points structural edit intents at the production
// configuration flow. Color edits are handled in place, so no redirection.
func (s *Service) RedirectionMessage(intent EditIntent) string {
	switch intent {
	case IntentModifyProductStructure:
		return "产品结构调整请前往生产配置页面操作"
	case IntentAddProduct:
		return "新增产品请前往生产配置页面操作"
	default:
		return ""
	}
}
