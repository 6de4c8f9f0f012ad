/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduling validates production batches against the shift cutoff
// policy and machine occupancy.
package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/lopan_factory/internal/clock"
	"github.com/friendsincode/lopan_factory/internal/cutoff"
	"github.com/friendsincode/lopan_factory/internal/models"
	"github.com/friendsincode/lopan_factory/internal/repository"
	"github.com/friendsincode/lopan_factory/internal/telemetry"
)

// CrossTimePointOperation names the operation being checked against the
// batch's original cutoff context.
type CrossTimePointOperation string

const (
	OperationEdit   CrossTimePointOperation = "edit"
	OperationSubmit CrossTimePointOperation = "submit"
)

// Validator checks batch-level invariants.
type Validator struct {
	repo   *repository.BatchRepository
	policy *cutoff.Policy
	clock  clock.Provider
	logger zerolog.Logger
}

// NewValidator creates a batch validator.
func NewValidator(repo *repository.BatchRepository, policy *cutoff.Policy, clk clock.Provider, logger zerolog.Logger) *Validator {
	return &Validator{
		repo:   repo,
		policy: policy,
		clock:  clk,
		logger: logger.With().Str("component", "batch_validator").Logger(),
	}
}

// ValidateBatch runs the synchronous batch consistency checks. Every check
// is evaluated independently; multiple failures are all reported.
func (v *Validator) ValidateBatch(batch *models.ProductionBatch) []models.ValidationResult {
	var results []models.ValidationResult
	now := v.clock.Now()

	if len(batch.Products) == 0 {
		telemetry.ValidationFailuresTotal.WithLabelValues("empty_products").Inc()
		results = append(results, models.ValidationResult{
			IsValid:  false,
			Message:  "批次中没有产品，请至少添加一个产品配置",
			Severity: models.RuleSeverityError,
		})
	}

	switch {
	case batch.IsShiftAware():
		allowed := v.policy.AllowedShifts(*batch.TargetDate, now)
		if !allowed[*batch.Shift] {
			telemetry.ValidationFailuresTotal.WithLabelValues("shift_cutoff").Inc()
			telemetry.CutoffRejectionsTotal.Inc()
			results = append(results, models.ValidationResult{
				IsValid: false,
				Message: fmt.Sprintf("当前时间已过 %d:00 截止，无法选择%s班次，请改选%s",
					v.policy.CutoffHour(), batch.Shift.DisplayName(), cutoff.ShiftEvening.DisplayName()),
				Severity: models.RuleSeverityError,
			})
		}
	case batch.IsLegacy():
		// Legacy batches predate shift scheduling; nothing to check.
	default:
		telemetry.ValidationFailuresTotal.WithLabelValues("partial_shift_metadata").Inc()
		results = append(results, models.ValidationResult{
			IsValid:  false,
			Message:  "批次的目标日期和班次必须同时设置",
			Severity: models.RuleSeverityError,
		})
	}

	if len(results) == 0 {
		results = append(results, models.ValidationResult{
			IsValid:  true,
			Message:  "批次校验通过",
			Severity: models.RuleSeverityInfo,
		})
	}
	return results
}

// ValidateMachineAvailability reports whether the machine is free for the
// date and shift, excluding the batch being edited. A repository error
// propagates and the machine is reported unavailable: a conflict we cannot
// rule out must not admit the batch.
func (v *Validator) ValidateMachineAvailability(ctx context.Context, machineID string, date time.Time, shift cutoff.Shift, excludingBatchID string) (bool, error) {
	conflict, err := v.repo.HasConflictingBatches(ctx, date, shift, machineID, excludingBatchID)
	if err != nil {
		v.logger.Error().Err(err).Str("machine_id", machineID).Msg("machine conflict query failed")
		return false, err
	}
	return !conflict, nil
}

// ComprehensiveReport partitions findings into blocking issues and
// non-blocking warnings.
type ComprehensiveReport struct {
	Issues   []models.ValidationResult `json:"issues"`
	Warnings []models.ValidationResult `json:"warnings"`
}

// Valid reports whether the batch may proceed.
func (r ComprehensiveReport) Valid() bool { return len(r.Issues) == 0 }

// PerformComprehensiveValidation aggregates all batch checks: product list,
// shift metadata, cutoff validity, machine conflicts and intra-batch station
// collisions. Checks are not short-circuited; everything wrong is reported
// at once.
func (v *Validator) PerformComprehensiveValidation(ctx context.Context, batch *models.ProductionBatch) (ComprehensiveReport, error) {
	var report ComprehensiveReport

	for _, result := range v.ValidateBatch(batch) {
		if result.IsValid {
			continue
		}
		report.Issues = append(report.Issues, result)
	}

	if batch.IsShiftAware() {
		available, err := v.ValidateMachineAvailability(ctx, batch.MachineID, *batch.TargetDate, *batch.Shift, batch.ID)
		if err != nil {
			return report, fmt.Errorf("validate machine availability: %w", err)
		}
		if !available {
			telemetry.ValidationFailuresTotal.WithLabelValues("machine_conflict").Inc()
			report.Issues = append(report.Issues, models.ValidationResult{
				IsValid: false,
				Message: fmt.Sprintf("该机台在 %s %s已有其他批次，请更换机台或班次",
					batch.TargetDate.Format(clock.DateLayout), batch.Shift.DisplayName()),
				Severity: models.RuleSeverityError,
			})
		}
	}

	if dupes := duplicateStations(batch.Products); len(dupes) > 0 {
		report.Warnings = append(report.Warnings, models.ValidationResult{
			IsValid:  false,
			Message:  fmt.Sprintf("批次内多个产品占用了相同工位: %v", dupes),
			Severity: models.RuleSeverityWarning,
		})
	}

	return report, nil
}

// duplicateStations returns station indices claimed by more than one product
// config, sorted ascending.
func duplicateStations(products []models.ProductConfig) []int {
	seen := make(map[int]int)
	for _, product := range products {
		for station := range product.OccupiedStations.AsSet() {
			seen[station]++
		}
	}

	var dupes []int
	for station, count := range seen {
		if count > 1 {
			dupes = append(dupes, station)
		}
	}
	sort.Ints(dupes)
	return dupes
}

// ValidateCrossTimePoint checks an edit or submit happening in a different
// cutoff context than the one the batch was created in. A batch created
// before the cutoff (both shifts selectable) must not be silently edited
// after it, when only the evening shift remains.
func (v *Validator) ValidateCrossTimePoint(batch *models.ProductionBatch, op CrossTimePointOperation) models.CrossTimePointResult {
	now := v.clock.Now()

	if !batch.IsShiftAware() {
		return models.CrossTimePointResult{
			IsValid:           false,
			Reason:            "批次缺少时间信息（目标日期和班次），无法校验",
			RecommendedAction: models.ActionCompleteDetails,
		}
	}

	if v.policy.SameContext(batch.SubmittedAt, now) {
		return models.CrossTimePointResult{
			IsValid:           true,
			RecommendedAction: models.ActionAllow,
		}
	}

	allowed := v.policy.AllowedShifts(*batch.TargetDate, now)
	available := make([]cutoff.Shift, 0, len(allowed))
	for _, shift := range cutoff.AllShifts() {
		if allowed[shift] {
			available = append(available, shift)
		}
	}

	v.logger.Debug().
		Str("batch_id", batch.ID).
		Str("operation", string(op)).
		Time("submitted_at", batch.SubmittedAt).
		Msg("cross time point context mismatch")

	return models.CrossTimePointResult{
		IsValid: false,
		Reason: fmt.Sprintf("批次创建时间与当前时间跨越了 %d:00 截止点，%s操作需要重新确认班次",
			v.policy.CutoffHour(), operationLabel(op)),
		RecommendedAction: models.ActionAdjustShift,
		Details: &models.CrossTimePointDetails{
			AvailableShifts: available,
			CutoffHour:      v.policy.CutoffHour(),
		},
	}
}

func operationLabel(op CrossTimePointOperation) string {
	switch op {
	case OperationSubmit:
		return "提交"
	default:
		return "编辑"
	}
}
