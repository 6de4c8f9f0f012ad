/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package repository wraps persistence for production batches so rule
// services depend on a narrow query surface instead of raw gorm handles.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/lopan_factory/internal/clock"
	"github.com/friendsincode/lopan_factory/internal/cutoff"
	"github.com/friendsincode/lopan_factory/internal/models"
)

// ErrBatchNotFound is returned when a batch id resolves to nothing.
var ErrBatchNotFound = errors.New("production batch not found")

// ErrBatchSubmitted is returned when a structural mutation targets a batch
// that already left the unsubmitted state.
var ErrBatchSubmitted = errors.New("submitted batches cannot be structurally mutated")

// BatchRepository persists production batches and their product configs.
type BatchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates a batch repository.
func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// FetchBatches returns batches scheduled for the given date and shift,
// products preloaded, ordered by creation.
func (r *BatchRepository) FetchBatches(ctx context.Context, date time.Time, shift cutoff.Shift) ([]models.ProductionBatch, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var batches []models.ProductionBatch
	err := r.db.WithContext(ctx).
		Preload("Products", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Where("target_date >= ? AND target_date < ? AND shift = ?", dayStart, dayEnd, shift).
		Order("created_at ASC").
		Find(&batches).Error
	if err != nil {
		return nil, fmt.Errorf("fetch batches for %s %s: %w", date.Format(clock.DateLayout), shift, err)
	}
	return batches, nil
}

// HasConflictingBatches reports whether another batch already occupies the
// machine for the same date and shift. The batch identified by
// excludingBatchID is ignored so a batch is never compared against itself.
func (r *BatchRepository) HasConflictingBatches(ctx context.Context, date time.Time, shift cutoff.Shift, machineID, excludingBatchID string) (bool, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	query := r.db.WithContext(ctx).Model(&models.ProductionBatch{}).
		Where("machine_id = ? AND target_date >= ? AND target_date < ? AND shift = ?", machineID, dayStart, dayEnd, shift).
		Where("status NOT IN ?", []models.BatchStatus{models.BatchCancelled, models.BatchRejected})
	if excludingBatchID != "" {
		query = query.Where("id != ?", excludingBatchID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("count conflicting batches: %w", err)
	}
	return count > 0, nil
}

// FetchBatchesRequiringMigration returns legacy batches that predate shift
// scheduling: they carry neither target date nor shift.
func (r *BatchRepository) FetchBatchesRequiringMigration(ctx context.Context) ([]models.ProductionBatch, error) {
	var batches []models.ProductionBatch
	err := r.db.WithContext(ctx).
		Preload("Products").
		Where("target_date IS NULL AND shift IS NULL").
		Order("created_at ASC").
		Find(&batches).Error
	if err != nil {
		return nil, fmt.Errorf("fetch legacy batches: %w", err)
	}
	return batches, nil
}

// AssignShiftMetadata backfills target date and shift on a legacy batch. The
// guard on NULL columns makes the backfill idempotent: a batch that already
// carries shift metadata is never rewritten.
func (r *BatchRepository) AssignShiftMetadata(ctx context.Context, id string, targetDate time.Time, shift cutoff.Shift) error {
	result := r.db.WithContext(ctx).Model(&models.ProductionBatch{}).
		Where("id = ? AND target_date IS NULL AND shift IS NULL", id).
		Updates(map[string]any{"target_date": targetDate, "shift": shift})
	if result.Error != nil {
		return fmt.Errorf("assign shift metadata to batch %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// FetchBatchByID loads one batch with its products.
func (r *BatchRepository) FetchBatchByID(ctx context.Context, id string) (*models.ProductionBatch, error) {
	var batch models.ProductionBatch
	err := r.db.WithContext(ctx).
		Preload("Products", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Where("id = ?", id).
		First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch batch %s: %w", id, err)
	}
	return &batch, nil
}

// CreateBatch persists a new batch and its product configs.
func (r *BatchRepository) CreateBatch(ctx context.Context, batch *models.ProductionBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Status == "" {
		batch.Status = models.BatchUnsubmitted
	}
	for i := range batch.Products {
		if batch.Products[i].ID == "" {
			batch.Products[i].ID = uuid.NewString()
		}
		batch.Products[i].BatchID = batch.ID
		batch.Products[i].Position = i
	}
	if err := r.db.WithContext(ctx).Create(batch).Error; err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// UpdateBatch saves batch fields. Structural updates to submitted batches
// are rejected here as a final guard; rule services decide earlier and with
// better messages.
func (r *BatchRepository) UpdateBatch(ctx context.Context, batch *models.ProductionBatch) error {
	var current models.ProductionBatch
	err := r.db.WithContext(ctx).Select("status").Where("id = ?", batch.ID).First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrBatchNotFound
	}
	if err != nil {
		return fmt.Errorf("load batch %s: %w", batch.ID, err)
	}
	if current.Status != models.BatchUnsubmitted {
		return ErrBatchSubmitted
	}

	if err := r.db.WithContext(ctx).Save(batch).Error; err != nil {
		return fmt.Errorf("update batch %s: %w", batch.ID, err)
	}
	return nil
}

// UpdateStatus advances the batch lifecycle without touching structure.
func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status models.BatchStatus) error {
	result := r.db.WithContext(ctx).Model(&models.ProductionBatch{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("update batch %s status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// SubmitBatch transitions an unsubmitted batch to pending and records who
// submitted it and when. The status guard in the WHERE clause makes double
// submission a not-found error instead of a silent overwrite.
func (r *BatchRepository) SubmitBatch(ctx context.Context, id, submitterID, submitterName string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.ProductionBatch{}).
		Where("id = ? AND status = ?", id, models.BatchUnsubmitted).
		Updates(map[string]any{
			"status":         models.BatchPending,
			"submitter_id":   submitterID,
			"submitter_name": submitterName,
			"submitted_at":   at,
		})
	if result.Error != nil {
		return fmt.Errorf("submit batch %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.ProductionBatch{}).Where("id = ?", id).Count(&count).Error; err == nil && count > 0 {
			return ErrBatchSubmitted
		}
		return ErrBatchNotFound
	}
	return nil
}

// DeleteBatch removes a batch. Deletion is permitted only while the batch is
// unsubmitted.
func (r *BatchRepository) DeleteBatch(ctx context.Context, id string) error {
	batch, err := r.FetchBatchByID(ctx, id)
	if err != nil {
		return err
	}
	if batch.Status != models.BatchUnsubmitted {
		return ErrBatchSubmitted
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id = ?", id).Delete(&models.ProductConfig{}).Error; err != nil {
			return fmt.Errorf("delete batch products: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.ProductionBatch{}).Error; err != nil {
			return fmt.Errorf("delete batch: %w", err)
		}
		return nil
	})
}

// UpdateProductConfig saves a single product config row.
func (r *BatchRepository) UpdateProductConfig(ctx context.Context, product *models.ProductConfig) error {
	result := r.db.WithContext(ctx).Model(&models.ProductConfig{}).
		Where("id = ? AND batch_id = ?", product.ID, product.BatchID).
		Updates(map[string]any{
			"product_name":      product.ProductName,
			"primary_color_id":  product.PrimaryColorID,
			"occupied_stations": product.OccupiedStations,
		})
	if result.Error != nil {
		return fmt.Errorf("update product config %s: %w", product.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("product config %s not found in batch %s", product.ID, product.BatchID)
	}
	return nil
}
