/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package migration backfills shift metadata onto legacy batches created
// before shift-aware scheduling existed.
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/lopan_factory/internal/clock"
	"github.com/friendsincode/lopan_factory/internal/cutoff"
	"github.com/friendsincode/lopan_factory/internal/events"
	"github.com/friendsincode/lopan_factory/internal/models"
	"github.com/friendsincode/lopan_factory/internal/repository"
)

// Summary reports one migration run.
type Summary struct {
	Scanned  int `json:"scanned"`
	Migrated int `json:"migrated"`
	Failed   int `json:"failed"`
}

// Service migrates legacy batches to shift-aware scheduling.
type Service struct {
	repo   *repository.BatchRepository
	policy *cutoff.Policy
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a migration service.
func NewService(repo *repository.BatchRepository, policy *cutoff.Policy, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		policy: policy,
		bus:    bus,
		logger: logger.With().Str("component", "migration").Logger(),
	}
}

// PendingCount returns how many legacy batches still lack shift metadata.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	batches, err := s.repo.FetchBatchesRequiringMigration(ctx)
	if err != nil {
		return 0, err
	}
	return len(batches), nil
}

// MigrateAll backfills every legacy batch. Failures on individual batches are
// logged and counted without aborting the run.
func (s *Service) MigrateAll(ctx context.Context, actorID string) (*Summary, error) {
	batches, err := s.repo.FetchBatchesRequiringMigration(ctx)
	if err != nil {
		return nil, fmt.Errorf("load legacy batches: %w", err)
	}

	summary := &Summary{Scanned: len(batches)}
	for i := range batches {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		batch := &batches[i]
		targetDate, shift := s.inferSchedule(batch)
		if err := s.repo.AssignShiftMetadata(ctx, batch.ID, targetDate, shift); err != nil {
			summary.Failed++
			s.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to migrate batch")
			continue
		}

		summary.Migrated++
		s.bus.Publish(events.EventBatchMigrated, events.Payload{
			"actor_id":    actorID,
			"entity_type": "batch",
			"entity_id":   batch.ID,
			"target_date": targetDate.Format(clock.DateLayout),
			"shift":       string(shift),
		})
	}

	s.logger.Info().
		Int("scanned", summary.Scanned).
		Int("migrated", summary.Migrated).
		Int("failed", summary.Failed).
		Msg("legacy batch migration finished")
	return summary, nil
}

// inferSchedule derives target date and shift from when the legacy batch was
// created: the creation day becomes the target date and the cutoff hour
// splits it into morning and evening, mirroring how a user at that time would
// have been allowed to schedule.
func (s *Service) inferSchedule(batch *models.ProductionBatch) (time.Time, cutoff.Shift) {
	createdAt := batch.CreatedAt
	targetDate := time.Date(createdAt.Year(), createdAt.Month(), createdAt.Day(), 0, 0, 0, 0, createdAt.Location())

	if createdAt.Hour() < s.policy.CutoffHour() {
		return targetDate, cutoff.ShiftMorning
	}
	return targetDate, cutoff.ShiftEvening
}
