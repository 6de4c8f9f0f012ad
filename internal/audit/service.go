/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit records who did what to which batch by subscribing to the
// event bus and persisting audit entries.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/lopan_factory/internal/events"
	"github.com/friendsincode/lopan_factory/internal/models"
)

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// auditedEvents maps bus events to audit action names.
var auditedEvents = map[events.EventType]string{
	events.EventBatchCreated:        "batch.create",
	events.EventBatchUpdated:        "batch.update",
	events.EventBatchSubmitted:      "batch.submit",
	events.EventBatchDeleted:        "batch.delete",
	events.EventBatchMigrated:       "batch.migrate",
	events.EventProductEdited:       "product.edit",
	events.EventProductEditBlocked:  "product.edit_blocked",
	events.EventOutOfStockCreated:   "out_of_stock.create",
	events.EventOutOfStockCompleted: "out_of_stock.complete",
}

// Start subscribes to relevant events and logs them as audit entries.
// Blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("audit service starting")

	type subscription struct {
		eventType events.EventType
		action    string
		ch        events.Subscriber
	}

	subs := make([]subscription, 0, len(auditedEvents))
	for eventType, action := range auditedEvents {
		subs = append(subs, subscription{
			eventType: eventType,
			action:    action,
			ch:        s.bus.Subscribe(eventType),
		})
	}
	defer func() {
		for _, sub := range subs {
			s.bus.Unsubscribe(sub.eventType, sub.ch)
		}
	}()

	// Fan the subscriptions into one channel so a single loop serializes
	// writes.
	type tagged struct {
		action  string
		payload events.Payload
	}
	merged := make(chan tagged, 16)
	forward := func(sub subscription) {
		for payload := range sub.ch {
			select {
			case merged <- tagged{action: sub.action, payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
	for _, sub := range subs {
		go forward(sub)
	}

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return
		case entry := <-merged:
			s.logAuditEntry(ctx, entry.action, entry.payload)
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action string, payload events.Payload) {
	entry := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		CreatedAt: time.Now(),
	}

	if actorID, ok := payload["actor_id"].(string); ok {
		entry.ActorID = actorID
	}
	if actorName, ok := payload["actor_name"].(string); ok {
		entry.ActorName = actorName
	}
	if entityType, ok := payload["entity_type"].(string); ok {
		entry.EntityType = entityType
	}
	if entityID, ok := payload["entity_id"].(string); ok {
		entry.EntityID = entityID
	}

	details := make(map[string]any, len(payload))
	for k, v := range payload {
		switch k {
		case "actor_id", "actor_name", "entity_type", "entity_id":
		default:
			details[k] = v
		}
	}
	if len(details) > 0 {
		if encoded, err := json.Marshal(details); err == nil {
			entry.Details = string(encoded)
		}
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("failed to persist audit entry")
	}
}

// RecentEntries returns the newest audit entries, newest first.
func (s *Service) RecentEntries(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []models.AuditLog
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
