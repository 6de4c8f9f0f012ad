/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package outofstock manages customer out-of-stock requests with cached,
// paginated listings.
package outofstock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/lopan_factory/internal/cache"
	"github.com/friendsincode/lopan_factory/internal/events"
	"github.com/friendsincode/lopan_factory/internal/models"
)

// ErrRecordNotFound is returned when a request ID does not exist.
var ErrRecordNotFound = errors.New("out-of-stock record not found")

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Page is one page of out-of-stock records plus the total match count.
type Page struct {
	Records  []models.CustomerOutOfStock
	Total    int64
	Page     int
	PageSize int
}

// Service lists and mutates customer out-of-stock requests.
type Service struct {
	db     *gorm.DB
	cache  *cache.Cache
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates an out-of-stock service.
func NewService(db *gorm.DB, c *cache.Cache, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		cache:  c,
		bus:    bus,
		logger: logger.With().Str("component", "outofstock").Logger(),
	}
}

// List returns one page of requests, optionally filtered by status. Pages are
// 1-based; out-of-range sizes are clamped.
func (s *Service) List(ctx context.Context, status models.OutOfStockStatus, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	if cached, ok := s.cachedPage(ctx, status, page, pageSize); ok {
		return cached, nil
	}

	query := s.db.WithContext(ctx).Model(&models.CustomerOutOfStock{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count out-of-stock records: %w", err)
	}

	var records []models.CustomerOutOfStock
	err := query.
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list out-of-stock records: %w", err)
	}

	result := &Page{Records: records, Total: total, Page: page, PageSize: pageSize}
	s.storePage(ctx, status, result)
	return result, nil
}

// Create stores a new pending request and publishes an event.
func (s *Service) Create(ctx context.Context, record *models.CustomerOutOfStock) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = models.OutOfStockPending
	}
	if record.CustomerName == "" || record.ProductName == "" {
		return errors.New("customer name and product name are required")
	}
	if record.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create out-of-stock record: %w", err)
	}

	s.invalidate(ctx)
	s.bus.Publish(events.EventOutOfStockCreated, events.Payload{
		"actor_id":    record.RequesterID,
		"entity_type": "out_of_stock",
		"entity_id":   record.ID,
		"customer":    record.CustomerName,
		"product":     record.ProductName,
		"quantity":    record.Quantity,
	})

	s.logger.Info().
		Str("record_id", record.ID).
		Str("customer", record.CustomerName).
		Msg("out-of-stock request created")
	return nil
}

// UpdateStatus moves a request to completed or returned.
func (s *Service) UpdateStatus(ctx context.Context, recordID string, status models.OutOfStockStatus, actorID string) error {
	switch status {
	case models.OutOfStockCompleted, models.OutOfStockReturned:
	default:
		return fmt.Errorf("unsupported status transition to %q", status)
	}

	result := s.db.WithContext(ctx).
		Model(&models.CustomerOutOfStock{}).
		Where("id = ?", recordID).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("update out-of-stock status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}

	s.invalidate(ctx)
	if status == models.OutOfStockCompleted {
		s.bus.Publish(events.EventOutOfStockCompleted, events.Payload{
			"actor_id":    actorID,
			"entity_type": "out_of_stock",
			"entity_id":   recordID,
		})
	}

	s.logger.Info().
		Str("record_id", recordID).
		Str("status", string(status)).
		Msg("out-of-stock request updated")
	return nil
}

func (s *Service) cachedPage(ctx context.Context, status models.OutOfStockStatus, page, pageSize int) (*Page, bool) {
	if s.cache == nil {
		return nil, false
	}
	cached, ok := s.cache.GetOutOfStockPage(ctx, string(status), page, pageSize)
	if !ok {
		return nil, false
	}
	return &Page{Records: cached.Records, Total: cached.Total, Page: cached.Page, PageSize: cached.PageSize}, true
}

func (s *Service) storePage(ctx context.Context, status models.OutOfStockStatus, page *Page) {
	if s.cache == nil {
		return
	}
	cached := &cache.CachedOutOfStockPage{
		Records:  page.Records,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	if err := s.cache.SetOutOfStockPage(ctx, string(status), page.Page, page.PageSize, cached); err != nil {
		s.logger.Debug().Err(err).Msg("failed to cache out-of-stock page")
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateOutOfStock(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("failed to invalidate out-of-stock cache")
	}
}
