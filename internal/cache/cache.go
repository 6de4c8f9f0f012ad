/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for frequently accessed data.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/lopan_factory/internal/models"
)

// Default TTL values for different cache types
const (
	DefaultMachineListTTL   = 5 * time.Minute
	DefaultColorListTTL     = 30 * time.Minute
	DefaultBatchSnapshotTTL = 2 * time.Minute
	DefaultOutOfStockTTL    = 5 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyMachineList   = "lopan:cache:machines"
	KeyColorList     = "lopan:cache:colors"
	KeyBatchSnapshot = "lopan:cache:batch:"        // + batch_id
	KeyOutOfStock    = "lopan:cache:out_of_stock:" // + page key
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	MachineListTTL   time.Duration
	ColorListTTL     time.Duration
	BatchSnapshotTTL time.Duration
	OutOfStockTTL    time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:        "localhost:6379",
		MachineListTTL:   DefaultMachineListTTL,
		ColorListTTL:     DefaultColorListTTL,
		BatchSnapshotTTL: DefaultBatchSnapshotTTL,
		OutOfStockTTL:    DefaultOutOfStockTTL,
		DisableOnError:   true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// Use SCAN to find keys (safer than KEYS for production)
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Machine caching methods

// CachedMachine represents a cached machine record.
type CachedMachine struct {
	ID           string `json:"id"`
	Number       string `json:"number"`
	Status       string `json:"status"`
	StationCount int    `json:"station_count"`
}

// GetMachineList retrieves the cached list of machines.
func (c *Cache) GetMachineList(ctx context.Context) ([]CachedMachine, bool) {
	var machines []CachedMachine
	found, err := c.get(ctx, KeyMachineList, &machines)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Int("count", len(machines)).Msg("machine list cache hit")
	return machines, true
}

// SetMachineList caches the list of machines.
func (c *Cache) SetMachineList(ctx context.Context, machines []CachedMachine) error {
	c.logger.Debug().Int("count", len(machines)).Msg("caching machine list")
	return c.set(ctx, KeyMachineList, machines, c.config.MachineListTTL)
}

// Color card caching methods

// CachedColor represents a cached color card record.
type CachedColor struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	HexCode string `json:"hex_code"`
}

// GetColorList retrieves the cached list of color cards.
func (c *Cache) GetColorList(ctx context.Context) ([]CachedColor, bool) {
	var colors []CachedColor
	found, err := c.get(ctx, KeyColorList, &colors)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Int("count", len(colors)).Msg("color list cache hit")
	return colors, true
}

// SetColorList caches the list of color cards.
func (c *Cache) SetColorList(ctx context.Context, colors []CachedColor) error {
	c.logger.Debug().Int("count", len(colors)).Msg("caching color list")
	return c.set(ctx, KeyColorList, colors, c.config.ColorListTTL)
}

// Batch snapshot caching methods

// GetBatch retrieves a cached batch (products included) by ID.
func (c *Cache) GetBatch(ctx context.Context, batchID string) (*models.ProductionBatch, bool) {
	var batch models.ProductionBatch
	found, err := c.get(ctx, KeyBatchSnapshot+batchID, &batch)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("batch_id", batchID).Msg("batch cache hit")
	return &batch, true
}

// SetBatch caches a batch snapshot. Mutation events invalidate it, so the
// TTL only bounds staleness from out-of-band writes.
func (c *Cache) SetBatch(ctx context.Context, batch *models.ProductionBatch) error {
	c.logger.Debug().Str("batch_id", batch.ID).Msg("caching batch")
	return c.set(ctx, KeyBatchSnapshot+batch.ID, batch, c.config.BatchSnapshotTTL)
}

// InvalidateBatch removes a batch from cache.
func (c *Cache) InvalidateBatch(ctx context.Context, batchID string) error {
	c.logger.Debug().Str("batch_id", batchID).Msg("invalidating batch cache")
	return c.delete(ctx, KeyBatchSnapshot+batchID)
}

// Out-of-stock caching methods

// CachedOutOfStockPage represents one cached page of out-of-stock records.
// Records are cached whole so a hit serves the same content as a database
// read.
type CachedOutOfStockPage struct {
	Records  []models.CustomerOutOfStock `json:"records"`
	Total    int64                       `json:"total"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"page_size"`
}

func outOfStockKey(status string, page, pageSize int) string {
	return KeyOutOfStock + status + ":" + strconv.Itoa(page) + ":" + strconv.Itoa(pageSize)
}

// GetOutOfStockPage retrieves a cached out-of-stock page.
func (c *Cache) GetOutOfStockPage(ctx context.Context, status string, page, pageSize int) (*CachedOutOfStockPage, bool) {
	var result CachedOutOfStockPage
	found, err := c.get(ctx, outOfStockKey(status, page, pageSize), &result)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("status", status).Int("page", page).Msg("out-of-stock page cache hit")
	return &result, true
}

// SetOutOfStockPage caches an out-of-stock page.
func (c *Cache) SetOutOfStockPage(ctx context.Context, status string, page, pageSize int, result *CachedOutOfStockPage) error {
	c.logger.Debug().Str("status", status).Int("page", page).Msg("caching out-of-stock page")
	return c.set(ctx, outOfStockKey(status, page, pageSize), result, c.config.OutOfStockTTL)
}

// InvalidateOutOfStock removes all cached out-of-stock pages.
func (c *Cache) InvalidateOutOfStock(ctx context.Context) error {
	c.logger.Debug().Msg("invalidating out-of-stock caches")
	return c.deletePattern(ctx, KeyOutOfStock+"*")
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, "lopan:cache:*")
}
