/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string
	JWTTokenTTL   time.Duration
	MetricsBind   string

	// Factory scheduling rules
	CutoffHour int    // Hour of day after which morning-shift selection closes
	Timezone   string // IANA zone the factory operates in

	// Redis cache configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("LOPAN_ENV", "development"),
		HTTPBind:      getEnv("LOPAN_HTTP_BIND", "0.0.0.0"),
		HTTPPort:      getEnvInt("LOPAN_HTTP_PORT", 8080),
		DBBackend:     DatabaseBackend(getEnv("LOPAN_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:         getEnv("LOPAN_DB_DSN", ""),
		JWTSigningKey: getEnv("LOPAN_JWT_SIGNING_KEY", ""),
		JWTTokenTTL:   time.Duration(getEnvInt("LOPAN_JWT_TOKEN_TTL_HOURS", 12)) * time.Hour,
		MetricsBind:   getEnv("LOPAN_METRICS_BIND", "127.0.0.1:9000"),

		CutoffHour: getEnvInt("LOPAN_SHIFT_CUTOFF_HOUR", 12),
		Timezone:   getEnv("LOPAN_TIMEZONE", "Asia/Shanghai"),

		RedisAddr:     getEnv("LOPAN_REDIS_ADDR", ""),
		RedisPassword: getEnv("LOPAN_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("LOPAN_REDIS_DB", 0),

		TracingEnabled:    getEnvBool("LOPAN_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("LOPAN_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("LOPAN_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("LOPAN_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("LOPAN_JWT_SIGNING_KEY must be provided")
	}

	if cfg.CutoffHour < 0 || cfg.CutoffHour > 23 {
		return nil, fmt.Errorf("LOPAN_SHIFT_CUTOFF_HOUR %d out of range 0-23", cfg.CutoffHour)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid LOPAN_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if strings.EqualFold(cfg.Environment, "production") && len(cfg.JWTSigningKey) < 32 {
		return nil, fmt.Errorf("LOPAN_JWT_SIGNING_KEY must be at least 32 bytes in production")
	}

	return cfg, nil
}

// Location resolves the configured factory timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
