/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package legacystore imports data exported from the legacy iOS app's
// on-device SQLite store into the server database. Batches come across
// without shift metadata; the shift backfill runs separately afterwards.
package legacystore

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/lopan_factory/internal/migration"
	"github.com/friendsincode/lopan_factory/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Importer reads a legacy store export and writes it into the server DB.
type Importer struct {
	db       *gorm.DB
	logger   zerolog.Logger
	options  migration.ImportOptions
	stats    migration.ImportStats
	progress migration.ProgressCallback
	ids      map[string]string
}

// NewImporter creates a legacy store importer.
func NewImporter(db *gorm.DB, logger zerolog.Logger, options migration.ImportOptions) *Importer {
	return &Importer{
		db:      db,
		logger:  logger.With().Str("component", "legacystore_importer").Logger(),
		options: options,
		ids:     make(map[string]string),
	}
}

// SetProgressCallback sets the progress callback function.
func (i *Importer) SetProgressCallback(callback migration.ProgressCallback) {
	i.progress = callback
}

// Import reads the export at path, which is either a bare SQLite file or a
// .tar.gz archive containing one.
func (i *Importer) Import(ctx context.Context, path string) (*migration.ImportStats, error) {
	i.logger.Info().
		Str("path", path).
		Bool("dry_run", i.options.DryRun).
		Msg("starting legacy store import")

	dbPath := path
	if strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz") {
		tempDir, err := os.MkdirTemp("", "legacystore-import-*")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(tempDir)

		i.reportProgress(1, 6, "解压备份文件")
		dbPath, err = i.extractArchive(path, tempDir)
		if err != nil {
			return nil, fmt.Errorf("extract archive: %w", err)
		}
	}

	i.reportProgress(2, 6, "打开旧版数据库")
	legacyDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open legacy store: %w", err)
	}
	defer legacyDB.Close()

	if err := legacyDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping legacy store: %w", err)
	}

	i.reportProgress(3, 6, "导入机台与颜色")
	if err := i.importMachines(ctx, legacyDB); err != nil {
		return nil, err
	}
	if err := i.importColors(ctx, legacyDB); err != nil {
		return nil, err
	}

	i.reportProgress(4, 6, "导入生产批次")
	if err := i.importBatches(ctx, legacyDB); err != nil {
		return nil, err
	}

	i.reportProgress(5, 6, "导入缺货记录")
	if err := i.importOutOfStock(ctx, legacyDB); err != nil {
		return nil, err
	}

	i.reportProgress(6, 6, "导入完成")
	i.logger.Info().
		Int("machines", i.stats.Machines).
		Int("colors", i.stats.Colors).
		Int("batches", i.stats.Batches).
		Int("products", i.stats.Products).
		Int("out_of_stock", i.stats.OutOfStock).
		Int("skipped", i.stats.Skipped).
		Msg("legacy store import finished")

	stats := i.stats
	return &stats, nil
}

// extractArchive unpacks the tar.gz export and returns the path of the first
// SQLite file found inside.
func (i *Importer) extractArchive(archivePath, destDir string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return "", err
	}
	defer gz.Close()

	var dbPath string
	reader := tar.NewReader(gz)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		target := filepath.Join(destDir, filepath.Base(header.Name))
		// Base() above already strips any path components an attacker
		// could use to escape destDir.
		out, err := os.Create(target)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(out, reader); err != nil {
			out.Close()
			return "", err
		}
		out.Close()

		if strings.HasSuffix(target, ".sqlite") || strings.HasSuffix(target, ".db") {
			dbPath = target
		}
	}

	if dbPath == "" {
		return "", fmt.Errorf("no SQLite database found in %s", archivePath)
	}
	return dbPath, nil
}

func (i *Importer) importMachines(ctx context.Context, legacyDB *sql.DB) error {
	rows, err := legacyDB.QueryContext(ctx, `SELECT id, machine_number, status, station_count FROM machines`)
	if err != nil {
		return fmt.Errorf("query legacy machines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, number, status string
		var stationCount int
		if err := rows.Scan(&id, &number, &status, &stationCount); err != nil {
			i.recordError("machine row: %v", err)
			continue
		}

		machine := models.Machine{
			ID:           i.normalizeID(id),
			Number:       number,
			Status:       mapMachineStatus(status),
			StationCount: stationCount,
		}

		if i.skip(ctx, &models.Machine{}, "number = ?", number) {
			continue
		}
		if i.options.DryRun {
			i.stats.Machines++
			continue
		}
		if err := i.db.WithContext(ctx).Create(&machine).Error; err != nil {
			i.recordError("create machine %s: %v", number, err)
			continue
		}
		i.stats.Machines++
	}
	return rows.Err()
}

func (i *Importer) importColors(ctx context.Context, legacyDB *sql.DB) error {
	rows, err := legacyDB.QueryContext(ctx, `SELECT id, name, hex_code FROM color_cards`)
	if err != nil {
		return fmt.Errorf("query legacy colors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, hexCode string
		if err := rows.Scan(&id, &name, &hexCode); err != nil {
			i.recordError("color row: %v", err)
			continue
		}

		color := models.ColorCard{
			ID:      i.normalizeID(id),
			Name:    name,
			HexCode: hexCode,
		}

		if i.skip(ctx, &models.ColorCard{}, "id = ?", color.ID) {
			continue
		}
		if i.options.DryRun {
			i.stats.Colors++
			continue
		}
		if err := i.db.WithContext(ctx).Create(&color).Error; err != nil {
			i.recordError("create color %s: %v", name, err)
			continue
		}
		i.stats.Colors++
	}
	return rows.Err()
}

func (i *Importer) importBatches(ctx context.Context, legacyDB *sql.DB) error {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT id, batch_number, machine_id, status, submitter_id, submitter_name, submitted_at, created_at
		FROM production_batches`)
	if err != nil {
		return fmt.Errorf("query legacy batches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, batchNumber, machineID, status string
		var submitterID, submitterName sql.NullString
		var submittedAt, createdAt sql.NullString
		if err := rows.Scan(&id, &batchNumber, &machineID, &status, &submitterID, &submitterName, &submittedAt, &createdAt); err != nil {
			i.recordError("batch row: %v", err)
			continue
		}

		batch := models.ProductionBatch{
			ID:            i.normalizeID(id),
			BatchNumber:   batchNumber,
			MachineID:     i.normalizeID(machineID),
			Status:        mapBatchStatus(status),
			SubmitterID:   submitterID.String,
			SubmitterName: submitterName.String,
			SubmittedAt:   parseLegacyTime(submittedAt.String),
			CreatedAt:     parseLegacyTime(createdAt.String),
		}

		if i.skip(ctx, &models.ProductionBatch{}, "batch_number = ?", batchNumber) {
			continue
		}

		products, err := i.loadProducts(ctx, legacyDB, id, batch.ID)
		if err != nil {
			i.recordError("products for batch %s: %v", batchNumber, err)
			continue
		}
		batch.Products = products

		if i.options.DryRun {
			i.stats.Batches++
			i.stats.Products += len(products)
			continue
		}
		if err := i.db.WithContext(ctx).Create(&batch).Error; err != nil {
			i.recordError("create batch %s: %v", batchNumber, err)
			continue
		}
		i.stats.Batches++
		i.stats.Products += len(products)
	}
	return rows.Err()
}

func (i *Importer) loadProducts(ctx context.Context, legacyDB *sql.DB, legacyBatchID, batchID string) ([]models.ProductConfig, error) {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT id, product_name, primary_color_id, occupied_stations, position
		FROM product_configs WHERE batch_id = ? ORDER BY position`, legacyBatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.ProductConfig
	for rows.Next() {
		var id, name, colorID string
		var stations sql.NullString
		var position int
		if err := rows.Scan(&id, &name, &colorID, &stations, &position); err != nil {
			return nil, err
		}

		var stationList models.StationList
		if stations.Valid {
			if err := stationList.Scan(stations.String); err != nil {
				return nil, fmt.Errorf("stations for product %s: %w", name, err)
			}
		}

		products = append(products, models.ProductConfig{
			ID:               i.normalizeID(id),
			BatchID:          batchID,
			ProductName:      name,
			PrimaryColorID:   i.normalizeID(colorID),
			OccupiedStations: stationList,
			Position:         position,
		})
	}
	return products, rows.Err()
}

func (i *Importer) importOutOfStock(ctx context.Context, legacyDB *sql.DB) error {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT id, customer_name, product_name, quantity, status, notes, created_at
		FROM customer_out_of_stock`)
	if err != nil {
		return fmt.Errorf("query legacy out-of-stock: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, customerName, productName, status string
		var notes, createdAt sql.NullString
		var quantity int
		if err := rows.Scan(&id, &customerName, &productName, &quantity, &status, &notes, &createdAt); err != nil {
			i.recordError("out-of-stock row: %v", err)
			continue
		}

		record := models.CustomerOutOfStock{
			ID:           i.normalizeID(id),
			CustomerName: customerName,
			ProductName:  productName,
			Quantity:     quantity,
			Status:       mapOutOfStockStatus(status),
			Notes:        notes.String,
			CreatedAt:    parseLegacyTime(createdAt.String),
		}

		if i.skip(ctx, &models.CustomerOutOfStock{}, "id = ?", record.ID) {
			continue
		}
		if i.options.DryRun {
			i.stats.OutOfStock++
			continue
		}
		if err := i.db.WithContext(ctx).Create(&record).Error; err != nil {
			i.recordError("create out-of-stock %s: %v", record.ID, err)
			continue
		}
		i.stats.OutOfStock++
	}
	return rows.Err()
}

// skip reports whether an existing row matches and SkipExisting is set.
func (i *Importer) skip(ctx context.Context, model any, query string, args ...any) bool {
	if !i.options.SkipExisting {
		return false
	}
	var count int64
	if err := i.db.WithContext(ctx).Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return false
	}
	if count > 0 {
		i.stats.Skipped++
		return true
	}
	return false
}

func (i *Importer) recordError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	i.logger.Warn().Msg(msg)
	i.stats.Errors = append(i.stats.Errors, msg)
}

func (i *Importer) reportProgress(step, total int, message string) {
	if i.progress != nil {
		i.progress(step, total, message)
	}
}

// normalizeID keeps valid UUIDs and replaces anything else. The iOS store
// sometimes used uppercase UUIDs or plain integers for early records; each
// legacy id maps to one replacement for the whole run, so references between
// tables (batch→machine, product→color) survive the rewrite.
func (i *Importer) normalizeID(id string) string {
	trimmed := strings.TrimSpace(id)
	if parsed, err := uuid.Parse(trimmed); err == nil {
		return parsed.String()
	}
	if mapped, ok := i.ids[trimmed]; ok {
		return mapped
	}
	fresh := uuid.NewString()
	i.ids[trimmed] = fresh
	return fresh
}

func mapMachineStatus(status string) models.MachineStatus {
	switch strings.ToLower(status) {
	case "active", "running":
		return models.MachineActive
	case "maintenance":
		return models.MachineMaintenance
	default:
		return models.MachineInactive
	}
}

func mapBatchStatus(status string) models.BatchStatus {
	switch strings.ToLower(status) {
	case "unsubmitted", "draft":
		return models.BatchUnsubmitted
	case "pending", "submitted":
		return models.BatchPending
	case "active", "in_production":
		return models.BatchActive
	case "completed", "done":
		return models.BatchCompleted
	case "cancelled":
		return models.BatchCancelled
	case "rejected":
		return models.BatchRejected
	default:
		return models.BatchCompleted
	}
}

func mapOutOfStockStatus(status string) models.OutOfStockStatus {
	switch strings.ToLower(status) {
	case "completed":
		return models.OutOfStockCompleted
	case "returned", "refunded":
		return models.OutOfStockReturned
	default:
		return models.OutOfStockPending
	}
}

// parseLegacyTime handles the two timestamp formats the iOS store produced.
func parseLegacyTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
