/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package legacystore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/lopan_factory/internal/migration"
	"github.com/friendsincode/lopan_factory/internal/models"
)

var legacySchema = []string{
	`CREATE TABLE machines (id TEXT, machine_number TEXT, status TEXT, station_count INTEGER)`,
	`CREATE TABLE color_cards (id TEXT, name TEXT, hex_code TEXT)`,
	`CREATE TABLE production_batches (id TEXT, batch_number TEXT, machine_id TEXT, status TEXT,
		submitter_id TEXT, submitter_name TEXT, submitted_at TEXT, created_at TEXT)`,
	`CREATE TABLE product_configs (id TEXT, batch_id TEXT, product_name TEXT, primary_color_id TEXT,
		occupied_stations TEXT, position INTEGER)`,
	`CREATE TABLE customer_out_of_stock (id TEXT, customer_name TEXT, product_name TEXT,
		quantity INTEGER, status TEXT, notes TEXT, created_at TEXT)`,
}

func writeStore(t *testing.T, inserts []string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "lopan.sqlite")
	store, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open legacy store: %v", err)
	}
	defer store.Close()

	for _, stmt := range append(append([]string{}, legacySchema...), inserts...) {
		if _, err := store.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return path
}

func writeLegacyStore(t *testing.T) string {
	t.Helper()

	return writeStore(t, []string{
		`INSERT INTO machines VALUES ('7b2a3c44-0d1e-4f5a-9b6c-7d8e9f0a1b2c', '01', 'running', 12)`,
		`INSERT INTO machines VALUES ('not-a-uuid', '02', 'maintenance', 12)`,
		`INSERT INTO color_cards VALUES ('8c3b4d55-1e2f-4a6b-8c7d-9e0f1a2b3c4d', '大红', '#C8102E')`,
		`INSERT INTO production_batches VALUES ('9d4c5e66-2f3a-4b7c-9d8e-0f1a2b3c4d5e', 'PC-001',
			'7b2a3c44-0d1e-4f5a-9b6c-7d8e9f0a1b2c', 'in_production', '', '王芳',
			'2026-02-01 09:30:00', '2026-02-01 09:00:00')`,
		`INSERT INTO product_configs VALUES ('ae5d6f77-3a4b-4c8d-ae9f-1a2b3c4d5e6f',
			'9d4c5e66-2f3a-4b7c-9d8e-0f1a2b3c4d5e', '毛衣A', '8c3b4d55-1e2f-4a6b-8c7d-9e0f1a2b3c4d', '[1,2,3]', 0)`,
		`INSERT INTO customer_out_of_stock VALUES ('bf6e7a88-4b5c-4d9e-bf0a-2b3c4d5e6f7a',
			'王记针织', '毛衣A', 20, 'refunded', '', '2026-02-02 10:00:00')`,
	})
}

func newTargetDB(t *testing.T) *gorm.DB {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open target db: %v", err)
	}
	err = database.AutoMigrate(
		&models.Machine{},
		&models.ColorCard{},
		&models.ProductionBatch{},
		&models.ProductConfig{},
		&models.CustomerOutOfStock{},
	)
	if err != nil {
		t.Fatalf("migrate target schema: %v", err)
	}
	return database
}

func TestImportCopiesLegacyData(t *testing.T) {
	path := writeLegacyStore(t)
	target := newTargetDB(t)

	importer := NewImporter(target, zerolog.Nop(), migration.ImportOptions{SkipExisting: true})
	stats, err := importer.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if stats.Machines != 2 || stats.Colors != 1 || stats.Batches != 1 || stats.Products != 1 || stats.OutOfStock != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(stats.Errors) != 0 {
		t.Fatalf("errors = %v", stats.Errors)
	}

	var batch models.ProductionBatch
	if err := target.Preload("Products").First(&batch, "batch_number = ?", "PC-001").Error; err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if batch.Status != models.BatchActive {
		t.Fatalf("status = %s, want active", batch.Status)
	}
	if !batch.IsLegacy() {
		t.Fatal("imported batch must carry no shift metadata")
	}
	if len(batch.Products) != 1 || batch.Products[0].ProductName != "毛衣A" {
		t.Fatalf("products = %+v", batch.Products)
	}
	if got := batch.Products[0].OccupiedStations; len(got) != 3 {
		t.Fatalf("stations = %v", got)
	}

	var record models.CustomerOutOfStock
	if err := target.First(&record, "customer_name = ?", "王记针织").Error; err != nil {
		t.Fatalf("load out-of-stock: %v", err)
	}
	if record.Status != models.OutOfStockReturned {
		t.Fatalf("status = %s, want returned", record.Status)
	}
}

func TestImportKeepsReferencesForLegacyIntegerIDs(t *testing.T) {
	path := writeStore(t, []string{
		`INSERT INTO machines VALUES ('5', '03', 'running', 12)`,
		`INSERT INTO color_cards VALUES ('7', '藏青', '#1F2A44')`,
		`INSERT INTO production_batches VALUES ('11', 'PC-002', '5', 'completed', '', '陈明',
			'2026-02-03 10:00:00', '2026-02-03 08:00:00')`,
		`INSERT INTO product_configs VALUES ('12', '11', '毛衣B', '7', '[4,5]', 0)`,
	})
	target := newTargetDB(t)

	importer := NewImporter(target, zerolog.Nop(), migration.ImportOptions{SkipExisting: true})
	stats, err := importer.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(stats.Errors) != 0 {
		t.Fatalf("errors = %v", stats.Errors)
	}

	var machine models.Machine
	if err := target.First(&machine, "number = ?", "03").Error; err != nil {
		t.Fatalf("load machine: %v", err)
	}
	if machine.ID == "5" {
		t.Fatal("legacy integer id not rewritten")
	}

	var color models.ColorCard
	if err := target.First(&color, "name = ?", "藏青").Error; err != nil {
		t.Fatalf("load color: %v", err)
	}

	var batch models.ProductionBatch
	if err := target.Preload("Products").First(&batch, "batch_number = ?", "PC-002").Error; err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if batch.MachineID != machine.ID {
		t.Fatalf("batch machine = %s, imported machine = %s", batch.MachineID, machine.ID)
	}
	if len(batch.Products) != 1 {
		t.Fatalf("products = %+v", batch.Products)
	}
	if got := batch.Products[0].PrimaryColorID; got != color.ID {
		t.Fatalf("product color = %s, imported color = %s", got, color.ID)
	}
}

func TestImportSkipsExistingAndDryRun(t *testing.T) {
	path := writeLegacyStore(t)
	target := newTargetDB(t)

	importer := NewImporter(target, zerolog.Nop(), migration.ImportOptions{SkipExisting: true})
	if _, err := importer.Import(context.Background(), path); err != nil {
		t.Fatalf("first import: %v", err)
	}

	second := NewImporter(target, zerolog.Nop(), migration.ImportOptions{SkipExisting: true})
	stats, err := second.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if stats.Batches != 0 || stats.Skipped == 0 {
		t.Fatalf("second import stats = %+v", stats)
	}

	dryTarget := newTargetDB(t)
	dry := NewImporter(dryTarget, zerolog.Nop(), migration.ImportOptions{DryRun: true})
	stats, err = dry.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if stats.Batches != 1 {
		t.Fatalf("dry run stats = %+v", stats)
	}

	var count int64
	if err := dryTarget.Model(&models.ProductionBatch{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("dry run wrote %d batches", count)
	}
}
