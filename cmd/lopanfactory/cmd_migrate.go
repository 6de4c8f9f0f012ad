/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/lopan_factory/internal/clock"
	"github.com/friendsincode/lopan_factory/internal/cutoff"
	"github.com/friendsincode/lopan_factory/internal/db"
	"github.com/friendsincode/lopan_factory/internal/events"
	"github.com/friendsincode/lopan_factory/internal/migration"
	"github.com/friendsincode/lopan_factory/internal/migration/legacystore"
	"github.com/friendsincode/lopan_factory/internal/repository"
)

var (
	migrateLegacy     bool
	migrateImportPath string
	migrateImportDry  bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	Long: `Apply database schema migrations.

With --legacy-batches, also backfill target date and shift onto batches
created before shift-aware scheduling existed.

With --import-store, first import data from a legacy iOS app export
(a SQLite file or a .tar.gz archive containing one).`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateLegacy, "legacy-batches", false, "Also backfill shift metadata onto legacy batches")
	migrateCmd.Flags().StringVar(&migrateImportPath, "import-store", "", "Import data from a legacy iOS store export at this path")
	migrateCmd.Flags().BoolVar(&migrateImportDry, "dry-run", false, "With --import-store, report what would be imported without writing")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("close database failed")
		}
	}()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	logger.Info().Msg("schema migration complete")

	if migrateImportPath != "" {
		importer := legacystore.NewImporter(database, logger, migration.ImportOptions{
			DryRun:       migrateImportDry,
			SkipExisting: true,
		})
		importer.SetProgressCallback(func(step, total int, message string) {
			fmt.Printf("[%d/%d] %s\n", step, total, message)
		})

		stats, err := importer.Import(context.Background(), migrateImportPath)
		if err != nil {
			return fmt.Errorf("import legacy store: %w", err)
		}
		fmt.Printf("imported: machines=%d colors=%d batches=%d products=%d out_of_stock=%d skipped=%d errors=%d\n",
			stats.Machines, stats.Colors, stats.Batches, stats.Products, stats.OutOfStock, stats.Skipped, len(stats.Errors))
	}

	if !migrateLegacy {
		return nil
	}

	clk := clock.NewSystem(cfg.Location())
	policy := cutoff.NewPolicy(cfg.CutoffHour, clk)
	repo := repository.NewBatchRepository(database)
	svc := migration.NewService(repo, policy, events.NewBus(), logger)

	summary, err := svc.MigrateAll(context.Background(), "cli")
	if err != nil {
		return fmt.Errorf("migrate legacy batches: %w", err)
	}

	fmt.Printf("legacy batches: scanned=%d migrated=%d failed=%d\n", summary.Scanned, summary.Migrated, summary.Failed)
	return nil
}
