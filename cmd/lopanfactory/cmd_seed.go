/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/friendsincode/lopan_factory/internal/db"
	"github.com/friendsincode/lopan_factory/internal/models"
)

var (
	seedAdminUsername string
	seedAdminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with an administrator and reference data",
	Long: `Seed the database with an administrator account, a starter set of
machines and color cards. Existing rows are left untouched, so the command is
safe to run repeatedly.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminUsername, "admin-username", "admin", "Username for the administrator account")
	seedCmd.Flags().StringVar(&seedAdminPassword, "admin-password", "", "Password for the administrator account (required)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if seedAdminPassword == "" {
		return fmt.Errorf("--admin-password is required")
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

	if err := seedAdmin(database); err != nil {
		return err
	}
	if err := seedMachines(database); err != nil {
		return err
	}
	if err := seedColors(database); err != nil {
		return err
	}

	logger.Info().Msg("seed complete")
	return nil
}

func seedAdmin(database *gorm.DB) error {
	var count int64
	if err := database.Model(&models.User{}).Where("username = ?", seedAdminUsername).Count(&count).Error; err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if count > 0 {
		logger.Info().Str("username", seedAdminUsername).Msg("admin user already exists, skipping")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seedAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := models.User{
		ID:       uuid.NewString(),
		Username: seedAdminUsername,
		Name:     "系统管理员",
		Password: string(hash),
		Role:     models.RoleAdministrator,
	}
	if err := database.Create(&admin).Error; err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	logger.Info().Str("username", seedAdminUsername).Msg("admin user created")
	return nil
}

func seedMachines(database *gorm.DB) error {
	var count int64
	if err := database.Model(&models.Machine{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count machines: %w", err)
	}
	if count > 0 {
		return nil
	}

	for i := 1; i <= 4; i++ {
		machine := models.Machine{
			ID:           uuid.NewString(),
			Number:       fmt.Sprintf("%02d", i),
			Status:       models.MachineActive,
			StationCount: 12,
		}
		if err := database.Create(&machine).Error; err != nil {
			return fmt.Errorf("create machine %s: %w", machine.Number, err)
		}
	}

	logger.Info().Msg("starter machines created")
	return nil
}

func seedColors(database *gorm.DB) error {
	var count int64
	if err := database.Model(&models.ColorCard{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count color cards: %w", err)
	}
	if count > 0 {
		return nil
	}

	colors := []models.ColorCard{
		{Name: "大红", HexCode: "#D32F2F"},
		{Name: "藏青", HexCode: "#1A237E"},
		{Name: "米白", HexCode: "#FAF7F0"},
		{Name: "墨绿", HexCode: "#1B5E20"},
		{Name: "咖啡", HexCode: "#4E342E"},
	}
	for _, color := range colors {
		color.ID = uuid.NewString()
		if err := database.Create(&color).Error; err != nil {
			return fmt.Errorf("create color card %s: %w", color.Name, err)
		}
	}

	logger.Info().Int("count", len(colors)).Msg("starter color cards created")
	return nil
}
