package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldserve/booking-core/internal/config"
	"github.com/fieldserve/booking-core/internal/db"
	"github.com/fieldserve/booking-core/internal/model"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции схемы",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			gdb, err := db.NewGormDB(cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}

			if err := model.AutoMigrate(gdb); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			fmt.Println("migrations applied")
			return nil
		},
	}
}
