package main

import (
	"github.com/spf13/cobra"

	"github.com/matadcze/task-tracker/internal/database"
)

var migrateDownSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Управление миграциями БД",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Применить все миграции",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		return database.Migrate(cfg, logger)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Откатить последние миграции",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		return database.Rollback(cfg, migrateDownSteps, logger)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 1, "количество откатываемых миграций")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}
