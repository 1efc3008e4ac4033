package main

import (
	"fmt"

	"pragrisk/internal/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			db, err := database.Open(cfg.Database, log)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Msg("schema up to date")
			return nil
		},
	}
}
