package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oceanguard/hazard-engine/internal/config"
	"github.com/oceanguard/hazard-engine/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := db.Connect(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.InitSchema(cmd.Context()); err != nil {
			return err
		}
		log.Info().Msg("database schema is up to date")
		return nil
	},
}
