package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oceanguard/hazard-engine/internal/config"
	"github.com/oceanguard/hazard-engine/internal/db"
	"github.com/oceanguard/hazard-engine/pkg/models"
)

// seedCmd loads a small demo dataset: advisory bulletins plus a burst of
// unprocessed reports around Marina Beach. The reports are picked up by the
// sweeper on the next serve run, so the full pipeline is exercised.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo bulletins and reports for local development",
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
		return seed(cmd.Context(), store)
	},
}

func seed(ctx context.Context, store *db.PostgresStore) error {
	now := time.Now().UTC()

	bulletins := []models.Bulletin{
		{
			HazardKind:  models.KindTsunami,
			Severity:    4,
			Description: "Tsunami watch for the Tamil Nadu coast following a 7.1 magnitude event in the Andaman basin",
			IssuedAt:    now.Add(-2 * time.Hour),
		},
		{
			HazardKind:  models.KindFlood,
			Severity:    3,
			Description: "Heavy rainfall warning for Chennai and suburbs, localized coastal flooding expected",
			IssuedAt:    now.Add(-45 * time.Minute),
		},
		{
			HazardKind:  models.KindTides,
			Severity:    2,
			Description: "High tide advisory for the Puducherry shoreline, swells up to 2.5 m",
			IssuedAt:    now.Add(-30 * time.Minute),
		},
	}
	for i := range bulletins {
		if err := store.InsertBulletin(ctx, &bulletins[i]); err != nil {
			return err
		}
	}

	reports := []models.Report{
		{
			Source:    models.SourceCitizen,
			Text:      "Flood water rising fast near Marina Beach, the service road is already submerged",
			Latitude:  13.0499,
			Longitude: 80.2824,
			Timestamp: now.Add(-12 * time.Minute),
			UserName:  "marina_resident",
		},
		{
			Source:    models.SourceCitizen,
			Text:      "Water entering houses on Kamarajar Salai, waterlogged everywhere, we need help",
			Latitude:  13.0521,
			Longitude: 80.2810,
			Timestamp: now.Add(-8 * time.Minute),
			UserName:  "local_volunteer",
		},
		{
			Source:        models.SourceSocial,
			Text:          "Massive flooding at Marina Beach right now, cars floating #ChennaiRains",
			Latitude:      13.0487,
			Longitude:     80.2833,
			Timestamp:     now.Add(-5 * time.Minute),
			MediaPaths:    "social/chennai-rains-0441.jpg",
			HasMedia:      true,
			MediaVerified: false,
			UserName:      "stormwatcher",
		},
		{
			Source:           models.SourceIncois,
			Text:             "INCOIS advisory: coastal inundation observed along Chennai Marina stretch, flood conditions confirmed",
			Latitude:         13.0500,
			Longitude:        80.2820,
			Timestamp:        now.Add(-3 * time.Minute),
			DeclaredSeverity: 4,
		},
	}
	for i := range reports {
		if err := store.InsertReport(ctx, &reports[i]); err != nil {
			return err
		}
	}

	log.Info().
		Int("bulletins", len(bulletins)).
		Int("reports", len(reports)).
		Msg("demo data seeded, reports will be processed on the next serve run")
	return nil
}
