package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/oceanguard/hazard-engine/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "hazard-engine",
	Short: "Geolocated hazard report fusion engine",
	Long: `hazard-engine ingests geolocated hazard reports from citizens, social
media feeds, INCOIS advisories and LoRa emergency beacons, classifies and
scores them, clusters nearby reports into hazard events and keeps a live
confidence estimate per event that administrators can validate.

Processed events and raised alerts fan out to dashboards over SSE and
WebSocket in real time.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
