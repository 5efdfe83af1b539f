package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oceanguard/hazard-engine/internal/alert"
	"github.com/oceanguard/hazard-engine/internal/analysis"
	"github.com/oceanguard/hazard-engine/internal/api"
	"github.com/oceanguard/hazard-engine/internal/broadcast"
	"github.com/oceanguard/hazard-engine/internal/config"
	"github.com/oceanguard/hazard-engine/internal/db"
	"github.com/oceanguard/hazard-engine/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion API, processing pipeline and event stream",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		return err
	}

	classifier, err := analysis.NewClassifier()
	if err != nil {
		return err
	}

	hub := broadcast.NewHub(cfg.SubscriberBuffer, cfg.KeepaliveInterval)
	alerts := alert.NewManager(cfg.AlertWebhookURL, cfg.AlertMinSeverity, func(a alert.Alert) {
		hub.Publish(broadcast.TopicAlertRaised, a)
	})

	pipe := pipeline.New(store, classifier, hub, alerts, pipeline.Options{
		Workers:   cfg.PipelineWorkers,
		QueueSize: cfg.PipelineQueue,
	})
	sweeper := pipeline.NewSweeper(store, pipe, cfg.SweepInterval)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.SetupRouter(store, pipe, hub, alerts, cfg.AllowedOrigins, cfg.RateLimitRPM),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		pipe.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Int("workers", cfg.PipelineWorkers).
			Dur("sweep_interval", cfg.SweepInterval).
			Msg("hazard engine listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received, draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("hazard engine stopped")
	return nil
}
