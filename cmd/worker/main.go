package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmarchal/banklink/internal/aggregator/plaid"
	"github.com/dmarchal/banklink/internal/aggregator/tink"
	"github.com/dmarchal/banklink/internal/config"
	"github.com/dmarchal/banklink/internal/jobs/inmemory"
	"github.com/dmarchal/banklink/internal/logger"
	"github.com/dmarchal/banklink/internal/mirror"
	"github.com/dmarchal/banklink/internal/reconcile"
	fsstore "github.com/dmarchal/banklink/internal/store/firestore"
	"github.com/dmarchal/banklink/internal/worker"
)

func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// In production the queue would be replaced with Cloud Tasks or
	// Pub/Sub; this standalone worker serves local and single-instance
	// deployments.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 5, jobStore)

	log.Info().Msg("Starting worker service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := fsstore.NewStore(ctx, cfg.ProjectID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create document store")
	}
	defer store.Close()

	tinkClient := tink.NewClient(cfg.TinkClientID, cfg.TinkClientSecret)
	plaidClient := plaid.NewClient(cfg.PlaidClientID, cfg.PlaidSecret, cfg.PlaidEnv)

	var archive mirror.Archiver
	if cfg.ArchiveBucket != "" {
		gcs, err := mirror.NewGCSArchiver(ctx, cfg.ArchiveBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create archiver")
		}
		defer gcs.Close()
		archive = gcs
	}

	mirrorSvc := mirror.New(tinkClient, plaidClient, store,
		func(ctx context.Context) mirror.Sink { return store.NewBulkSink(ctx) },
		archive, log)
	engine := reconcile.NewEngine(store, store, store, log)
	dispatch := worker.NewHandler(engine, mirrorSvc, log)

	if err := jobQueue.Start(ctx, dispatch.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
