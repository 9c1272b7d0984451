package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dmarchal/banklink/internal/aggregator/plaid"
	"github.com/dmarchal/banklink/internal/aggregator/tink"
	"github.com/dmarchal/banklink/internal/api/handlers"
	"github.com/dmarchal/banklink/internal/api/middleware"
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

	ctx := context.Background()

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
	} else {
		log.Warn().Msg("No archive bucket configured - raw payload archiving disabled")
	}

	mirrorSvc := mirror.New(tinkClient, plaidClient, store,
		func(ctx context.Context) mirror.Sink { return store.NewBulkSink(ctx) },
		archive, log)
	engine := reconcile.NewEngine(store, store, store, log)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 5, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	dispatch := worker.NewHandler(engine, mirrorSvc, log)
	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, dispatch.Handle); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	webhooksHandler := handlers.NewWebhooksHandler(tinkClient, store, jobQueue, cfg.PublicBaseURL, log)
	linkHandler := handlers.NewLinkHandler(plaidClient, mirrorSvc, jobQueue, cfg.PublicBaseURL, log)
	eventsHandler := handlers.NewEventsHandler(jobQueue, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/webhooks/tink", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			webhooksHandler.HandleTink(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/webhooks/tink/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			webhooksHandler.RegisterTink(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/webhooks/plaid", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			webhooksHandler.HandlePlaid(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/link/plaid/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			linkHandler.CreateToken(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/link/plaid/exchange", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			linkHandler.ExchangeToken(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/events/store", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			eventsHandler.HandleStoreEvent(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	})

	// Health check endpoint
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
