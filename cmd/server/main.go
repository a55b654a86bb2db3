package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"csvquery-backend/internal/api"
	"csvquery-backend/internal/config"
	"csvquery-backend/internal/ingest"
	"csvquery-backend/internal/llm"
	"csvquery-backend/internal/logging"
	"csvquery-backend/internal/query"
	"csvquery-backend/internal/staging"
	"csvquery-backend/internal/store"
	"csvquery-backend/internal/upload"
	"csvquery-backend/internal/warehouse"
)

func main() {
	ctx := logging.WithLogger(context.Background(), "main")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	fs := afero.NewOsFs()
	stagingStore, err := staging.NewStore(fs, cfg.StagingDir)
	if err != nil {
		log.Fatalf("failed to initialize staging store: %v", err)
	}

	wh := warehouse.New(cfg.DuckDBRoot)
	defer wh.Close()

	pool := ingest.NewPool(stagingStore, wh, db, ingest.Options{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.RetryBackoff,
		TaskTimeout: cfg.TaskTimeout,
	})
	pool.Start()

	reaperCtx, stopReaper := context.WithCancel(ctx)
	reaper := ingest.NewReaper(fs, cfg.StagingDir, cfg.StaleUploadTTL, cfg.ReapInterval)
	go reaper.Run(reaperCtx)

	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	uploadSvc := upload.NewService(stagingStore, db, pool, cfg.DataDir)
	querySvc := query.NewService(db, wh, llmClient, llmClient)
	handler := api.NewHandler(uploadSvc, querySvc)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logging.Infof(ctx, "csv query service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logging.Infof(ctx, "shutting down csv query service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Errorf(ctx, "graceful shutdown failed: %v", err)
	}

	stopReaper()
	pool.Stop()
}
