package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dvloznov/patent-harvester/internal/api/handlers"
	"github.com/dvloznov/patent-harvester/internal/api/middleware"
	"github.com/dvloznov/patent-harvester/internal/config"
	"github.com/dvloznov/patent-harvester/internal/extract"
	"github.com/dvloznov/patent-harvester/internal/llm"
	"github.com/dvloznov/patent-harvester/internal/logger"
	"github.com/dvloznov/patent-harvester/internal/patents"
	"github.com/dvloznov/patent-harvester/internal/tasks"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	// Optionally warm the local store from a GCS mirror before serving.
	if cfg.Patents.MirrorBucket != "" {
		n, err := patents.MirrorBucket(ctx, cfg.Patents.MirrorBucket, cfg.Patents.MirrorPrefix,
			cfg.Patents.StoreDir, log)
		if err != nil {
			log.Fatal().Err(err).Str("bucket", cfg.Patents.MirrorBucket).Msg("Failed to mirror patent bucket")
		}
		log.Info().Int("downloaded", n).Str("bucket", cfg.Patents.MirrorBucket).Msg("Patent mirror synced")
	}

	gemini, err := llm.NewGemini(ctx, llm.Config{
		TranscribeModel: cfg.Gemini.TranscribeModel,
		RelevanceModel:  cfg.Gemini.RelevanceModel,
		NullToken:       cfg.Extract.NullToken,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	locator := patents.NewLocator(cfg.Patents.StoreDir, log)
	registry := tasks.NewRegistry(cfg.Extract.Retention)
	orchestrator := extract.New(locator, gemini, gemini, registry, extract.Config{
		Workers:         cfg.Extract.Workers,
		MatchLimit:      cfg.Extract.MatchLimit,
		MaxTablesPerDoc: cfg.Extract.MaxTablesPerDoc,
		NullToken:       cfg.Extract.NullToken,
	}, log)

	extractHandler := handlers.NewExtractHandler(orchestrator, registry, log)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS)

	r.Post("/api/extract", extractHandler.StartExtraction)
	r.Get("/api/extract/{taskID}/progress", extractHandler.GetProgress)
	r.Get("/api/extract/{taskID}/result", extractHandler.GetResult)
	r.Get("/api/health", handlers.Health)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("store_dir", cfg.Patents.StoreDir).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
