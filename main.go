package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"whisperjournal/internal/api"
	"whisperjournal/internal/audio"
	"whisperjournal/internal/config"
	"whisperjournal/internal/database"
	"whisperjournal/internal/settings"
	"whisperjournal/internal/store"
	"whisperjournal/internal/transcriber"
	"whisperjournal/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Run migrations
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Seed settings defaults
	settingsService := settings.NewService(db)
	if err := settingsService.Seed(); err != nil {
		log.Fatal("Failed to seed settings:", err)
	}

	st := store.New(db)
	tools := audio.NewTools()
	procs := worker.NewProcTable()
	runner := worker.NewRunner(st, settingsService, tools, transcriber.New(tools), procs, cfg)

	router := api.SetupRouter(st, settingsService, procs, cfg, releaseVersion)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runner.Run(ctx)
	})

	g.Go(func() error {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal("Server exited with error:", err)
	}
}
