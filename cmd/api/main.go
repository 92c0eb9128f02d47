package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/COS301-SE-2025/devx360-metrics/internal/api"
	"github.com/COS301-SE-2025/devx360-metrics/internal/config"
	"github.com/COS301-SE-2025/devx360-metrics/internal/dora"
	"github.com/COS301-SE-2025/devx360-metrics/internal/fetcher"
	"github.com/COS301-SE-2025/devx360-metrics/internal/insight"
	"github.com/COS301-SE-2025/devx360-metrics/internal/scheduler"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage/memory"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage/postgres"
	"github.com/COS301-SE-2025/devx360-metrics/internal/storage/sqlite"
	"github.com/COS301-SE-2025/devx360-metrics/internal/tokenpool"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL storage: %v", err)
		}
	case "memory":
		store = memory.NewMemoryStorage()
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite storage: %v", err)
		}
	}
	defer store.Close()

	// Wire the pipeline: credential pool -> fetcher -> calculator ->
	// insight manager -> scheduler
	pool := tokenpool.NewPool(cfg.GitHubTokens)
	fetch := fetcher.NewGitHubFetcher(pool)
	calc := dora.NewCalculator(dora.NewKeywordClassifier())
	insights := insight.NewManager(store, insight.NewOpenAIGenerator(cfg.AIEndpoint, cfg.AIAPIKey, cfg.AIModel))
	sched := scheduler.NewScheduler(store, fetch, calc, insights, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	// Initialize handler and routes
	handler := api.NewHandler(store, sched, insights)
	router := api.SetupRoutes(handler)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	fmt.Printf("Starting API server on %s\n", addr)
	fmt.Printf("Storage type: %s\n", cfg.StorageType)
	fmt.Printf("Credential pool size: %d\n", pool.Size())

	if err := router.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}
