package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pressflow/internal/adapters/cache"
	"pressflow/internal/adapters/database"
	"pressflow/internal/adapters/dispatch"
	"pressflow/internal/adapters/docs"
	"pressflow/internal/app"
)

func main() {
	log.Println("Pressflow Sweeper starting...")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dbPool, err := database.NewPostgresPool(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	redisStore := cache.NewRedisStoreFromEnv()
	defer redisStore.Close()

	documentStore, err := docs.NewFileStore(getEnv("DOCS_DIR", "/var/lib/pressflow/docs"))
	if err != nil {
		log.Fatalf("Failed to initialize document store: %v", err)
	}

	workflowRepo := database.NewPostgresWorkflowRepository(dbPool)
	instanceRepo := database.NewPostgresInstanceRepository(dbPool)
	decisionRepo := database.NewPostgresDecisionRepository(dbPool)
	conflictRepo := database.NewPostgresConflictRepository(dbPool)

	publishingService := app.NewPublishingService(workflowRepo, instanceRepo, decisionRepo,
		redisStore, documentStore, dispatch.DefaultPublishers(documentStore))
	conflictService := app.NewConflictService(workflowRepo, instanceRepo, decisionRepo,
		conflictRepo, redisStore, publishingService)
	publishingService.SetConflictDetector(conflictService)

	sweeperService := app.NewSweeperService(instanceRepo, decisionRepo, redisStore,
		publishingService, conflictService)
	sweeperRunner := app.NewSweeperRunner(sweeperService)

	log.Println("Sweeper started successfully")
	if err := sweeperRunner.Start(ctx); err != nil {
		log.Printf("Sweeper error: %v", err)
	}

	log.Println("Sweeper stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
