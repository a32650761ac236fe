package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"pressflow/internal/adapters/cache"
	"pressflow/internal/adapters/database"
	"pressflow/internal/adapters/dispatch"
	"pressflow/internal/adapters/docs"
	httpAdapter "pressflow/internal/adapters/http"
	"pressflow/internal/adapters/notify"
	"pressflow/internal/app"
	"pressflow/internal/domain"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	migrationDB, err := database.NewPostgresConnection()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(migrationDB); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	migrationDB.Close()

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

	// Initialize application services
	workflowService := app.NewWorkflowService(workflowRepo)
	publishingService := app.NewPublishingService(workflowRepo, instanceRepo, decisionRepo,
		redisStore, documentStore, dispatch.DefaultPublishers(documentStore))
	conflictService := app.NewConflictService(workflowRepo, instanceRepo, decisionRepo,
		conflictRepo, redisStore, publishingService)
	publishingService.SetConflictDetector(conflictService)
	lockService := app.NewLockService(redisStore, redisStore)

	// Notification dispatcher drains the outbox in the background.
	dispatcher := notify.NewDispatcher(ctx, redisStore)
	for _, channel := range []domain.Channel{domain.ChannelInApp, domain.ChannelEmail, domain.ChannelSMS} {
		if err := dispatcher.RegisterHandler(channel, notify.LogHandler); err != nil {
			log.Fatalf("Failed to register notification handler: %v", err)
		}
	}
	go func() {
		if err := dispatcher.Run(); err != nil && ctx.Err() == nil {
			log.Printf("Notification dispatcher stopped: %v", err)
		}
	}()
	defer dispatcher.Stop()

	// Initialize handlers
	workflowHandler := httpAdapter.NewWorkflowHandler(workflowService)
	publishingHandler := httpAdapter.NewPublishingHandler(publishingService, conflictService)
	sessionHandler := httpAdapter.NewSessionHandler(lockService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	router := gin.Default()

	// Health check endpoint
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "pressflow-api-server",
		})
	})

	httpAdapter.RegisterRoutes(router, workflowHandler, publishingHandler, sessionHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting Pressflow API Server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
