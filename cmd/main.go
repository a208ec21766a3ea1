package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/recall-backend/internal/clients/llm"
	rediscli "github.com/yungbote/recall-backend/internal/clients/redis"
	"github.com/yungbote/recall-backend/internal/db"
	"github.com/yungbote/recall-backend/internal/handlers"
	"github.com/yungbote/recall-backend/internal/middleware"
	"github.com/yungbote/recall-backend/internal/observability"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
	"github.com/yungbote/recall-backend/internal/repos"
	"github.com/yungbote/recall-backend/internal/server"
	"github.com/yungbote/recall-backend/internal/services"
)

func main() {
	// Logger
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing (no-op unless OTEL_ENABLED)
	serviceName := envutil.String("OTEL_SERVICE_NAME", "recall-backend")
	shutdownOtel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
	})
	if shutdownOtel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownOtel(ctx); err != nil {
				log.Warn("otel shutdown failed", "error", err)
			}
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	gdb := postgresService.DB()

	// Repos
	memoryRepo := repos.NewMemoryRepo(gdb, log)
	memoryLogRepo := repos.NewMemoryLogRepo(gdb, log)
	userSettingRepo := repos.NewUserSettingRepo(gdb, log)
	toolLogRepo := repos.NewToolLogRepo(gdb, log)

	// Redis (optional: tools degrade to uncached and unlimited)
	toolCache, err := rediscli.NewToolCache(log)
	if err != nil {
		log.Warn("Redis init failed, tools run without cache or rate limits", "error", err)
		toolCache = nil
	} else {
		defer toolCache.Close()
	}

	// LLM client
	llmClient, err := llm.NewClient(log)
	if err != nil {
		log.Error("Could not init LLM client", "error", err)
		os.Exit(1)
	}

	// Services
	embeddingService := services.NewEmbeddingService(log, llmClient)
	memoryService := services.NewMemoryService(log, memoryRepo, memoryLogRepo, embeddingService)
	condenseService := services.NewCondenseService(log, llmClient, memoryService, memoryLogRepo)
	settingsService := services.NewSettingsService(log, userSettingRepo)
	toolService := services.NewToolService(log, toolCache, toolLogRepo)

	// Handlers
	memoryHandler := handlers.NewMemoryHandler(memoryService, condenseService, settingsService)
	toolHandler := handlers.NewToolHandler(toolService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log)

	// Router
	srv := server.NewServer(server.RouterConfig{
		Log:            log,
		AuthMiddleware: authMiddleware,
		MemoryHandler:  memoryHandler,
		ToolHandler:    toolHandler,
		OtelEnabled:    envutil.Bool("OTEL_ENABLED", false),
		ServiceName:    serviceName,
	})

	port := envutil.String("PORT", "8080")
	log.Info("Starting server", "port", port)
	if err := srv.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
