package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kzhara/lathemind/backend/internal/adapters/blob"
	"github.com/kzhara/lathemind/backend/internal/adapters/cache"
	"github.com/kzhara/lathemind/backend/internal/adapters/database"
	"github.com/kzhara/lathemind/backend/internal/adapters/memory"
	"github.com/kzhara/lathemind/backend/internal/adapters/search"
	"github.com/kzhara/lathemind/backend/internal/api/handlers"
	"github.com/kzhara/lathemind/backend/internal/api/routes"
	"github.com/kzhara/lathemind/backend/internal/application/services"
	"github.com/kzhara/lathemind/backend/internal/domain/providers"
	"github.com/kzhara/lathemind/backend/internal/domain/repositories"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/clients/gemini"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/clients/postgres"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/clients/redis"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/observability"
	"github.com/kzhara/lathemind/backend/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger("lathemind-api", cfg.Server.Environment)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	var metrics *observability.Metrics
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized")

			metrics, err = observability.InitMetrics()
			if err != nil {
				log.Fatal().Err(err).Msg("failed to initialize metrics")
			}
		}
	}

	// Initialize the sample store
	var sampleRepo repositories.SampleRepository
	switch cfg.Storage.Driver {
	case "memory":
		sampleRepo = memory.NewSampleAdapter()
		log.Info().Msg("sample store running in memory")
	default:
		pgClient, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()

		adapter := database.NewSampleAdapter(pgClient)
		if err := adapter.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure samples schema")
		}
		sampleRepo = adapter
		log.Info().Msg("PostgreSQL sample store initialized")
	}

	// Initialize Redis-backed blob storage and analysis cache when available
	var blobStore providers.BlobProvider
	var analysisCache providers.CacheProvider
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize Redis client, falling back to in-memory blobs")
		} else {
			defer redisClient.Close()
			blobStore = blob.NewRedisAdapter(redisClient)
			analysisCache = cache.NewRedisAdapter(redisClient)
			log.Info().Msg("Redis client initialized")
		}
	}
	if blobStore == nil {
		blobStore = blob.NewMemoryAdapter()
	}

	// Build the metadata index and hydrate it from the store
	index := search.NewMetadataIndex()
	knowledgeService := services.NewKnowledgeService(sampleRepo, index, blobStore)
	if count, err := knowledgeService.RebuildIndex(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to build metadata index")
	} else {
		log.Info().Int("samples", count).Msg("metadata index built")
	}

	retrievalService := services.NewRetrievalService(sampleRepo, index)
	composer := services.NewContextComposer(cfg.Knowledge.MaxReferenceSamples, cfg.Knowledge.MaxExemplarChars)
	sheetService := services.NewProcessSheetService()

	// The generation pipeline needs a Gemini API key; without one the
	// knowledge endpoints still work and /api/generate answers 503.
	var synthesizer handlers.Synthesizer
	if cfg.Gemini.APIKey != "" {
		geminiClient, err := gemini.NewClient(&cfg.Gemini)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Gemini client")
		}
		synthesizer = services.NewGenerationService(
			retrievalService,
			composer,
			geminiClient,
			geminiClient,
			analysisCache,
			services.GenerationOptions{
				Retries:           cfg.Knowledge.GenerationRetries,
				RetryInitialDelay: cfg.Knowledge.RetryInitialDelay,
				AnalysisCacheTTL:  cfg.Knowledge.AnalysisCacheTTL,
			},
		)
		log.Info().Str("model", cfg.Gemini.Model).Msg("generation pipeline initialized")
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, program generation disabled")
	}

	// Set up router
	router := routes.NewRouter(
		handlers.NewSampleHandler(knowledgeService),
		handlers.NewGenerateHandler(synthesizer),
		handlers.NewProcessHandler(sheetService),
		handlers.NewHealthHandler(synthesizer != nil),
		metrics,
	)
	handler := router.SetupRoutes()

	// Create HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	log.Info().Msg("server stopped")
}
