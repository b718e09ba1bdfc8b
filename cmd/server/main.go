package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"studylens-backend/internal/config"
	"studylens-backend/internal/database"
	"studylens-backend/internal/handlers"
	"studylens-backend/internal/logger"
	"studylens-backend/internal/middleware"
	"studylens-backend/internal/repository"
	"studylens-backend/internal/router"
	"studylens-backend/internal/services"
	"studylens-backend/internal/session"
	"studylens-backend/internal/websocket"
	"studylens-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("🚀 Starting StudyLens Backend...")
	log.Info("✓ Environment variables loaded", "env", cfg.Env)

	// Background loops stop with this context.
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ──── Step 2: Initialize PostgreSQL (optional) ────
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("✗ PostgreSQL connection failed", "error", err)
		}
		defer pool.Close()
		log.Info("✓ PostgreSQL connected")

		if err := database.RunMigrations(ctx, pool, "migrations", log); err != nil {
			log.Fatal("✗ Database migration failed", "error", err)
		}
		log.Info("✓ Database migrations applied")
	} else {
		if cfg.IsProduction() {
			log.Warn("DATABASE_URL not set in production, sessions are lost on restart")
		} else {
			log.Warn("DATABASE_URL not set, sessions live in memory only")
		}
	}

	// ──── Step 3: Initialize Redis Clients (optional) ────
	var cacheClient, pubsubClient *redis.Client
	if cfg.RedisURL != "" {
		redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("✗ Redis connection failed", "error", err)
		}
		defer redisClients.Close()
		cacheClient, pubsubClient = redisClients.Cache, redisClients.PubSub
		log.Info("✓ Redis connected")
	} else {
		log.Warn("REDIS_URL not set, transcript cache and updates stay in-process")
	}

	// ──── Step 4: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(
		cfg.GeminiAPIKey,
		cfg.GeminiModel,
		cfg.GeminiConcurrentReqs,
		cfg.GeminiTimeout,
		log,
	)
	if err != nil {
		log.Fatal("✗ Gemini client initialization failed", "error", err)
	}
	defer geminiService.Close()
	log.Info("✓ Gemini client initialized", "model", cfg.GeminiModel, "slots", cfg.GeminiConcurrentReqs)

	// ──── Step 5: Initialize Transcript Pipeline ────
	provider := services.NewTranscriptProvider(cfg.TranscriptProvider, cfg.TranscriptAPIURL, cfg.TranscriptAPIKey, cfg.TranscriptHTTPTimeout)
	if !provider.HasCredential() {
		log.Warn("YT_TRANSCRIPT_API_KEY not set, transcript lookups will fail", "provider", provider.Name())
	}
	transcriptCache := services.NewTranscriptCache(cfg.TranscriptCacheMaxEntries, cfg.TranscriptCacheTTL, cacheClient, log)
	transcriptService := services.NewTranscriptService(provider, transcriptCache, cfg.TranscriptDefaultLangs, log)
	youtubeService := services.NewYouTubeService(cfg.TranscriptHTTPTimeout, log)
	fileExtractService := services.NewFileExtractService()
	log.Info("✓ Transcript pipeline ready", "provider", provider.Name(), "languages", transcriptService.DefaultLanguages())

	// ──── Step 6: Start WebSocket Hub ────
	sessionAuth := middleware.NewSessionAuth(cfg.JWTSecret, cfg.SessionRetention)
	wsHub := websocket.NewHub(pubsubClient, sessionAuth, log)
	log.Info("✓ WebSocket hub started")

	// ──── Step 7: Initialize Session Store ────
	deps := session.Dependencies{
		Gateway:     geminiService,
		Transcripts: transcriptService,
		Publisher:   wsHub,
		IdleTTL:     cfg.SessionIdleTTL,
		Log:         log,
	}
	var sessionRepo *repository.SessionRepo
	if pool != nil {
		sessionRepo = repository.NewSessionRepo(pool)
		deps.Repo = sessionRepo
	}
	store := session.NewStore(deps)
	go store.RunSweeper(ctx, time.Minute)
	if sessionRepo != nil {
		go pruneSnapshots(ctx, sessionRepo, cfg.SessionRetention, log)
	}
	log.Info("✓ Session store ready", "idle_ttl", cfg.SessionIdleTTL, "persistent", sessionRepo != nil)

	// ──── Step 8: Start Job Worker Pool ────
	workerPool := worker.NewPool(cacheClient, store, wsHub, cfg.WorkerCount, cfg.GeminiTimeout*2, log)
	workerPool.Start()
	log.Info(fmt.Sprintf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount))

	// ──── Initialize Handlers ────
	transcriptHandler := handlers.NewTranscriptHandler(transcriptService, log)
	sessionHandler := handlers.NewSessionHandler(store, sessionAuth, workerPool, fileExtractService, log)
	videoHandler := handlers.NewVideoHandler(youtubeService)

	apiLimiter := middleware.NewRateLimiter(cfg.APIRateLimit, time.Minute)
	go apiLimiter.RunCleanup(ctx)

	// ──── Step 9: Start HTTP Server ────
	r := router.New(
		sessionAuth,
		transcriptHandler,
		sessionHandler,
		videoHandler,
		wsHub,
		apiLimiter,
		cfg.FrontendURL,
	)

	// Synchronous generation can outlast the usual 15s write timeout.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GeminiTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)

		stop()
		workerPool.Stop()
	}()

	log.Info(fmt.Sprintf("✓ StudyLens Backend ready on http://localhost:%s", cfg.Port))
	log.Info(fmt.Sprintf("  API: http://localhost:%s/api/v1", cfg.Port))
	log.Info(fmt.Sprintf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port))

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("Server error", "error", err)
	}
	<-done
}

// pruneSnapshots deletes persisted sessions untouched for longer than retention.
func pruneSnapshots(ctx context.Context, repo *repository.SessionRepo, retention time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteIdle(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Error("prune session snapshots", "error", err)
				continue
			}
			if n > 0 {
				log.Info("pruned session snapshots", "count", n)
			}
		}
	}
}
