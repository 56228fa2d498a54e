// cmd/api/main.go
// Main entry point for the application
// This file bootstraps all components and starts the server

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-connect/internal/auth"
	"github.com/imadgeboyega/kiekky-connect/internal/common/database"
	"github.com/imadgeboyega/kiekky-connect/internal/common/logger"
	"github.com/imadgeboyega/kiekky-connect/internal/config"
	"github.com/imadgeboyega/kiekky-connect/internal/dating"
	"github.com/imadgeboyega/kiekky-connect/internal/lobby"
	"github.com/imadgeboyega/kiekky-connect/internal/messaging"
	"github.com/imadgeboyega/kiekky-connect/internal/realtime"
)

var startTime = time.Now()

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	// Load configuration
	cfg := config.Load()

	log := logger.Must(cfg.Environment)
	defer log.Sync()

	log.Info("Starting Kiekky connect API")
	log.Info("Step 1: Loading .env file...")
	if envErr != nil {
		log.Warn("No .env file found, using environment variables", zap.Error(envErr))
	}

	// Validate configuration
	log.Info("Step 2: Validating configuration...")
	if err := cfg.Validate(); err != nil {
		log.Fatal("Configuration validation failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	log.Info("Step 3: Connecting to PostgreSQL...")
	db, err := database.NewPostgresDBFromURL(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	if cfg.AutoMigrate {
		log.Info("Step 4: Applying schema...")
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal("Failed to apply schema", zap.Error(err))
		}
	}

	// Connect to Redis (optional)
	log.Info("Step 5: Connecting to Redis...")
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("Redis unavailable, lobby runs without a distributed lock", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	} else {
		log.Warn("Redis URL not configured, skipping Redis connection")
	}

	// Realtime channels
	log.Info("Step 6: Initializing realtime registries...")
	chatRegistry := realtime.NewRegistry("chat", log)
	lobbyRegistry := realtime.NewRegistry("lobby", log)
	connectionsRegistry := realtime.NewRegistry("connections", log)

	resolver := auth.NewJWTResolver(cfg.JWTSecret)
	authMiddleware := auth.NewMiddleware(resolver)
	notifier := dating.NewNotifier(connectionsRegistry, log.Named("connections"))

	// Discovery
	log.Info("Step 7: Initializing dating module...")
	datingService := dating.NewService(dating.NewPostgresRepository(db), notifier, log.Named("dating"))
	datingHandler := dating.NewHandler(datingService)

	// Messaging
	log.Info("Step 8: Initializing messaging module...")
	var media messaging.MediaResolver
	if cfg.UseS3 {
		awsSession, err := session.NewSession(&aws.Config{
			Region:      aws.String(cfg.AWSRegion),
			Credentials: credentials.NewStaticCredentials(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		})
		if err != nil {
			log.Fatal("Failed to create AWS session", zap.Error(err))
		}
		media = messaging.NewS3MediaResolver(awsSession, cfg.S3BucketName, cfg.MediaURLExpiry)
		log.Info("Using S3 for media URLs", zap.String("bucket", cfg.S3BucketName))
	}
	messagingService := messaging.NewService(messaging.NewPostgresRepository(db), chatRegistry, notifier, media, log.Named("messaging"))
	messagingHandler := messaging.NewHandler(messagingService)

	// Lobby
	log.Info("Step 9: Initializing lobby...")
	matchmaker := lobby.NewMatchmaker(lobbyRegistry, lobby.NewPostgresRepository(db), notifier, cfg.LobbyWindow, log.Named("lobby"))
	if cfg.LobbyEnabled {
		var lock lobby.Lock
		if redisClient != nil {
			lock = lobby.NewRedisLock(redisClient)
		}
		lobby.NewScheduler(matchmaker, lock, cfg.LobbyHour, cfg.LobbyMinute, cfg.LobbyLocation(), log.Named("lobby")).Start(ctx)
		log.Info("Lobby scheduler started",
			zap.Int("hour", cfg.LobbyHour),
			zap.Int("minute", cfg.LobbyMinute),
			zap.String("timezone", cfg.LobbyTimezone),
		)
	}

	// Routes
	log.Info("Step 10: Setting up routes...")
	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	dating.RegisterRoutes(router, datingHandler, authMiddleware)
	messaging.RegisterRoutes(router, messagingHandler, authMiddleware)

	ws := router.PathPrefix("/ws").Subrouter()
	ws.Handle("/chat", realtime.NewHandler(chatRegistry, resolver, log, realtime.WithFrameHandler(messagingService)))
	ws.Handle("/lobby", realtime.NewHandler(lobbyRegistry, resolver, log, realtime.WithConnectHook(matchmaker.SendStatus)))
	ws.Handle("/connections", realtime.NewHandler(connectionsRegistry, resolver, log))

	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware)

	// Create and start HTTP server
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	log.Info("Shutdown signal received...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Hijacked websocket connections are not closed by srv.Shutdown
	for _, r := range []*realtime.Registry{chatRegistry, lobbyRegistry, connectionsRegistry} {
		r.Shutdown()
	}
	matchmaker.Wait()

	log.Info("Server exited gracefully")
}

// healthCheck returns server health status
func healthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(startTime).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
