package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"learnhub-backend/internal/attachment"
	"learnhub-backend/internal/gateway"
	messagingHandler "learnhub-backend/internal/handler/http/messaging"
	"learnhub-backend/internal/identity"
	"learnhub-backend/internal/middleware"
	messagingService "learnhub-backend/internal/service/messaging"
	"learnhub-backend/internal/store"
	cassandraStore "learnhub-backend/internal/store/cassandra"
	postgresStore "learnhub-backend/internal/store/postgres"
	"learnhub-backend/pkg/database"
	"learnhub-backend/pkg/env"
	"learnhub-backend/pkg/jwt"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
)

func main() {
	logger.InitDefault()
	defer logger.Sync()

	ctx := context.Background()

	// JWT manager for HTTP auth and websocket handshakes
	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		logger.Fatal("JWT_SECRET must be at least 32 characters")
	}
	jwtManager := jwt.NewJWTManager(jwtSecret, 15*time.Minute, 30*24*time.Hour)

	// Postgres backs the user directory, and messaging too unless Cassandra
	// is selected via STORE_BACKEND.
	postgresDB, err := database.NewPostgresDBFromEnv(ctx)
	if err != nil {
		logger.Fatal("failed to connect to Postgres", zap.Error(err))
	}
	defer postgresDB.Close()
	logger.Info("connected to Postgres")

	var messagingStore store.Store
	backend := env.GetString("STORE_BACKEND", "postgres")
	switch backend {
	case "postgres":
		messagingStore = postgresStore.NewStore(postgresDB.Pool)
	case "cassandra":
		cassandraDB, err := database.NewCassandraDBFromEnv()
		if err != nil {
			logger.Fatal("failed to connect to Cassandra", zap.Error(err))
		}
		defer cassandraDB.Close()
		logger.Info("connected to Cassandra")
		messagingStore = cassandraStore.NewStore(cassandraDB.Session)
	default:
		logger.Fatal("unknown STORE_BACKEND", zap.String("backend", backend))
	}

	redisDB, err := database.NewRedisDBFromEnv()
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	logger.Info("connected to Redis")

	// User directory with a Redis read-through cache in front
	directory := identity.NewPostgresDirectory(postgresDB.Pool)
	resolver := identity.NewCachedResolver(directory, redisDB.Client,
		env.GetDuration("IDENTITY_CACHE_TTL", 10*time.Minute))

	// Attachment storage is optional; without MinIO config the upload
	// endpoint answers 503.
	var uploader attachment.Uploader
	if endpoint := env.GetString("MINIO_ENDPOINT", ""); endpoint != "" {
		minioUploader, err := attachment.NewMinioUploader(ctx, &attachment.MinioConfig{
			Endpoint:  endpoint,
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", ""),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", ""),
			Bucket:    env.GetString("MINIO_BUCKET", "learnhub-attachments"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			PublicURL: env.GetString("MINIO_PUBLIC_URL", ""),
		})
		if err != nil {
			logger.Fatal("failed to initialize MinIO", zap.Error(err))
		}
		uploader = minioUploader
		logger.Info("attachment storage enabled", zap.String("endpoint", endpoint))
	} else {
		logger.Warn("MINIO_ENDPOINT not set, attachment uploads disabled")
	}

	appMetrics := metrics.NewMetrics("messaging-service")

	svc := messagingService.NewService(messagingStore, resolver, appMetrics)

	hub := gateway.NewHub()
	presence := gateway.NewPresence(redisDB.Client)
	gw := gateway.NewGateway(hub, svc, jwtManager, presence, appMetrics)

	handler := messagingHandler.NewHandler(svc, uploader)

	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.PrometheusMiddleware(appMetrics))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "messaging-service",
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler())

	v1 := router.Group("/v1")

	// The websocket endpoint authenticates per-connection so anonymous
	// clients can still receive public frames.
	v1.GET("/ws", gw.ServeWS)

	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware(jwtManager))
	handler.RegisterRoutes(authed)

	port := env.GetString("PORT", "8083")
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("messaging service starting",
			zap.String("port", port),
			zap.String("store_backend", backend),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
