package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Novapool/bonfire/internal/config"
	"github.com/Novapool/bonfire/internal/connserver"
	"github.com/Novapool/bonfire/internal/game"
	"github.com/Novapool/bonfire/internal/logging"
	"github.com/Novapool/bonfire/internal/middleware"
	"github.com/Novapool/bonfire/internal/ratelimit"
	"github.com/Novapool/bonfire/internal/roommgr"
	"github.com/Novapool/bonfire/internal/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	envPaths := []string{".env", "../../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("loaded environment file", "path", path)
			break
		}
	}

	cfg, err := config.ValidateEnv(config.FromEnviron())
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Development); err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer logging.L().Sync()

	ctx := context.Background()

	var redisClient *redis.Client
	var store storage.Storage
	switch cfg.StorageBackend {
	case config.StorageBackendRedis:
		redisClient = storage.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		store = storage.NewRedis(redisClient)
	default:
		store = storage.NewMemory()
	}
	if err := store.Initialize(ctx); err != nil {
		logging.Fatal(ctx, "failed to initialize storage backend", zap.Error(err))
	}

	limiter, err := ratelimit.New(cfg.RateLimitWsIP, cfg.RateLimitAdmin, redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to construct rate limiter", zap.Error(err))
	}

	factory := game.NewLobbyFactory(game.Config{MinPlayers: 2, MaxPlayers: 8})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	router.Use(cors.New(corsConfig))

	hub := connserver.NewHub(nil, connserver.Config{
		AdminKey:       cfg.AdminAPIKey,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	roomManager := roommgr.New(roommgr.Config{
		DefaultTTL:      cfg.DefaultRoomTTL,
		MaxRooms:        cfg.MaxRooms,
		CleanupInterval: cfg.CleanupInterval,
	}, store, factory, hub)

	hub.SetRooms(roomManager)

	roomManager.StartCleanup(ctx)

	wsGroup := router.Group("/ws")
	wsGroup.Use(limiter.WsMiddleware())
	wsGroup.GET("/connect", hub.ServeWs)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	hub.RegisterAdminRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "bonfire server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down server")

	hub.GracefulShutdown(ctx)
	roomManager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}
	if err := store.Close(ctx); err != nil {
		logging.Error(ctx, "failed to close storage backend", zap.Error(err))
	}

	logging.Info(ctx, "server exiting")
}
