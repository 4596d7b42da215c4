package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/auth"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/bus"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/config"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/gateway"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/middleware"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/ratelimit"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on environment variables")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	logging.Initialize(cfg.DevelopmentMode)
	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.RouteTokenSecret == "" {
		slog.Error("Gateway requires ROUTE_TOKEN_SECRET or OWNER_KEY to sign routing tokens")
		os.Exit(1)
	}
	tokens := auth.NewRouteTokenService(cfg.RouteTokenSecret)

	var directory *bus.Service
	if cfg.RedisEnabled {
		endpoint := net.JoinHostPort("127.0.0.1", cfg.Port)
		directory, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword, endpoint)
		if err != nil {
			slog.Error("Failed to connect to Redis, gateway listing will be local only", "error", err)
			directory = nil
		}
	}

	rateLimiter, err := ratelimit.NewRateLimiter(cfg, directory.Client())
	if err != nil {
		slog.Error("Failed to create rate limiter", "error", err)
		os.Exit(1)
	}

	gwRouter := gateway.NewRouter(cfg, tokens)
	server := gateway.NewServer(gwRouter, directory, rateLimiter, cfg.CORSOrigin)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	if origins := auth.ParseAllowedOrigins(cfg.CORSOrigin); origins != nil {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/ws", server.ServeWs)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "service": "ox-arena-gateway", "now": time.Now().UnixMilli()})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		slog.Info("Gateway starting", "port", cfg.Port,
			"worker_port_base", cfg.WorkerPortBase, "worker_port_max", cfg.WorkerPortMax)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run gateway", "error", err)
			_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	gwRouter.Shutdown(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Gateway forced to shutdown", "error", err)
	}
	if directory != nil {
		_ = directory.Close()
	}
	slog.Info("Gateway exiting")
}
