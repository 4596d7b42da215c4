package main

import (
	"context"
	"errors"
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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/auth"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/bus"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/config"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/health"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/middleware"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/ratelimit"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/tracing"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/transport"
)

func main() {
	// Load .env file for local development.
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	logging.Initialize(cfg.DevelopmentMode)
	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Tracing is optional: without a collector endpoint spans stay local.
	if cfg.OTLPEndpoint != "" {
		tp, err := tracing.InitTracer(context.Background(), health.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			slog.Error("Failed to initialize tracing", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(ctx)
			}()
		}
	}

	// Optional Redis room directory for multi-worker deployments.
	var busService *bus.Service
	if cfg.RedisEnabled {
		endpoint := net.JoinHostPort("127.0.0.1", cfg.Port)
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword, endpoint)
		if err != nil {
			slog.Error("Failed to connect to Redis, running in single-instance mode", "error", err)
			busService = nil
		} else {
			slog.Info("Redis room directory initialized", "addr", cfg.RedisAddr)
		}
	} else {
		slog.Info("Running in single-instance mode (Redis disabled)")
	}

	rateLimiter, err := ratelimit.NewRateLimiter(cfg, busService.Client())
	if err != nil {
		slog.Error("Failed to create rate limiter", "error", err)
		os.Exit(1)
	}

	var routeTokens *auth.RouteTokenService
	requireToken := os.Getenv("REQUIRE_ROUTE_TOKEN") == "true"
	if cfg.RouteTokenSecret != "" {
		routeTokens = auth.NewRouteTokenService(cfg.RouteTokenSecret)
	} else if requireToken {
		slog.Error("REQUIRE_ROUTE_TOKEN set but no ROUTE_TOKEN_SECRET or OWNER_KEY configured")
		os.Exit(1)
	}

	var busDir transport.Directory
	if busService != nil {
		busDir = busService
	}
	hub := transport.NewHub(transport.Options{
		Config:            cfg,
		Owner:             auth.NewOwnerKeyChecker(cfg.OwnerKey),
		RouteTokens:       routeTokens,
		RequireRouteToken: requireToken,
		Bus:               busDir,
		RateLimiter:       rateLimiter,
	})
	go hub.Run()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(otelgin.Middleware(health.ServiceName))

	corsConfig := cors.DefaultConfig()
	if origins := auth.ParseAllowedOrigins(cfg.CORSOrigin); origins != nil {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/ws", hub.ServeWs)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := health.NewHandler(hub, cfg, busService)
	healthHandler.Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		slog.Info("Arena server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Port busy: if another instance of this service already
			// answers on the port, exit clean so supervisors and dev
			// loops treat the double start as a no-op.
			var opErr *net.OpError
			if errors.As(err, &opErr) {
				ok, perr := health.ProbeCompatible("http://127.0.0.1:"+cfg.Port, 2*time.Second)
				if perr == nil && ok {
					slog.Info("Compatible server already running on port, exiting", "port", cfg.Port)
					os.Exit(0)
				}
			}
			slog.Error("Failed to run server", "error", err)
			_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("Error during hub shutdown", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
}
