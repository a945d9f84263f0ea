package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomhub/internal/core/services"
	httphandlers "roomhub/internal/handlers/http"
	"roomhub/internal/infrastructure/bus"
	"roomhub/internal/infrastructure/directory"
	"roomhub/internal/infrastructure/middleware"
	"roomhub/internal/infrastructure/monitoring"
	redisrepo "roomhub/internal/infrastructure/repositories/redis"
	signalinfra "roomhub/internal/infrastructure/signal"
	"roomhub/pkg/config"
	"roomhub/pkg/logger"
	"roomhub/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/roomhub/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	redisClient, err := redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}

	presenceRepo := redisrepo.NewRedisPresenceRepository(redisClient)
	groupBus := bus.NewRedisGroupBus(redisClient, log)
	roomDirectory := directory.NewHTTPRoomDirectory(
		cfg.Directory.BaseURL,
		cfg.Directory.RequestTimeout,
		cfg.Directory.CacheTTL,
		log,
	)

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector()
	}

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}, 2*time.Second)

	signalServer := signalinfra.NewServer(
		cfg,
		authService,
		presenceRepo,
		groupBus,
		roomDirectory,
		collector,
		log,
	)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestLoggerMiddleware(logger.NewContextLogger(zapLogger)))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	controlHandler := httphandlers.NewControlHandler(signalServer, healthChecker, roomDirectory, log)
	controlHandler.SetupRoutes(router, middleware.AuthMiddleware(authService))

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
		// No global read/write timeouts: long-lived realtime connections
		// share this listener. Idle connections are bounded instead.
		IdleTimeout: cfg.Server.ReadTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting roomhub engine", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	// Sessions observe their closed connections and run their own cleanup;
	// give them the remainder of the shutdown window.
	if err := signalServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("sessions still draining at shutdown deadline", "error", err)
	}

	roomDirectory.Close()

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer provider", "error", err)
	}

	if err := redisrepo.CloseRedisClient(redisClient); err != nil {
		log.Errorw("error closing redis client", "error", err)
	}

	log.Info("roomhub engine stopped")
}
