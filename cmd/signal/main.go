package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"detectmesh/internal/core/ports"
	"detectmesh/internal/core/services"
	"detectmesh/internal/infrastructure/distributed"
	"detectmesh/internal/infrastructure/inference"
	"detectmesh/internal/infrastructure/loadbalancer"
	"detectmesh/internal/infrastructure/middleware"
	"detectmesh/internal/infrastructure/monitoring"
	memoryrepo "detectmesh/internal/infrastructure/repositories/memory"
	redisrepo "detectmesh/internal/infrastructure/repositories/redis"
	signaling "detectmesh/internal/infrastructure/signal"
	"detectmesh/pkg/config"
	"detectmesh/pkg/logger"
	"detectmesh/pkg/tracing"
	"detectmesh/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/root/configs/config.yaml",
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

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "detectmesh-signal",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing init failed, continuing without tracing", "error", err)
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Room registry: in-memory for a single instance, Redis-backed (with a
	// pub/sub event bus) for horizontal scale-out.
	var registry ports.RoomRegistry
	var events ports.EventPublisher = distributed.NewNoopEventPublisher()
	var affinity *loadbalancer.Affinity
	healthChecker := monitoring.NewHealthChecker()

	if cfg.Redis.Enabled {
		redisClient, rerr := redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
		if rerr != nil {
			log.Fatalw("failed to connect to redis", "error", rerr)
		}
		defer redisrepo.CloseRedisClient(redisClient)

		registry = redisrepo.NewRoomRegistry(redisClient)
		events = distributed.NewEventBus(redisClient, "detectmesh-signal", log)
		affinity = loadbalancer.NewAffinity(cfg.Auth.JWTSecret, "dm_affinity", 3600)
		healthChecker.AddRedisCheck(redisClient, 2*time.Second)
		// A distributed.LockAdapter is available here for a horizontally
		// scaled dispatcher; this process still owns a single in-process
		// Dispatcher, so no cross-instance lock is taken.
	} else {
		registry = memoryrepo.NewRoomRegistry()
	}

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if cfg.Auth.RequireToken {
		log.Infow("token auth enabled", "jwt_secret", utils.MaskSensitive(cfg.Auth.JWTSecret, 4), "token_ttl", cfg.Auth.TokenTTL)
	}
	brokerService := services.NewBrokerService(registry, events, log)

	detector := inference.NewReferenceDetector(cfg.Engine.InputSize)
	healthChecker.AddDetectorCheck(detector, 2*time.Second)
	if _, lerr := detector.Load(context.Background()); lerr != nil {
		log.Warnw("eager detector load failed, an initialize-model request can retry it", "error", lerr)
	}

	throttleService := services.NewThrottleService(time.Duration(cfg.Engine.MinFrameIntervalMs) * time.Millisecond)
	reapTicker := time.NewTicker(time.Minute)
	defer reapTicker.Stop()
	go func() {
		for range reapTicker.C {
			throttleService.Reap()
		}
	}()
	defer throttleService.Stop()

	inferenceService := services.NewInferenceService(cfg.Engine.ScoreThreshold)
	inferenceService.IOUThreshold = cfg.Engine.IOUThreshold
	inferenceService.InputSize = float64(cfg.Engine.InputSize)

	prometheusCollector := monitoring.NewPrometheusCollector()

	wsServer := signaling.NewServer(brokerService, registry, authService, cfg, log)
	wsServer.SetDetector(detector)
	wsServer.SetMetrics(prometheusCollector)

	dispatcher := inference.NewDispatcher(detector, throttleService, inferenceService, wsServer, log, cfg.Engine.InputSize, cfg.Engine.WorkerCount*8)
	defer dispatcher.Close()
	wsServer.SetDispatcher(dispatcher)

	httpHandlers := signaling.NewHTTPHandlers(healthChecker, detector)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if affinity != nil {
		router.Use(affinity.Middleware())
	}

	if cfg.Auth.RequireToken {
		httpHandlers.Register(router, middleware.AuthMiddleware(authService))
	} else {
		httpHandlers.Register(router)
	}
	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting signaling broker", "address", cfg.Server.Address, "uptime_ref", startTime)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("signaling broker failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during graceful shutdown", "error", err)
		srv.Close()
	}

	log.Info("signaling broker stopped")
}
