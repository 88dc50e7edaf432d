package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulse/internal/activity"
	"github.com/pulsefeed/pulse/internal/config"
	"github.com/pulsefeed/pulse/internal/database"
	"github.com/pulsefeed/pulse/internal/handlers"
	"github.com/pulsefeed/pulse/internal/logger"
	"github.com/pulsefeed/pulse/internal/middleware"
	"github.com/pulsefeed/pulse/internal/queue"
	"github.com/pulsefeed/pulse/internal/scheduler"
	"github.com/pulsefeed/pulse/internal/services/capture"
	"github.com/pulsefeed/pulse/internal/telemetry"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// Initialize OpenTelemetry if enabled
	var otelReady bool
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), "pulse-server", cfg.OTELEndpoint)
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				otelReady = true
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	if err := database.EnsureSchema(context.Background(), db); err != nil {
		zapLogger.Fatal("failed_to_ensure_schema", zap.Error(err))
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("invalid_redis_url", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer func() {
		if err := rdb.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	jobQueue, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq")

	// Repositories
	entryRepo := database.NewEntryRepository(db)
	taskRepo := database.NewTaskRepository(db)
	commitmentRepo := database.NewCommitmentRepository(db)
	feedRepo := database.NewFeedRepository(db)
	activityRepo := database.NewActivityRepository(db)
	scheduleRepo := database.NewScheduleRepository(db)

	// Adaptive scheduler: capture activity drives the per-user alarm
	tracker := activity.NewTracker(activityRepo, rdb, zapLogger)
	alarms := scheduler.NewAlarmQueue(rdb)
	sched := scheduler.New(tracker, alarms, scheduleRepo, feedRepo, jobQueue, zapLogger)

	captureService := capture.NewService(entryRepo, taskRepo, commitmentRepo, sched, zapLogger)

	// Handlers
	captureHandler := handlers.NewCaptureHandler(captureService)
	feedHandler := handlers.NewFeedHandler(feedRepo, sched, tracker)
	healthChecker := handlers.NewHealthChecker(db, jobQueue, redisPinger{rdb})

	r := mux.NewRouter()

	// Middleware executes in registration order in gorilla/mux
	if otelReady {
		r.Use(otelmux.Middleware("pulse-server"))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	rateLimitMW, err := middleware.RateLimit(rdb, cfg.RateLimit)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	// Public routes
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")

	// API v1 routes, identity from the gateway header
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.UserContext)
	apiRouter.Use(rateLimitMW)

	captureRouter := apiRouter.PathPrefix("/captures").Subrouter()
	captureHandler.RegisterRoutes(captureRouter)

	feedRouter := apiRouter.PathPrefix("/feed").Subrouter()
	feedHandler.RegisterRoutes(feedRouter)

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// connectRabbitMQ retries the connection with exponential backoff to
// ride out broker startup delays.
func connectRabbitMQ(url string, zapLogger *zap.Logger) (queue.JobQueue, error) {
	const maxRetries = 10
	const initialDelay = 2 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		jobQueue, err := queue.NewRabbitMQQueue(url)
		if err == nil {
			return jobQueue, nil
		}

		lastErr = err
		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("rabbitmq unreachable after %d attempts: %w", maxRetries, lastErr)
}

// redisPinger adapts the Redis client to the health checker's probe.
type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
