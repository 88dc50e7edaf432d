package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulsefeed/pulse/internal/activity"
	"github.com/pulsefeed/pulse/internal/config"
	"github.com/pulsefeed/pulse/internal/database"
	"github.com/pulsefeed/pulse/internal/feed"
	"github.com/pulsefeed/pulse/internal/logger"
	"github.com/pulsefeed/pulse/internal/queue"
	"github.com/pulsefeed/pulse/internal/scheduler"
	"github.com/pulsefeed/pulse/internal/services/ai"
	"github.com/pulsefeed/pulse/internal/telemetry"
	"github.com/pulsefeed/pulse/internal/workers"
)

const gcInterval = time.Hour

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
	)

	if cfg.OTELEnabled && cfg.OTELEndpoint != "" {
		tp, err := telemetry.InitTracer(context.Background(), "pulse-worker", cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
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

	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	// Repositories
	entryRepo := database.NewEntryRepository(db)
	taskRepo := database.NewTaskRepository(db)
	commitmentRepo := database.NewCommitmentRepository(db)
	signalRepo := database.NewSignalRepository(db)
	feedRepo := database.NewFeedRepository(db)
	activityRepo := database.NewActivityRepository(db)
	scheduleRepo := database.NewScheduleRepository(db)
	stepRepo := database.NewStepRepository(db)

	registry := ai.NewProviderRegistry()
	ai.RegisterOpenAI(registry, zapLogger, debugMode)
	provider, err := registry.GetProvider(cfg.AIProvider, map[string]string{
		"api_key":  cfg.OpenAIKey,
		"base_url": cfg.AIBaseURL,
		"model":    cfg.AIModel,
	})
	if err != nil {
		zapLogger.Fatal("failed_to_initialize_ai_provider",
			zap.String("provider", cfg.AIProvider),
			zap.Error(err))
	}
	zapLogger.Info("initialized_ai_provider",
		zap.String("provider", cfg.AIProvider),
		zap.String("model", cfg.AIModel),
	)

	prices := feed.DefaultPriceTable()
	if cfg.PriceTablePath != "" {
		prices, err = feed.LoadPriceTable(cfg.PriceTablePath)
		if err != nil {
			zapLogger.Fatal("failed_to_load_price_table",
				zap.String("path", cfg.PriceTablePath),
				zap.Error(err))
		}
		zapLogger.Info("loaded_price_table", zap.String("path", cfg.PriceTablePath))
	}

	tracker := activity.NewTracker(activityRepo, rdb, zapLogger)
	alarms := scheduler.NewAlarmQueue(rdb)
	sched := scheduler.New(tracker, alarms, scheduleRepo, feedRepo, jobQueue, zapLogger)

	regenerator := workers.NewFeedRegenerator(
		provider,
		entryRepo,
		taskRepo,
		commitmentRepo,
		signalRepo,
		feedRepo,
		scheduleRepo,
		stepRepo,
		sched,
		jobQueue,
		prices,
		cfg.AIModel,
		zapLogger,
	)

	poller := workers.NewAlarmPoller(alarms, sched, cfg.PollInterval, zapLogger)
	gc := queue.NewGarbageCollector(stepRepo, gcInterval, cfg.StepRetention, zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming_messages", zap.Error(err))
	}

	zapLogger.Info("worker_started")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok := <-msgChan:
				if !ok {
					zapLogger.Info("message_channel_closed")
					return nil
				}
				if err := regenerator.ProcessJob(ctx, msg); err != nil {
					zapLogger.Error("failed_to_process_job",
						zap.Error(err),
						zap.String("job_id", msg.GetJob().ID.String()),
						zap.String("job_type", string(msg.GetJob().Type)),
					)
				}
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err, ok := <-errChan:
				if !ok {
					return nil
				}
				zapLogger.Error("queue_error", zap.Error(err))
			}
		}
	})

	g.Go(func() error {
		poller.Start(ctx)
		return ctx.Err()
	})

	g.Go(func() error {
		return gc.Start(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zapLogger.Error("worker_exited_with_error", zap.Error(err))
		os.Exit(1)
	}

	zapLogger.Info("worker_stopped")
}
