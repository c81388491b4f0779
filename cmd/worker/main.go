package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamrisk/fraud-scoring-worker/configs"
	"github.com/streamrisk/fraud-scoring-worker/internal/features"
	"github.com/streamrisk/fraud-scoring-worker/internal/observability"
	"github.com/streamrisk/fraud-scoring-worker/internal/recorder"
	"github.com/streamrisk/fraud-scoring-worker/internal/scorer"
	"github.com/streamrisk/fraud-scoring-worker/internal/worker"
	"github.com/streamrisk/fraud-scoring-worker/pkg"
	"github.com/streamrisk/fraud-scoring-worker/pkg/cache"
	"github.com/streamrisk/fraud-scoring-worker/pkg/database"
	kafkautils "github.com/streamrisk/fraud-scoring-worker/pkg/kafka"
	"go.uber.org/zap"
)

// main initializes and runs the fraud scoring worker.
func main() {
	// Initialize global logger with environment-driven configuration
	pkg.InitLogger()
	logger := pkg.Logger
	defer logger.Sync() // Ensure all buffered logs are flushed on exit

	// Load configuration from environment and optional config file
	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed_to_load_config", zap.Error(err))
	}

	// Initialize PostgreSQL connection pools (writer for predictions,
	// readers for feature lookups)
	db, disconnect, err := database.New(context.Background(), logger, database.Config{
		PrimaryDSN: cfg.PrimaryDbAddr,
		ReadDSNs:   []string{cfg.ReadDbAddr},
		MaxConns:   cfg.MaxDbCons,
		MinConns:   cfg.MinDbCons,
	})
	if err != nil {
		logger.Fatal("failed_to_initialize_database", zap.Error(err))
	}
	defer disconnect()

	// Apply sink and feature-table migrations on the primary
	if err := database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
		logger.Fatal("failed_to_run_migrations", zap.Error(err))
	}

	// Create a context that can be canceled for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis client for the streaming feature overlay and the
	// distributed scorer rate limit
	redisClient, redisCloser, err := cache.New(ctx, cache.Config{
		Addr: cfg.RedisAddr,
	})
	if err != nil {
		logger.Fatal("failed_to_initialize_redis", zap.Error(err))
	}
	logger.Info("Redis client initialized successfully")

	// Ensure the transaction, retry and DLQ topics exist
	err = kafkautils.InitKafkaTopics(logger, ctx, kafkautils.KafkaConfig{
		BootstrapServers: cfg.KafkaBrokers,
		Topics: []kafkautils.TopicConfig{
			{Topic: cfg.KafkaTxTopic, NumPartitions: int(cfg.KafkaPartition), ReplicationFactor: 1},
			{Topic: cfg.KafkaRetryTopic, NumPartitions: int(cfg.KafkaPartition), ReplicationFactor: 1,
				Config: map[string]string{"retention.ms": fmt.Sprintf("%d", cfg.KafkaRetryRetention.Milliseconds())}},
			{Topic: cfg.KafkaDLQTopic, NumPartitions: 1, ReplicationFactor: 1,
				Config: map[string]string{"retention.ms": fmt.Sprintf("%d", cfg.KafkaDLQRetention.Milliseconds())}},
		},
	})
	if err != nil {
		logger.Fatal("failed_to_initialize_kafka_topics", zap.Error(err))
	}

	// Scorer quota guard shared across worker replicas
	limiter := pkg.NewDistributedLimiter(redisClient, "global:scorer_rate",
		cfg.ScorerRateLimitPerSec, cfg.ScorerRequestBurst, time.Minute, logger)

	// Assemble the per-message pipeline
	pipeline := worker.NewPipeline(worker.PipelineConfig{
		Logger: logger,
		Resolver: features.NewResolver(features.ResolverConfig{
			Logger:    logger,
			DB:        db,
			Streaming: features.NewStreamingOverlay(redisClient, logger),
		}),
		Scorer: scorer.NewScorer(scorer.ScorerConfig{
			Logger:  logger,
			Cnf:     cfg,
			Limiter: limiter,
		}),
		Recorder: recorder.NewRecorder(recorder.RecorderConfig{
			Logger: logger,
			DB:     db,
		}),
	})

	// Metrics and health endpoints
	stopMetrics := observability.StartMetricsServer(logger, cfg.MetricsAddr, map[string]observability.HealthChecker{
		"postgres": db.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})

	// Live transaction consumer
	closeTxConsumer := worker.NewTxConsumer(worker.ConsumerConfig{
		Context:  ctx,
		Logger:   logger,
		Config:   cfg,
		Pipeline: pipeline,
	}).Start()

	// Retry topic consumer
	closeRetryConsumer := worker.NewRetryConsumer(worker.ConsumerConfig{
		Context:  ctx,
		Logger:   logger,
		Config:   cfg,
		Pipeline: pipeline,
	}).Start()

	// Handle graceful shutdown on SIGINT or SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	osSignal := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", osSignal.String()))

	cancel() // Stop accepting new messages
	closeTxConsumer()
	closeRetryConsumer()
	stopMetrics()
	redisCloser()
	logger.Info("Service shutdown completed successfully")
}
