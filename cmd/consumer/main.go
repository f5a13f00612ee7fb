package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"example.com/fitcoach/internal/ai"
	"example.com/fitcoach/internal/coaching"
	"example.com/fitcoach/internal/config"
	"example.com/fitcoach/internal/consumer"
	"example.com/fitcoach/internal/deadletter"
	"example.com/fitcoach/internal/logging"
	persistence "example.com/fitcoach/internal/persistence/postgres"
	httptransport "example.com/fitcoach/internal/transport/http"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogMode, "fitcoach-consumer")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	gateway, err := ai.NewGeminiClient(ai.Config{
		URL:             cfg.AIURL,
		APIKey:          cfg.AIAPIKey,
		RequestTimeout:  cfg.AIRequestTimeout,
		MaxRetries:      uint64(max(cfg.AIMaxRetries, 0)),
		RateLimit:       cfg.AIRateLimit,
		RateBurst:       cfg.AIRateBurst,
		BreakerFailures: uint32(max(cfg.AIBreakerFailures, 0)),
		BreakerCooldown: cfg.AIBreakerCooldown,
	}, ai.WithLogger(logger.Named("ai")))
	if err != nil {
		logger.Fatal("invalid ai configuration", zap.Error(err))
	}

	generator := coaching.NewGenerator(gateway, logger.Named("coaching"))
	handler := consumer.NewRecommendationHandler(generator, persistence.NewRecommendationRepository(pool), logger.Named("handler"))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.ActivityTopic,
		MinBytes:        1,
		MaxBytes:        10e6,
		MaxWait:         time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn("reader close failed", zap.Error(err))
		}
	}()

	proc := consumer.NewProcessor(reader, handler,
		consumer.WithLogger(logger.Named("processor")),
		consumer.WithWorkers(cfg.ConsumerWorkers),
		consumer.WithMaxAttempts(cfg.ConsumerMaxAttempts),
		consumer.WithRetryDelay(cfg.ConsumerRetryBaseDelay, cfg.ConsumerRetryMaxDelay),
		consumer.WithProcessingTimeout(cfg.ConsumerProcessingTimeout),
		consumer.WithDeadLetterSink(deadletter.NewStore(pool)),
	)

	metricsSrv := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler())
	go func() {
		if err := httptransport.Serve(ctx, metricsSrv, 10*time.Second, logger); err != nil {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	logger.Info("consumer started",
		zap.String("topic", cfg.ActivityTopic),
		zap.String("group", cfg.ConsumerGroupID),
		zap.Int("workers", cfg.ConsumerWorkers),
	)
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", zap.Error(err))
	}
	logger.Info("consumer shut down")
}

