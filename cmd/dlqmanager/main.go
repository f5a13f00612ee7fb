package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/fitcoach/internal/broker"
	"example.com/fitcoach/internal/config"
	"example.com/fitcoach/internal/deadletter"
	"example.com/fitcoach/internal/logging"
	httptransport "example.com/fitcoach/internal/transport/http"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogMode, "fitcoach-dlqmanager")
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

	producer := broker.NewProducer(cfg.KafkaBrokers, broker.WithProducerLogger(logger.Named("producer")))
	defer func() { _ = producer.Close() }()

	manager := deadletter.NewManager(pool, producer, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger.Named("dlq"))

	metricsSrv := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler())
	go func() {
		if err := httptransport.Serve(ctx, metricsSrv, 10*time.Second, logger); err != nil {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	logger.Info("dlq manager started",
		zap.Duration("interval", cfg.DLQPollInterval),
		zap.Int("max_retries", cfg.DLQMaxRetries),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("dlq manager shut down")
			return
		case <-ticker.C:
			replayed, err := manager.RunOnce(ctx, cfg.DLQBatchSize)
			if err != nil {
				logger.Error("dlq manager error", zap.Error(err))
			} else if replayed > 0 {
				logger.Info("dlq manager replayed entries", zap.Int("count", replayed))
			}
		}
	}
}
