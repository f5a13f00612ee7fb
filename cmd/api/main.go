package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/fitcoach/internal/api"
	"example.com/fitcoach/internal/auth"
	"example.com/fitcoach/internal/broker"
	"example.com/fitcoach/internal/config"
	"example.com/fitcoach/internal/domain"
	"example.com/fitcoach/internal/logging"
	"example.com/fitcoach/internal/persistence/memory"
	persistence "example.com/fitcoach/internal/persistence/postgres"
	httptransport "example.com/fitcoach/internal/transport/http"
	"example.com/fitcoach/internal/users"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogMode, "fitcoach-api")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		activityRepo       domain.ActivityRepository
		recommendationRepo domain.RecommendationRepository
	)
	if cfg.UseMemoryStore {
		logger.Warn("using in-memory repositories; data is lost on restart")
		activityRepo = memory.NewActivityRepository()
		recommendationRepo = memory.NewRecommendationRepository()
	} else {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		activityRepo = persistence.NewActivityRepository(pool)
		recommendationRepo = persistence.NewRecommendationRepository(pool)
	}

	producer := broker.NewProducer(cfg.KafkaBrokers, broker.WithWriteTimeout(cfg.PublishTimeout), broker.WithProducerLogger(logger.Named("producer")))
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warn("producer close failed", zap.Error(err))
		}
	}()
	publisher := broker.NewActivityPublisher(producer, broker.Config{Topic: cfg.ActivityTopic})

	userClient := users.NewClient(cfg.UserServiceURL, cfg.UserServiceTimeout)

	activities := domain.NewService(activityRepo, userClient, publisher,
		domain.WithLogger(logger.Named("activities")),
		domain.WithPublishTimeout(cfg.PublishTimeout),
	)
	recommendations := domain.NewRecommendationService(recommendationRepo)

	handler := api.NewHandler(activities, recommendations, logger.Named("api"))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg,
		api.RequestLogger(logger.Named("http"), api.CORS(cfg.CORSOrigin, authMiddleware.Wrap(mux))))

	if err := httptransport.Serve(ctx, server, serverCfg.ShutdownTimeout, logger); err != nil {
		logger.Error("api server stopped with error", zap.Error(err))
	}
	logger.Info("api shut down")
}
