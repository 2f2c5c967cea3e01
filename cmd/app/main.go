package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/teamflow/notification-service/internal/config"
	"github.com/teamflow/notification-service/internal/fanout"
	"github.com/teamflow/notification-service/internal/handler"
	"github.com/teamflow/notification-service/internal/rabbitmq"
	"github.com/teamflow/notification-service/internal/repository"
	"github.com/teamflow/notification-service/internal/repository/memory"
	"github.com/teamflow/notification-service/internal/repository/postgres"
	"github.com/teamflow/notification-service/internal/service"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.LoadEnv(".env"); err != nil {
		log.Fatalf("failed to load environment variables: %s", err.Error())
	}

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("failed to initialize config: %s", err.Error())
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to create zap logger: %s", err.Error())
	}
	defer logger.Sync()

	repo, closeRepo := openRepository(ctx, cfg, logger)
	defer closeRepo()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		pong, err := rdb.Ping(ctx).Result()
		if err != nil {
			logger.Sugar().Fatalf("failed to ping redis: %s", err.Error())
		}
		logger.Sugar().Infof("Successfully connected to Redis: %s", pong)
		defer rdb.Close()
	}

	var broker service.Broker
	if cfg.RabbitMQURL != "" {
		mq, err := rabbitmq.New(cfg.RabbitMQURL)
		if err != nil {
			logger.Sugar().Fatalf("failed to connect to rabbitmq: %s", err.Error())
		}
		defer mq.Close()
		broker = mq
	}

	hub := fanout.NewHub(logger, cfg.FanoutWorkers, cfg.FanoutBuffer)
	var publisher service.Publisher = hub
	if rdb != nil {
		bridge := fanout.NewBridge(hub, rdb, logger)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Sugar().Errorf("fanout bridge stopped: %s", err.Error())
			}
		}()
		publisher = bridge
	}

	services := service.New(logger, repo, rdb, broker, publisher, service.Options{
		CacheTTL:          cfg.CacheTTL,
		ReconcileInterval: cfg.ReconcileInterval,
		ReconcileBatch:    cfg.ReconcileBatch,
	})
	handlers := handler.New(logger, services, hub, handler.Options{
		JWTSecret:     []byte(cfg.JWTSecret),
		ServiceToken:  cfg.ServiceToken,
		HideForbidden: cfg.HideForbidden,
	})

	if broker != nil {
		go services.User.StartCreating(ctx)
		go services.User.StartUpdating(ctx)
		go services.Team.StartCreating(ctx)
		go services.Team.StartDeleting(ctx)
		go services.Notification.StartConsumingCreates(ctx)
	} else {
		logger.Warn("RABBITMQ_CONN_STRING is not set, queue consumers are disabled")
	}

	if err := services.Notification.StartJobs(); err != nil {
		logger.Sugar().Fatalf("failed to start jobs: %s", err.Error())
	}

	server := &http.Server{
		Addr:    cfg.Port,
		Handler: handlers.SetupRoutes(),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar().Fatalf("http server failed: %s", err.Error())
		}
	}()

	logger.Sugar().Infof("Notification service started on %s (store: %s)", cfg.Port, cfg.StoreDriver)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Info("Notification service shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("failed to shut down http server: %s", err.Error())
	}
	if err := services.Notification.StopJobs(); err != nil {
		logger.Sugar().Errorf("failed to stop jobs: %s", err.Error())
	}
	cancel()
	hub.Close()
}

func openRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repository.Repository, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using the in-memory store, notifications are lost on restart")
		repo, _ := memory.New()
		return repo, func() {}
	}

	db, err := postgres.Connect(ctx, cfg.DB)
	if err != nil {
		logger.Sugar().Fatalf("db connection error: %s", err.Error())
	}
	if err := db.Ping(ctx); err != nil {
		logger.Sugar().Fatalf("couldn't ping postgres db: %s", err.Error())
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		logger.Sugar().Fatalf("failed to migrate postgres schema: %s", err.Error())
	}
	logger.Info("Successfully connected to PostgreSQL")

	return postgres.New(db), db.Close
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	zcfg.OutputPaths = cfg.LogOutputPaths
	return zcfg.Build()
}
