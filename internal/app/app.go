package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	platformlogging "github.com/anhduy-tech/lapxpert-inventory/platform/logging"
	platformobservability "github.com/anhduy-tech/lapxpert-inventory/platform/observability"
	platformshutdown "github.com/anhduy-tech/lapxpert-inventory/platform/shutdown"

	httpapi "github.com/anhduy-tech/lapxpert-inventory/internal/api/http"
	"github.com/anhduy-tech/lapxpert-inventory/internal/config"
	eventkafka "github.com/anhduy-tech/lapxpert-inventory/internal/event/kafka"
	redislock "github.com/anhduy-tech/lapxpert-inventory/internal/lock/redis"
	mongorepo "github.com/anhduy-tech/lapxpert-inventory/internal/repository/mongo"
	"github.com/anhduy-tech/lapxpert-inventory/internal/repository/postgres"
	"github.com/anhduy-tech/lapxpert-inventory/internal/service"
)

// App содержит все зависимости для запуска и корректного shutdown Inventory Service
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	sweeper     *service.Sweeper
	shutdownMgr *platformshutdown.Manager
	ready       *atomic.Bool
	wg          sync.WaitGroup
}

// Build создаёт и настраивает все зависимости Inventory Service
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"

	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "inventory",
		Env:         string(cfg.AppEnv),
		Level:       os.Getenv("LOG_LEVEL"),
		Format:      os.Getenv("LOG_FORMAT"),
	})
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("op", op))
	logger.Info("Building inventory service", zap.String("http_addr", cfg.HTTPAddr))

	// OpenTelemetry: traces + metrics (noop если OTEL_ENABLED=false)
	otelShutdown, err := platformobservability.Init(context.Background(), platformobservability.Config{
		Enabled:               cfg.OTelEnabled,
		OTLPEndpoint:          cfg.OTelEndpoint,
		SamplingRatio:         cfg.OTelSamplingRatio,
		ServiceName:           "inventory",
		DeploymentEnvironment: string(cfg.AppEnv),
	})
	if err != nil {
		return nil, err
	}

	// Подключаемся к PostgreSQL
	logger.Info("Connecting to PostgreSQL")
	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("PostgreSQL connection established")

	// Применяем миграции
	logger.Info("Applying database migrations")
	if err := applyMigrations(cfg.PostgresDSN); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Database migrations applied successfully")

	// Подключаемся к Redis
	logger.Info("Connecting to Redis", zap.String("addr", cfg.RedisAddr))
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   0,
	})
	ctxRedis, cancelRedis := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelRedis()
	if err := redisClient.Ping(ctxRedis).Err(); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Redis connection established")

	// Подключаемся к MongoDB (журнал аудита)
	logger.Info("Connecting to MongoDB", zap.String("uri", cfg.MongoURI))
	ctxMongo, cancelMongo := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelMongo()
	mongoClient, err := mongo.Connect(ctxMongo, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}
	if err := mongoClient.Ping(ctxMongo, readpref.Primary()); err != nil {
		pool.Close()
		redisClient.Close()
		return nil, err
	}
	logger.Info("MongoDB connection established")

	// Репозитории
	serialRepo := postgres.NewRepository(pool)
	auditRepo := mongorepo.NewAuditRepository(mongoClient.Database(cfg.MongoDatabase))
	if err := auditRepo.EnsureIndexes(ctxMongo); err != nil {
		logger.Warn("failed to ensure audit indexes", zap.Error(err))
	}

	// Распределённая блокировка
	locker := redislock.NewLocker(redisClient, redislock.Config{
		Wait:  cfg.LockWait,
		Lease: cfg.LockLease,
	}, logger)

	// Kafka publisher событий инвентаря
	publisher := eventkafka.NewKafkaInventoryEventPublisher(logger, cfg.KafkaBrokers, cfg.KafkaInventoryTopic)

	// Service слой
	inventoryService := service.NewSerialNumberService(logger, serialRepo, auditRepo, locker, publisher)

	// Фоновая уборка просроченных резервов
	sweeper := service.NewSweeper(logger, inventoryService, service.SweeperConfig{
		Interval:        cfg.SweepInterval,
		HoldTimeout:     cfg.HoldTimeout,
		TempHoldTimeout: cfg.TempHoldTimeout,
	})

	// HTTP API
	ready := &atomic.Bool{}
	ready.Store(true)
	handler := httpapi.NewHandler(logger, inventoryService)
	router := httpapi.NewRouter(handler, ready.Load, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("Inventory HTTP server configured", zap.String("addr", cfg.HTTPAddr))

	// Shutdown manager: функции выполняются в обратном порядке регистрации,
	// ресурсы регистрируются в порядке создания и закрываются последними
	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	shutdownMgr.Add("observability", otelShutdown)
	shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))
	shutdownMgr.Add("redis_client", platformshutdown.CloseRedis(redisClient))
	shutdownMgr.Add("mongo_client", platformshutdown.DisconnectMongo(mongoClient))
	shutdownMgr.Add("kafka_publisher", func(ctx context.Context) error {
		return publisher.Close()
	})
	shutdownMgr.Add("readiness", func(ctx context.Context) error {
		ready.Store(false)
		return nil
	})
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(httpServer))

	return &App{
		logger:      logger,
		httpServer:  httpServer,
		sweeper:     sweeper,
		shutdownMgr: shutdownMgr,
		ready:       ready,
	}, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting inventory service", zap.String("addr", a.httpServer.Addr))

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	a.shutdownMgr.Add("sweeper", platformshutdown.StopBackground(cancelSweep, sweepDone))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(sweepDone)
		if err := a.sweeper.Start(sweepCtx); err != nil {
			a.logger.Error("sweeper stopped with error", zap.Error(err))
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Ожидаем сигнал и выполняем shutdown
	a.shutdownMgr.Wait()

	a.wg.Wait()
	a.logger.Info("Inventory service stopped")
	return nil
}

// applyMigrations применяет goose миграции из каталога migrations/
func applyMigrations(dsn string) error {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	return goose.Up(db, filepath.Join(wd, "migrations"))
}
