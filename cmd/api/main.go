package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/studio-homework-api/internal/config"
	"github.com/noah-isme/studio-homework-api/internal/database"
	"github.com/noah-isme/studio-homework-api/internal/handler"
	"github.com/noah-isme/studio-homework-api/internal/logging"
	"github.com/noah-isme/studio-homework-api/internal/middleware"
	"github.com/noah-isme/studio-homework-api/internal/observability"
	"github.com/noah-isme/studio-homework-api/internal/repository"
	"github.com/noah-isme/studio-homework-api/internal/router"
	"github.com/noah-isme/studio-homework-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Service: cfg.AppName,
		Env:     cfg.AppEnv,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.AppName, cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise tracing")
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set, catalog cache and redis events disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	} else {
		logger.Warn().Msg("nats url not set, ingestion consumer disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	homeworkRepo := repository.NewHomeworkRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	flowRepo := repository.NewFlowRepository(db)
	eventRepo := repository.NewAttributionEventRepository(db)
	uow := repository.NewUnitOfWork(db)

	broker := service.NewBrokerPublisher(redisClient, natsConn, cfg.ChannelBase, logger)
	hub := service.NewEventHub(0, logger)
	if err := hub.Relay(ctx, redisClient, broker.RedisChannel(), broker.NodeID()); err != nil {
		logger.Fatal().Err(err).Msg("failed to start event relay")
	}
	publisher := service.FanoutPublisher{broker, hub}
	codes := service.NewTrackingCodeGenerator(service.NewTemplateBookingURLResolver(cfg.BookingURLTemplate), cfg.TrackingCodeLength)
	catalog := service.NewHomeworkCatalog(homeworkRepo, redisClient, cfg.CatalogCacheTTL, logger)
	flows := service.NewFlowRegistry(flowRepo, validate, logger)
	homework := service.NewHomeworkService(submissionRepo, uow, catalog, flows, codes, publisher, service.HomeworkServiceConfig{
		MaxEvidenceLinks: cfg.MaxEvidenceLinks,
		MaxCodeAttempts:  cfg.TrackingCodeMaxAttempts,
	}, logger)
	ledger := service.NewAttributionLedger(submissionRepo, eventRepo, uow, flows, publisher, logger)

	ingestion := service.NewIngestionConsumer(natsConn, cfg.ChannelBase, flows, ledger, homework, logger)
	if err := ingestion.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start ingestion consumer")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLogging: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		HomeworkHandler:   handler.NewHomeworkHandler(catalog, homework, ledger, validate, logger),
		FlowHandler:       handler.NewFlowHandler(flows, validate, logger),
		WebhookHandler:    handler.NewWebhookHandler(flows, ledger, homework, validate, logger),
		EventStream:       handler.NewEventStreamHandler(hub, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		WebhookMiddleware: middleware.WebhookToken(cfg.WebhookSecret),
		HealthProbes:      healthProbes(db, redisClient, natsConn),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	logger.Info().Str("address", cfg.HTTPAddress()).Msg("studio homework api started")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("failed to flush traces")
	}

	logger.Info().Msg("server stopped")
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(c *fiber.Ctx) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(c.UserContext())
		},
	}

	if redisClient != nil {
		probes["redis"] = func(c *fiber.Ctx) error {
			return redisClient.Ping(c.UserContext()).Err()
		}
	}

	if natsConn != nil {
		probes["nats"] = func(*fiber.Ctx) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}

	return probes
}
