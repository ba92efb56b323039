package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/sarida/backend/internal/assets"
	"github.com/sarida/backend/internal/config"
	"github.com/sarida/backend/internal/delivery/http"
	"github.com/sarida/backend/internal/domain"
	"github.com/sarida/backend/internal/events"
	"github.com/sarida/backend/internal/observability"
	"github.com/sarida/backend/internal/repository/gemini"
	"github.com/sarida/backend/internal/repository/kafka"
	"github.com/sarida/backend/internal/repository/postgres"
	"github.com/sarida/backend/internal/repository/reportlog"
	"github.com/sarida/backend/internal/repository/sqlite"
	"github.com/sarida/backend/internal/service"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Dependency Injection: Repositories
	var dataRepo service.DataRepository
	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("could not connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		pgRepo := postgres.NewPostgresRepository(pool)
		if err := pgRepo.Migrate(ctx); err != nil {
			logger.Error("database migration failed", "error", err)
			os.Exit(1)
		}
		dataRepo = pgRepo
		logger.Info("connected to PostgreSQL")
	case cfg.SQLitePath != "":
		sqliteRepo, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			logger.Error("could not open sqlite database", "path", cfg.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer sqliteRepo.Close()
		dataRepo = sqliteRepo
		logger.Info("using SQLite mirror", "path", cfg.SQLitePath)
	default:
		dataRepo = postgres.NewMockRepository()
		logger.Info("no database configured, reports are kept in the CSV log and memory")
	}

	var publisher domain.ReportPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg, logger)
		defer kp.Close()
		publisher = kp
		logger.Info("publishing reports to Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaReportsTopic)
	}

	var llm domain.LanguageModel
	if cfg.ChatEnabled() {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("chat assistant disabled", "error", err)
		} else {
			llm = client
		}
	} else {
		logger.Warn("GEMINI_API_KEY not set, chat assistant disabled")
	}

	var model *domain.Model
	if cfg.ClassifierEnabled() {
		model, err = service.LoadClassifier(ctx, cfg.MLServiceURL, cfg.MLTimeout)
		if err != nil {
			logger.Warn("drought classifier unavailable", "url", cfg.MLServiceURL, "error", err)
		} else {
			logger.Info("drought classifier loaded", "name", model.Name, "kind", model.Kind.String())
		}
	}

	catalogue, err := events.Load(cfg.EventsPath)
	if err != nil {
		logger.Error("could not load events catalogue", "error", err)
		os.Exit(1)
	}

	// Dependency Injection: Services
	opts, err := service.DashboardOptionsFromConfig(cfg)
	if err != nil {
		logger.Error("invalid dashboard options", "error", err)
		os.Exit(1)
	}
	fetcher := assets.NewFetcher(cfg, logger, metrics)
	dashboardSvc := service.NewDashboardService(opts, fetcher, catalogue, clock, logger, metrics)
	playgroundSvc := service.NewPlaygroundService(model, dataRepo, logger, metrics)
	sessions := service.NewSessionStore(clock).WithLimits(cfg.ChatMaxSessions, cfg.ChatSessionTTL)
	chatSvc := service.NewChatService(llm, sessions, cfg.ChatTimeout, clock, logger, metrics)
	reportSvc := service.NewReportService(reportlog.New(cfg.ReportsPath), dataRepo, publisher, clock, logger, metrics)

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "S-ARIDA API v1.0",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ChatTimeout + 10*time.Second,
		ErrorHandler: http.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Routes
	http.SetupRoutes(app, http.NewHandler(dashboardSvc, playgroundSvc, chatSvc, reportSvc, dataRepo, logger))

	// Graceful shutdown
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		logger.Warn("server forced to shutdown", "error", err)
	}
	playgroundSvc.WaitBackground()
	reportSvc.WaitBackground()
	logger.Info("server exited gracefully")
}
