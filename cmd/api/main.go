package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/handlers"
	"github.com/Ramsey-B/clover/internal/repositories/dependents"
	"github.com/Ramsey-B/clover/internal/repositories/fixture"
	"github.com/Ramsey-B/clover/internal/repositories/player"
	"github.com/Ramsey-B/clover/internal/repositories/resolution"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/deletion"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Config{}
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := setupTracing(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to set up tracing")
		os.Exit(1)
	}
	defer tracerShutdown()

	var db database.DB
	var sqlxDB *sqlx.DB

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&dependency{
		name: "database",
		start: func(ctx context.Context) error {
			conn, err := connectDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			sqlxDB = conn
			db = database.NewDatabaseInstance(conn, logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if db != nil {
				return db.Close()
			}
			return nil
		},
	})
	boot.AddDependency(&dependency{
		name:      "migrations",
		dependsOn: []string{"database"},
		start: func(ctx context.Context) error {
			return runMigrations(cfg, logger, sqlxDB)
		},
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	defer boot.Stop(context.Background())

	playerRepo := player.NewRepository(db, logger)
	fixtureRepo := fixture.NewRepository(db, logger)
	dependentsRepo := dependents.NewRepository(db, logger)
	resolutionRepo := resolution.NewRepository(db, logger)

	detector := matching.NewDetector(logger, playerRepo, fixtureRepo, resolutionRepo,
		matching.Config{ScoreThreshold: cfg.ClashScoreThreshold})
	merger := merging.NewExecutor(logger, db, playerRepo, fixtureRepo, dependentsRepo, resolutionRepo)
	deleter := deletion.NewExecutor(logger, db, playerRepo, fixtureRepo, dependentsRepo, resolutionRepo)

	e := newServer(cfg, logger)

	checker := health.NewChecker(db, cfg.Version)
	checker.RegisterRoutes(e)

	adminHandler := handlers.NewAdminHandler(detector, merger, deleter, resolutionRepo, logger)
	adminHandler.RegisterRoutes(e.Group("/admin"))

	entityHandler := handlers.NewEntityHandler(playerRepo, fixtureRepo, logger)
	entityHandler.RegisterRoutes(e.Group("/api/v1"))

	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	go func() {
		address := fmt.Sprintf(":%d", cfg.Port)
		logger.WithField("address", address).Infof("Starting %s", cfg.AppName)
		checker.SetReady(true)
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server stopped unexpectedly")
			cancel()
		}
	}()

	<-ctx.Done()
	checker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down cleanly")
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func newServer(cfg config.Config, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Validator = handlers.NewValidator()

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	return e
}

func connectDatabase(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode)

	db, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	return db, nil
}

func runMigrations(cfg config.Config, logger ectologger.Logger, db *sqlx.DB) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	service := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             cfg.DatabaseMigrationVersion,
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return service.Migrate(cfg.DatabaseName, driver)
}

func setupTracing(ctx context.Context, cfg config.Config) (func(), error) {
	if !cfg.TracingEnabled {
		tracing.SetTracer(nil)
		return func() {}, nil
	}

	var exporter sdktrace.SpanExporter = &exporters.NoopExporter{}
	if cfg.TracingOTLPEndpoint != "" {
		var err error
		exporter, err = exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.TracingOTLPEndpoint,
			Protocol: cfg.TracingOTLPProtocol,
			Insecure: cfg.TracingInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.TracingSampleRate)),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.AppName),
			semconv.ServiceVersion(cfg.Version),
		)),
	)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}, nil
}

// dependency adapts closures to the startup service
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string {
	return d.name
}

func (d *dependency) DependsOn() []string {
	return d.dependsOn
}

func (d *dependency) Start(ctx context.Context) error {
	return d.start(ctx)
}

func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}
