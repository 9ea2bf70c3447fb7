package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"golang.org/x/sync/errgroup"

	"github.com/guardiannet/dispatch/internal/auth"
	"github.com/guardiannet/dispatch/internal/classifier"
	"github.com/guardiannet/dispatch/internal/config"
	v1 "github.com/guardiannet/dispatch/internal/handler/http/v1"
	"github.com/guardiannet/dispatch/internal/notifier"
	"github.com/guardiannet/dispatch/internal/realtime"
	"github.com/guardiannet/dispatch/internal/repository"
	"github.com/guardiannet/dispatch/internal/service"
	"github.com/guardiannet/dispatch/internal/webhook"
	"github.com/guardiannet/dispatch/pkg/logger"
	"github.com/guardiannet/dispatch/pkg/postgres"
	redisclient "github.com/guardiannet/dispatch/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/guardiannet/dispatch/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const shutdownTimeout = 5 * time.Second

// @title GuardianNet Dispatch API
// @version 1.0
// @description Emergency incident reporting and nearest-unit dispatch.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.New(cfg.LogLevel)

	// Контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("Dispatch server stopped with error")
	}
	log.Info("Server gracefully stopped")
}

func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New("file://migrations", migrationURL)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

// run поднимает инфраструктуру и держит HTTP-сервер, websocket-хаб
// и воркер вебхуков до отмены ctx
func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if err := runMigrations(cfg, log); err != nil {
		return err
	}

	dbpool, err := postgres.NewPostgresDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer dbpool.Close()
	log.Info("Successfully connected to PostgreSQL")

	redisClient, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	repo := repository.NewRepository(dbpool, redisClient, cfg.IncidentCacheTTL)
	gateway := classifier.NewGateway(cfg, log)
	incidentNotifier := notifier.NewRedisNotifier(redisClient)
	webhookPublisher := webhook.NewRedisWebhookPublisher(redisClient)

	dispatcher := service.NewDispatchEngine(repo, gateway, incidentNotifier, webhookPublisher, log)
	incidentService := service.NewIncidentService(repo, dispatcher, incidentNotifier, log, cfg)
	unitService := service.NewUnitService(repo, log)

	hub := realtime.NewHub(redisClient, v1.IncidentAccess(incidentService), log)
	authenticator := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	handler := v1.NewHandler(incidentService, unitService, authenticator, hub, log, cfg)

	router := gin.Default()
	handler.RegisterRoutes(router.Group("/api/v1"))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		webhook.NewWebhookWorker(redisClient, log, cfg).Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Infof("HTTP server started on port %s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Received shutdown signal, shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
