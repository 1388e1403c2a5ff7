package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"road-report-service/internal/config"
	"road-report-service/internal/domain"
	"road-report-service/internal/publisher"
	"road-report-service/internal/repository"
	"road-report-service/internal/server"
	"road-report-service/internal/service"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	log.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Could not load configuration")
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	log.Info("Starting database migration...")
	m, err := migrate.New(cfg.DB.MigrationsPath, cfg.DB.URL)
	if err != nil {
		log.WithField("error", err).Fatal("Could not create migrate instance")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.WithField("error", err).Fatal("Could not apply migration")
	}
	log.Info("Database migration finished successfully.")

	db, err := sql.Open("postgres", cfg.DB.URL)
	if err != nil {
		log.WithField("error", err).Fatal("Could not connect to the database")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DB.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		log.WithField("error", err).Fatal("Could not ping the database")
	}
	log.Info("Successfully connected to the PostgreSQL database.")

	// Create repositories
	reportRepository := repository.NewPostgresReportRepository(db)
	auditLog := repository.NewPostgresAuditLog(db)
	userRepository := repository.NewPostgresUserRepository(db)

	// Downstream events are optional
	var eventPublisher service.EventPublisher
	if cfg.Kafka.BootstrapServers != "" {
		p, err := publisher.NewReportEventPublisher(cfg.Kafka.BootstrapServers, cfg.Kafka.ReportEventsTopic)
		if err != nil {
			log.WithError(err).Fatal("Could not create report event publisher")
		}
		defer p.Close()
		eventPublisher = p
	} else {
		log.Warn("KAFKA_BOOTSTRAP_SERVERS not set, report events will not be published")
	}
	notifier := service.NewEventNotifier(eventPublisher, cfg.Kafka.PublishTimeout)

	// Create services
	reportService := service.NewReportService(reportRepository, auditLog, notifier)
	timelineService := service.NewTimelineService(auditLog, userRepository, map[domain.TargetType]service.CreationSource{
		domain.TargetReport: reportRepository,
		domain.TargetUser:   userRepository,
	})

	// Create server
	srv := server.NewServer(reportService, timelineService, db)

	// Setup Echo
	e := echo.New()
	e.HideBanner = true
	e.Validator = server.NewRequestValidator()
	srv.RegisterRoutes(e)

	go func() {
		log.WithField("port", cfg.HTTP.Port).Info("Road report service is starting with Echo")
		if err := e.Start(":" + cfg.HTTP.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("error", err).Fatal("Echo server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down road report service...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Echo server shutdown failed")
	}
	notifier.Wait()
}
