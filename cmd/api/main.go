// Entry point for the attendance REST API
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendance.service/internal/api"
	"attendance.service/internal/config"
	"attendance.service/internal/core"
	"attendance.service/internal/ports/messaging"
	"attendance.service/internal/ports/repository"
	"attendance.service/pkg/aws"
	"attendance.service/pkg/database"
	"attendance.service/pkg/logger"
	"attendance.service/pkg/telemetry"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}

	// Configure structured logging
	logger.Setup(cfg.IsLocalDev)

	// Configure OpenTelemetry Tracing
	shutdownTracer, err := telemetry.InitTracer("attendance-api", cfg.OTelExporter, cfg.OTelEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init tracer")
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	ctx := context.Background()

	repo, closeRepo := openRepository(ctx, cfg)
	defer closeRepo()

	// AWS SDK Config
	awsCfg, err := aws.NewAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load SDK config")
	}
	producer := messaging.NewSQSProducer(sqs.NewFromConfig(awsCfg), cfg.NotifySQSQueueURL)

	lateThreshold, _ := config.ParseClock(cfg.LateThreshold)
	cutoff, _ := config.ParseClock(cfg.PunchInCutoff)
	service := core.NewPunchService(repo, producer, core.PunchRules{
		Location:      cfg.Location(),
		LateThreshold: lateThreshold,
		PunchInCutoff: cutoff,
		LateReasons:   core.NewLateReasonOptions(cfg.LateReasonList()),
	})

	router := api.NewRouter(service, cfg.APIToken)

	// Middleware to inject logger with trace ID
	loggerMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.EnrichContextWithLogger(r.Context())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	// Wrap the router with OpenTelemetry middleware to create spans for each request
	handler := otelhttp.NewHandler(loggerMiddleware(router), "attendance-api")

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.ServerPort).Str("storage", cfg.StorageBackend).Msg("Attendance API starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}

func openRepository(ctx context.Context, cfg config.Config) (repository.Repository, func()) {
	if cfg.StorageBackend == config.StorageMemory {
		log.Warn().Msg("Using in-memory storage, sessions are lost on restart")
		return repository.NewMemoryRepository(), func() {}
	}

	db, err := database.NewInstrumentedConnection(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening database")
	}
	log.Info().Msg("Successfully connected to the database.")

	repo := repository.NewSessionRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		log.Fatal().Err(err).Msg("Error migrating database")
	}
	return repo, func() { db.Close() }
}
