package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"attendance.service/internal/config"
	"attendance.service/internal/core"
	"attendance.service/internal/worker"
	"attendance.service/internal/worker/notify"
	"attendance.service/pkg/aws"
	"attendance.service/pkg/logger"
	"attendance.service/pkg/telemetry"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}

	logger.Setup(cfg.IsLocalDev)

	shutdownTracer, err := telemetry.InitTracer("attendance-notify-worker", cfg.OTelExporter, cfg.OTelEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init tracer")
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	awsCfg, err := aws.NewAWSConfig(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load SDK config")
	}

	sqsClient := sqs.NewFromConfig(awsCfg)
	emailService := core.NewSESEmailService(ses.NewFromConfig(awsCfg), cfg.NotifySender)
	processor := notify.NewProcessor(emailService, cfg.ManagerEmail)

	ctx, cancel := context.WithCancel(context.Background())
	app := worker.NewWorker(sqsClient, cfg.NotifySQSQueueURL, processor)

	done := make(chan struct{})
	go func() {
		app.Start(ctx)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down worker...")

	// Cancel the context to signal the worker to stop polling.
	cancel()
	<-done

	log.Info().Msg("Worker exited gracefully")
}
