package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Setup configures the global zerolog logger.
func Setup(isLocalDev bool) {
	SetupWriter(isLocalDev, os.Stderr)
}

// SetupWriter is Setup with an explicit sink.
func SetupWriter(isLocalDev bool, w io.Writer) {
	// Use Unix timestamps for performance and consistency
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if isLocalDev {
		// Pretty printing for local development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		// Default to JSON output for production
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// log.Ctx falls back to the global logger for contexts that carry none
	zerolog.DefaultContextLogger = &log.Logger
}

// EnrichContextWithLogger adds a zerolog logger to the context with trace information.
func EnrichContextWithLogger(ctx context.Context) context.Context {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return ctx
	}

	sCtx := span.SpanContext()
	if !sCtx.HasTraceID() {
		return ctx
	}

	l := log.With().
		Str("trace_id", sCtx.TraceID().String()).
		Str("span_id", sCtx.SpanID().String()).
		Logger()

	return l.WithContext(ctx)
}

// WithEmployee returns ctx with a logger tagged with the employee id.
func WithEmployee(ctx context.Context, employeeID string) context.Context {
	l := log.Ctx(ctx).With().Str("employee_id", employeeID).Logger()
	return l.WithContext(ctx)
}
