package database

import (
	"context"
	"database/sql"
	"fmt"

	"attendance.service/internal/config"
	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// NewInstrumentedConnection creates a database connection with OpenTelemetry instrumentation.
func NewInstrumentedConnection(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	// otelsql.Open wraps the driver to intercept queries and create spans
	db, err := otelsql.Open("pgx", DSN(cfg),
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
		otelsql.WithSQLCommenter(true),
	)
	if err != nil {
		return nil, fmt.Errorf("error opening instrumented database: %w", err)
	}

	return verify(ctx, db)
}
