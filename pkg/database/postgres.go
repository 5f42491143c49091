package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"attendance.service/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver
)

// DSN builds the pgx connection string from config.
func DSN(cfg config.Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// NewConnection opens a plain pgx connection pool and verifies it.
func NewConnection(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open("pgx", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return verify(ctx, db)
}

// verify applies pool limits and pings the database, closing it on failure.
func verify(ctx context.Context, db *sql.DB) (*sql.DB, error) {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}
	return db, nil
}
