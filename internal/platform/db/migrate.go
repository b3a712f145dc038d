package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema holds the idempotent DDL for every table the service owns.
//
//go:embed schema.sql
var Schema string

// Migrate applies Schema. Every statement is CREATE ... IF NOT EXISTS so the
// call is safe on each boot.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("platform/db: migrate: %w", err)
	}
	return nil
}
