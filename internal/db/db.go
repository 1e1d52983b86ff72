package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

const (
	applicationName = "opportunity-matcher"
	maxPoolConns    = 4
)

// Connect opens a pool with pgvector types registered on every connection.
// The vector extension must already exist; a fresh database is migrated
// through ConnectForMigrations first.
func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	return connect(ctx, dbURL, true)
}

// ConnectForMigrations opens a pool without pgvector type registration.
func ConnectForMigrations(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	return connect(ctx, dbURL, false)
}

func connect(ctx context.Context, dbURL string, registerVector bool) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing db config: %w", err)
	}
	if config.MaxConns > maxPoolConns {
		config.MaxConns = maxPoolConns
	}
	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	if registerVector {
		config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
				return fmt.Errorf("register vector type (run migrate first): %w", err)
			}
			return nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error connecting to db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging db: %w", err)
	}

	return pool, nil
}
