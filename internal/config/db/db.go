package db

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/Bessima/gift-fulfillment/internal/middlewares/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	Pool PgxPoolInterface
}

// NewDB открывает пул соединений и применяет миграции.
func NewDB(ctx context.Context, databaseDNS string) (*DB, error) {
	if err := Migrate(databaseDNS); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseDNS)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func Migrate(databaseDNS string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("unable to read migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseDNS)
	if err != nil {
		return fmt.Errorf("unable to init migrations: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil || dbErr != nil {
			logger.Log.Warn("closing migrator", zap.NamedError("source", sourceErr), zap.NamedError("db", dbErr))
		}
	}()

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("unable to apply migrations: %w", err)
	}
	logger.Log.Info("Migrations applied")
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

func (db *DB) Close() {
	db.Pool.Close()
}
