package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createRecordsSQL = `CREATE TABLE IF NOT EXISTS selection_records (
        key        TEXT PRIMARY KEY,
        data       JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	createPriceCacheSQL = `CREATE TABLE IF NOT EXISTS price_cache (
        sensor     TEXT NOT NULL,
        date       DATE NOT NULL,
        prices     JSONB NOT NULL,
        fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (sensor, date)
    );`

	upsertRecordSQL = `INSERT INTO selection_records (key, data, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE
    SET
        data       = EXCLUDED.data,
        updated_at = EXCLUDED.updated_at;`

	upsertPricesSQL = `INSERT INTO price_cache (sensor, date, prices, fetched_at)
    VALUES ($1, $2, $3, now())
    ON CONFLICT (sensor, date) DO UPDATE
    SET
        prices     = EXCLUDED.prices,
        fetched_at = EXCLUDED.fetched_at;`
)

type postgresBackend struct {
	pool *pgxpool.Pool
}

// newPool configures a PostgreSQL connection pool from runtime settings.
func newPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required for the postgres driver")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

func openPostgres(ctx context.Context, cfg Config) (*postgresBackend, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for _, stmt := range []string{createRecordsSQL, createPriceCacheSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) loadRecords(ctx context.Context) (map[string][]byte, error) {
	rows, err := b.pool.Query(ctx, `SELECT key, data FROM selection_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]byte{}
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, err
		}
		out[key] = data
	}
	return out, rows.Err()
}

func (b *postgresBackend) saveRecord(ctx context.Context, key string, data []byte) error {
	_, err := b.pool.Exec(ctx, upsertRecordSQL, key, data)
	return err
}

func (b *postgresBackend) deleteRecord(ctx context.Context, key string) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM selection_records WHERE key = $1`, key)
	return err
}

func (b *postgresBackend) deleteAll(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM selection_records`)
	return err
}

func (b *postgresBackend) savePrices(ctx context.Context, sensor, date string, data []byte) error {
	_, err := b.pool.Exec(ctx, upsertPricesSQL, sensor, date, data)
	return err
}

func (b *postgresBackend) loadPrices(ctx context.Context, sensor, date string) ([]byte, error) {
	var data []byte
	err := b.pool.QueryRow(ctx, `SELECT prices FROM price_cache WHERE sensor = $1 AND date = $2`, sensor, date).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (b *postgresBackend) close() error {
	b.pool.Close()
	return nil
}
