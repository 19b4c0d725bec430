// Package postgresstore is a PostgreSQL-backed alternate for C5/C6,
// swapped in for the in-memory reference when ORDERFEED_STORE=postgres.
package postgresstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool parses dsn, configures pgxpool with the connection hygiene the
// rest of the corpus applies, verifies connectivity, and returns the pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgresstore: parse dsn: %w", err)
	}
	pcfg.HealthCheckPeriod = 30 * time.Second
	pcfg.MaxConnIdleTime = 5 * time.Minute
	pcfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `SET TIME ZONE 'UTC'`)
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgresstore: new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgresstore: ping: %w", err)
	}
	return pool, nil
}

// Schema is the DDL the reference deployment applies before the service
// starts. It is exposed as a constant rather than a migration file since
// this package doesn't carry a migration runner.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id                text PRIMARY KEY,
	external_order_id text NOT NULL,
	partner_id        text NOT NULL,
	sequence_number   bigint NOT NULL,
	product_id        text NOT NULL,
	customer_id       text NOT NULL,
	quantity          bigint NOT NULL,
	unit_price        double precision NOT NULL,
	tax_rate          double precision NOT NULL,
	gross_amount      double precision NOT NULL,
	tax_amount        double precision NOT NULL,
	net_amount        double precision NOT NULL,
	transaction_time  timestamptz NOT NULL,
	processed_at      timestamptz NOT NULL,
	metadata          jsonb,
	UNIQUE (partner_id, external_order_id)
);
CREATE INDEX IF NOT EXISTS orders_partner_idx ON orders (partner_id);
CREATE INDEX IF NOT EXISTS orders_customer_idx ON orders (customer_id);
CREATE INDEX IF NOT EXISTS orders_processed_at_idx ON orders (processed_at DESC);

CREATE TABLE IF NOT EXISTS error_events (
	id                text PRIMARY KEY,
	partner_id        text NOT NULL,
	external_order_id text NOT NULL,
	error_code        text NOT NULL,
	message           text NOT NULL,
	details           jsonb,
	original_payload  jsonb,
	timestamp         timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS error_events_partner_idx ON error_events (partner_id);
CREATE INDEX IF NOT EXISTS error_events_timestamp_idx ON error_events (timestamp DESC);
`
