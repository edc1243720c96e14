package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of pgxpool.Pool used by Migrate.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the gatherer tables. Timestamps are microseconds since epoch;
// prices and sizes are NUMERIC so no precision is lost.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tickers (
		exchange_ts   BIGINT NOT NULL,
		received_at   BIGINT NOT NULL,
		symbol        TEXT NOT NULL,
		sequence      BIGINT NOT NULL,
		price         NUMERIC,
		size          NUMERIC,
		best_bid      NUMERIC,
		best_bid_size NUMERIC,
		best_ask      NUMERIC,
		best_ask_size NUMERIC,
		PRIMARY KEY (symbol, received_at, sequence)
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		trade_id    TEXT NOT NULL,
		exchange_ts BIGINT NOT NULL,
		received_at BIGINT NOT NULL,
		symbol      TEXT NOT NULL,
		sequence    BIGINT NOT NULL,
		side        TEXT NOT NULL,
		price       NUMERIC NOT NULL,
		size        NUMERIC NOT NULL,
		maker_order TEXT,
		taker_order TEXT,
		PRIMARY KEY (trade_id, exchange_ts)
	)`,
	`CREATE TABLE IF NOT EXISTS orderbook_snapshots (
		snapshot_ts BIGINT NOT NULL,
		exchange_ts BIGINT NOT NULL,
		symbol      TEXT NOT NULL,
		source      TEXT NOT NULL,
		sequence    BIGINT NOT NULL,
		bids        JSONB NOT NULL,
		asks        JSONB NOT NULL,
		best_bid    NUMERIC,
		best_ask    NUMERIC,
		spread      NUMERIC,
		PRIMARY KEY (symbol, snapshot_ts, source)
	)`,
}

// Hypertables converts the tables to TimescaleDB hypertables.
var Hypertables = []string{
	`SELECT create_hypertable('tickers', 'received_at', chunk_time_interval => 86400000000, if_not_exists => TRUE)`,
	`SELECT create_hypertable('trades', 'exchange_ts', chunk_time_interval => 86400000000, if_not_exists => TRUE)`,
	`SELECT create_hypertable('orderbook_snapshots', 'snapshot_ts', chunk_time_interval => 86400000000, if_not_exists => TRUE)`,
}

// Migrate creates the tables, and hypertables when timescale is true.
func Migrate(ctx context.Context, db Execer, timescale bool) error {
	stmts := Schema
	if timescale {
		stmts = append(append([]string(nil), Schema...), Hypertables...)
	}
	for i, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
