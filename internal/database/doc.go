// Package database provides the TimescaleDB connection pool and schema.
//
// Tables:
//   - tickers: ticker frames, one row per (symbol, received_at, sequence)
//   - trades: match frames, deduplicated on trade id
//   - orderbook_snapshots: REST order book snapshots from the poller
package database
