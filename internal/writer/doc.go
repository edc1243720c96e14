// Package writer implements batch writers for the gatherer tables.
//
// Writers:
//   - Ticker writer (tickers)
//   - Match writer (trades)
//   - Snapshot writer (orderbook_snapshots)
//
// Each writer drains a router.GrowableBuffer, accumulates rows and flushes
// them with one pgx.Batch per flush. All writers are append-only: inserts use
// ON CONFLICT DO NOTHING so replayed frames are counted as conflicts.
// Prices and sizes are stored as NUMERIC via shopspring/decimal.
//
// EventSink sits between a connection.Supervisor and the writers and routes
// each decoded event to the matching buffer.
package writer
