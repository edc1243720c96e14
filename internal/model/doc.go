// Package model defines the data types shared across the KuCoin data platform.
//
// Stream payloads (stream.go, account.go) mirror the "data" object of realtime
// message frames field for field. REST shapes (rest.go) mirror the "data"
// member of REST responses. Row types (types.go) are what the writers persist.
//
// Conventions:
//   - Prices and sizes sent as JSON strings stay string in payloads so no
//     precision is lost; fractional JSON numbers use decimal.Decimal.
//   - Row prices and sizes are decimal.Decimal.
//   - Timestamps: int64 as delivered by the venue (ms or ns since epoch,
//     noted per field); rows use microseconds since Unix epoch.
package model
