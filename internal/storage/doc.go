// Package storage persists the one-shot alert history.
//
// Each record is keyed by "TICKER_DATE_DECISION" and written at most once.
// Drivers:
//   - "file": JSON map snapshot plus an append-only journal
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
//   - "redis": shared store for several instances (SETNX)
package storage
