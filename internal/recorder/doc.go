// Package recorder implements optional quote persistence.
//
// The QuoteWriter batches decoded quotes and appends them to a TimescaleDB
// quotes hypertable. Inserts are append-only with ON CONFLICT DO NOTHING on
// (symbol, sequence).
package recorder
