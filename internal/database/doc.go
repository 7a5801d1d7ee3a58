// Package database provides connection pool management for the optional
// quote recorder, which writes to a TimescaleDB quotes hypertable.
package database
