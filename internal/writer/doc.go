// Package writer implements the batch writer for derived-metrics history.
//
// The writer accumulates per-cycle metrics samples and flushes them to the
// book_metrics table in TimescaleDB, either when the batch fills or on a
// flush interval. Writes are append-only.
package writer
