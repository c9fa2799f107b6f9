// Package database provides the PostgreSQL connection pool for the
// optional metrics-history store. Aggregated books themselves are never
// persisted; only derived per-cycle metrics land here.
package database
