// Package db defines the database management contract for aqsync.
package db

import (
	"context"

	"github.com/ecodata/aqsync/pkg/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Operator provides connection lifecycle management and exposes the
// pgxpool.Pool for the components that run their own SQL (upsert engine,
// ledger, schema manager).
//
// The interface stays minimal on purpose: bulk writes and ledger queries
// need transactions and batch inserts, which belong to those components,
// not here.
type Operator interface {
	// Connect establishes a connection pool to the database.
	Connect(ctx context.Context, cfg *config.DatabaseConfig) error

	// Close closes the database connection pool.
	Close() error

	// Pool returns the underlying pgxpool.Pool, nil before Connect.
	Pool() *pgxpool.Pool

	// TableExists checks if a table exists in the aqsync schema.
	TableExists(ctx context.Context, tableName string) (bool, error)

	// HasTables checks if the aqsync schema has any tables.
	// Used to decide whether provisioning should prompt before dropping.
	HasTables(ctx context.Context) (bool, error)

	// DropAllTables drops all aqsync relations. Used when provisioning
	// with --force over an existing installation.
	DropAllTables(ctx context.Context) error
}
