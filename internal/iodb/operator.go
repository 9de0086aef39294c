// Package iodb implements PostgreSQL database operations using pgxpool.
// This is an impure I/O package that implements contracts defined in pkg/.
package iodb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecodata/aqsync/pkg/config"
	"github.com/ecodata/aqsync/pkg/db"
	"github.com/ecodata/aqsync/pkg/errcode"
	"github.com/ecodata/aqsync/pkg/schema"
)

// PgxOperator implements db.Operator using pgxpool for connection pooling.
type PgxOperator struct {
	pool *pgxpool.Pool
}

var _ db.Operator = (*PgxOperator)(nil)

// New creates a new database operator (without connecting).
func New() *PgxOperator {
	return &PgxOperator{}
}

// Connect establishes a connection pool to PostgreSQL.
func (p *PgxOperator) Connect(ctx context.Context, cfg *config.DatabaseConfig) error {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return errcode.Wrap(errcode.ConfigError, "cannot parse connection string", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return errcode.Wrap(errcode.NetworkError, "cannot create connection pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return errcode.Wrap(errcode.NetworkError, "cannot ping database", err)
	}

	p.pool = pool
	return nil
}

// Close releases all database connections.
func (p *PgxOperator) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// Pool returns the underlying pgxpool.Pool for advanced operations.
func (p *PgxOperator) Pool() *pgxpool.Pool {
	return p.pool
}

// TableExists checks if a table exists in the service schema.
func (p *PgxOperator) TableExists(ctx context.Context, tableName string) (bool, error) {
	if p.pool == nil {
		return false, errcode.New(errcode.ConfigError, "not connected to database")
	}

	query := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = $1
			AND table_name = $2
		)
	`

	var exists bool
	err := p.pool.QueryRow(ctx, query, schema.SchemaName, tableName).Scan(&exists)
	if err != nil {
		return false, errcode.Wrap(errcode.NetworkError, "cannot check table existence", err)
	}

	return exists, nil
}

// HasTables checks if the service schema contains any tables.
func (p *PgxOperator) HasTables(ctx context.Context) (bool, error) {
	if p.pool == nil {
		return false, errcode.New(errcode.ConfigError, "not connected to database")
	}

	query := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = $1
		)
	`

	var hasTables bool
	err := p.pool.QueryRow(ctx, query, schema.SchemaName).Scan(&hasTables)
	if err != nil {
		return false, errcode.Wrap(errcode.NetworkError, "cannot check for tables", err)
	}

	return hasTables, nil
}

// DropAllTables drops all tables and materialized views in the service
// schema. Continuous aggregates must go before the hypertable they read.
func (p *PgxOperator) DropAllTables(ctx context.Context) error {
	if p.pool == nil {
		return errcode.New(errcode.ConfigError, "not connected to database")
	}

	viewsQuery := `
		SELECT matviewname
		FROM pg_matviews
		WHERE schemaname = $1
	`
	views, err := p.collectNames(ctx, viewsQuery)
	if err != nil {
		return err
	}
	for _, view := range views {
		dropSQL := fmt.Sprintf(
			"DROP MATERIALIZED VIEW IF EXISTS %s.%s CASCADE",
			schema.SchemaName, view,
		)
		if _, err := p.pool.Exec(ctx, dropSQL); err != nil {
			return errcode.Wrap(
				errcode.SchemaError,
				fmt.Sprintf("cannot drop view %s", view), err,
			)
		}
	}

	tablesQuery := `
		SELECT tablename
		FROM pg_tables
		WHERE schemaname = $1
	`
	tables, err := p.collectNames(ctx, tablesQuery)
	if err != nil {
		return err
	}
	for _, table := range tables {
		dropSQL := fmt.Sprintf(
			"DROP TABLE IF EXISTS %s.%s CASCADE",
			schema.SchemaName, table,
		)
		if _, err := p.pool.Exec(ctx, dropSQL); err != nil {
			return errcode.Wrap(
				errcode.SchemaError,
				fmt.Sprintf("cannot drop table %s", table), err,
			)
		}
	}

	return nil
}

func (p *PgxOperator) collectNames(ctx context.Context, query string) ([]string, error) {
	rows, err := p.pool.Query(ctx, query, schema.SchemaName)
	if err != nil {
		return nil, errcode.Wrap(errcode.SchemaError, "cannot query catalog", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errcode.Wrap(errcode.SchemaError, "cannot scan name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errcode.Wrap(errcode.SchemaError, "cannot iterate catalog rows", err)
	}
	return names, nil
}
