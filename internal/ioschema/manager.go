// Package ioschema implements the SchemaManager interface for store
// provisioning. This is an impure I/O package that wraps GORM AutoMigrate
// and the TimescaleDB policy statements.
package ioschema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ecodata/aqsync/pkg/aqsync"
	"github.com/ecodata/aqsync/pkg/db"
	"github.com/ecodata/aqsync/pkg/errcode"
	"github.com/ecodata/aqsync/pkg/schema"
	"github.com/ecodata/aqsync/pkg/targets"
)

// Manager implements aqsync.SchemaManager using GORM AutoMigrate for
// tables and raw SQL for hypertable, compression and rollup policies.
type Manager struct {
	operator db.Operator
	policies schema.Policies
	catalog  *targets.Catalog
	log      *slog.Logger
}

// NewManager creates a new SchemaManager.
func NewManager(
	op db.Operator,
	policies schema.Policies,
	catalog *targets.Catalog,
	log *slog.Logger,
) aqsync.SchemaManager {
	return &Manager{operator: op, policies: policies, catalog: catalog, log: log}
}

// Provision creates the schema, all tables, the measurements hypertable
// with its compression policy, and the rollup views. Every step is
// idempotent so provision can run against an existing store.
func (m *Manager) Provision(ctx context.Context) error {
	pool := m.operator.Pool()
	if pool == nil {
		return errcode.New(errcode.ConfigError, "database not connected")
	}

	createSchema := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema.SchemaName)
	if _, err := pool.Exec(ctx, createSchema); err != nil {
		return errcode.Wrap(errcode.SchemaError, "cannot create schema", err)
	}

	gdb, err := m.openGorm()
	if err != nil {
		return err
	}

	m.log.Info("migrating tables", "schema", schema.SchemaName)
	if err := schema.Migrate(gdb); err != nil {
		return errcode.Wrap(errcode.SchemaError, "cannot migrate tables", err)
	}

	m.log.Info("applying store policies",
		"chunk_interval", m.policies.ChunkInterval,
		"compress_after", m.policies.CompressAfter,
	)
	for _, stmt := range m.policies.Statements() {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return errcode.Wrap(errcode.SchemaError, "cannot apply store policy", err)
		}
	}

	if err := m.seedLookups(ctx); err != nil {
		return err
	}

	m.log.Info("store provisioned")
	return nil
}

// openGorm wraps the existing pgx pool in a GORM session instead of
// opening a second pool.
func (m *Manager) openGorm() (*gorm.DB, error) {
	sqlDB := stdlib.OpenDBFromPool(m.operator.Pool())
	gdb, err := gorm.Open(
		gormpg.New(gormpg.Config{Conn: sqlDB}),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)},
	)
	if err != nil {
		return nil, errcode.Wrap(errcode.SchemaError, "cannot open GORM session", err)
	}
	return gdb, nil
}

// seedLookups fills the country and pollutant reference tables from the
// target catalog. Existing rows are updated so catalog edits propagate.
func (m *Manager) seedLookups(ctx context.Context) error {
	pool := m.operator.Pool()

	countryQ := fmt.Sprintf(`
		INSERT INTO %s.countries (country_code, country_name)
		VALUES ($1, $2)
		ON CONFLICT (country_code) DO UPDATE SET
			country_name = EXCLUDED.country_name`,
		schema.SchemaName,
	)
	for _, cc := range m.catalog.Countries {
		if _, err := pool.Exec(ctx, countryQ, cc, targets.CountryName(cc)); err != nil {
			return errcode.Wrap(errcode.SchemaError, "cannot seed countries", err)
		}
	}

	pollutantQ := fmt.Sprintf(`
		INSERT INTO %s.pollutants (pollutant_code, pollutant_name, pollutant_label, unit)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pollutant_code) DO UPDATE SET
			pollutant_name = EXCLUDED.pollutant_name,
			pollutant_label = EXCLUDED.pollutant_label,
			unit = EXCLUDED.unit`,
		schema.SchemaName,
	)
	for _, p := range m.catalog.Pollutants {
		if _, err := pool.Exec(ctx, pollutantQ, p.Code, p.Name, p.Label, p.Unit); err != nil {
			return errcode.Wrap(errcode.SchemaError, "cannot seed pollutants", err)
		}
	}

	validityQ := fmt.Sprintf(`
		INSERT INTO %s.validity_flags (validity_code, validity_name)
		VALUES ($1, $2)
		ON CONFLICT (validity_code) DO NOTHING`,
		schema.SchemaName,
	)
	for code, name := range map[int]string{
		-99: "not valid (station maintenance)",
		-1:  "not valid",
		1:   "valid",
		2:   "valid (below detection limit)",
		3:   "valid (below detection limit, number replaced)",
	} {
		if _, err := pool.Exec(ctx, validityQ, code, name); err != nil {
			return errcode.Wrap(errcode.SchemaError, "cannot seed validity flags", err)
		}
	}

	verificationQ := fmt.Sprintf(`
		INSERT INTO %s.verification_status (verification_code, verification_name)
		VALUES ($1, $2)
		ON CONFLICT (verification_code) DO NOTHING`,
		schema.SchemaName,
	)
	for code, name := range map[int]string{
		1: "verified",
		2: "preliminary verified",
		3: "not verified",
	} {
		if _, err := pool.Exec(ctx, verificationQ, code, name); err != nil {
			return errcode.Wrap(errcode.SchemaError, "cannot seed verification status", err)
		}
	}

	return nil
}
