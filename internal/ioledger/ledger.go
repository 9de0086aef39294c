// Package ioledger implements the sync operations ledger over pgx.
// This is an impure I/O package.
package ioledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/ecodata/aqsync/pkg/aqsync"
	"github.com/ecodata/aqsync/pkg/errcode"
	"github.com/ecodata/aqsync/pkg/schema"
)

// Ledger implements aqsync.Ledger against the sync_operations table.
type Ledger struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

var _ aqsync.Ledger = (*Ledger)(nil)

// New creates a ledger. Pass clockwork.NewRealClock() outside of tests.
func New(pool *pgxpool.Pool, clock clockwork.Clock) *Ledger {
	return &Ledger{pool: pool, clock: clock}
}

const operationColumns = `operation_id, operation_type, countries, pollutants,
	date_start, date_end, status, started_at, ended_at,
	records_downloaded, records_inserted, rows_skipped,
	units_total, units_succeeded, units_failed, error_message, metadata`

// Start opens a new operation in running state and returns its ID.
func (l *Ledger) Start(ctx context.Context, req aqsync.Request) (uuid.UUID, error) {
	id := uuid.New()

	countries := joinScope(req.Countries)
	pollutants := joinScope(req.Pollutants)

	var dateStart, dateEnd any
	if !req.Range.IsZero() {
		dateStart = req.Range.Start
		dateEnd = req.Range.End
	}

	var metadata []byte
	if len(req.URLs) > 0 {
		var err error
		metadata, err = json.Marshal(map[string]any{"urls": req.URLs})
		if err != nil {
			return uuid.Nil, errcode.Wrap(errcode.LedgerError, "cannot encode metadata", err)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s.sync_operations
			(operation_id, operation_type, countries, pollutants,
			 date_start, date_end, status, started_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		schema.SchemaName,
	)
	_, err := l.pool.Exec(ctx, query,
		id.String(), string(req.Mode), countries, pollutants,
		dateStart, dateEnd, string(aqsync.StatusRunning),
		l.clock.Now().UTC(), metadata,
	)
	if err != nil {
		return uuid.Nil, errcode.Wrap(errcode.LedgerError, "cannot start operation", err)
	}
	return id, nil
}

// UpdateCounters adds deltas to the running totals of an operation.
func (l *Ledger) UpdateCounters(
	ctx context.Context, id uuid.UUID, downloaded, inserted, skipped int64,
) error {
	query := fmt.Sprintf(`
		UPDATE %s.sync_operations SET
			records_downloaded = records_downloaded + $2,
			records_inserted = records_inserted + $3,
			rows_skipped = rows_skipped + $4
		WHERE operation_id = $1`,
		schema.SchemaName,
	)
	tag, err := l.pool.Exec(ctx, query, id.String(), downloaded, inserted, skipped)
	if err != nil {
		return errcode.Wrap(errcode.LedgerError, "cannot update counters", err)
	}
	if tag.RowsAffected() == 0 {
		return errcode.Newf(errcode.LedgerError, "unknown operation %s", id)
	}
	return nil
}

// Finalize moves an operation to a terminal status exactly once. The
// status guard keeps a second finalize (or a finalize after external
// cancellation) from rewriting history.
func (l *Ledger) Finalize(
	ctx context.Context,
	id uuid.UUID,
	status aqsync.Status,
	stats aqsync.RunStats,
	errMsg string,
) error {
	if !status.Terminal() {
		return errcode.Newf(errcode.LedgerError, "status %q is not terminal", status)
	}

	var msg *string
	if errMsg != "" {
		msg = ptr(errMsg)
	}

	query := fmt.Sprintf(`
		UPDATE %s.sync_operations SET
			status = $2,
			ended_at = $3,
			units_total = $4,
			units_succeeded = $5,
			units_failed = $6,
			error_message = $7
		WHERE operation_id = $1 AND status = $8`,
		schema.SchemaName,
	)
	tag, err := l.pool.Exec(ctx, query,
		id.String(), string(status), l.clock.Now().UTC(),
		stats.UnitsTotal, stats.UnitsSucceeded, stats.UnitsFailed,
		msg, string(aqsync.StatusRunning),
	)
	if err != nil {
		return errcode.Wrap(errcode.LedgerError, "cannot finalize operation", err)
	}
	if tag.RowsAffected() == 0 {
		return errcode.Newf(errcode.LedgerError,
			"operation %s is not running, refusing to finalize", id)
	}
	return nil
}

// LatestCompleted returns the most recent fully completed incremental
// operation for the requested scope, or nil when none exists. Hourly and
// custom-range runs never move the incremental watermark, and neither
// does an incremental run over a different country or pollutant set.
// Scope columns are stored as Start writes them, so a default-scope
// request (nil lists) matches rows with NULL scope columns.
func (l *Ledger) LatestCompleted(
	ctx context.Context, countries, pollutants []string,
) (*schema.SyncOperation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s.sync_operations
		WHERE status = $1 AND operation_type = $2
		  AND countries IS NOT DISTINCT FROM $3
		  AND pollutants IS NOT DISTINCT FROM $4
		ORDER BY started_at DESC
		LIMIT 1`,
		operationColumns, schema.SchemaName,
	)
	op, err := l.scanOne(ctx, query,
		string(aqsync.StatusCompleted), string(aqsync.ModeIncremental),
		joinScope(countries), joinScope(pollutants))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return op, nil
}

// Get returns one operation by ID.
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*schema.SyncOperation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s.sync_operations
		WHERE operation_id = $1`,
		operationColumns, schema.SchemaName,
	)
	op, err := l.scanOne(ctx, query, id.String())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errcode.Newf(errcode.NotFoundError, "operation %s not found", id)
		}
		return nil, err
	}
	return op, nil
}

// Recent returns the latest operations, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]schema.SyncOperation, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s.sync_operations
		ORDER BY started_at DESC
		LIMIT $1`,
		operationColumns, schema.SchemaName,
	)
	return l.scanMany(ctx, query, limit)
}

// Running returns all operations still in running state.
func (l *Ledger) Running(ctx context.Context) ([]schema.SyncOperation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s.sync_operations
		WHERE status = $1
		ORDER BY started_at DESC`,
		operationColumns, schema.SchemaName,
	)
	return l.scanMany(ctx, query, string(aqsync.StatusRunning))
}

func (l *Ledger) scanOne(
	ctx context.Context, query string, args ...any,
) (*schema.SyncOperation, error) {
	var op schema.SyncOperation
	err := l.pool.QueryRow(ctx, query, args...).Scan(
		&op.OperationID, &op.OperationType, &op.Countries, &op.Pollutants,
		&op.DateStart, &op.DateEnd, &op.Status, &op.StartedAt, &op.EndedAt,
		&op.RecordsDownloaded, &op.RecordsInserted, &op.RowsSkipped,
		&op.UnitsTotal, &op.UnitsSucceeded, &op.UnitsFailed,
		&op.ErrorMessage, &op.Metadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errcode.Wrap(errcode.LedgerError, "cannot read operation", err)
	}
	return &op, nil
}

func (l *Ledger) scanMany(
	ctx context.Context, query string, args ...any,
) ([]schema.SyncOperation, error) {
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errcode.Wrap(errcode.LedgerError, "cannot list operations", err)
	}
	defer rows.Close()

	var ops []schema.SyncOperation
	for rows.Next() {
		var op schema.SyncOperation
		err := rows.Scan(
			&op.OperationID, &op.OperationType, &op.Countries, &op.Pollutants,
			&op.DateStart, &op.DateEnd, &op.Status, &op.StartedAt, &op.EndedAt,
			&op.RecordsDownloaded, &op.RecordsInserted, &op.RowsSkipped,
			&op.UnitsTotal, &op.UnitsSucceeded, &op.UnitsFailed,
			&op.ErrorMessage, &op.Metadata,
		)
		if err != nil {
			return nil, errcode.Wrap(errcode.LedgerError, "cannot scan operation", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, errcode.Wrap(errcode.LedgerError, "cannot iterate operations", err)
	}
	return ops, nil
}

func ptr[T any](v T) *T { return &v }

// joinScope renders a scope list the way sync_operations stores it,
// NULL when the request carries no override.
func joinScope(values []string) *string {
	if len(values) == 0 {
		return nil
	}
	return ptr(strings.Join(values, ","))
}
