// Package ioupsert implements idempotent batched writes into the store.
// This is an impure I/O package built on pgx parameterized inserts.
package ioupsert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecodata/aqsync/pkg/aqsync"
	"github.com/ecodata/aqsync/pkg/errcode"
	"github.com/ecodata/aqsync/pkg/schema"
)

// Retryable constraint violations: foreign_key_violation and
// unique_violation surface under concurrent writers and resolve on a
// second attempt once the competing transaction commits.
const (
	pgFKViolation     = "23503"
	pgUniqueViolation = "23505"
)

const retryDelay = 250 * time.Millisecond

// maxParams is the postgres extended protocol limit on bind parameters
// per statement.
const maxParams = 65535

// Upserter implements aqsync.Upserter with multi-row INSERT ... ON
// CONFLICT statements, one transaction per batch.
type Upserter struct {
	pool      *pgxpool.Pool
	batchSize int
	log       *slog.Logger
}

var _ aqsync.Upserter = (*Upserter)(nil)

// New creates an upserter. batchSize bounds rows per statement so the
// parameter count stays below the postgres protocol limit.
func New(pool *pgxpool.Pool, batchSize int, log *slog.Logger) *Upserter {
	if batchSize <= 0 || batchSize > 5000 {
		batchSize = 5000
	}
	return &Upserter{pool: pool, batchSize: batchSize, log: log}
}

// Conflict clauses. Dimensions enrich in place (COALESCE keeps stored
// values when the incoming field is NULL); facts take the incoming row
// wholesale. A sampling point's station reference is immutable, so its
// clause never assigns station_code.
const stationsConflict = `
	ON CONFLICT (station_code) DO UPDATE SET
		country_code = COALESCE(EXCLUDED.country_code, stations.country_code),
		station_name = COALESCE(EXCLUDED.station_name, stations.station_name),
		station_type = COALESCE(EXCLUDED.station_type, stations.station_type),
		area_type = COALESCE(EXCLUDED.area_type, stations.area_type),
		latitude = COALESCE(EXCLUDED.latitude, stations.latitude),
		longitude = COALESCE(EXCLUDED.longitude, stations.longitude),
		altitude = COALESCE(EXCLUDED.altitude, stations.altitude),
		municipality = COALESCE(EXCLUDED.municipality, stations.municipality),
		start_date = COALESCE(EXCLUDED.start_date, stations.start_date),
		end_date = COALESCE(EXCLUDED.end_date, stations.end_date),
		extra_metadata = COALESCE(EXCLUDED.extra_metadata, stations.extra_metadata),
		updated_at = EXCLUDED.updated_at`

const samplingPointsConflict = `
	ON CONFLICT (sampling_point_id) DO UPDATE SET
		country_code = COALESCE(EXCLUDED.country_code, sampling_points.country_code),
		instrument_type = COALESCE(EXCLUDED.instrument_type, sampling_points.instrument_type),
		pollutant_code = COALESCE(EXCLUDED.pollutant_code, sampling_points.pollutant_code),
		start_date = COALESCE(EXCLUDED.start_date, sampling_points.start_date),
		end_date = COALESCE(EXCLUDED.end_date, sampling_points.end_date),
		extra_metadata = COALESCE(EXCLUDED.extra_metadata, sampling_points.extra_metadata),
		updated_at = EXCLUDED.updated_at`

const measurementsConflict = `
	ON CONFLICT (time, sampling_point_id) DO UPDATE SET
		pollutant_code = EXCLUDED.pollutant_code,
		value = EXCLUDED.value,
		unit = EXCLUDED.unit,
		aggregation_type = EXCLUDED.aggregation_type,
		validity = EXCLUDED.validity,
		verification = EXCLUDED.verification,
		data_capture = EXCLUDED.data_capture,
		result_time = EXCLUDED.result_time,
		observation_id = EXCLUDED.observation_id`

var stationColumns = []string{
	"station_code", "country_code", "station_name", "station_type",
	"area_type", "latitude", "longitude", "altitude", "municipality",
	"start_date", "end_date", "extra_metadata", "created_at", "updated_at",
}

// UpsertStations writes station dimension records. Existing rows are
// enriched, not replaced: NULL incoming fields keep the stored value.
func (u *Upserter) UpsertStations(
	ctx context.Context, stations []schema.Station,
) (int64, error) {
	var total int64
	for _, chunk := range chunkSlice(stations, u.rowsPerBatch(len(stationColumns))) {
		args := make([]any, 0, len(chunk)*len(stationColumns))
		now := time.Now().UTC()
		for _, s := range chunk {
			args = append(args,
				s.StationCode, s.CountryCode, s.StationName, s.StationType,
				s.AreaType, s.Latitude, s.Longitude, s.Altitude,
				s.Municipality, s.StartDate, s.EndDate, s.ExtraMetadata,
				now, now,
			)
		}

		query := insertPrefix("stations", stationColumns, len(chunk)) + stationsConflict

		n, err := u.execBatch(ctx, query, args)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

var samplingPointColumns = []string{
	"sampling_point_id", "station_code", "country_code", "instrument_type",
	"pollutant_code", "start_date", "end_date", "extra_metadata",
	"created_at", "updated_at",
}

// UpsertSamplingPoints writes sampling point dimension records. The
// station reference is immutable once set, so the conflict clause never
// touches station_code.
func (u *Upserter) UpsertSamplingPoints(
	ctx context.Context, points []schema.SamplingPoint,
) (int64, error) {
	var total int64
	for _, chunk := range chunkSlice(points, u.rowsPerBatch(len(samplingPointColumns))) {
		args := make([]any, 0, len(chunk)*len(samplingPointColumns))
		now := time.Now().UTC()
		for _, p := range chunk {
			args = append(args,
				p.SamplingPointID, p.StationCode, p.CountryCode,
				p.InstrumentType, p.PollutantCode, p.StartDate, p.EndDate,
				p.ExtraMetadata, now, now,
			)
		}

		query := insertPrefix("sampling_points", samplingPointColumns, len(chunk)) + samplingPointsConflict

		n, err := u.execBatch(ctx, query, args)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

var measurementColumns = []string{
	"time", "sampling_point_id", "pollutant_code", "value", "unit",
	"aggregation_type", "validity", "verification", "data_capture",
	"result_time", "observation_id",
}

// UpsertMeasurements writes observation facts. Conflicting keys take the
// incoming values wholesale: re-ingested files carry corrections and
// the latest sync wins.
func (u *Upserter) UpsertMeasurements(
	ctx context.Context, rows []schema.Measurement,
) (int64, error) {
	var total int64
	for _, chunk := range chunkSlice(rows, u.rowsPerBatch(len(measurementColumns))) {
		args := make([]any, 0, len(chunk)*len(measurementColumns))
		for _, m := range chunk {
			args = append(args,
				m.Time, m.SamplingPointID, m.PollutantCode, m.Value, m.Unit,
				m.AggregationType, m.Validity, m.Verification, m.DataCapture,
				m.ResultTime, m.ObservationID,
			)
		}

		query := insertPrefix("measurements", measurementColumns, len(chunk)) + measurementsConflict

		n, err := u.execBatch(ctx, query, args)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// execBatch runs one statement in its own transaction, retrying once on
// a constraint violation before giving up.
func (u *Upserter) execBatch(
	ctx context.Context, query string, args []any,
) (int64, error) {
	n, err := u.execTx(ctx, query, args)
	if err == nil {
		return n, nil
	}
	if !isConstraintViolation(err) {
		return 0, errcode.Wrap(errcode.NetworkError, "batch write failed", err)
	}

	u.log.Warn("constraint violation, retrying batch", "error", err)
	select {
	case <-time.After(retryDelay):
	case <-ctx.Done():
		return 0, errcode.Wrap(errcode.TimeoutError, "batch retry cancelled", ctx.Err())
	}

	n, err = u.execTx(ctx, query, args)
	if err != nil {
		return 0, errcode.Wrap(errcode.ConstraintError, "batch write failed after retry", err)
	}
	return n, nil
}

func (u *Upserter) execTx(ctx context.Context, query string, args []any) (int64, error) {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgFKViolation || pgErr.Code == pgUniqueViolation
}

// insertPrefix builds the INSERT head with one placeholder tuple per row.
func insertPrefix(table string, columns []string, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s.%s (%s)\nVALUES ",
		schema.SchemaName, table, strings.Join(columns, ", "))
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < len(columns); c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", r*len(columns)+c+1)
		}
		b.WriteByte(')')
	}
	return b.String()
}

// rowsPerBatch bounds the batch so the statement stays under the bind
// parameter limit regardless of column count.
func (u *Upserter) rowsPerBatch(columns int) int {
	limit := maxParams / columns
	if u.batchSize < limit {
		return u.batchSize
	}
	return limit
}

// chunkSlice splits rows into batches of at most size elements.
func chunkSlice[T any](rows []T, size int) [][]T {
	if len(rows) == 0 {
		return nil
	}
	var chunks [][]T
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
