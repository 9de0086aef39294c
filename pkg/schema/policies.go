package schema

import (
	"fmt"
	"time"

	"github.com/ecodata/aqsync/pkg/config"
)

// Policies holds the time-series store policy parameters. They are applied
// once at provisioning time; the sync runtime path never invokes
// compression or rollup maintenance directly, the store engine runs both
// in the background.
type Policies struct {
	// ChunkInterval is the hypertable partition interval.
	ChunkInterval time.Duration

	// CompressAfter: partitions strictly older than this are compressed.
	CompressAfter time.Duration

	// RollupRefresh is the schedule interval of the continuous
	// aggregate refresh policies.
	RollupRefresh time.Duration
}

// PoliciesFromConfig converts store config values into policy durations.
func PoliciesFromConfig(cfg *config.StoreConfig) Policies {
	return Policies{
		ChunkInterval: time.Duration(cfg.ChunkIntervalHours) * time.Hour,
		CompressAfter: time.Duration(cfg.CompressAfterDays) * 24 * time.Hour,
		RollupRefresh: time.Duration(cfg.RollupRefreshMinutes) * time.Minute,
	}
}

// CompressionEligible reports whether a partition whose newest row is
// partitionEnd may be compressed at the given instant. A partition at
// exactly the threshold age is not yet eligible; it must be strictly older.
func (p Policies) CompressionEligible(partitionEnd, now time.Time) bool {
	return now.Sub(partitionEnd) > p.CompressAfter
}

// Statements returns the ordered DDL applied after AutoMigrate to turn the
// measurements relation into a policy-managed hypertable with rollups.
// Every statement is idempotent so provisioning is safe to re-run.
func (p Policies) Statements() []string {
	measurements := SchemaName + ".measurements"

	return []string{
		`CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE`,
		`CREATE EXTENSION IF NOT EXISTS timescaledb_toolkit`,

		fmt.Sprintf(`SELECT create_hypertable(
	'%s', 'time',
	if_not_exists => TRUE,
	chunk_time_interval => INTERVAL '%d hours'
)`, measurements, int(p.ChunkInterval.Hours())),

		// Column-group layout keyed by sampling point; descending time
		// within a segment gives the best compression ratio for
		// recent-first queries.
		fmt.Sprintf(`ALTER TABLE %s SET (
	timescaledb.compress,
	timescaledb.compress_segmentby = 'sampling_point_id',
	timescaledb.compress_orderby = 'time DESC, pollutant_code'
)`, measurements),

		fmt.Sprintf(`SELECT add_compression_policy(
	'%s',
	compress_after => INTERVAL '%d hours',
	if_not_exists => TRUE
)`, measurements, int(p.CompressAfter.Hours())),

		p.rollupView("hourly_measurements", "1 hour"),
		p.rollupPolicy("hourly_measurements", "6 hours"),

		p.rollupView("daily_measurements", "1 day"),
		p.rollupPolicy("daily_measurements", "3 days"),
	}
}

// rollupView builds a continuous-aggregate definition over measurements.
func (p Policies) rollupView(name, bucket string) string {
	return fmt.Sprintf(`CREATE MATERIALIZED VIEW IF NOT EXISTS %s.%s
WITH (timescaledb.continuous) AS
SELECT
	time_bucket('%s', time) AS bucket,
	sampling_point_id,
	pollutant_code,
	COUNT(*) AS num_measurements,
	AVG(value) AS avg_value,
	MIN(value) AS min_value,
	MAX(value) AS max_value,
	percentile_agg(value) AS pct_sketch,
	COUNT(*) FILTER (WHERE validity = 1) AS valid_count
FROM %s.measurements
GROUP BY bucket, sampling_point_id, pollutant_code
WITH NO DATA`, SchemaName, name, bucket, SchemaName)
}

// rollupPolicy attaches an incremental refresh policy over a sliding
// window; older buckets are left to the scheduled refresh, never
// recomputed from scratch.
func (p Policies) rollupPolicy(name, startOffset string) string {
	return fmt.Sprintf(`SELECT add_continuous_aggregate_policy(
	'%s.%s',
	start_offset => INTERVAL '%s',
	end_offset => INTERVAL '1 hour',
	schedule_interval => INTERVAL '%d minutes',
	if_not_exists => TRUE
)`, SchemaName, name, startOffset, int(p.RollupRefresh.Minutes()))
}
