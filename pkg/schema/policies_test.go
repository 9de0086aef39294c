package schema_test

import (
	"strings"
	"testing"
	"time"

	"github.com/ecodata/aqsync/pkg/config"
	"github.com/ecodata/aqsync/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoliciesFromConfig(t *testing.T) {
	cfg := config.New()
	p := schema.PoliciesFromConfig(&cfg.Store)

	assert.Equal(t, 24*time.Hour, p.ChunkInterval)
	assert.Equal(t, 7*24*time.Hour, p.CompressAfter)
	assert.Equal(t, time.Hour, p.RollupRefresh)
}

func TestCompressionEligible(t *testing.T) {
	p := schema.Policies{CompressAfter: 7 * 24 * time.Hour}
	now := time.Date(2023, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		partitionEnd time.Time
		eligible     bool
	}{
		{
			name:         "older than threshold",
			partitionEnd: now.Add(-8 * 24 * time.Hour),
			eligible:     true,
		},
		{
			name:         "newer than threshold",
			partitionEnd: now.Add(-1 * 24 * time.Hour),
			eligible:     false,
		},
		{
			// Boundary: a partition at exactly the threshold age is
			// not yet eligible.
			name:         "exactly at threshold",
			partitionEnd: now.Add(-7 * 24 * time.Hour),
			eligible:     false,
		},
		{
			name:         "one second past threshold",
			partitionEnd: now.Add(-7*24*time.Hour - time.Second),
			eligible:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.eligible, p.CompressionEligible(tt.partitionEnd, now))
		})
	}
}

func TestPolicyStatements(t *testing.T) {
	cfg := config.New()
	p := schema.PoliciesFromConfig(&cfg.Store)
	stmts := p.Statements()

	require.NotEmpty(t, stmts)
	joined := strings.Join(stmts, ";\n")

	assert.Contains(t, joined, "create_hypertable")
	assert.Contains(t, joined, "chunk_time_interval => INTERVAL '24 hours'")
	assert.Contains(t, joined, "compress_segmentby = 'sampling_point_id'")
	assert.Contains(t, joined, "compress_orderby = 'time DESC, pollutant_code'")
	assert.Contains(t, joined, "compress_after => INTERVAL '168 hours'")
	assert.Contains(t, joined, "hourly_measurements")
	assert.Contains(t, joined, "daily_measurements")
	assert.Contains(t, joined, "schedule_interval => INTERVAL '60 minutes'")

	// Provisioning must be re-runnable.
	for _, s := range stmts {
		idempotent := strings.Contains(s, "IF NOT EXISTS") ||
			strings.Contains(s, "if_not_exists") ||
			strings.HasPrefix(s, "ALTER TABLE")
		assert.True(t, idempotent, "statement not idempotent: %s", s)
	}
}

func TestAllModels(t *testing.T) {
	models := schema.AllModels()
	assert.Len(t, models, 8)
}
