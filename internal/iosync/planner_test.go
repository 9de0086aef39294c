package iosync

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodata/aqsync/pkg/aqsync"
	"github.com/ecodata/aqsync/pkg/config"
	"github.com/ecodata/aqsync/pkg/errcode"
	"github.com/ecodata/aqsync/pkg/schema"
	"github.com/ecodata/aqsync/pkg/targets"
)

var plannerNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPlanner(ledger aqsync.Ledger) *Planner {
	cfg := config.New()
	cfg.Sync.Countries = []string{"IT", "FR"}
	cfg.Sync.Pollutants = []string{"NO2", "PM10"}
	if ledger == nil {
		ledger = newFakeLedger()
	}
	return NewPlanner(
		&cfg.Sync, &cfg.Source, targets.Default(), ledger,
		clockwork.NewFakeClockAt(plannerNow),
	)
}

func TestPlan_FullCrossProduct(t *testing.T) {
	p := newTestPlanner(nil)

	units, err := p.Plan(context.Background(), aqsync.Request{Mode: aqsync.ModeFull})
	require.NoError(t, err)
	require.Len(t, units, 4)

	// Full mode covers the configured lookback window.
	assert.Equal(t, plannerNow.AddDate(0, 0, -7), units[0].Scope.Range.Start)
	assert.Equal(t, plannerNow, units[0].Scope.Range.End)
	assert.Equal(t, "IT", units[0].Scope.Country)
	assert.Equal(t, "NO2", units[0].Scope.Pollutant)
	assert.Equal(t, 8, units[0].Scope.PollutantCode)
	assert.Equal(t, "FR", units[3].Scope.Country)
	assert.Equal(t, "PM10", units[3].Scope.Pollutant)
}

func TestPlan_RequestOverridesDefaults(t *testing.T) {
	p := newTestPlanner(nil)

	units, err := p.Plan(context.Background(), aqsync.Request{
		Mode:       aqsync.ModeFull,
		Countries:  []string{"ES"},
		Pollutants: []string{"O3"},
	})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "ES", units[0].Scope.Country)
	assert.Equal(t, 7, units[0].Scope.PollutantCode)
}

func TestPlan_DatasetOverride(t *testing.T) {
	p := newTestPlanner(nil)

	units, err := p.Plan(context.Background(), aqsync.Request{
		Mode:    aqsync.ModeFull,
		Dataset: 3,
	})
	require.NoError(t, err)
	for _, u := range units {
		assert.Equal(t, 3, u.Scope.Dataset)
	}

	// Without an override the configured variant applies.
	units, err = p.Plan(context.Background(), aqsync.Request{Mode: aqsync.ModeFull})
	require.NoError(t, err)
	assert.Equal(t, 1, units[0].Scope.Dataset)
}

func TestPlan_Hourly(t *testing.T) {
	p := newTestPlanner(nil)

	units, err := p.Plan(context.Background(), aqsync.Request{Mode: aqsync.ModeHourly})
	require.NoError(t, err)

	window := units[0].Scope.Range
	assert.Equal(t, plannerNow, window.End)
	assert.Equal(t, plannerNow.Add(-2*time.Hour), window.Start)
}

func TestPlan_IncrementalWatermark(t *testing.T) {
	ledger := newFakeLedger()
	lastStart := plannerNow.Add(-26 * time.Hour)
	ledger.latest = &schema.SyncOperation{
		OperationType: string(aqsync.ModeIncremental),
		Status:        string(aqsync.StatusCompleted),
		StartedAt:     lastStart,
	}
	p := newTestPlanner(ledger)

	units, err := p.Plan(context.Background(), aqsync.Request{Mode: aqsync.ModeIncremental})
	require.NoError(t, err)

	window := units[0].Scope.Range
	// Watermark minus one hour of overlap.
	assert.Equal(t, lastStart.Add(-time.Hour), window.Start)
	assert.Equal(t, plannerNow, window.End)
}

// Only a completed incremental run over the same scope is a watermark.
// Runs of other modes or other scopes leave the lookback fallback in
// force.
func TestPlan_IncrementalWatermarkIgnoresOtherRuns(t *testing.T) {
	lastStart := plannerNow.Add(-2 * time.Hour)
	scope := "IT"

	tests := []struct {
		name string
		op   schema.SyncOperation
	}{
		{"hourly run", schema.SyncOperation{
			OperationType: string(aqsync.ModeHourly),
			Status:        string(aqsync.StatusCompleted),
			StartedAt:     lastStart,
		}},
		{"custom range run", schema.SyncOperation{
			OperationType: string(aqsync.ModeCustomRange),
			Status:        string(aqsync.StatusCompleted),
			StartedAt:     lastStart,
		}},
		{"different scope", schema.SyncOperation{
			OperationType: string(aqsync.ModeIncremental),
			Status:        string(aqsync.StatusCompleted),
			Countries:     &scope,
			StartedAt:     lastStart,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newFakeLedger()
			ledger.latest = &tt.op
			p := newTestPlanner(ledger)

			units, err := p.Plan(context.Background(), aqsync.Request{Mode: aqsync.ModeIncremental})
			require.NoError(t, err)
			assert.Equal(t, plannerNow.AddDate(0, 0, -7), units[0].Scope.Range.Start)
		})
	}
}

func TestPlan_IncrementalWithoutHistory(t *testing.T) {
	p := newTestPlanner(nil)

	units, err := p.Plan(context.Background(), aqsync.Request{Mode: aqsync.ModeIncremental})
	require.NoError(t, err)

	window := units[0].Scope.Range
	assert.Equal(t, plannerNow.AddDate(0, 0, -7), window.Start)
	assert.Equal(t, plannerNow, window.End)
}

func TestPlan_CustomRange(t *testing.T) {
	p := newTestPlanner(nil)
	r := aqsync.DateRange{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	units, err := p.Plan(context.Background(), aqsync.Request{
		Mode: aqsync.ModeCustomRange, Range: r,
	})
	require.NoError(t, err)
	assert.Equal(t, r, units[0].Scope.Range)
}

func TestPlan_FromURLs(t *testing.T) {
	p := newTestPlanner(nil)

	units, err := p.Plan(context.Background(), aqsync.Request{
		Mode: aqsync.ModeFromURLs,
		URLs: []string{"https://example.org/a.parquet", "https://example.org/b.parquet"},
	})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "https://example.org/a.parquet", units[0].URL)
}

func TestPlan_Errors(t *testing.T) {
	p := newTestPlanner(nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  aqsync.Request
	}{
		{"unknown mode", aqsync.Request{Mode: "nightly"}},
		{"unknown country", aqsync.Request{Mode: aqsync.ModeFull, Countries: []string{"XX"}}},
		{"unknown pollutant", aqsync.Request{Mode: aqsync.ModeFull, Pollutants: []string{"XYZ"}}},
		{"custom range without range", aqsync.Request{Mode: aqsync.ModeCustomRange}},
		{"inverted range", aqsync.Request{
			Mode: aqsync.ModeCustomRange,
			Range: aqsync.DateRange{
				Start: time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		}},
		{"from_urls without urls", aqsync.Request{Mode: aqsync.ModeFromURLs}},
		{"dataset out of range", aqsync.Request{Mode: aqsync.ModeFull, Dataset: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Plan(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, errcode.PlanningError, errcode.CodeOf(err))
		})
	}
}
