package ioledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodata/aqsync/internal/iodb"
	"github.com/ecodata/aqsync/internal/ioschema"
	"github.com/ecodata/aqsync/internal/iotesting"
	"github.com/ecodata/aqsync/pkg/aqsync"
	"github.com/ecodata/aqsync/pkg/errcode"
	"github.com/ecodata/aqsync/pkg/schema"
	"github.com/ecodata/aqsync/pkg/targets"
)

// Note: This is an integration test that requires PostgreSQL with the
// timescaledb extension. Skip with: go test -short

func setupLedger(t *testing.T) (*Ledger, *clockwork.FakeClock) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg := iotesting.GetTestConfig()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	op := iodb.New()
	err := op.Connect(ctx, &cfg.Database)
	require.NoError(t, err, "Should connect to database")
	t.Cleanup(func() { _ = op.Close() })

	_ = op.DropAllTables(ctx)
	sm := ioschema.NewManager(
		op, schema.PoliciesFromConfig(&cfg.Store), targets.Default(), log,
	)
	require.NoError(t, sm.Provision(ctx))

	clock := clockwork.NewFakeClockAt(
		time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	)
	return New(op.Pool(), clock), clock
}

func TestLedger_Lifecycle(t *testing.T) {
	l, clock := setupLedger(t)
	ctx := context.Background()

	id, err := l.Start(ctx, aqsync.Request{
		Mode:       aqsync.ModeIncremental,
		Countries:  []string{"IT", "FR"},
		Pollutants: []string{"NO2"},
	})
	require.NoError(t, err)

	op, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "incremental", op.OperationType)
	assert.Equal(t, "running", op.Status)
	assert.Equal(t, "IT,FR", *op.Countries)
	assert.Nil(t, op.EndedAt)

	require.NoError(t, l.UpdateCounters(ctx, id, 100, 90, 10))
	require.NoError(t, l.UpdateCounters(ctx, id, 50, 50, 0))

	op, err = l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(150), op.RecordsDownloaded)
	assert.Equal(t, int64(140), op.RecordsInserted)
	assert.Equal(t, int64(10), op.RowsSkipped)

	running, err := l.Running(ctx)
	require.NoError(t, err)
	assert.Len(t, running, 1)

	clock.Advance(10 * time.Minute)
	stats := aqsync.RunStats{UnitsTotal: 2, UnitsSucceeded: 2}
	require.NoError(t, l.Finalize(ctx, id, aqsync.StatusCompleted, stats, ""))

	op, err = l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "completed", op.Status)
	require.NotNil(t, op.EndedAt)
	assert.Equal(t, 10*time.Minute, op.EndedAt.Sub(op.StartedAt))
	assert.Equal(t, 2, op.UnitsSucceeded)

	// Second finalize must be refused.
	err = l.Finalize(ctx, id, aqsync.StatusFailed, stats, "late failure")
	require.Error(t, err)

	op, err = l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "completed", op.Status)
}

func TestLedger_LatestCompleted(t *testing.T) {
	l, clock := setupLedger(t)
	ctx := context.Background()

	latest, err := l.LatestCompleted(ctx, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first, err := l.Start(ctx, aqsync.Request{Mode: aqsync.ModeIncremental})
	require.NoError(t, err)
	require.NoError(t, l.Finalize(ctx, first, aqsync.StatusCompleted, aqsync.RunStats{UnitsSucceeded: 1}, ""))

	clock.Advance(time.Hour)
	second, err := l.Start(ctx, aqsync.Request{Mode: aqsync.ModeIncremental})
	require.NoError(t, err)
	require.NoError(t, l.Finalize(ctx, second, aqsync.StatusFailed, aqsync.RunStats{UnitsFailed: 1}, "boom"))

	clock.Advance(time.Hour)
	hourly, err := l.Start(ctx, aqsync.Request{Mode: aqsync.ModeHourly})
	require.NoError(t, err)
	require.NoError(t, l.Finalize(ctx, hourly, aqsync.StatusCompleted, aqsync.RunStats{UnitsSucceeded: 1}, ""))

	clock.Advance(time.Hour)
	scoped, err := l.Start(ctx, aqsync.Request{
		Mode: aqsync.ModeIncremental, Countries: []string{"IT"},
	})
	require.NoError(t, err)
	require.NoError(t, l.Finalize(ctx, scoped, aqsync.StatusCompleted, aqsync.RunStats{UnitsSucceeded: 1}, ""))

	// Failed runs, completed runs of other modes and completed runs over
	// a narrower scope never move the default-scope watermark.
	latest, err = l.LatestCompleted(ctx, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, first.String(), latest.OperationID)

	// The scoped run carries its own watermark.
	latest, err = l.LatestCompleted(ctx, []string{"IT"}, nil)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, scoped.String(), latest.OperationID)
}

func TestLedger_GetUnknown(t *testing.T) {
	l, _ := setupLedger(t)

	_, err := l.Get(context.Background(), [16]byte{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, errcode.NotFoundError, errcode.CodeOf(err))
}

func TestLedger_Recent(t *testing.T) {
	l, clock := setupLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Start(ctx, aqsync.Request{Mode: aqsync.ModeHourly})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	ops, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, ops, 2)
	// Newest first.
	assert.True(t, ops[0].StartedAt.After(ops[1].StartedAt))
}
