package ioupsert

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodata/aqsync/internal/iodb"
	"github.com/ecodata/aqsync/internal/ioschema"
	"github.com/ecodata/aqsync/internal/iotesting"
	"github.com/ecodata/aqsync/pkg/schema"
	"github.com/ecodata/aqsync/pkg/targets"
)

// Note: This is an integration test that requires PostgreSQL with the
// timescaledb extension. Skip with: go test -short

func setupStore(t *testing.T) *iodb.PgxOperator {
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
	err = sm.Provision(ctx)
	require.NoError(t, err, "Provisioning should succeed")

	return op
}

func strPtr(s string) *string { return &s }
func fPtr(f float64) *float64 { return &f }
func iPtr(i int) *int         { return &i }

func TestUpsert_Integration(t *testing.T) {
	op := setupStore(t)
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	u := New(op.Pool(), 1000, log)

	station := schema.Station{
		StationCode: "IT0508A",
		CountryCode: strPtr("IT"),
		StationName: strPtr("Milano v. Juvara"),
	}
	n, err := u.UpsertStations(ctx, []schema.Station{station})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Re-upsert with a NULL name must keep the stored name.
	station2 := schema.Station{
		StationCode: "IT0508A",
		CountryCode: strPtr("IT"),
		Latitude:    fPtr(45.47),
	}
	_, err = u.UpsertStations(ctx, []schema.Station{station2})
	require.NoError(t, err)

	var name string
	var lat float64
	err = op.Pool().QueryRow(ctx,
		`SELECT station_name, latitude FROM airquality.stations
		 WHERE station_code = $1`, "IT0508A",
	).Scan(&name, &lat)
	require.NoError(t, err)
	assert.Equal(t, "Milano v. Juvara", name)
	assert.Equal(t, 45.47, lat)

	spoID := "IT/SPO.IT0508A_8_chemi_1990-01-01"
	point := schema.SamplingPoint{
		SamplingPointID: spoID,
		StationCode:     strPtr("IT0508A"),
		CountryCode:     strPtr("IT"),
		PollutantCode:   iPtr(8),
	}
	_, err = u.UpsertSamplingPoints(ctx, []schema.SamplingPoint{point})
	require.NoError(t, err)

	at := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	m := schema.Measurement{
		Time:            at,
		SamplingPointID: spoID,
		PollutantCode:   8,
		Value:           fPtr(42.5),
		Validity:        iPtr(1),
	}
	n, err = u.UpsertMeasurements(ctx, []schema.Measurement{m})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Re-ingesting the same key overwrites the value, no duplicate row.
	m.Value = fPtr(40.1)
	_, err = u.UpsertMeasurements(ctx, []schema.Measurement{m})
	require.NoError(t, err)

	var count int
	var value float64
	err = op.Pool().QueryRow(ctx,
		`SELECT COUNT(*), MAX(value) FROM airquality.measurements
		 WHERE sampling_point_id = $1`, spoID,
	).Scan(&count, &value)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 40.1, value)
}

func TestUpsert_Integration_EmptyInput(t *testing.T) {
	op := setupStore(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	u := New(op.Pool(), 1000, log)

	n, err := u.UpsertMeasurements(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
