package aqsync

import (
	"context"

	"github.com/google/uuid"

	"github.com/ecodata/aqsync/pkg/schema"
)

// Fetcher talks to the upstream distribution service.
type Fetcher interface {
	// ListFiles resolves a scope to the set of downloadable file URLs.
	// An empty scope yields a NotFoundError.
	ListFiles(ctx context.Context, scope Scope) ([]string, error)

	// Download retrieves one file and returns its raw payload tagged
	// with the range the scope asked for.
	Download(ctx context.Context, url string, requested DateRange) (*Payload, error)
}

// Normalizer decodes a raw payload into typed records.
type Normalizer interface {
	Normalize(payload *Payload) (*RecordSet, error)
}

// Upserter writes a record set into the store idempotently. Dimension
// records go in before facts so foreign keys resolve.
type Upserter interface {
	UpsertStations(ctx context.Context, stations []schema.Station) (int64, error)
	UpsertSamplingPoints(ctx context.Context, points []schema.SamplingPoint) (int64, error)
	UpsertMeasurements(ctx context.Context, rows []schema.Measurement) (int64, error)
}

// Ledger records every sync run and its progress.
type Ledger interface {
	// Start opens a new operation in running state and returns its ID.
	Start(ctx context.Context, req Request) (uuid.UUID, error)

	// UpdateCounters adds deltas to the running totals of an operation.
	UpdateCounters(ctx context.Context, id uuid.UUID, downloaded, inserted, skipped int64) error

	// Finalize moves an operation to a terminal status exactly once.
	Finalize(ctx context.Context, id uuid.UUID, status Status, stats RunStats, errMsg string) error

	// LatestCompleted returns the most recent fully completed
	// incremental operation for the given requested scope, or nil when
	// none exists. Incremental planning derives its watermark from it;
	// runs of other modes or scopes never move the watermark.
	LatestCompleted(ctx context.Context, countries, pollutants []string) (*schema.SyncOperation, error)

	Get(ctx context.Context, id uuid.UUID) (*schema.SyncOperation, error)
	Recent(ctx context.Context, limit int) ([]schema.SyncOperation, error)
	Running(ctx context.Context) ([]schema.SyncOperation, error)
}

// Orchestrator runs whole sync operations.
type Orchestrator interface {
	// Run plans and executes a sync request, blocking until the run
	// reaches a terminal state. It returns the ledger operation ID.
	Run(ctx context.Context, req Request) (uuid.UUID, *RunStats, error)

	// Start plans the request, opens the ledger entry and executes the
	// run in the background. Planning failures surface immediately; the
	// returned ID can be polled through the Ledger.
	Start(ctx context.Context, req Request) (uuid.UUID, error)

	// Cancel requests cooperative cancellation of a running operation.
	Cancel(id uuid.UUID) bool
}

// SchemaManager provisions the store: schema, tables, partitioning and
// retention policies.
type SchemaManager interface {
	Provision(ctx context.Context) error
}
