package iosync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/ecodata/aqsync/internal/iometrics"
	"github.com/ecodata/aqsync/pkg/aqsync"
	"github.com/ecodata/aqsync/pkg/config"
	"github.com/ecodata/aqsync/pkg/errcode"
)

// Orchestrator implements aqsync.Orchestrator: plan, fan out through a
// bounded worker pool, fold outcomes into the ledger.
type Orchestrator struct {
	planner    *Planner
	fetcher    aqsync.Fetcher
	normalizer aqsync.Normalizer
	upserter   aqsync.Upserter
	ledger     aqsync.Ledger
	metrics    *iometrics.Metrics
	syncCfg    *config.SyncConfig
	clock      clockwork.Clock
	log        *slog.Logger

	mu       sync.Mutex
	cancels  map[uuid.UUID]context.CancelFunc
	unitHook func(aqsync.UnitOutcome)
}

// SetUnitHook installs a callback invoked after every finished work
// unit. Set it before Run; the CLI uses it to drive a progress bar.
func (o *Orchestrator) SetUnitHook(hook func(aqsync.UnitOutcome)) {
	o.unitHook = hook
}

var _ aqsync.Orchestrator = (*Orchestrator)(nil)

// NewOrchestrator wires the sync collaborators together.
func NewOrchestrator(
	planner *Planner,
	fetcher aqsync.Fetcher,
	normalizer aqsync.Normalizer,
	upserter aqsync.Upserter,
	ledger aqsync.Ledger,
	metrics *iometrics.Metrics,
	syncCfg *config.SyncConfig,
	clock clockwork.Clock,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		planner:    planner,
		fetcher:    fetcher,
		normalizer: normalizer,
		upserter:   upserter,
		ledger:     ledger,
		metrics:    metrics,
		syncCfg:    syncCfg,
		clock:      clock,
		log:        log,
		cancels:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// Run plans and executes one sync request. It blocks until the run is
// terminal and returns the ledger operation ID alongside the statistics.
// A unit failure never aborts the run; only planning and ledger failures
// do.
func (o *Orchestrator) Run(
	ctx context.Context, req aqsync.Request,
) (uuid.UUID, *aqsync.RunStats, error) {
	units, err := o.planner.Plan(ctx, req)
	if err != nil {
		return uuid.Nil, nil, err
	}

	opID, err := o.ledger.Start(ctx, req)
	if err != nil {
		return uuid.Nil, nil, err
	}

	stats, err := o.execute(ctx, opID, req, units)
	return opID, stats, err
}

// Start plans and opens the ledger entry synchronously, then executes
// the run in the background, detached from the caller's context.
func (o *Orchestrator) Start(
	ctx context.Context, req aqsync.Request,
) (uuid.UUID, error) {
	units, err := o.planner.Plan(ctx, req)
	if err != nil {
		return uuid.Nil, err
	}

	opID, err := o.ledger.Start(ctx, req)
	if err != nil {
		return uuid.Nil, err
	}

	go func() {
		if _, err := o.execute(context.WithoutCancel(ctx), opID, req, units); err != nil {
			o.log.Error("background sync run failed",
				"operation_id", opID.String(), "error", err)
		}
	}()
	return opID, nil
}

func (o *Orchestrator) execute(
	ctx context.Context,
	opID uuid.UUID,
	req aqsync.Request,
	units []aqsync.WorkUnit,
) (*aqsync.RunStats, error) {
	runCtx, cancel := context.WithCancel(ctx)
	o.registerCancel(opID, cancel)
	defer o.releaseCancel(opID)

	o.metrics.SyncRunning.Inc()
	defer o.metrics.SyncRunning.Dec()

	started := o.clock.Now()
	o.log.Info("sync run started",
		"operation_id", opID.String(),
		"mode", string(req.Mode),
		"units", len(units),
	)

	workers := req.Workers
	if workers <= 0 {
		workers = o.syncCfg.Workers
	}

	stats := &aqsync.RunStats{UnitsTotal: len(units)}
	var statsMu sync.Mutex

	g, gCtx := errgroup.WithContext(runCtx)
	g.SetLimit(workers)
	for _, unit := range units {
		g.Go(func() error {
			if gCtx.Err() != nil {
				// Cancelled before dispatch: drop the unit.
				return nil
			}
			// A dispatched unit runs to completion even if the run is
			// cancelled; only its own timeout can stop it mid-flight.
			outcome := o.runUnit(context.WithoutCancel(gCtx), opID, unit)

			statsMu.Lock()
			stats.Add(outcome)
			statsMu.Unlock()

			if o.unitHook != nil {
				o.unitHook(outcome)
			}

			if outcome.Succeeded() {
				o.metrics.UnitsProcessed.WithLabelValues("succeeded").Inc()
			} else {
				o.metrics.UnitsProcessed.WithLabelValues("failed").Inc()
				o.log.Error("work unit failed",
					"operation_id", opID.String(),
					"country", unit.Scope.Country,
					"pollutant", unit.Scope.Pollutant,
					"url", unit.URL,
					"error", outcome.Err,
				)
			}
			// Unit failures are folded into stats, never propagated, so
			// one bad unit cannot cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	status := stats.TerminalStatus()
	dropped := stats.UnitsTotal - stats.UnitsSucceeded - stats.UnitsFailed
	if runCtx.Err() != nil && dropped > 0 && status == aqsync.StatusCompleted {
		// Cancelled with undispatched units dropped: not a clean run.
		status = aqsync.StatusPartiallyCompleted
	}

	var errMsg string
	if len(stats.FailedScopes) > 0 {
		errMsg = fmt.Sprintf("%d of %d units failed", stats.UnitsFailed, stats.UnitsTotal)
	}
	// Finalize with a fresh context: the run context may already be
	// cancelled and the terminal transition must still land.
	finalizeCtx, finalizeCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer finalizeCancel()
	if err := o.ledger.Finalize(finalizeCtx, opID, status, *stats, errMsg); err != nil {
		return stats, err
	}

	elapsed := o.clock.Since(started)
	o.metrics.SyncRuns.WithLabelValues(string(req.Mode), string(status)).Inc()
	o.metrics.RunDuration.WithLabelValues(string(req.Mode)).Observe(elapsed.Seconds())
	o.log.Info("sync run finished",
		"operation_id", opID.String(),
		"status", string(status),
		"downloaded", stats.Downloaded,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
		"elapsed", elapsed,
	)
	return stats, nil
}

// Cancel requests cooperative cancellation of a running operation. It
// reports whether the operation was known to this orchestrator.
func (o *Orchestrator) Cancel(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cancel, ok := o.cancels[id]
	if ok {
		cancel()
	}
	return ok
}

func (o *Orchestrator) registerCancel(id uuid.UUID, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels[id] = cancel
}

func (o *Orchestrator) releaseCancel(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancels, id)
}

// runUnit processes one work unit under its own deadline: list (or take
// the explicit URL), then download, normalize and upsert file by file.
// An empty scope is a legitimate result, not a failure.
func (o *Orchestrator) runUnit(
	ctx context.Context, opID uuid.UUID, unit aqsync.WorkUnit,
) aqsync.UnitOutcome {
	outcome := aqsync.UnitOutcome{Unit: unit}
	started := o.clock.Now()
	defer func() { outcome.Elapsed = o.clock.Since(started) }()

	unitCtx, cancel := context.WithTimeout(
		ctx, time.Duration(o.syncCfg.UnitTimeoutMin)*time.Minute)
	defer cancel()

	urls := []string{unit.URL}
	if unit.URL == "" {
		var err error
		urls, err = o.fetcher.ListFiles(unitCtx, unit.Scope)
		if err != nil {
			if errcode.Has(err, errcode.NotFoundError) {
				// Nothing published for this scope.
				return outcome
			}
			outcome.Err = err
			return outcome
		}
	}

	for _, url := range urls {
		if err := o.processFile(unitCtx, opID, url, unit.Scope.Range, &outcome); err != nil {
			outcome.Err = err
			return outcome
		}
	}
	return outcome
}

// processFile moves one source file into the store. Write order is
// stations, then sampling points, then measurements so every foreign key
// resolves.
func (o *Orchestrator) processFile(
	ctx context.Context,
	opID uuid.UUID,
	url string,
	requested aqsync.DateRange,
	outcome *aqsync.UnitOutcome,
) error {
	fetchStart := o.clock.Now()
	payload, err := o.fetcher.Download(ctx, url, requested)
	if err != nil {
		if errcode.Has(err, errcode.NotFoundError) {
			// Listed but gone: skip the file, keep the unit alive.
			o.log.Warn("listed file vanished", "url", url)
			return nil
		}
		return err
	}
	o.metrics.FetchDuration.Observe(o.clock.Since(fetchStart).Seconds())
	o.metrics.FilesDownloaded.Inc()

	rs, err := o.normalizer.Normalize(payload)
	if err != nil {
		return err
	}
	o.metrics.BatchRows.Observe(float64(len(rs.Measurements)))

	upsertStart := o.clock.Now()
	if _, err := o.upserter.UpsertStations(ctx, rs.Stations); err != nil {
		return err
	}
	if _, err := o.upserter.UpsertSamplingPoints(ctx, rs.SamplingPoints); err != nil {
		return err
	}
	inserted, err := o.upserter.UpsertMeasurements(ctx, rs.Measurements)
	if err != nil {
		return err
	}
	o.metrics.UpsertDuration.Observe(o.clock.Since(upsertStart).Seconds())

	downloaded := int64(len(rs.Measurements))
	skipped := int64(rs.Skipped)
	outcome.Downloaded += downloaded
	outcome.Inserted += inserted
	outcome.Skipped += skipped
	o.metrics.RecordsInserted.Add(float64(inserted))
	o.metrics.RowsSkipped.Add(float64(skipped))

	if err := o.ledger.UpdateCounters(ctx, opID, downloaded, inserted, skipped); err != nil {
		return err
	}
	return nil
}
