// Package iosync plans and executes sync runs. The planner turns a
// request into independent work units; the orchestrator drives them
// through a bounded worker pool and the operations ledger.
package iosync

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ecodata/aqsync/pkg/aqsync"
	"github.com/ecodata/aqsync/pkg/config"
	"github.com/ecodata/aqsync/pkg/errcode"
	"github.com/ecodata/aqsync/pkg/targets"
)

// Planner expands a sync request into work units, one per country and
// pollutant pair (or one per URL for from_urls requests).
type Planner struct {
	syncCfg   *config.SyncConfig
	sourceCfg *config.SourceConfig
	catalog   *targets.Catalog
	ledger    aqsync.Ledger
	clock     clockwork.Clock
}

// NewPlanner creates a planner.
func NewPlanner(
	syncCfg *config.SyncConfig,
	sourceCfg *config.SourceConfig,
	catalog *targets.Catalog,
	ledger aqsync.Ledger,
	clock clockwork.Clock,
) *Planner {
	return &Planner{
		syncCfg:   syncCfg,
		sourceCfg: sourceCfg,
		catalog:   catalog,
		ledger:    ledger,
		clock:     clock,
	}
}

// Plan resolves the request to concrete work units. Unknown countries or
// pollutants and an impossible range fail the whole plan; planning never
// partially succeeds.
func (p *Planner) Plan(ctx context.Context, req aqsync.Request) ([]aqsync.WorkUnit, error) {
	if !req.Mode.Valid() {
		return nil, errcode.Newf(errcode.PlanningError, "unknown sync mode %q", req.Mode)
	}

	dataset, err := p.dataset(req)
	if err != nil {
		return nil, err
	}

	if req.Mode == aqsync.ModeFromURLs {
		return p.planURLs(req, dataset)
	}

	window, err := p.window(ctx, req)
	if err != nil {
		return nil, err
	}

	countries := req.Countries
	if len(countries) == 0 {
		countries = p.syncCfg.Countries
	}
	for _, cc := range countries {
		if !p.catalog.HasCountry(cc) {
			return nil, errcode.Newf(errcode.PlanningError, "unknown country %q", cc)
		}
	}

	pollutants := req.Pollutants
	if len(pollutants) == 0 {
		pollutants = p.syncCfg.Pollutants
	}

	var units []aqsync.WorkUnit
	for _, cc := range countries {
		for _, name := range pollutants {
			code, ok := p.catalog.CodeFor(name)
			if !ok {
				return nil, errcode.Newf(errcode.PlanningError, "unknown pollutant %q", name)
			}
			units = append(units, aqsync.WorkUnit{
				Scope: aqsync.Scope{
					Country:       cc,
					Pollutant:     name,
					PollutantCode: code,
					Dataset:       dataset,
					Range:         window,
				},
			})
		}
	}
	return units, nil
}

// dataset resolves the dataset variant, letting a request override the
// configured default.
func (p *Planner) dataset(req aqsync.Request) (int, error) {
	if req.Dataset == 0 {
		return p.sourceCfg.Dataset, nil
	}
	if req.Dataset < 1 || req.Dataset > 3 {
		return 0, errcode.Newf(errcode.PlanningError,
			"dataset %d must be 1, 2 or 3", req.Dataset)
	}
	return req.Dataset, nil
}

func (p *Planner) planURLs(req aqsync.Request, dataset int) ([]aqsync.WorkUnit, error) {
	if len(req.URLs) == 0 {
		return nil, errcode.New(errcode.PlanningError, "from_urls request carries no urls")
	}
	units := make([]aqsync.WorkUnit, 0, len(req.URLs))
	for _, u := range req.URLs {
		units = append(units, aqsync.WorkUnit{
			URL:   u,
			Scope: aqsync.Scope{Dataset: dataset, Range: req.Range},
		})
	}
	return units, nil
}

// window derives the date window of the run from its mode.
func (p *Planner) window(ctx context.Context, req aqsync.Request) (aqsync.DateRange, error) {
	now := p.clock.Now().UTC()

	switch req.Mode {
	case aqsync.ModeFull:
		return aqsync.DateRange{
			Start: now.AddDate(0, 0, -p.syncCfg.LookbackDays),
			End:   now,
		}, nil

	case aqsync.ModeHourly:
		return aqsync.DateRange{
			Start: now.Add(-time.Duration(p.syncCfg.HourlyLookbackHours) * time.Hour),
			End:   now,
		}, nil

	case aqsync.ModeCustomRange:
		if req.Range.IsZero() {
			return aqsync.DateRange{}, errcode.New(
				errcode.PlanningError, "custom_range request carries no range")
		}
		if !req.Range.End.After(req.Range.Start) {
			return aqsync.DateRange{}, errcode.Newf(
				errcode.PlanningError,
				"range end %s is not after start %s",
				req.Range.End.Format(time.RFC3339),
				req.Range.Start.Format(time.RFC3339),
			)
		}
		return req.Range, nil

	case aqsync.ModeIncremental:
		return p.incrementalWindow(ctx, req, now)
	}

	return aqsync.DateRange{}, errcode.Newf(
		errcode.PlanningError, "unhandled sync mode %q", req.Mode)
}

// incrementalWindow starts at the latest completed incremental run's
// start minus the configured overlap, so late-arriving corrections
// inside the overlap get re-ingested. The watermark is per requested
// scope; without a completed run it falls back to the lookback.
func (p *Planner) incrementalWindow(
	ctx context.Context, req aqsync.Request, now time.Time,
) (aqsync.DateRange, error) {
	latest, err := p.ledger.LatestCompleted(ctx, req.Countries, req.Pollutants)
	if err != nil {
		return aqsync.DateRange{}, errcode.Wrap(
			errcode.PlanningError, "cannot resolve watermark", err)
	}

	overlap := time.Duration(p.syncCfg.OverlapHours) * time.Hour
	if latest == nil {
		return aqsync.DateRange{
			Start: now.AddDate(0, 0, -p.syncCfg.LookbackDays),
			End:   now,
		}, nil
	}
	return aqsync.DateRange{
		Start: latest.StartedAt.UTC().Add(-overlap),
		End:   now,
	}, nil
}
