package iosync

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecodata/aqsync/pkg/aqsync"
	"github.com/ecodata/aqsync/pkg/schema"
)

// fakeFetcher answers from canned data keyed by country/pollutant.
type fakeFetcher struct {
	mu        sync.Mutex
	files     map[string][]string // "IT/NO2" -> urls
	payloads  map[string][]byte   // url -> raw bytes
	listErr   map[string]error
	fetchErr  map[string]error
	gate      map[string]chan struct{} // url -> release channel
	downloads []string
}

func scopeKey(s aqsync.Scope) string { return s.Country + "/" + s.Pollutant }

func (f *fakeFetcher) ListFiles(_ context.Context, scope aqsync.Scope) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[scopeKey(scope)]; err != nil {
		return nil, err
	}
	return f.files[scopeKey(scope)], nil
}

func (f *fakeFetcher) Download(
	ctx context.Context, url string, requested aqsync.DateRange,
) (*aqsync.Payload, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, url)
	fetchErr := f.fetchErr[url]
	gate := f.gate[url]
	data := f.payloads[url]
	f.mu.Unlock()

	// A gated URL stays in flight until the test releases it.
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return &aqsync.Payload{Data: data, Requested: requested}, nil
}

// fakeNormalizer emits one measurement per payload byte.
type fakeNormalizer struct {
	err error
}

func (n *fakeNormalizer) Normalize(payload *aqsync.Payload) (*aqsync.RecordSet, error) {
	if n.err != nil {
		return nil, n.err
	}
	rs := &aqsync.RecordSet{
		Stations:       []schema.Station{{StationCode: "IT0508A"}},
		SamplingPoints: []schema.SamplingPoint{{SamplingPointID: "IT/SPO.IT0508A_8_chemi_1990-01-01"}},
	}
	for i := range payload.Data {
		rs.Measurements = append(rs.Measurements, schema.Measurement{
			Time:            time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC),
			SamplingPointID: "IT/SPO.IT0508A_8_chemi_1990-01-01",
			PollutantCode:   8,
		})
	}
	return rs, nil
}

// fakeUpserter records writes in order.
type fakeUpserter struct {
	mu    sync.Mutex
	order []string
	err   error
	rows  int64
}

func (u *fakeUpserter) UpsertStations(_ context.Context, s []schema.Station) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.order = append(u.order, "stations")
	return int64(len(s)), u.err
}

func (u *fakeUpserter) UpsertSamplingPoints(_ context.Context, p []schema.SamplingPoint) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.order = append(u.order, "sampling_points")
	return int64(len(p)), u.err
}

func (u *fakeUpserter) UpsertMeasurements(_ context.Context, m []schema.Measurement) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.order = append(u.order, "measurements")
	u.rows += int64(len(m))
	return int64(len(m)), u.err
}

// fakeLedger keeps operations in memory.
type fakeLedger struct {
	mu        sync.Mutex
	ops       map[uuid.UUID]*schema.SyncOperation
	latest    *schema.SyncOperation
	startErr  error
	finalized map[uuid.UUID]aqsync.Status
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		ops:       make(map[uuid.UUID]*schema.SyncOperation),
		finalized: make(map[uuid.UUID]aqsync.Status),
	}
}

func (l *fakeLedger) Start(_ context.Context, req aqsync.Request) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startErr != nil {
		return uuid.Nil, l.startErr
	}
	id := uuid.New()
	l.ops[id] = &schema.SyncOperation{
		OperationID:   id.String(),
		OperationType: string(req.Mode),
		Status:        string(aqsync.StatusRunning),
	}
	return id, nil
}

func (l *fakeLedger) UpdateCounters(_ context.Context, id uuid.UUID, d, i, s int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	op := l.ops[id]
	op.RecordsDownloaded += d
	op.RecordsInserted += i
	op.RowsSkipped += s
	return nil
}

func (l *fakeLedger) Finalize(
	_ context.Context, id uuid.UUID, status aqsync.Status, stats aqsync.RunStats, msg string,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finalized[id] = status
	op := l.ops[id]
	op.Status = string(status)
	op.UnitsTotal = stats.UnitsTotal
	op.UnitsSucceeded = stats.UnitsSucceeded
	op.UnitsFailed = stats.UnitsFailed
	if msg != "" {
		op.ErrorMessage = &msg
	}
	return nil
}

// LatestCompleted mirrors the store query: only a completed incremental
// run with the same requested scope is a watermark.
func (l *fakeLedger) LatestCompleted(
	_ context.Context, countries, pollutants []string,
) (*schema.SyncOperation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	op := l.latest
	if op == nil ||
		op.OperationType != string(aqsync.ModeIncremental) ||
		op.Status != string(aqsync.StatusCompleted) ||
		!scopeMatches(op.Countries, countries) ||
		!scopeMatches(op.Pollutants, pollutants) {
		return nil, nil
	}
	return op, nil
}

func scopeMatches(stored *string, requested []string) bool {
	if stored == nil {
		return len(requested) == 0
	}
	return *stored == strings.Join(requested, ",")
}

func (l *fakeLedger) Get(_ context.Context, id uuid.UUID) (*schema.SyncOperation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ops[id], nil
}

func (l *fakeLedger) Recent(context.Context, int) ([]schema.SyncOperation, error) {
	return nil, nil
}

func (l *fakeLedger) Running(context.Context) ([]schema.SyncOperation, error) {
	return nil, nil
}
