// Package aqsync defines the contracts and domain types of the
// synchronization core. Implementations live in internal/io* packages.
package aqsync

import (
	"time"

	"github.com/ecodata/aqsync/pkg/schema"
)

// Mode selects how a sync run resolves its work set.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
	ModeHourly      Mode = "hourly"
	ModeCustomRange Mode = "custom_range"
	ModeFromURLs    Mode = "from_urls"
)

// Valid reports whether m is a known sync mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeFull, ModeIncremental, ModeHourly, ModeCustomRange, ModeFromURLs:
		return true
	}
	return false
}

// Status is the lifecycle state of a sync run.
type Status string

const (
	StatusRunning            Status = "running"
	StatusCompleted          Status = "completed"
	StatusPartiallyCompleted Status = "partially_completed"
	StatusFailed             Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// DateRange is a half-open [Start, End) time window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// IsZero reports whether the range is unset.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Scope identifies one slice of remote data.
type Scope struct {
	Country       string
	Pollutant     string
	PollutantCode int
	Dataset       int
	Range         DateRange
}

// WorkUnit is one independently processed slice of a sync run: either a
// catalog scope or one explicit file URL.
type WorkUnit struct {
	Scope Scope
	URL   string // set for from_urls units, empty for catalog units
}

// Payload is the raw bytes of one columnar data file together with the
// range that was requested. The remote catalog's date filters are not
// trustworthy, so downstream validation compares row timestamps against
// Requested rather than believing the server.
type Payload struct {
	Data      []byte
	Requested DateRange
}

// RecordSet is the normalizer's output for one payload: deduplicated
// dimension records plus the per-row facts, in stable first-seen order.
type RecordSet struct {
	Stations       []schema.Station
	SamplingPoints []schema.SamplingPoint
	Measurements   []schema.Measurement

	// Skipped counts rows dropped for malformed identifiers or missing
	// required fields. Skips never fail a batch.
	Skipped int
}

// UnitOutcome is the explicit result of one work unit. Expected conditions
// (empty scope, skipped rows) are data, not errors.
type UnitOutcome struct {
	Unit       WorkUnit
	Downloaded int64
	Inserted   int64
	Skipped    int64
	Err        error
	Elapsed    time.Duration
}

// Succeeded reports whether the unit finished without a unit-level error.
func (o UnitOutcome) Succeeded() bool {
	return o.Err == nil
}

// Request describes one sync run as received from the trigger surface.
type Request struct {
	Mode       Mode
	Countries  []string
	Pollutants []string
	Range      DateRange // custom_range only
	URLs       []string  // from_urls only
	Dataset    int       // 0 means the configured variant
	Workers    int       // 0 means the configured default
}

// RunStats aggregates unit outcomes for a whole run.
type RunStats struct {
	Downloaded     int64
	Inserted       int64
	Skipped        int64
	UnitsTotal     int
	UnitsSucceeded int
	UnitsFailed    int

	// FailedScopes lists the scopes of failed units so a caller can
	// re-request exactly the missing slices.
	FailedScopes []Scope
}

// Add folds one unit outcome into the run statistics.
func (s *RunStats) Add(o UnitOutcome) {
	s.Downloaded += o.Downloaded
	s.Inserted += o.Inserted
	s.Skipped += o.Skipped
	if o.Succeeded() {
		s.UnitsSucceeded++
	} else {
		s.UnitsFailed++
		s.FailedScopes = append(s.FailedScopes, o.Unit.Scope)
	}
}

// TerminalStatus derives the run's end state from its unit counts.
func (s *RunStats) TerminalStatus() Status {
	switch {
	case s.UnitsFailed == 0 && s.UnitsSucceeded > 0:
		return StatusCompleted
	case s.UnitsSucceeded > 0:
		return StatusPartiallyCompleted
	default:
		return StatusFailed
	}
}
