// Package ioparse decodes columnar payloads into typed records. This is
// an impure I/O package that wraps the parquet reader.
package ioparse

import (
	"bytes"
	"log/slog"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/ecodata/aqsync/pkg/aqsync"
	"github.com/ecodata/aqsync/pkg/errcode"
	"github.com/ecodata/aqsync/pkg/schema"
)

// rawRow mirrors the column layout of the upstream parquet files.
// Optional columns decode into pointers so nulls survive as nulls.
type rawRow struct {
	Samplingpoint    string   `parquet:"Samplingpoint"`
	Pollutant        int64    `parquet:"Pollutant"`
	Start            string   `parquet:"Start"`
	End              *string  `parquet:"End,optional"`
	Value            *float64 `parquet:"Value,optional"`
	Unit             *string  `parquet:"Unit,optional"`
	AggType          *string  `parquet:"AggType,optional"`
	Validity         *int64   `parquet:"Validity,optional"`
	Verification     *int64   `parquet:"Verification,optional"`
	ResultTime       *string  `parquet:"ResultTime,optional"`
	DataCapture      *float64 `parquet:"DataCapture,optional"`
	FkObservationLog *string  `parquet:"FkObservationLog,optional"`
}

// Normalizer implements aqsync.Normalizer for parquet payloads.
type Normalizer struct {
	log *slog.Logger
}

var _ aqsync.Normalizer = (*Normalizer)(nil)

// New creates a parquet normalizer.
func New(log *slog.Logger) *Normalizer {
	return &Normalizer{log: log}
}

// Normalize decodes one payload. Rows with a malformed sampling point
// identifier or an unparseable start time are counted as skipped, never
// failed. Rows outside the payload's requested range are dropped silently
// because the upstream range filter is not trustworthy.
func (n *Normalizer) Normalize(payload *aqsync.Payload) (*aqsync.RecordSet, error) {
	rows, err := parquet.Read[rawRow](
		bytes.NewReader(payload.Data), int64(len(payload.Data)),
	)
	if err != nil {
		return nil, errcode.Wrap(errcode.FormatError, "cannot decode parquet payload", err)
	}

	out := &aqsync.RecordSet{}
	seenStations := map[string]bool{}
	seenPoints := map[string]bool{}
	// Index into out.Measurements by natural key, for last-wins dedup.
	seenMeasurements := map[measurementKey]int{}

	for i := range rows {
		row := &rows[i]

		ident, ok := parseSamplingPointID(row.Samplingpoint)
		if !ok {
			out.Skipped++
			continue
		}

		start, ok := parseTime(row.Start)
		if !ok {
			out.Skipped++
			continue
		}
		if !payload.Requested.IsZero() && !payload.Requested.Contains(start) {
			continue
		}

		if !seenStations[ident.StationCode] {
			seenStations[ident.StationCode] = true
			out.Stations = append(out.Stations, schema.Station{
				StationCode: ident.StationCode,
				CountryCode: ptr(ident.CountryCode),
			})
		}

		if !seenPoints[row.Samplingpoint] {
			seenPoints[row.Samplingpoint] = true
			point := schema.SamplingPoint{
				SamplingPointID: row.Samplingpoint,
				StationCode:     ptr(ident.StationCode),
				CountryCode:     ptr(ident.CountryCode),
				PollutantCode:   ptr(int(row.Pollutant)),
				StartDate:       ident.StartDate,
			}
			if ident.InstrumentType != "" {
				point.InstrumentType = ptr(ident.InstrumentType)
			}
			out.SamplingPoints = append(out.SamplingPoints, point)
		}

		m := schema.Measurement{
			Time:            start,
			SamplingPointID: row.Samplingpoint,
			PollutantCode:   int(row.Pollutant),
			Value:           row.Value,
			Unit:            row.Unit,
			AggregationType: row.AggType,
			DataCapture:     row.DataCapture,
			ObservationID:   row.FkObservationLog,
		}
		if row.Validity != nil {
			m.Validity = ptr(int(*row.Validity))
		}
		if row.Verification != nil {
			m.Verification = ptr(int(*row.Verification))
		}
		if row.ResultTime != nil {
			if rt, ok := parseTime(*row.ResultTime); ok {
				m.ResultTime = &rt
			}
		}
		// The same (time, sampling point) key may appear twice in one
		// file; the store cannot apply both in a single statement, so
		// the later row wins here, matching ingestion order.
		key := measurementKey{spo: row.Samplingpoint, unixNano: start.UnixNano()}
		if idx, dup := seenMeasurements[key]; dup {
			out.Measurements[idx] = m
			continue
		}
		seenMeasurements[key] = len(out.Measurements)
		out.Measurements = append(out.Measurements, m)
	}

	if out.Skipped > 0 {
		n.log.Debug("skipped malformed rows", "count", out.Skipped)
	}
	return out, nil
}

// measurementKey is the natural key of a measurement row.
type measurementKey struct {
	spo      string
	unixNano int64
}

// spoIdent is the decomposition of a sampling point identifier of the
// form "IT/SPO.IT0508A_8_chemi_1990-01-01_00:00:00".
type spoIdent struct {
	CountryCode    string
	StationCode    string
	InstrumentType string
	StartDate      *time.Time
}

func parseSamplingPointID(id string) (spoIdent, bool) {
	var ident spoIdent

	slash := strings.Index(id, "/")
	if slash != 2 {
		return ident, false
	}
	ident.CountryCode = id[:2]

	body, ok := strings.CutPrefix(id[slash+1:], "SPO.")
	if !ok || body == "" {
		return ident, false
	}

	segs := strings.Split(body, "_")
	if len(segs) < 4 || segs[0] == "" {
		return ident, false
	}
	ident.StationCode = segs[0]
	// The instrument type spans the second and third segments, e.g.
	// "8_chemi" in IT/SPO.IT0508A_8_chemi_1990-01-01.
	ident.InstrumentType = segs[1] + "_" + segs[2]

	// The fourth segment carries the activation date. An identifier
	// without a parseable date is malformed.
	date, err := time.Parse("2006-01-02", segs[3])
	if err != nil {
		return ident, false
	}
	date = date.UTC()
	ident.StartDate = &date

	return ident, true
}

// timeLayouts covers the timestamp spellings seen in upstream files.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func ptr[T any](v T) *T { return &v }
