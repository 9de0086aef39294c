// Package schema provides database models and time-series store policies
// for aqsync. The entity structs double as the typed record sets produced
// by the normalizer; nullable source fields stay nullable (pointers), they
// are never coerced to zero values.
package schema

import (
	"time"
)

// SchemaName is the PostgreSQL schema holding all aqsync relations.
const SchemaName = "airquality"

// Station is a physical monitoring location, keyed by its station code.
// Created on first sighting during normalization, updated in place on
// subsequent sightings, never deleted by the sync core.
type Station struct {
	StationCode   string     `gorm:"column:station_code;primaryKey;size:50"`
	CountryCode   *string    `gorm:"column:country_code;size:2;index:idx_stations_country"`
	StationName   *string    `gorm:"column:station_name;size:200"`
	StationType   *string    `gorm:"column:station_type;size:50"`
	AreaType      *string    `gorm:"column:area_type;size:50"`
	Latitude      *float64   `gorm:"column:latitude;index:idx_stations_coords"`
	Longitude     *float64   `gorm:"column:longitude;index:idx_stations_coords"`
	Altitude      *float64   `gorm:"column:altitude"`
	Municipality  *string    `gorm:"column:municipality;size:100"`
	StartDate     *time.Time `gorm:"column:start_date"`
	EndDate       *time.Time `gorm:"column:end_date"`
	ExtraMetadata []byte     `gorm:"column:extra_metadata;type:jsonb"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Station) TableName() string { return SchemaName + ".stations" }

// SamplingPoint is one sensor/instrument attached to exactly one Station.
// The station reference is immutable once created; upserts never touch it.
type SamplingPoint struct {
	SamplingPointID string     `gorm:"column:sampling_point_id;primaryKey;size:100"`
	StationCode     *string    `gorm:"column:station_code;size:50;index:idx_sampling_points_station"`
	CountryCode     *string    `gorm:"column:country_code;size:2;index:idx_sampling_points_country"`
	InstrumentType  *string    `gorm:"column:instrument_type;size:50"`
	PollutantCode   *int       `gorm:"column:pollutant_code;index:idx_sampling_points_pollutant"`
	StartDate       *time.Time `gorm:"column:start_date"`
	EndDate         *time.Time `gorm:"column:end_date"`
	ExtraMetadata   []byte     `gorm:"column:extra_metadata;type:jsonb"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (SamplingPoint) TableName() string { return SchemaName + ".sampling_points" }

// Measurement is one observation, keyed by (time, sampling point).
// Re-ingesting the same key updates the row in place, never duplicates it.
type Measurement struct {
	Time            time.Time  `gorm:"column:time;primaryKey"`
	SamplingPointID string     `gorm:"column:sampling_point_id;primaryKey;size:100;index:idx_measurements_sampling_point,priority:1"`
	PollutantCode   int        `gorm:"column:pollutant_code;not null;index:idx_measurements_pollutant,priority:1"`
	Value           *float64   `gorm:"column:value"`
	Unit            *string    `gorm:"column:unit;size:20"`
	AggregationType *string    `gorm:"column:aggregation_type;size:10"`
	Validity        *int       `gorm:"column:validity"`
	Verification    *int       `gorm:"column:verification"`
	DataCapture     *float64   `gorm:"column:data_capture"`
	ResultTime      *time.Time `gorm:"column:result_time"`
	ObservationID   *string    `gorm:"column:observation_id;size:100"`
}

func (Measurement) TableName() string { return SchemaName + ".measurements" }

// Lookup relations. Provisioning creates them; a collaborator seeds them.
// The sync core only reads them.

type Country struct {
	CountryCode string    `gorm:"column:country_code;primaryKey;size:2"`
	CountryName string    `gorm:"column:country_name;size:100;not null"`
	Region      *string   `gorm:"column:region;size:50"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Country) TableName() string { return SchemaName + ".countries" }

type Pollutant struct {
	PollutantCode  int     `gorm:"column:pollutant_code;primaryKey"`
	PollutantName  string  `gorm:"column:pollutant_name;size:20;not null"`
	PollutantLabel *string `gorm:"column:pollutant_label;size:100"`
	Unit           *string `gorm:"column:unit;size:20"`
	Description    *string `gorm:"column:description;type:text"`
}

func (Pollutant) TableName() string { return SchemaName + ".pollutants" }

type ValidityFlag struct {
	ValidityCode int     `gorm:"column:validity_code;primaryKey"`
	ValidityName string  `gorm:"column:validity_name;size:50;not null"`
	Description  *string `gorm:"column:description;type:text"`
}

func (ValidityFlag) TableName() string { return SchemaName + ".validity_flags" }

type VerificationStatus struct {
	VerificationCode int     `gorm:"column:verification_code;primaryKey"`
	VerificationName string  `gorm:"column:verification_name;size:50;not null"`
	Description      *string `gorm:"column:description;type:text"`
}

func (VerificationStatus) TableName() string { return SchemaName + ".verification_status" }
