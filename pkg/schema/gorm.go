package schema

import (
	"gorm.io/gorm"
)

// AllModels returns all schema models for GORM AutoMigrate.
// The measurements relation is listed here for column management, but its
// conversion to a hypertable and the attached policies are raw SQL
// (see Policies).
func AllModels() []any {
	return []any{
		&Country{},
		&Pollutant{},
		&ValidityFlag{},
		&VerificationStatus{},
		&Station{},
		&SamplingPoint{},
		&Measurement{},
		&SyncOperation{},
	}
}

// Migrate runs GORM AutoMigrate to create or update the relational schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
