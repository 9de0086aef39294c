package schema

import (
	"time"
)

// SyncOperation is one row of the operations ledger: a single orchestrated
// sync run. Created at run start, counters mutated as units complete,
// status and ended_at written exactly once at the terminal transition.
type SyncOperation struct {
	OperationID   string `gorm:"column:operation_id;primaryKey;type:uuid"`
	OperationType string `gorm:"column:operation_type;size:20;not null;index:idx_sync_operations_type"`

	// Scope of the run. Countries and pollutants are comma-joined lists;
	// empty means the configured defaults were used.
	Countries  *string    `gorm:"column:countries;size:200"`
	Pollutants *string    `gorm:"column:pollutants;size:200"`
	DateStart  *time.Time `gorm:"column:date_start"`
	DateEnd    *time.Time `gorm:"column:date_end"`

	Status    string     `gorm:"column:status;size:30;not null;index:idx_sync_operations_status"`
	StartedAt time.Time  `gorm:"column:started_at;not null;index:idx_sync_operations_started"`
	EndedAt   *time.Time `gorm:"column:ended_at"`

	RecordsDownloaded int64 `gorm:"column:records_downloaded;not null;default:0"`
	RecordsInserted   int64 `gorm:"column:records_inserted;not null;default:0"`
	RowsSkipped       int64 `gorm:"column:rows_skipped;not null;default:0"`

	UnitsTotal     int `gorm:"column:units_total;not null;default:0"`
	UnitsSucceeded int `gorm:"column:units_succeeded;not null;default:0"`
	UnitsFailed    int `gorm:"column:units_failed;not null;default:0"`

	ErrorMessage *string `gorm:"column:error_message;type:text"`
	Metadata     []byte  `gorm:"column:metadata;type:jsonb"`
}

func (SyncOperation) TableName() string { return SchemaName + ".sync_operations" }
