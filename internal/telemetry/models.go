package telemetry

import "time"

// CurrentSchemaVersion is the schema version this build writes and
// expects. Unlike the Python original's ad-hoc ALTER TABLE migrations,
// a version mismatch here is fatal at Open time rather than silently
// migrated.
const CurrentSchemaVersion = 1

// eventRow is the gorm model for the append-only events table.
type eventRow struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID    string `gorm:"index:idx_events_session;size:64"`
	EventType    string `gorm:"index:idx_events_type;size:32"`
	ServerName   string `gorm:"index:idx_events_server;size:128"`
	ResourceID   string `gorm:"size:512"`
	Timestamp    time.Time `gorm:"index:idx_events_timestamp"`
	DurationMs   int64
	Success      bool
	ErrorMessage string `gorm:"size:2048"`
	Metadata     string // JSON-encoded map[string]any
}

func (eventRow) TableName() string { return "events" }

// metaRow stores process-wide telemetry metadata, currently just the
// schema version (telemetry_meta table).
type metaRow struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string `gorm:"size:256"`
}

func (metaRow) TableName() string { return "telemetry_meta" }
