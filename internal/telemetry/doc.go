// Package telemetry implements the Telemetry Store: an append-only event
// log with derived usage statistics, backed by a WAL-mode SQLite database
// through gorm.io/gorm and gorm.io/driver/sqlite.
//
// One writer per process; concurrent writes are serialized behind a
// bounded queue so telemetry never blocks request handling beyond a
// bounded enqueue time. On queue overflow the oldest non-SESSION event is
// dropped first.
package telemetry
