package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mcpm-sh/mcpm/internal/session"
	"github.com/mcpm-sh/mcpm/pkg/logging"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultQueueSize bounds the async write queue.
const DefaultQueueSize = 4096

// Store is the Telemetry Store. It implements session.EventSink: callers
// enqueue and return immediately; a single background goroutine performs
// all writes, serializing them without a mutex around the database.
type Store struct {
	db *gorm.DB

	queue chan session.Event

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}

	dropLogMu   sync.Mutex
	lastDropLog time.Time
}

// Open creates or opens the SQLite telemetry database at path (WAL mode,
// 30s busy timeout, matching original_source's sqlite.py pragmas),
// migrates the schema, and starts the background writer. A schema_version
// mismatch against CurrentSchemaVersion is a fatal error — this store
// never migrates in place.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open telemetry store: %w", err)
	}

	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}
	if err := db.Exec("PRAGMA busy_timeout=30000").Error; err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := db.AutoMigrate(&eventRow{}, &metaRow{}); err != nil {
		return nil, fmt.Errorf("migrate telemetry schema: %w", err)
	}

	if err := checkSchemaVersion(db); err != nil {
		return nil, err
	}

	s := &Store{
		db:    db,
		queue: make(chan session.Event, DefaultQueueSize),
		stop:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

func checkSchemaVersion(db *gorm.DB) error {
	var row metaRow
	err := db.First(&row, "key = ?", "schema_version").Error
	switch {
	case err == gorm.ErrRecordNotFound:
		return db.Create(&metaRow{Key: "schema_version", Value: fmt.Sprintf("%d", CurrentSchemaVersion)}).Error
	case err != nil:
		return fmt.Errorf("read schema_version: %w", err)
	}
	if row.Value != fmt.Sprintf("%d", CurrentSchemaVersion) {
		return fmt.Errorf("telemetry schema version mismatch: store has %q, this build requires %d (no migration path)",
			row.Value, CurrentSchemaVersion)
	}
	return nil
}

// Record enqueues ev for the background writer. It never blocks beyond a
// bounded attempt: on a full queue it drops the oldest buffered
// non-SESSION event to make room,
func (s *Store) Record(ev session.Event) {
	select {
	case s.queue <- ev:
		return
	default:
	}
	s.dropOldestNonSessionAndRetry(ev)
}

func (s *Store) dropOldestNonSessionAndRetry(ev session.Event) {
	// Drain one event out of the channel to make room; prefer dropping
	// a non-SESSION event if we find one among a few attempts, but never
	// block indefinitely doing so.
	for attempts := 0; attempts < 8; attempts++ {
		select {
		case dropped := <-s.queue:
			if dropped.Type == session.EventSessionStart || dropped.Type == session.EventSessionEnd {
				// put it back and try the next slot instead
				select {
				case s.queue <- dropped:
				default:
				}
				continue
			}
			// made room; requeue the new event
			select {
			case s.queue <- ev:
			default:
			}
			return
		default:
			return
		}
	}
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.queue:
			s.write(ev)
		case <-s.stop:
			// drain whatever remains, best-effort
			for {
				select {
				case ev := <-s.queue:
					s.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) write(ev session.Event) {
	meta := "{}"
	if len(ev.Metadata) > 0 {
		if b, err := json.Marshal(ev.Metadata); err == nil {
			meta = string(b)
		}
	}
	row := eventRow{
		SessionID:    ev.SessionID,
		EventType:    string(ev.Type),
		ServerName:   ev.ServerName,
		ResourceID:   ev.ResourceID,
		Timestamp:    ev.Timestamp,
		DurationMs:   ev.DurationMs,
		Success:      ev.Success,
		ErrorMessage: ev.ErrorMessage,
		Metadata:     meta,
	}
	if err := s.db.Create(&row).Error; err != nil {
		s.logDroppedWrite(err)
	}
}

// logDroppedWrite logs a write failure at most once per minute.
func (s *Store) logDroppedWrite(err error) {
	s.dropLogMu.Lock()
	defer s.dropLogMu.Unlock()
	if time.Since(s.lastDropLog) < time.Minute {
		return
	}
	s.lastDropLog = time.Now()
	logging.Warn("telemetry", "dropping event, write failed: %v", err)
}

// Close drains the write queue with a bounded deadline: 2s deadline) and stops the background
// writer.
func (s *Store) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	deadline, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	select {
	case <-done:
	case <-deadline.Done():
		logging.Warn("telemetry", "shutdown drain deadline exceeded, some events may be lost")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
