package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
)

// Storage is the poold audit layer: every pool event and posted price sample
// lands here for operators and reconciliation.
type Storage struct {
	db *sql.DB
}

// ErrDSNRequired is returned when the backing store DSN is missing.
var ErrDSNRequired = errors.New("poold storage DSN must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS pool_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    attributes TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pool_events_type ON pool_events(event_type);
CREATE TABLE IF NOT EXISTS price_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    price INTEGER NOT NULL,
    posted_at INTEGER NOT NULL
);
`

// Open initialises the backing store from a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrDSNRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EventRecord is one audited pool event.
type EventRecord struct {
	ID         int64             `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// RecordEvent appends a pool event to the audit log.
func (s *Storage) RecordEvent(ctx context.Context, eventType string, attributes map[string]string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage not configured")
	}
	encoded, err := json.Marshal(attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO pool_events(event_type, attributes, recorded_at)
        VALUES(?, ?, ?)
    `, eventType, string(encoded), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents pages the audit log, newest first.
func (s *Storage) ListEvents(ctx context.Context, limit, offset int) ([]EventRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, event_type, attributes, recorded_at
        FROM pool_events
        ORDER BY id DESC
        LIMIT ? OFFSET ?
    `, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	records := make([]EventRecord, 0, limit)
	for rows.Next() {
		var (
			record  EventRecord
			attrs   string
			seconds int64
		)
		if err := rows.Scan(&record.ID, &record.Type, &attrs, &seconds); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &record.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		record.RecordedAt = time.Unix(seconds, 0).UTC()
		records = append(records, record)
	}
	return records, rows.Err()
}

// RecordPriceSample stores one operator-posted dollar price.
func (s *Storage) RecordPriceSample(ctx context.Context, price uint64, postedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage not configured")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO price_samples(price, posted_at)
        VALUES(?, ?)
    `, int64(price), postedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert price sample: %w", err)
	}
	return nil
}

// LatestPriceSample returns the most recent posted price, if any.
func (s *Storage) LatestPriceSample(ctx context.Context) (uint64, time.Time, bool, error) {
	if s == nil || s.db == nil {
		return 0, time.Time{}, false, fmt.Errorf("storage not configured")
	}
	var (
		price   int64
		seconds int64
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT price, posted_at FROM price_samples ORDER BY id DESC LIMIT 1
    `).Scan(&price, &seconds)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("query price sample: %w", err)
	}
	return uint64(price), time.Unix(seconds, 0).UTC(), true, nil
}
