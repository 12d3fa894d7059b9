package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/frugalflow/internal/record"
)

// baseTime anchors test timestamps.
var baseTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a valid record with the given amount and type,
// updated minutesAfter minutes past baseTime.
func createTestRecord(id, amount string, typ record.Type, minutesAfter int) record.Record {
	ts := baseTime.Add(time.Duration(minutesAfter) * time.Minute)
	return record.Record{
		ID:        id,
		Amount:    decimal.RequireFromString(amount),
		Merchant:  "Merchant " + id,
		Category:  record.DefaultCategory,
		Type:      typ,
		Date:      ts,
		UpdatedAt: ts,
	}
}

// tombstone returns a deleted version of r updated minutesAfter minutes
// past baseTime.
func tombstone(r record.Record, minutesAfter int) record.Record {
	r.Deleted = true
	r.UpdatedAt = baseTime.Add(time.Duration(minutesAfter) * time.Minute)
	return r
}
