package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/frugalflow/internal/record"
)

const recordColumns = `id, amount, merchant, category, type, date_us, updated_at_us, deleted`

// Mutation is a stored record together with the feed position of the
// write that produced its current version.
type Mutation struct {
	Seq    int64
	Record record.Record
}

// Stats summarizes the store for status reporting.
type Stats struct {
	Live       int64 `json:"live"`
	Tombstones int64 `json:"tombstones"`
	Pending    int64 `json:"pending"` // local mutations after the push cursor
	MaxSeq     int64 `json:"max_seq"`
}

// QueryAll returns the current non-deleted records.
// Results are ordered deterministically: ORDER BY date ASC, id ASC.
//
// Returns an empty slice (not nil) if there are no live records.
func (s *Store) QueryAll(ctx context.Context) ([]record.Record, error) {
	recs, err := queryLive(ctx, s.db)
	if err != nil {
		return nil, storageError("query all", err)
	}
	return recs, nil
}

// Get retrieves a single record by id, tombstones included.
// Returns sql.ErrNoRows (wrapped) if not found.
func (s *Store) Get(ctx context.Context, id string) (record.Record, error) {
	rec, err := scanRecordRow(s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM transactions
		WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Record{}, fmt.Errorf("get %s: %w", id, err)
		}
		return record.Record{}, storageError("get", err)
	}
	return rec, nil
}

// Pending returns up to limit locally originated mutations with a feed
// sequence number greater than afterSeq, ordered by seq.
//
// Records whose current version came from the remote are skipped: the
// remote already holds that version or a newer one.
func (s *Store) Pending(ctx context.Context, afterSeq int64, limit int) ([]Mutation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, `+recordColumns+`
		FROM transactions
		WHERE origin = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, originLocal, afterSeq, limit)
	if err != nil {
		return nil, storageError("pending", err)
	}
	defer rows.Close()

	var muts []Mutation
	for rows.Next() {
		var m Mutation
		rec, err := scanRecord(rows, &m.Seq)
		if err != nil {
			return nil, storageError("pending", err)
		}
		m.Record = rec
		muts = append(muts, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("pending", fmt.Errorf("iterate: %w", err))
	}

	if muts == nil {
		muts = []Mutation{}
	}
	return muts, nil
}

// MaxSeq returns the latest feed sequence number (0 for an empty store).
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	seq, err := maxSeq(ctx, s.db)
	if err != nil {
		return 0, storageError("max seq", err)
	}
	return seq, nil
}

// Stats returns record counts and the push backlog.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	pushed, err := s.PushCursor(ctx)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN deleted = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN deleted = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN origin = ? AND seq > ? THEN 1 ELSE 0 END), 0),
			COALESCE(MAX(seq), 0)
		FROM transactions
	`, originLocal, pushed).Scan(&st.Live, &st.Tombstones, &st.Pending, &st.MaxSeq)
	if err != nil {
		return Stats{}, storageError("stats", err)
	}
	return st, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryLive(ctx context.Context, q queryer) ([]record.Record, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM transactions
		WHERE deleted = 0
		ORDER BY date_us ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	recs := []record.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}

func maxSeq(ctx context.Context, q queryer) (int64, error) {
	var seq int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM transactions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans recordColumns, preceded by any extra leading columns.
func scanRecord(sc scanner, leading ...any) (record.Record, error) {
	var (
		rec       record.Record
		amount    string
		typ       string
		dateUS    int64
		updatedUS int64
	)
	dest := append(leading,
		&rec.ID,
		&amount,
		&rec.Merchant,
		&rec.Category,
		&typ,
		&dateUS,
		&updatedUS,
		&rec.Deleted,
	)
	if err := sc.Scan(dest...); err != nil {
		return record.Record{}, err
	}

	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return record.Record{}, fmt.Errorf("parse amount of %s: %w", rec.ID, err)
	}
	rec.Amount = amt
	rec.Type = record.Type(typ)
	rec.Date = fromMicros(dateUS)
	rec.UpdatedAt = fromMicros(updatedUS)
	return rec, nil
}

func scanRecordRow(row *sql.Row) (record.Record, error) {
	return scanRecord(row)
}
