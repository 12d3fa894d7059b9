package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/frugalflow/internal/record"
)

const (
	originLocal  = "local"
	originRemote = "remote"
)

// Insert validates rec and appends it as a locally originated record.
// Returns the feed sequence number assigned to the write.
//
// On validation failure it returns a *record.ValidationError and writes
// nothing; an id already present in the store (live or tombstoned) is
// rejected the same way. The change notification is queued to subscribers
// only after the commit.
func (s *Store) Insert(ctx context.Context, rec record.Record) (int64, error) {
	rec = rec.Normalize()
	if err := record.Validate(rec); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var seq int64
	err := s.withTx(ctx, "insert", func(tx *sql.Tx) error {
		var err error
		seq, err = nextSeq(ctx, tx)
		if err != nil {
			return err
		}

		// Plain insert: local records are append-only, so a conflict on id
		// is the caller's error, not a merge.
		result, err := tx.ExecContext(ctx, `
			INSERT INTO transactions
			(id, amount, merchant, category, type, date_us, updated_at_us, deleted, revision, origin, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, recordArgs(rec, originLocal, seq)...)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return record.NewValidationError("id", fmt.Sprintf("Duplicate id %q", rec.ID))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.publishLocked(ctx)
	return seq, nil
}

// Merge applies a remote version of a record under last-write-wins.
// Returns true if the stored state changed. Re-applying a version that is
// already stored, or an older one, is a no-op.
func (s *Store) Merge(ctx context.Context, rec record.Record) (bool, error) {
	rec = rec.Normalize()
	if err := record.Validate(rec); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var applied bool
	err := s.withTx(ctx, "merge", func(tx *sql.Tx) error {
		var err error
		applied, err = mergeTx(ctx, tx, rec)
		return err
	})
	if err != nil {
		return false, err
	}

	if applied {
		s.publishLocked(ctx)
	}
	return applied, nil
}

// ApplyPull merges one page of remote records and moves the pull cursor to
// the remote position cursor in the same transaction, so a crash never records progress for a page
// that was not stored. Returns the number of records that changed state.
//
// Every record must be valid; the first invalid one aborts the page.
func (s *Store) ApplyPull(ctx context.Context, recs []record.Record, cursor int64) (int, error) {
	normalized := make([]record.Record, len(recs))
	for i, rec := range recs {
		rec = rec.Normalize()
		if err := record.Validate(rec); err != nil {
			return 0, err
		}
		normalized[i] = rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	err := s.withTx(ctx, "apply pull", func(tx *sql.Tx) error {
		for _, rec := range normalized {
			ok, err := mergeTx(ctx, tx, rec)
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
		}
		return savePullCursorTx(ctx, tx, cursor, s.clock.Now())
	})
	if err != nil {
		return 0, err
	}

	if applied > 0 {
		s.publishLocked(ctx)
	}
	return applied, nil
}

// mergeTx upserts rec if it supersedes the stored version.
func mergeTx(ctx context.Context, tx *sql.Tx, rec record.Record) (bool, error) {
	current, err := scanRecordRow(tx.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM transactions
		WHERE id = ?
	`, rec.ID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First version seen locally.
	case err != nil:
		return false, fmt.Errorf("read current %s: %w", rec.ID, err)
	default:
		if !record.Supersedes(rec, current) {
			return false, nil
		}
	}

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, amount, merchant, category, type, date_us, updated_at_us, deleted, revision, origin, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			merchant = excluded.merchant,
			category = excluded.category,
			type = excluded.type,
			date_us = excluded.date_us,
			updated_at_us = excluded.updated_at_us,
			deleted = excluded.deleted,
			revision = excluded.revision,
			origin = excluded.origin,
			seq = excluded.seq
	`, recordArgs(rec, originRemote, seq)...)
	if err != nil {
		return false, fmt.Errorf("upsert %s: %w", rec.ID, err)
	}
	return true, nil
}

// nextSeq returns the next feed sequence number. Every mutation takes a
// fresh number, so the maximum only grows; immediate transactions keep it
// unique across processes.
func nextSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

func recordArgs(rec record.Record, origin string, seq int64) []any {
	return []any{
		rec.ID,
		rec.Amount.String(),
		rec.Merchant,
		rec.Category,
		string(rec.Type),
		toMicros(rec.Date),
		toMicros(rec.UpdatedAt),
		rec.Deleted,
		rec.Revision(),
		origin,
		seq,
	}
}
