package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	checkpointPull = "pull"
	checkpointPush = "push"
)

// PullCursor returns the remote position of the last pulled change. A
// store that has never pulled returns 0.
func (s *Store) PullCursor(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT cursor_seq
		FROM checkpoints
		WHERE name = ?
	`, checkpointPull).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storageError("pull cursor", err)
	}
	return seq, nil
}

// PushCursor returns the feed sequence number of the last pushed mutation.
func (s *Store) PushCursor(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT cursor_seq
		FROM checkpoints
		WHERE name = ?
	`, checkpointPush).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storageError("push cursor", err)
	}
	return seq, nil
}

// SavePushCursor records that every local mutation up to seq has been
// acknowledged by the remote. The cursor never moves backwards.
func (s *Store) SavePushCursor(ctx context.Context, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (name, cursor_seq, saved_at_us)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			cursor_seq = MAX(checkpoints.cursor_seq, excluded.cursor_seq),
			saved_at_us = excluded.saved_at_us
	`, checkpointPush, seq, toMicros(s.clock.Now()))
	if err != nil {
		return storageError("save push cursor", err)
	}
	return nil
}

// savePullCursorTx persists the pull position inside an open transaction.
func savePullCursorTx(ctx context.Context, tx *sql.Tx, seq int64, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoints (name, cursor_seq, saved_at_us)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			cursor_seq = excluded.cursor_seq,
			saved_at_us = excluded.saved_at_us
	`, checkpointPull, seq, toMicros(now))
	if err != nil {
		return fmt.Errorf("save pull cursor: %w", err)
	}
	return nil
}
