package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// LeaseRow is the stored state of a named lease.
type LeaseRow struct {
	Name      string
	Owner     string
	ExpiresAt time.Time
}

// AcquireLease claims name for owner until now+ttl. The claim succeeds if
// the lease is free, expired, or already held by owner. Returns the row and
// whether owner now holds it.
//
// The check and the write are one upsert statement, so two processes
// racing for an expired lease cannot both win.
func (s *Store) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (LeaseRow, bool, error) {
	now := s.clock.Now()
	expires := now.Add(ttl)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (name, owner, expires_at_us, acquired_at_us)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			owner = excluded.owner,
			expires_at_us = excluded.expires_at_us,
			acquired_at_us = excluded.acquired_at_us
		WHERE leases.expires_at_us <= ? OR leases.owner = excluded.owner
	`, name, owner, toMicros(expires), toMicros(now), toMicros(now))
	if err != nil {
		return LeaseRow{}, false, storageError("acquire lease", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return LeaseRow{}, false, storageError("acquire lease", err)
	}
	if n == 0 {
		return LeaseRow{Name: name}, false, nil
	}
	return LeaseRow{Name: name, Owner: owner, ExpiresAt: expires}, true, nil
}

// RenewLease extends owner's unexpired lease to now+ttl. Returns false if
// owner no longer holds it (expired, released, or taken over).
func (s *Store) RenewLease(ctx context.Context, name, owner string, ttl time.Duration) (LeaseRow, bool, error) {
	now := s.clock.Now()
	expires := now.Add(ttl)

	result, err := s.db.ExecContext(ctx, `
		UPDATE leases
		SET expires_at_us = ?
		WHERE name = ? AND owner = ? AND expires_at_us > ?
	`, toMicros(expires), name, owner, toMicros(now))
	if err != nil {
		return LeaseRow{}, false, storageError("renew lease", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return LeaseRow{}, false, storageError("renew lease", err)
	}
	if n == 0 {
		return LeaseRow{Name: name}, false, nil
	}
	return LeaseRow{Name: name, Owner: owner, ExpiresAt: expires}, true, nil
}

// ReleaseLease deletes owner's lease. Releasing a lease held by someone
// else, or not held at all, is a no-op.
func (s *Store) ReleaseLease(ctx context.Context, name, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM leases
		WHERE name = ? AND owner = ?
	`, name, owner)
	if err != nil {
		return storageError("release lease", err)
	}
	return nil
}

// LeaseHolder returns the current unexpired holder of name, if any.
func (s *Store) LeaseHolder(ctx context.Context, name string) (LeaseRow, bool, error) {
	var (
		row       = LeaseRow{Name: name}
		expiresUS int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT owner, expires_at_us
		FROM leases
		WHERE name = ? AND expires_at_us > ?
	`, name, toMicros(s.clock.Now())).Scan(&row.Owner, &expiresUS)
	if errors.Is(err, sql.ErrNoRows) {
		return row, false, nil
	}
	if err != nil {
		return LeaseRow{}, false, storageError("lease holder", err)
	}
	row.ExpiresAt = fromMicros(expiresUS)
	return row, true, nil
}
