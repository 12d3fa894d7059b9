package lease

import (
	"context"
	"time"

	"github.com/roach88/frugalflow/internal/store"
)

// SQLite keeps the lease in the local store's leases table. Every process
// attached to the same database file competes for the same row.
type SQLite struct {
	store *store.Store
	name  string
}

// NewSQLite returns the lease called name in s.
func NewSQLite(s *store.Store, name string) *SQLite {
	return &SQLite{store: s, name: name}
}

// Acquire implements Lease.
func (l *SQLite) Acquire(ctx context.Context, owner string, ttl time.Duration) (Claim, error) {
	row, ok, err := l.store.AcquireLease(ctx, l.name, owner, ttl)
	if err != nil {
		return Claim{}, &LeaseError{Op: "acquire", Name: l.name, Err: err}
	}
	if !ok {
		return Claim{}, ErrHeld
	}
	return claimOf(row), nil
}

// Renew implements Lease.
func (l *SQLite) Renew(ctx context.Context, owner string, ttl time.Duration) (Claim, error) {
	row, ok, err := l.store.RenewLease(ctx, l.name, owner, ttl)
	if err != nil {
		return Claim{}, &LeaseError{Op: "renew", Name: l.name, Err: err}
	}
	if !ok {
		return Claim{}, ErrLost
	}
	return claimOf(row), nil
}

// Release implements Lease.
func (l *SQLite) Release(ctx context.Context, owner string) error {
	if err := l.store.ReleaseLease(ctx, l.name, owner); err != nil {
		return &LeaseError{Op: "release", Name: l.name, Err: err}
	}
	return nil
}

// Holder implements Lease.
func (l *SQLite) Holder(ctx context.Context) (Claim, bool, error) {
	row, ok, err := l.store.LeaseHolder(ctx, l.name)
	if err != nil {
		return Claim{}, false, &LeaseError{Op: "holder", Name: l.name, Err: err}
	}
	if !ok {
		return Claim{}, false, nil
	}
	return claimOf(row), true, nil
}

func claimOf(row store.LeaseRow) Claim {
	return Claim{Name: row.Name, Owner: row.Owner, Expires: row.ExpiresAt}
}
