package lease

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool and *pgx.Conn the Postgres lease
// needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSchema creates the lease table. Safe to run repeatedly.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS ledger_leases (
	name        TEXT PRIMARY KEY,
	owner       TEXT NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL
)`

// Postgres keeps the lease in the remote database so instances on
// different hosts can compete for it. Expiry is computed with the server's
// now(), so host clock skew cannot extend a claim.
type Postgres struct {
	db   Querier
	name string
}

// NewPostgres returns the lease called name in db.
func NewPostgres(db Querier, name string) *Postgres {
	return &Postgres{db: db, name: name}
}

// EnsureSchema creates the lease table if it does not exist.
func (l *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, PostgresSchema); err != nil {
		return &LeaseError{Op: "ensure schema", Name: l.name, Err: err}
	}
	return nil
}

// Acquire implements Lease.
func (l *Postgres) Acquire(ctx context.Context, owner string, ttl time.Duration) (Claim, error) {
	claim := Claim{Name: l.name, Owner: owner}
	err := l.db.QueryRow(ctx, `
		INSERT INTO ledger_leases (name, owner, expires_at, acquired_at)
		VALUES ($1, $2, now() + $3::bigint * interval '1 microsecond', now())
		ON CONFLICT (name) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at,
			acquired_at = excluded.acquired_at
		WHERE ledger_leases.expires_at <= now() OR ledger_leases.owner = excluded.owner
		RETURNING expires_at
	`, l.name, owner, ttl.Microseconds()).Scan(&claim.Expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return Claim{}, ErrHeld
	}
	if err != nil {
		return Claim{}, &LeaseError{Op: "acquire", Name: l.name, Err: err}
	}
	claim.Expires = claim.Expires.UTC()
	return claim, nil
}

// Renew implements Lease.
func (l *Postgres) Renew(ctx context.Context, owner string, ttl time.Duration) (Claim, error) {
	claim := Claim{Name: l.name, Owner: owner}
	err := l.db.QueryRow(ctx, `
		UPDATE ledger_leases
		SET expires_at = now() + $3::bigint * interval '1 microsecond'
		WHERE name = $1 AND owner = $2 AND expires_at > now()
		RETURNING expires_at
	`, l.name, owner, ttl.Microseconds()).Scan(&claim.Expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return Claim{}, ErrLost
	}
	if err != nil {
		return Claim{}, &LeaseError{Op: "renew", Name: l.name, Err: err}
	}
	claim.Expires = claim.Expires.UTC()
	return claim, nil
}

// Release implements Lease.
func (l *Postgres) Release(ctx context.Context, owner string) error {
	_, err := l.db.Exec(ctx, `
		DELETE FROM ledger_leases
		WHERE name = $1 AND owner = $2
	`, l.name, owner)
	if err != nil {
		return &LeaseError{Op: "release", Name: l.name, Err: err}
	}
	return nil
}

// Holder implements Lease.
func (l *Postgres) Holder(ctx context.Context) (Claim, bool, error) {
	claim := Claim{Name: l.name}
	err := l.db.QueryRow(ctx, `
		SELECT owner, expires_at
		FROM ledger_leases
		WHERE name = $1 AND expires_at > now()
	`, l.name).Scan(&claim.Owner, &claim.Expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return Claim{}, false, nil
	}
	if err != nil {
		return Claim{}, false, &LeaseError{Op: "holder", Name: l.name, Err: err}
	}
	claim.Expires = claim.Expires.UTC()
	return claim, true, nil
}
