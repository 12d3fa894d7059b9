package lease

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrHeld is returned by Acquire when another owner holds an
	// unexpired claim.
	ErrHeld = errors.New("lease held by another owner")

	// ErrLost is returned by Renew when the caller no longer holds the
	// claim: it expired, was released, or was taken over.
	ErrLost = errors.New("lease lost")
)

// Claim is the state of a held lease.
type Claim struct {
	Name    string
	Owner   string
	Expires time.Time
}

// Lease is a named, renewable, exclusive claim.
// Implemented by SQLite and Postgres.
type Lease interface {
	// Acquire claims the lease for owner until now+ttl. Succeeds if the
	// lease is free, expired, or already held by owner.
	Acquire(ctx context.Context, owner string, ttl time.Duration) (Claim, error)

	// Renew extends owner's unexpired claim to now+ttl.
	Renew(ctx context.Context, owner string, ttl time.Duration) (Claim, error)

	// Release gives up owner's claim. Releasing a lease held by someone
	// else is a no-op.
	Release(ctx context.Context, owner string) error

	// Holder returns the current unexpired claim, if any.
	Holder(ctx context.Context) (Claim, bool, error)
}

// WaitReleased polls l every interval until no unexpired claim exists.
// Holder faults are logged by the caller's retry loop, not here: they are
// returned immediately.
func WaitReleased(ctx context.Context, l Lease, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, held, err := l.Holder(ctx)
		if err != nil {
			return err
		}
		if !held {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LeaseError reports a lease backend fault. It never stops the instance:
// the coordinator demotes or retries.
type LeaseError struct {
	// Op is the failed operation ("acquire", "renew", ...).
	Op string

	// Name is the lease name.
	Name string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *LeaseError) Error() string {
	return fmt.Sprintf("lease %s: %s: %v", e.Name, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *LeaseError) Unwrap() error {
	return e.Err
}

// IsLease returns true if err is or wraps a LeaseError.
func IsLease(err error) bool {
	var le *LeaseError
	return errors.As(err, &le)
}
