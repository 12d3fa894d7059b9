package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/frugalflow/internal/broadcast"
)

// Role is an instance's position in the election.
type Role int

const (
	// RoleCandidate is trying to acquire the lease.
	RoleCandidate Role = iota
	// RoleLeader holds the lease and runs replication.
	RoleLeader
	// RoleFollower waits for the lease to be released.
	RoleFollower
)

// String returns the lowercase role name.
func (r Role) String() string {
	switch r {
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	case RoleFollower:
		return "follower"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Defaults for NewCoordinator.
const (
	DefaultTTL              = 10 * time.Second
	DefaultHeartbeat        = 3 * time.Second
	DefaultMaxRenewFailures = 3
)

// releaseTimeout bounds the final Release after the run context is gone.
const releaseTimeout = 5 * time.Second

// Coordinator runs one instance through repeated elections.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - Role(), Roles(): safe from any goroutine
type Coordinator struct {
	lease Lease
	owner string

	ttl              time.Duration
	heartbeat        time.Duration
	maxRenewFailures int

	roles *broadcast.Broadcaster[Role]

	mu   sync.Mutex
	role Role
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTTL sets how long a claim lasts without renewal.
//
// Default: 10s (DefaultTTL)
func WithTTL(d time.Duration) Option {
	return func(c *Coordinator) {
		c.ttl = d
	}
}

// WithHeartbeat sets the renewal interval. It must be shorter than the TTL.
// Followers also poll for release at this interval.
//
// Default: 3s (DefaultHeartbeat)
func WithHeartbeat(d time.Duration) Option {
	return func(c *Coordinator) {
		c.heartbeat = d
	}
}

// WithMaxRenewFailures sets how many consecutive renewal faults a leader
// tolerates before demoting itself.
//
// Default: 3 (DefaultMaxRenewFailures)
func WithMaxRenewFailures(n int) Option {
	return func(c *Coordinator) {
		c.maxRenewFailures = n
	}
}

// NewCoordinator creates a coordinator competing for l as owner.
// Returns an error if the heartbeat is not strictly shorter than the TTL.
func NewCoordinator(l Lease, owner string, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		lease:            l,
		owner:            owner,
		ttl:              DefaultTTL,
		heartbeat:        DefaultHeartbeat,
		maxRenewFailures: DefaultMaxRenewFailures,
		roles:            broadcast.NewWithValue(RoleCandidate),
		role:             RoleCandidate,
	}
	for _, opt := range opts {
		opt(c)
	}

	if owner == "" {
		return nil, errors.New("lease coordinator: owner is required")
	}
	if c.ttl <= 0 || c.heartbeat <= 0 {
		return nil, fmt.Errorf("lease coordinator: ttl (%s) and heartbeat (%s) must be positive", c.ttl, c.heartbeat)
	}
	if c.heartbeat >= c.ttl {
		return nil, fmt.Errorf("lease coordinator: heartbeat %s must be shorter than ttl %s", c.heartbeat, c.ttl)
	}
	if c.maxRenewFailures < 1 {
		return nil, fmt.Errorf("lease coordinator: max renew failures must be at least 1, got %d", c.maxRenewFailures)
	}
	return c, nil
}

// Owner returns the identity this coordinator competes as.
func (c *Coordinator) Owner() string {
	return c.owner
}

// TTL returns the claim duration.
func (c *Coordinator) TTL() time.Duration {
	return c.ttl
}

// Heartbeat returns the renewal interval.
func (c *Coordinator) Heartbeat() time.Duration {
	return c.heartbeat
}

// Role returns the current role.
func (c *Coordinator) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// Roles returns a subscription to role changes. The current role is
// delivered immediately.
func (c *Coordinator) Roles() *broadcast.Subscription[Role] {
	return c.roles.Subscribe()
}

func (c *Coordinator) setRole(r Role) {
	c.mu.Lock()
	changed := c.role != r
	c.role = r
	c.mu.Unlock()

	if changed {
		slog.Info("role changed", "component", "lease", "owner", c.owner, "role", r.String())
		c.roles.Publish(r)
	}
}

// Run competes for the lease until ctx is cancelled, calling lead with a
// leadership-scoped context each time this instance becomes leader. lead
// must return promptly once its context is cancelled.
//
// Lease faults never end Run: they demote a leader or delay a candidate.
// Run always returns ctx.Err(), after releasing any held claim.
func (c *Coordinator) Run(ctx context.Context, lead func(ctx context.Context)) error {
	defer c.roles.Close()

	for {
		c.setRole(RoleCandidate)

		// Taken before Acquire so the local deadline never outlives the
		// backend's.
		started := time.Now()
		claim, err := c.lease.Acquire(ctx, c.owner, c.ttl)
		switch {
		case err == nil:
			slog.Debug("lease acquired", "component", "lease", "owner", c.owner, "expires", claim.Expires)
			c.leadUntilLost(ctx, started, lead)

		case errors.Is(err, ErrHeld):
			c.setRole(RoleFollower)
			if err := WaitReleased(ctx, c.lease, c.heartbeat); err != nil && ctx.Err() == nil {
				slog.Warn("watch for lease release failed", "component", "lease", "owner", c.owner, "error", err)
				c.pause(ctx)
			}

		default:
			if ctx.Err() != nil {
				break
			}
			slog.Warn("lease acquire failed", "component", "lease", "owner", c.owner, "error", err)
			c.setRole(RoleFollower)
			c.pause(ctx)
		}

		if ctx.Err() != nil {
			c.setRole(RoleFollower)
			return ctx.Err()
		}
	}
}

// renewal is the outcome of one background Renew call.
type renewal struct {
	started time.Time
	err     error
}

// expiryMargin is how long before the local deadline a leader stops
// leading. It is at most one heartbeat and always leaves room for the
// first renewal.
func (c *Coordinator) expiryMargin() time.Duration {
	return min(c.heartbeat, (c.ttl-c.heartbeat)/2)
}

// leadUntilLost runs lead and renews the claim until renewal fails, the
// claim nears expiry, or ctx ends. started must be taken before the
// Acquire that granted the claim. On return lead has exited and the claim
// has been released.
//
// Renew runs in the background under a deadline, so a stalled backend
// cannot keep this instance leading past its claim: the expiry timer
// demotes on its own.
func (c *Coordinator) leadUntilLost(ctx context.Context, started time.Time, lead func(ctx context.Context)) {
	// Measured locally so backend clock skew cannot stretch it.
	deadline := started.Add(c.ttl)
	margin := c.expiryMargin()

	leaderCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.setRole(RoleLeader)
	go func() {
		defer close(done)
		lead(leaderCtx)
	}()

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	expiry := time.NewTimer(time.Until(deadline.Add(-margin)))
	defer expiry.Stop()

	renewed := make(chan renewal, 1)
	renewing := false

	failures := 0
	reason := ""
	for reason == "" {
		select {
		case <-ctx.Done():
			reason = "shutdown"

		case <-done:
			reason = "leader work ended"

		case <-expiry.C:
			reason = "lease about to expire"

		case <-ticker.C:
			if renewing {
				continue
			}
			renewing = true
			go c.renew(leaderCtx, deadline.Add(-margin), renewed)

		case r := <-renewed:
			renewing = false
			switch {
			case r.err == nil:
				failures = 0
				deadline = r.started.Add(c.ttl)
				expiry.Reset(time.Until(deadline.Add(-margin)))
			case errors.Is(r.err, ErrLost):
				reason = "lease lost"
			case ctx.Err() != nil:
				reason = "shutdown"
			default:
				failures++
				slog.Warn("lease renew failed", "component", "lease", "owner", c.owner,
					"failures", failures, "error", r.err)
				if failures >= c.maxRenewFailures {
					reason = "renew failures"
				} else if !time.Now().Add(c.heartbeat).Before(deadline.Add(-margin)) {
					reason = "lease about to expire"
				}
			}
		}
	}

	slog.Info("stepping down", "component", "lease", "owner", c.owner, "reason", reason)

	// Also abandons an in-flight renewal; renewed is buffered so it can
	// still finish.
	cancel()
	<-done

	c.setRole(RoleFollower)

	releaseCtx, cancelRelease := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancelRelease()
	if err := c.lease.Release(releaseCtx, c.owner); err != nil {
		slog.Warn("lease release failed", "component", "lease", "owner", c.owner, "error", err)
	}

	// Give other candidates one heartbeat to take over.
	if reason != "shutdown" {
		c.pause(ctx)
	}
}

// renew extends the claim, giving up at stop, and reports on out.
func (c *Coordinator) renew(ctx context.Context, stop time.Time, out chan<- renewal) {
	started := time.Now()
	renewCtx, cancel := context.WithDeadline(ctx, stop)
	defer cancel()

	_, err := c.lease.Renew(renewCtx, c.owner, c.ttl)
	out <- renewal{started: started, err: err}
}

func (c *Coordinator) pause(ctx context.Context) {
	t := time.NewTimer(c.heartbeat)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
