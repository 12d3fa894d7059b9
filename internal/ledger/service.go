package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/frugalflow/internal/balance"
	"github.com/roach88/frugalflow/internal/broadcast"
	"github.com/roach88/frugalflow/internal/lease"
	"github.com/roach88/frugalflow/internal/record"
	"github.com/roach88/frugalflow/internal/remote"
	"github.com/roach88/frugalflow/internal/replication"
	"github.com/roach88/frugalflow/internal/store"
)

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopped
)

// Service is one ledger instance over one local store.
//
// Thread-safety model:
//   - Start(), Stop(): call once each, in that order
//   - everything else: safe from any goroutine
type Service struct {
	store *store.Store
	agg   *balance.Aggregator
	ids   record.IDGenerator
	clock record.Clock
	owner string

	remote     remote.Remote
	lease      lease.Lease
	settings   replication.Settings
	coordOpts  []lease.Option
	replicated bool

	engine *replication.Engine
	coord  *lease.Coordinator

	// Feeds reported when replication is off.
	idleRoles  *broadcast.Broadcaster[lease.Role]
	idleStatus *broadcast.Broadcaster[replication.Status]

	mu     sync.Mutex
	state  state
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithReplication enables replication with r, electing the replicating
// instance through l.
func WithReplication(r remote.Remote, l lease.Lease, settings replication.Settings) Option {
	return func(s *Service) {
		s.remote = r
		s.lease = l
		s.settings = settings
		s.replicated = true
	}
}

// WithIDGenerator sets the generator for new record ids.
//
// Default: UUIDv7Generator
func WithIDGenerator(g record.IDGenerator) Option {
	return func(s *Service) {
		s.ids = g
	}
}

// WithClock sets the clock stamping new records.
//
// Default: SystemClock
func WithClock(c record.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithOwner sets the identity this instance competes for the lease as.
// Required with WithReplication.
func WithOwner(owner string) Option {
	return func(s *Service) {
		s.owner = owner
	}
}

// WithCoordinatorOptions tunes leader election.
func WithCoordinatorOptions(opts ...lease.Option) Option {
	return func(s *Service) {
		s.coordOpts = append(s.coordOpts, opts...)
	}
}

// New creates a Service over st. Nothing runs until Start.
func New(st *store.Store, opts ...Option) (*Service, error) {
	s := &Service{
		store:      st,
		agg:        balance.New(st),
		ids:        record.UUIDv7Generator{},
		clock:      record.SystemClock{},
		idleRoles:  broadcast.NewWithValue(lease.RoleFollower),
		idleStatus: broadcast.NewWithValue(replication.Status{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.replicated {
		return s, nil
	}
	if s.remote == nil || s.lease == nil {
		return nil, errors.New("ledger: replication needs a remote and a lease")
	}
	if err := s.settings.Validate(); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	coord, err := lease.NewCoordinator(s.lease, s.owner, s.coordOpts...)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	s.coord = coord
	s.engine = replication.New(st, s.remote, s.settings, replication.WithClock(s.clock))
	return s, nil
}

// Replicated reports whether a remote is configured.
func (s *Service) Replicated() bool {
	return s.replicated
}

// Start launches the balance aggregator, the cross-process store watcher
// and, with replication, the leader election loop whose leader runs the
// replication engine. Background work stops when ctx is cancelled or Stop
// is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrStopped
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = stateRunning

	s.spawn(runCtx, "balance", s.agg.Run)
	s.spawn(runCtx, "watch", s.store.Watch)
	if s.coord != nil {
		s.spawn(runCtx, "coordinator", func(ctx context.Context) error {
			return s.coord.Run(ctx, func(leaderCtx context.Context) {
				_ = s.engine.Run(leaderCtx)
			})
		})
	}

	slog.Info("ledger started", "component", "ledger", "path", s.store.Path(),
		"replicated", s.replicated, "owner", s.owner)
	return nil
}

func (s *Service) spawn(ctx context.Context, name string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("ledger component failed", "component", "ledger", "task", name, "error", err)
		}
	}()
}

// Stop cancels background work and waits for it to finish. The lease, if
// held, is released. The store stays open; closing it is the caller's job.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.state != stateRunning {
		s.state = stateStopped
		s.mu.Unlock()
		return
	}
	s.state = stateStopped
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.agg.Close()
	s.idleRoles.Close()
	s.idleStatus.Close()

	slog.Info("ledger stopped", "component", "ledger")
}

func (s *Service) running() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateNew:
		return ErrNotStarted
	case stateStopped:
		return ErrStopped
	}
	return nil
}

// AddTransaction validates in, applies defaults, and appends it to the
// local store. It returns once the balance reflecting the write has been
// published, so a Balance read that follows sees it.
//
// Invalid input returns a *record.ValidationError and writes nothing.
// If the wait is interrupted the record is still durable and is returned
// with the error.
func (s *Service) AddTransaction(ctx context.Context, in Input) (record.Record, error) {
	rec, err := in.build(s.ids.Generate, s.clock.Now())
	if err != nil {
		return record.Record{}, err
	}
	if err := s.running(); err != nil {
		return record.Record{}, err
	}

	seq, err := s.store.Insert(ctx, rec)
	if err != nil {
		return record.Record{}, fmt.Errorf("add transaction: %w", err)
	}
	slog.Debug("transaction added", "component", "ledger", "id", rec.ID, "seq", seq)

	if err := s.agg.WaitFor(ctx, seq); err != nil {
		return rec, fmt.Errorf("wait for balance: %w", err)
	}
	return rec, nil
}

// Settle blocks until the balance reflects every commit made to the store
// so far, including merges and commits by other processes.
func (s *Service) Settle(ctx context.Context) error {
	if err := s.running(); err != nil {
		return err
	}
	seq, err := s.store.MaxSeq(ctx)
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	return s.agg.WaitFor(ctx, seq)
}

// Balance returns a balance subscription. Once the first snapshot has been
// aggregated the current balance is delivered immediately.
func (s *Service) Balance() *broadcast.Subscription[decimal.Decimal] {
	return s.agg.Subscribe()
}

// CurrentBalance returns the latest balance and whether one has been
// computed yet.
func (s *Service) CurrentBalance() (decimal.Decimal, bool) {
	return s.agg.Current()
}

// ListTransactions returns the live transactions ordered by date.
func (s *Service) ListTransactions(ctx context.Context) ([]record.Record, error) {
	recs, err := s.store.QueryAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return recs, nil
}

// Role returns the current leadership role. A local-only ledger never
// leads.
func (s *Service) Role() lease.Role {
	if s.coord == nil {
		return lease.RoleFollower
	}
	return s.coord.Role()
}

// Roles returns a subscription to role changes.
func (s *Service) Roles() *broadcast.Subscription[lease.Role] {
	if s.coord == nil {
		return s.idleRoles.Subscribe()
	}
	return s.coord.Roles()
}

// Status returns a subscription to replication status.
func (s *Service) Status() *broadcast.Subscription[replication.Status] {
	if s.engine == nil {
		return s.idleStatus.Subscribe()
	}
	return s.engine.Status()
}

// CurrentStatus returns the latest replication status.
func (s *Service) CurrentStatus() replication.Status {
	if s.engine == nil {
		return replication.Status{}
	}
	return s.engine.CurrentStatus()
}

// Stats returns local store counters.
func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	return s.store.Stats(ctx)
}

// SyncOnce runs one catch-up pull and one full push drain.
//
// When this instance is the running leader the round runs under its
// claim. Otherwise it takes the lease for the round under a derived
// identity and fails with lease.ErrHeld while another instance replicates.
// That claim is never renewed, so the round is cut off one heartbeat
// before it expires.
func (s *Service) SyncOnce(ctx context.Context) error {
	if s.engine == nil {
		return ErrLocalOnly
	}
	if s.coord.Role() == lease.RoleLeader {
		return s.engine.SyncOnce(ctx)
	}

	owner := s.owner + "/sync"
	ttl := s.coord.TTL()
	started := time.Now()
	if _, err := s.lease.Acquire(ctx, owner, ttl); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	defer func() {
		if err := s.lease.Release(context.WithoutCancel(ctx), owner); err != nil {
			slog.Warn("sync lease release failed", "component", "ledger", "error", err)
		}
	}()

	roundCtx, cancel := context.WithDeadline(ctx, started.Add(ttl-s.coord.Heartbeat()))
	defer cancel()
	err := s.engine.SyncOnce(roundCtx)
	if err != nil && ctx.Err() == nil && errors.Is(roundCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("sync: round outlived its %s lease: %w", ttl, err)
	}
	return err
}
