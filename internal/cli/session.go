package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/frugalflow/internal/config"
	"github.com/roach88/frugalflow/internal/lease"
	"github.com/roach88/frugalflow/internal/ledger"
	"github.com/roach88/frugalflow/internal/remote"
	"github.com/roach88/frugalflow/internal/store"
)

// leaseName is the lease every instance of one ledger competes for.
const leaseName = "replication"

// ConnectFunc builds the remote and the lease used for election.
// cleanup is called when the command ends.
type ConnectFunc func(ctx context.Context, cfg *config.Config, st *store.Store) (r remote.Remote, l lease.Lease, cleanup func(), err error)

// session is one command's view of the ledger.
type session struct {
	cfg     *config.Config
	store   *store.Store
	svc     *ledger.Service
	cleanup []func()
}

// openSession loads configuration, opens the store, and builds the ledger
// service. With replicate set and a remote configured, the service
// replicates; otherwise it is local-only.
func (o *RootOptions) openSession(ctx context.Context, replicate bool) (*session, error) {
	var files []string
	if o.EnvFile != "" {
		files = append(files, o.EnvFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if o.Database != "" {
		cfg.DBPath = o.Database
	}

	slog.Debug("opening database", "component", "cli", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	s := &session{cfg: cfg, store: st}

	var opts []ledger.Option
	if replicate && cfg.ReplicationEnabled() {
		connect := o.Connect
		if connect == nil {
			connect = connectPostgres
		}
		r, l, cleanup, err := connect(ctx, cfg, st)
		if err != nil {
			s.close()
			return nil, WrapExitError(ExitCommandError, "failed to connect to remote", err)
		}
		if cleanup != nil {
			s.cleanup = append(s.cleanup, cleanup)
		}
		opts = append(opts,
			ledger.WithReplication(r, l, cfg.Settings()),
			ledger.WithOwner(cfg.InstanceID),
			ledger.WithCoordinatorOptions(lease.WithTTL(cfg.LeaseTTL), lease.WithHeartbeat(cfg.Heartbeat)),
		)
	}

	svc, err := ledger.New(st, opts...)
	if err != nil {
		s.close()
		return nil, WrapExitError(ExitCommandError, "failed to create ledger", err)
	}
	s.svc = svc
	return s, nil
}

// start starts the service; the session's close stops it.
func (s *session) start(ctx context.Context) error {
	if err := s.svc.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to start ledger", err)
	}
	return nil
}

func (s *session) close() {
	if s.svc != nil {
		s.svc.Stop()
	}
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	if err := s.store.Close(); err != nil {
		slog.Warn("close database failed", "component", "cli", "error", err)
	}
}

// connectPostgres connects to the configured Postgres remote and prepares
// its schema. The lease lives in Postgres or in the local store depending
// on FRUGALFLOW_LEASE_BACKEND.
func connectPostgres(ctx context.Context, cfg *config.Config, st *store.Store) (remote.Remote, lease.Lease, func(), error) {
	pool, err := remote.Connect(ctx, cfg.RemoteURL, cfg.RemotePassword)
	if err != nil {
		return nil, nil, nil, err
	}

	r := remote.NewPostgres(pool)
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	var l lease.Lease
	switch cfg.LeaseBackend {
	case config.LeaseRemote:
		pl := lease.NewPostgres(pool, leaseName)
		if err := pl.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("lease schema: %w", err)
		}
		l = pl
	default:
		l = lease.NewSQLite(st, leaseName)
	}
	return r, l, pool.Close, nil
}
