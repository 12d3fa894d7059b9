package replication

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/frugalflow/internal/broadcast"
	"github.com/roach88/frugalflow/internal/record"
	"github.com/roach88/frugalflow/internal/remote"
	"github.com/roach88/frugalflow/internal/store"
)

// Status is a snapshot of replication health.
type Status struct {
	// Active is true while this instance is replicating (leader).
	Active bool `json:"active"`

	// Pushed counts records acknowledged by the remote.
	Pushed int64 `json:"pushed"`

	// Pulled counts remote records that changed local state.
	Pulled int64 `json:"pulled"`

	// Skipped counts malformed remote records that were ignored.
	Skipped int64 `json:"skipped"`

	// Failures counts consecutive failed attempts across all flows.
	Failures int `json:"failures"`

	// LastError is the most recent failure, cleared on the next success.
	LastError string `json:"last_error,omitempty"`

	// LastSync is when a push or pull round last succeeded.
	LastSync time.Time `json:"last_sync,omitzero"`
}

// Engine replicates one local store with one remote.
//
// Thread-safety model:
//   - Run(): at most one call at a time (the coordinator's lead function)
//   - SyncOnce(), Status(), CurrentStatus(): safe from any goroutine
type Engine struct {
	store    *store.Store
	remote   remote.Remote
	settings Settings
	clock    record.Clock

	pushMu sync.Mutex // one push round at a time
	pullMu sync.Mutex // one catch-up at a time

	mu     sync.Mutex
	status Status
	feed   *broadcast.Broadcaster[Status]
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for status timestamps.
func WithClock(c record.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine. Zero settings take their defaults.
func New(s *store.Store, r remote.Remote, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		remote:   r,
		settings: settings.withDefaults(),
		clock:    record.SystemClock{},
		feed:     broadcast.NewWithValue(Status{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status returns a subscription to status changes. The current status is
// delivered immediately.
func (e *Engine) Status() *broadcast.Subscription[Status] {
	return e.feed.Subscribe()
}

// CurrentStatus returns the latest status.
func (e *Engine) CurrentStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) update(fn func(*Status)) {
	e.mu.Lock()
	fn(&e.status)
	st := e.status
	e.mu.Unlock()
	e.feed.Publish(st)
}

func (e *Engine) succeeded(fn func(*Status)) {
	now := e.clock.Now()
	e.update(func(st *Status) {
		fn(st)
		st.Failures = 0
		st.LastError = ""
		st.LastSync = now
	})
}

func (e *Engine) failed(err error) {
	e.update(func(st *Status) {
		st.Failures++
		st.LastError = err.Error()
	})
}

// Run replicates until ctx is cancelled, then returns ctx.Err(). Any
// in-flight batch is abandoned without advancing its cursor.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("replication starting", "component", "replication",
		"push_batch", e.settings.PushBatchSize, "pull_interval", e.settings.PullInterval)
	e.update(func(st *Status) { st.Active = true })
	defer e.update(func(st *Status) { st.Active = false })

	// Buffered 1: bursts of triggers coalesce into one round.
	pullNow := make(chan struct{}, 1)
	pushNow := make(chan struct{}, 1)
	kick(pullNow)
	kick(pushNow)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		e.pullLoop(ctx, pullNow)
	}()
	go func() {
		defer wg.Done()
		e.realtimeLoop(ctx, pullNow)
	}()
	go func() {
		defer wg.Done()
		e.pushLoop(ctx, pushNow)
	}()
	go func() {
		defer wg.Done()
		e.watchLocal(ctx, pushNow)
	}()
	wg.Wait()

	slog.Info("replication stopped", "component", "replication")
	return ctx.Err()
}

func kick(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (e *Engine) pullLoop(ctx context.Context, pullNow <-chan struct{}) {
	ticker := time.NewTicker(e.settings.PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pullNow:
		case <-ticker.C:
		}
		if err := e.retry(ctx, func() error { return e.pull(ctx) }); err != nil {
			return
		}
	}
}

func (e *Engine) pushLoop(ctx context.Context, pushNow <-chan struct{}) {
	ticker := time.NewTicker(e.settings.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pushNow:
		case <-ticker.C:
		}
		if err := e.retry(ctx, func() error { return e.push(ctx) }); err != nil {
			return
		}
	}
}

// watchLocal turns local commits into push triggers.
func (e *Engine) watchLocal(ctx context.Context, pushNow chan<- struct{}) {
	sub, err := e.store.Subscribe(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("subscribe to local changes failed", "component", "replication", "error", err)
		}
		return
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C():
			if !ok {
				return
			}
			kick(pushNow)
		}
	}
}

// realtimeLoop keeps the realtime channel open, reconnecting with backoff.
// Every successful (re)connect schedules a catch-up pull to cover changes
// made while disconnected.
func (e *Engine) realtimeLoop(ctx context.Context, pullNow chan<- struct{}) {
	b := e.newBackOff()

	for {
		connected := false
		err := e.remote.Subscribe(ctx,
			func() {
				connected = true
				b.Reset()
				kick(pullNow)
				slog.Debug("realtime channel connected", "component", "replication")
			},
			func(rec record.Record) {
				e.applyRealtime(ctx, rec)
			},
		)
		if ctx.Err() != nil {
			return
		}

		err = replicationError("realtime", err)
		e.failed(err)
		wait := b.NextBackOff()
		slog.Warn("realtime channel lost, reconnecting", "component", "replication",
			"was_connected", connected, "error", err, "retry_in", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (e *Engine) applyRealtime(ctx context.Context, rec record.Record) {
	rec = rec.Normalize()
	if err := record.Validate(rec); err != nil {
		e.skip(rec, err)
		return
	}

	applied, err := e.store.Merge(ctx, rec)
	if err != nil {
		// The next catch-up pull will fetch it again.
		if ctx.Err() == nil {
			slog.Warn("realtime merge failed", "component", "replication", "id", rec.ID, "error", err)
			e.failed(replicationError("realtime", err))
		}
		return
	}
	if applied {
		e.update(func(st *Status) { st.Pulled++ })
	}
}

func (e *Engine) skip(rec record.Record, err error) {
	slog.Warn("skipping malformed remote record", "component", "replication", "id", rec.ID, "error", err)
	e.update(func(st *Status) { st.Skipped++ })
}

func (e *Engine) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.settings.RetryInitial
	b.MaxInterval = e.settings.RetryMax
	b.MaxElapsedTime = 0 // retry until leadership ends
	b.Reset()
	return b
}

// retry runs fn until it succeeds or ctx ends. Each failure is logged and
// published on Status.
func (e *Engine) retry(ctx context.Context, fn func() error) error {
	op := func() error {
		err := fn()
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		e.failed(err)
		slog.Warn("replication round failed, retrying", "component", "replication",
			"error", err, "retry_in", wait)
	}
	return backoff.RetryNotify(op, backoff.WithContext(e.newBackOff(), ctx), notify)
}

// SyncOnce runs one catch-up pull and drains pending pushes, without
// retrying. Safe to call while Run is active.
func (e *Engine) SyncOnce(ctx context.Context) error {
	if err := e.pull(ctx); err != nil {
		e.failed(err)
		return err
	}
	if err := e.push(ctx); err != nil {
		e.failed(err)
		return err
	}
	return nil
}

// pull merges remote pages after the persisted cursor until a short page.
func (e *Engine) pull(ctx context.Context) error {
	e.pullMu.Lock()
	defer e.pullMu.Unlock()

	cursor, err := e.store.PullCursor(ctx)
	if err != nil {
		return replicationError("pull", err)
	}

	var pulled, skipped int64
	for {
		page, err := e.remote.Since(ctx, cursor, e.settings.PullPageSize)
		if err != nil {
			return replicationError("pull", err)
		}
		if len(page) == 0 {
			break
		}

		valid := make([]record.Record, 0, len(page))
		for _, ch := range page {
			n := ch.Record.Normalize()
			if err := record.Validate(n); err != nil {
				e.skip(n, err)
				skipped++
				continue
			}
			valid = append(valid, n)
		}

		// The cursor passes skipped records too, so they are not refetched.
		next := page[len(page)-1].Seq
		if next <= cursor {
			return replicationError("pull", fmt.Errorf("remote page ends at position %d, not after cursor %d", next, cursor))
		}
		applied, err := e.store.ApplyPull(ctx, valid, next)
		if err != nil {
			return replicationError("pull", err)
		}
		pulled += int64(applied)
		cursor = next

		if len(page) < e.settings.PullPageSize {
			break
		}
	}

	if pulled > 0 || skipped > 0 {
		slog.Info("pulled remote changes", "component", "replication", "applied", pulled, "skipped", skipped)
	}
	e.succeeded(func(st *Status) { st.Pulled += pulled })
	return nil
}

// push sends pending local mutations in batches, advancing the push cursor
// after each acknowledged batch.
func (e *Engine) push(ctx context.Context) error {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	var pushed int64
	for {
		after, err := e.store.PushCursor(ctx)
		if err != nil {
			return replicationError("push", err)
		}
		muts, err := e.store.Pending(ctx, after, e.settings.PushBatchSize)
		if err != nil {
			return replicationError("push", err)
		}
		if len(muts) == 0 {
			break
		}

		recs := make([]record.Record, len(muts))
		for i, m := range muts {
			recs[i] = m.Record
		}
		if err := e.remote.Upsert(ctx, recs); err != nil {
			return replicationError("push", err)
		}

		last := muts[len(muts)-1].Seq
		if err := e.store.SavePushCursor(ctx, last); err != nil {
			return replicationError("push", err)
		}
		pushed += int64(len(muts))
		slog.Debug("pushed batch", "component", "replication", "records", len(muts), "through_seq", last)
	}

	if pushed > 0 {
		slog.Info("pushed local changes", "component", "replication", "records", pushed)
	}
	e.succeeded(func(st *Status) { st.Pushed += pushed })
	return nil
}
