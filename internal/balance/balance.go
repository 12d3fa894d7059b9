// Package balance derives the live ledger balance from the store's change
// feed.
//
// Every feed emission carries the full non-deleted snapshot, and the
// Aggregator recomputes the balance from scratch each time: remote merges
// can rewrite history out of insertion order, so a running total could not
// be trusted. The result is published with replay-one semantics.
package balance

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/frugalflow/internal/broadcast"
	"github.com/roach88/frugalflow/internal/record"
	"github.com/roach88/frugalflow/internal/store"
)

// ErrStopped is returned by WaitFor once the aggregator's Run loop has
// exited.
var ErrStopped = errors.New("balance: aggregator stopped")

// Feed is the change feed the aggregator consumes.
// Implemented by *store.Store.
type Feed interface {
	Subscribe(ctx context.Context) (*store.Subscription, error)
}

// Compute returns sum(income) - sum(expense) over the live records in recs.
func Compute(recs []record.Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range recs {
		total = total.Add(r.Signed())
	}
	return total
}

// Aggregator maintains the balance for one store.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - Subscribe(), Current(), WaitFor(): safe from any goroutine
type Aggregator struct {
	feed Feed
	out  *broadcast.Broadcaster[decimal.Decimal]

	mu      sync.Mutex
	applied int64         // feed position of the last processed snapshot
	seen    bool          // at least one snapshot processed
	notify  chan struct{} // closed and replaced after every snapshot
	stopped bool
}

// New creates an Aggregator over feed. Nothing is published until Run
// processes the first snapshot.
func New(feed Feed) *Aggregator {
	return &Aggregator{
		feed:   feed,
		out:    broadcast.New[decimal.Decimal](),
		notify: make(chan struct{}),
	}
}

// Run consumes the change feed until ctx is cancelled or the feed ends.
// Returns nil when the feed ends because the store was closed.
func (a *Aggregator) Run(ctx context.Context) error {
	sub, err := a.feed.Subscribe(ctx)
	if err != nil {
		a.stop()
		return err
	}
	defer sub.Close()
	defer a.stop()

	slog.Debug("balance aggregator starting", "component", "balance")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-sub.C():
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Debug("change feed closed", "component", "balance")
				return nil
			}
			a.apply(change)
		}
	}
}

// apply recomputes the balance for one snapshot. An unchanged balance is
// not republished, so duplicate snapshots are invisible to subscribers.
func (a *Aggregator) apply(change store.Change) {
	total := Compute(change.Records)

	if last, ok := a.out.Last(); !ok || !last.Equal(total) {
		a.out.Publish(total)
		slog.Debug("balance updated", "component", "balance", "seq", change.Seq, "balance", total.String())
	}

	a.mu.Lock()
	if change.Seq > a.applied {
		a.applied = change.Seq
	}
	a.seen = true
	close(a.notify)
	a.notify = make(chan struct{})
	a.mu.Unlock()
}

func (a *Aggregator) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.stopped = true
	close(a.notify)
}

// Subscribe returns a balance subscription. If a balance has been computed
// it is delivered immediately.
func (a *Aggregator) Subscribe() *broadcast.Subscription[decimal.Decimal] {
	return a.out.Subscribe()
}

// Current returns the latest balance and whether one has been computed.
func (a *Aggregator) Current() (decimal.Decimal, bool) {
	return a.out.Last()
}

// Applied returns the feed position of the last processed snapshot.
func (a *Aggregator) Applied() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applied
}

// WaitFor blocks until a snapshot at feed position seq or later has been
// processed, so the balance reflecting that write is already published.
// WaitFor(ctx, 0) waits for the first snapshot.
func (a *Aggregator) WaitFor(ctx context.Context, seq int64) error {
	for {
		a.mu.Lock()
		if a.seen && a.applied >= seq {
			a.mu.Unlock()
			return nil
		}
		if a.stopped {
			a.mu.Unlock()
			return ErrStopped
		}
		ch := a.notify
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Close ends every balance subscription.
func (a *Aggregator) Close() {
	a.out.Close()
}
