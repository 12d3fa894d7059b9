package store

import (
	"context"
	"log/slog"

	"github.com/roach88/frugalflow/internal/queue"
	"github.com/roach88/frugalflow/internal/record"
)

// Change is one change-feed emission: the full non-deleted snapshot as of
// feed position Seq. Records is shared between subscribers and must not
// be modified.
type Change struct {
	Seq     int64
	Records []record.Record
}

// Subscription is a lazy, unbounded sequence of snapshots.
//
// Each subscription owns a FIFO queue and a delivery goroutine that hands
// snapshots to C one at a time, so a subscriber never sees two deliveries
// concurrently and a slow subscriber never blocks writers or other
// subscribers.
type Subscription struct {
	store  *Store
	q      *queue.Queue[Change]
	ch     chan Change
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe starts a new feed subscription. The first emission is the
// current snapshot; every later commit produces one more. Subscribing again
// restarts from the then-current snapshot.
//
// The subscription ends when ctx is cancelled, Close is called, or the
// store is closed; C is closed afterwards.
func (s *Store) Subscribe(ctx context.Context) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	initial, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		store:  s,
		q:      queue.New[Change](),
		ch:     make(chan Change),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.q.Enqueue(initial)

	if s.closed {
		sub.q.Close()
	} else {
		s.subs = append(s.subs, sub)
	}

	go sub.pump(subCtx)
	return sub, nil
}

// C returns the channel snapshots are delivered on.
func (sub *Subscription) C() <-chan Change {
	return sub.ch
}

// Close ends the subscription and waits for its delivery goroutine.
func (sub *Subscription) Close() {
	sub.cancel()
	<-sub.done
}

func (sub *Subscription) pump(ctx context.Context) {
	defer close(sub.done)
	defer close(sub.ch)
	defer sub.store.unsubscribe(sub)

	for {
		if change, ok := sub.q.TryDequeue(); ok {
			select {
			case sub.ch <- change:
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-sub.q.Wait():
			if sub.q.Closed() && sub.q.Len() == 0 {
				return
			}
		}
	}
}

func (s *Store) unsubscribe(sub *Subscription) {
	sub.q.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, other := range s.subs {
		if other == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// snapshot reads the live records and the current feed position.
// Caller must hold s.mu.
func (s *Store) snapshot(ctx context.Context) (Change, error) {
	seq, err := maxSeq(ctx, s.db)
	if err != nil {
		return Change{}, storageError("snapshot", err)
	}
	recs, err := queryLive(ctx, s.db)
	if err != nil {
		return Change{}, storageError("snapshot", err)
	}
	return Change{Seq: seq, Records: recs}, nil
}

// publishLocked queues the current snapshot to every subscriber.
// Caller must hold s.mu and must already have committed the write.
//
// A failed snapshot read is logged and skipped: the write is durable, and
// the next emission carries the full state anyway.
func (s *Store) publishLocked(ctx context.Context) {
	if len(s.subs) == 0 {
		return
	}

	change, err := s.snapshot(context.WithoutCancel(ctx))
	if err != nil {
		slog.Error("change feed snapshot failed", "component", "store", "error", err)
		return
	}

	for _, sub := range s.subs {
		sub.q.Enqueue(change)
	}
}
