// Package broadcast implements a replay-one publisher.
//
// A Broadcaster fans each published value out to its subscribers in
// registration order. A subscriber that joins late immediately receives the
// most recent value instead of waiting for the next publish.
//
// Every subscription holds at most one pending value: publishing replaces
// an unread older value, so a slow reader always sees the latest state and
// never stalls the publisher. That suits state feeds (balance, role,
// replication status) where only the current value is meaningful.
package broadcast

import "sync"

// Broadcaster publishes values of T to a set of subscribers.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   []*Subscription[T]
	last   T
	has    bool
	closed bool
}

// New creates a Broadcaster with no value.
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// NewWithValue creates a Broadcaster that replays initial to subscribers
// until the first Publish.
func NewWithValue[T any](initial T) *Broadcaster[T] {
	return &Broadcaster[T]{last: initial, has: true}
}

// Subscription receives values from a Broadcaster.
type Subscription[T any] struct {
	b  *Broadcaster[T]
	ch chan T
}

// C returns the channel values are delivered on. It is closed when the
// subscription is cancelled or the broadcaster is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Cancel removes the subscription and closes its channel.
func (s *Subscription[T]) Cancel() {
	s.b.remove(s)
}

// Subscribe registers a new subscriber. If a value has been published it is
// delivered immediately.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &Subscription[T]{b: b, ch: make(chan T, 1)}
	if b.closed {
		close(s.ch)
		return s
	}
	if b.has {
		s.ch <- b.last
	}
	b.subs = append(b.subs, s)
	return s
}

// Publish records v as the latest value and delivers it to every
// subscriber in registration order.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.last = v
	b.has = true

	for _, s := range b.subs {
		// Replace an unread value. Only Publish sends, under b.mu, so the
		// send below cannot block.
		select {
		case <-s.ch:
		default:
		}
		s.ch <- v
	}
}

// Last returns the most recent value and whether one has been published.
func (b *Broadcaster[T]) Last() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.has
}

// Len returns the number of active subscriptions.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription. Later Publish calls are ignored and
// later subscriptions start closed.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
}

func (b *Broadcaster[T]) remove(s *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}
