package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/frugalflow/internal/queue"
	"github.com/roach88/frugalflow/internal/record"
)

// Memory is an in-process Remote. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	recs    map[string]Change
	seq     int64 // position of the last accepted write
	subs    map[*memorySub]struct{}
	offline bool
	upserts int
}

type memorySub struct {
	q *queue.Queue[record.Record]
}

// NewMemory creates an empty, online Memory remote.
func NewMemory() *Memory {
	return &Memory{
		recs: make(map[string]Change),
		subs: make(map[*memorySub]struct{}),
	}
}

// SetOffline toggles the simulated outage. Going offline fails every call
// with ErrOffline and ends every active subscription.
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.offline = offline
	if offline {
		for sub := range m.subs {
			sub.q.Close()
		}
		m.subs = make(map[*memorySub]struct{})
	}
}

// Upsert implements Remote.
func (m *Memory) Upsert(ctx context.Context, recs []record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	normalized := make([]record.Record, len(recs))
	for i, rec := range recs {
		rec = rec.Normalize()
		if err := record.Validate(rec); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.ID, err)
		}
		normalized[i] = rec
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offline {
		return ErrOffline
	}
	m.upserts++

	for _, rec := range normalized {
		if current, ok := m.recs[rec.ID]; ok && !record.Supersedes(rec, current.Record) {
			continue
		}
		m.seq++
		m.recs[rec.ID] = Change{Seq: m.seq, Record: rec}
		for sub := range m.subs {
			sub.q.Enqueue(rec)
		}
	}
	return nil
}

// Since implements Remote.
func (m *Memory) Since(ctx context.Context, after int64, limit int) ([]Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offline {
		return nil, ErrOffline
	}

	return m.sinceLocked(after, limit), nil
}

func (m *Memory) sinceLocked(after int64, limit int) []Change {
	out := []Change{}
	for _, ch := range m.recs {
		if ch.Seq > after {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Subscribe implements Remote.
func (m *Memory) Subscribe(ctx context.Context, ready func(), fn func(record.Record)) error {
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return ErrOffline
	}
	sub := &memorySub{q: queue.New[record.Record]()}
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
	}()

	if ready != nil {
		ready()
	}

	for {
		if rec, ok := sub.q.TryDequeue(); ok {
			fn(rec)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.q.Wait():
			if sub.q.Closed() && sub.q.Len() == 0 {
				return ErrOffline
			}
		}
	}
}

// Get returns the stored version of id.
func (m *Memory) Get(id string) (record.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.recs[id]
	return ch.Record, ok
}

// All returns every stored record, tombstones included, in the order of
// their last accepted write.
// Unlike Since it ignores the simulated outage.
func (m *Memory) All() []record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	changes := m.sinceLocked(0, -1)
	out := make([]record.Record, len(changes))
	for i, ch := range changes {
		out[i] = ch.Record
	}
	return out
}

// Seq returns the position of the last accepted write.
func (m *Memory) Seq() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

// Upserts returns how many Upsert calls have been accepted.
func (m *Memory) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}
