package balance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frugalflow/internal/broadcast"
	"github.com/roach88/frugalflow/internal/record"
	"github.com/roach88/frugalflow/internal/store"
)

var baseTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRecord(id, amount string, typ record.Type) record.Record {
	return record.Record{
		ID:        id,
		Amount:    decimal.RequireFromString(amount),
		Merchant:  record.DefaultMerchant,
		Category:  record.DefaultCategory,
		Type:      typ,
		Date:      baseTime,
		UpdatedAt: baseTime,
	}
}

// startAggregator runs an aggregator until the test ends.
func startAggregator(t *testing.T, s *store.Store) *Aggregator {
	t.Helper()
	agg := New(s)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		agg.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return agg
}

func next(t *testing.T, sub *broadcast.Subscription[decimal.Decimal]) decimal.Decimal {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		require.True(t, ok)
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for balance")
		return decimal.Zero
	}
}

func insert(t *testing.T, s *store.Store, agg *Aggregator, r record.Record) {
	t.Helper()
	ctx := context.Background()
	seq, err := s.Insert(ctx, r)
	require.NoError(t, err)
	require.NoError(t, agg.WaitFor(ctx, seq))
}

func TestCompute(t *testing.T) {
	deleted := newRecord("c", "100", record.TypeIncome)
	deleted.Deleted = true

	got := Compute([]record.Record{
		newRecord("a", "10.25", record.TypeIncome),
		newRecord("b", "3.10", record.TypeExpense),
		deleted,
	})
	assert.True(t, got.Equal(decimal.RequireFromString("7.15")), "got %s", got)
}

func TestCompute_Empty(t *testing.T) {
	assert.True(t, Compute(nil).IsZero())
}

func TestAggregator_EmptyStorePublishesZero(t *testing.T) {
	s := newStore(t)
	agg := startAggregator(t, s)

	sub := agg.Subscribe()
	defer sub.Cancel()
	assert.True(t, next(t, sub).IsZero())
}

func TestAggregator_IncomeAndExpense(t *testing.T) {
	s := newStore(t)
	agg := startAggregator(t, s)

	insert(t, s, agg, newRecord("a", "10", record.TypeIncome))
	got, ok := agg.Current()
	require.True(t, ok)
	assert.True(t, got.Equal(decimal.NewFromInt(10)))

	insert(t, s, agg, newRecord("b", "42.50", record.TypeExpense))
	got, _ = agg.Current()
	assert.True(t, got.Equal(decimal.RequireFromString("-32.5")), "got %s", got)
}

func TestAggregator_LateSubscriberGetsLastValue(t *testing.T) {
	s := newStore(t)
	agg := startAggregator(t, s)

	insert(t, s, agg, newRecord("a", "5", record.TypeIncome))

	late := agg.Subscribe()
	defer late.Cancel()
	assert.True(t, next(t, late).Equal(decimal.NewFromInt(5)))
}

func TestAggregator_UnchangedBalanceNotRepublished(t *testing.T) {
	s := newStore(t)
	agg := startAggregator(t, s)

	insert(t, s, agg, newRecord("a", "5", record.TypeIncome))
	sub := agg.Subscribe()
	defer sub.Cancel()
	next(t, sub)

	// A zero amount changes the snapshot but not the balance.
	insert(t, s, agg, newRecord("b", "0", record.TypeExpense))

	select {
	case v := <-sub.C():
		t.Fatalf("unexpected republish of %s", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAggregator_TombstoneRemovesAmount(t *testing.T) {
	s := newStore(t)
	agg := startAggregator(t, s)
	ctx := context.Background()

	r := newRecord("a", "5", record.TypeIncome)
	insert(t, s, agg, r)

	gone := r
	gone.Deleted = true
	gone.UpdatedAt = baseTime.Add(time.Minute)
	_, err := s.Merge(ctx, gone)
	require.NoError(t, err)

	seq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	require.NoError(t, agg.WaitFor(ctx, seq))

	got, _ := agg.Current()
	assert.True(t, got.IsZero(), "got %s", got)
}

func TestAggregator_WaitForHonoursContext(t *testing.T) {
	s := newStore(t)
	agg := startAggregator(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := agg.WaitFor(ctx, 99)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAggregator_WaitForAfterStop(t *testing.T) {
	s := newStore(t)
	agg := New(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agg.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	err := agg.WaitFor(context.Background(), 99)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestAggregator_StoreCloseEndsRun(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	agg := New(s)

	done := make(chan error, 1)
	go func() { done <- agg.Run(context.Background()) }()

	// Wait for the first balance so Run is subscribed.
	sub := agg.Subscribe()
	next(t, sub)
	require.NoError(t, s.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after store close")
	}
}

func TestAggregator_WaitForZeroWaitsForFirstSnapshot(t *testing.T) {
	s := newStore(t)
	agg := startAggregator(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, agg.WaitFor(ctx, 0))
	got, ok := agg.Current()
	require.True(t, ok)
	assert.True(t, got.IsZero())
}
