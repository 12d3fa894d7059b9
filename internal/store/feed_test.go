package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frugalflow/internal/record"
)

const feedTimeout = 2 * time.Second

func receive(t *testing.T, sub *Subscription) Change {
	t.Helper()
	select {
	case change, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return change
	case <-time.After(feedTimeout):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func expectNone(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case change := <-sub.C():
		t.Fatalf("unexpected change at seq %d", change.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

func ids(recs []record.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestSubscribe_InitialSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, createTestRecord("tx-1", "10", record.TypeIncome, 0))
	require.NoError(t, err)

	sub, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	change := receive(t, sub)
	assert.Equal(t, int64(1), change.Seq)
	assert.Equal(t, []string{"tx-1"}, ids(change.Records))
}

func TestSubscribe_EmptyStoreEmitsEmptySnapshot(t *testing.T) {
	s := createTestStore(t)

	sub, err := s.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	change := receive(t, sub)
	assert.Equal(t, int64(0), change.Seq)
	assert.NotNil(t, change.Records)
	assert.Empty(t, change.Records)
}

func TestSubscribe_EmitsInCommitOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()
	receive(t, sub)

	// Writes land before the subscriber reads anything.
	_, err = s.Insert(ctx, createTestRecord("a", "1", record.TypeIncome, 0))
	require.NoError(t, err)
	_, err = s.Merge(ctx, createTestRecord("b", "1", record.TypeIncome, 1))
	require.NoError(t, err)
	_, err = s.Insert(ctx, createTestRecord("c", "1", record.TypeIncome, 2))
	require.NoError(t, err)

	var seqs []int64
	var sizes []int
	for i := 0; i < 3; i++ {
		change := receive(t, sub)
		seqs = append(seqs, change.Seq)
		sizes = append(sizes, len(change.Records))
	}
	assert.Equal(t, []int64{1, 2, 3}, seqs)
	assert.Equal(t, []int{1, 2, 3}, sizes)
}

func TestSubscribe_NoEmissionForNoopMerge(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := createTestRecord("a", "1", record.TypeIncome, 0)

	_, err := s.Merge(ctx, rec)
	require.NoError(t, err)

	sub, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()
	receive(t, sub)

	applied, err := s.Merge(ctx, rec)
	require.NoError(t, err)
	require.False(t, applied)

	expectNone(t, sub)
}

func TestSubscribe_NoEmissionForRejectedWrite(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()
	receive(t, sub)

	bad := createTestRecord("a", "1", record.TypeIncome, 0)
	bad.Merchant = ""
	_, err = s.Insert(ctx, bad)
	require.Error(t, err)

	expectNone(t, sub)
}

func TestSubscribe_TombstoneRemovesFromSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := createTestRecord("a", "1", record.TypeIncome, 0)

	_, err := s.Insert(ctx, rec)
	require.NoError(t, err)

	sub, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()
	receive(t, sub)

	_, err = s.Merge(ctx, tombstone(rec, 1))
	require.NoError(t, err)

	change := receive(t, sub)
	assert.Empty(t, change.Records)
}

func TestSubscribe_ResubscribeStartsFromCurrent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.Subscribe(ctx)
	require.NoError(t, err)
	receive(t, first)
	first.Close()

	_, err = s.Insert(ctx, createTestRecord("a", "1", record.TypeIncome, 0))
	require.NoError(t, err)

	second, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer second.Close()

	change := receive(t, second)
	assert.Equal(t, int64(1), change.Seq)
	assert.Len(t, change.Records, 1)
}

func TestSubscribe_ContextCancelClosesChannel(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := s.Subscribe(ctx)
	require.NoError(t, err)
	receive(t, sub)

	cancel()

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(feedTimeout):
		t.Fatal("channel not closed after cancel")
	}
}

func TestSubscribe_StoreCloseEndsSubscriptions(t *testing.T) {
	s := createTestStore(t)

	sub, err := s.Subscribe(context.Background())
	require.NoError(t, err)
	receive(t, sub)

	require.NoError(t, s.Close())

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(feedTimeout):
		t.Fatal("channel not closed after store close")
	}
}

func TestSubscribe_IndependentSubscribers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	slow, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer slow.Close()
	fast, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer fast.Close()

	receive(t, fast)
	for _, id := range []string{"a", "b"} {
		_, err := s.Insert(ctx, createTestRecord(id, "1", record.TypeIncome, 0))
		require.NoError(t, err)
	}

	// fast drains without slow reading anything.
	assert.Equal(t, int64(1), receive(t, fast).Seq)
	assert.Equal(t, int64(2), receive(t, fast).Seq)

	assert.Equal(t, int64(0), receive(t, slow).Seq)
	assert.Equal(t, int64(1), receive(t, slow).Seq)
	assert.Equal(t, int64(2), receive(t, slow).Seq)
}
