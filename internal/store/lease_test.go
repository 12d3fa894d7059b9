package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frugalflow/internal/testutil"
)

const leaseName = "replication"

func TestAcquireLease_Free(t *testing.T) {
	clock := testutil.NewFakeClock(baseTime)
	s := createTestStore(t, WithClock(clock))
	ctx := context.Background()

	row, ok, err := s.AcquireLease(ctx, leaseName, "a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", row.Owner)
	assert.True(t, baseTime.Add(10*time.Second).Equal(row.ExpiresAt))
}

func TestAcquireLease_HeldByOther(t *testing.T) {
	clock := testutil.NewFakeClock(baseTime)
	s := createTestStore(t, WithClock(clock))
	ctx := context.Background()

	_, ok, err := s.AcquireLease(ctx, leaseName, "a", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.AcquireLease(ctx, leaseName, "b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	holder, held, err := s.LeaseHolder(ctx, leaseName)
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, "a", holder.Owner)
}

func TestAcquireLease_ReacquireBySameOwner(t *testing.T) {
	clock := testutil.NewFakeClock(baseTime)
	s := createTestStore(t, WithClock(clock))
	ctx := context.Background()

	_, _, err := s.AcquireLease(ctx, leaseName, "a", 10*time.Second)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	row, ok, err := s.AcquireLease(ctx, leaseName, "a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, baseTime.Add(15*time.Second).Equal(row.ExpiresAt))
}

func TestAcquireLease_AfterExpiry(t *testing.T) {
	clock := testutil.NewFakeClock(baseTime)
	s := createTestStore(t, WithClock(clock))
	ctx := context.Background()

	_, _, err := s.AcquireLease(ctx, leaseName, "a", 10*time.Second)
	require.NoError(t, err)

	clock.Advance(10 * time.Second)

	_, held, err := s.LeaseHolder(ctx, leaseName)
	require.NoError(t, err)
	assert.False(t, held, "lease must be free at its expiry instant")

	row, ok, err := s.AcquireLease(ctx, leaseName, "b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", row.Owner)
}

func TestRenewLease(t *testing.T) {
	clock := testutil.NewFakeClock(baseTime)
	s := createTestStore(t, WithClock(clock))
	ctx := context.Background()

	_, _, err := s.AcquireLease(ctx, leaseName, "a", 10*time.Second)
	require.NoError(t, err)

	clock.Advance(3 * time.Second)
	row, ok, err := s.RenewLease(ctx, leaseName, "a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, baseTime.Add(13*time.Second).Equal(row.ExpiresAt))

	_, ok, err = s.RenewLease(ctx, leaseName, "b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "non-holder cannot renew")
}

func TestRenewLease_FailsAfterExpiry(t *testing.T) {
	clock := testutil.NewFakeClock(baseTime)
	s := createTestStore(t, WithClock(clock))
	ctx := context.Background()

	_, _, err := s.AcquireLease(ctx, leaseName, "a", 10*time.Second)
	require.NoError(t, err)

	clock.Advance(11 * time.Second)
	_, ok, err := s.RenewLease(ctx, leaseName, "a", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseLease(t *testing.T) {
	clock := testutil.NewFakeClock(baseTime)
	s := createTestStore(t, WithClock(clock))
	ctx := context.Background()

	_, _, err := s.AcquireLease(ctx, leaseName, "a", 10*time.Second)
	require.NoError(t, err)

	// Release by a non-holder is a no-op.
	require.NoError(t, s.ReleaseLease(ctx, leaseName, "b"))
	_, held, err := s.LeaseHolder(ctx, leaseName)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, s.ReleaseLease(ctx, leaseName, "a"))
	_, held, err = s.LeaseHolder(ctx, leaseName)
	require.NoError(t, err)
	assert.False(t, held)

	_, ok, err := s.AcquireLease(ctx, leaseName, "b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
