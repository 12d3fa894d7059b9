package lease

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postgresLease connects to FRUGALFLOW_TEST_POSTGRES_URL, skipping the test
// when it is unset.
func postgresLease(t *testing.T, name string) *Postgres {
	t.Helper()
	url := os.Getenv("FRUGALFLOW_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("FRUGALFLOW_TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	l := NewPostgres(pool, name)
	require.NoError(t, l.EnsureSchema(ctx))
	_, err = pool.Exec(ctx, `DELETE FROM ledger_leases WHERE name = $1`, name)
	require.NoError(t, err)
	return l
}

func TestPostgres_Lifecycle(t *testing.T) {
	l := postgresLease(t, "test-lifecycle")
	ctx := context.Background()

	claim, err := l.Acquire(ctx, "a", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", claim.Owner)
	assert.True(t, claim.Expires.After(time.Now().Add(-time.Minute)))

	_, err = l.Acquire(ctx, "b", 10*time.Second)
	assert.ErrorIs(t, err, ErrHeld)

	_, err = l.Renew(ctx, "a", 10*time.Second)
	require.NoError(t, err)
	_, err = l.Renew(ctx, "b", 10*time.Second)
	assert.ErrorIs(t, err, ErrLost)

	holder, held, err := l.Holder(ctx)
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, "a", holder.Owner)

	require.NoError(t, l.Release(ctx, "a"))
	_, held, err = l.Holder(ctx)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestPostgres_ExpiredClaimCanBeTaken(t *testing.T) {
	l := postgresLease(t, "test-expiry")
	ctx := context.Background()

	_, err := l.Acquire(ctx, "a", 50*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	claim, err := l.Acquire(ctx, "b", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b", claim.Owner)
}
