package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func lease(id domain.AccountID, token string, ttl time.Duration) domain.Lease {
	return domain.Lease{AccountID: id, Token: token, AcquiredAt: epoch, ExpiresAt: epoch.Add(ttl)}
}

func TestStoreTryAcquireIsExclusive(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryAcquire(ctx, lease("acc-1", string(rune('a'+i)), time.Minute), epoch)
			assert.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
}

func TestStoreExpiredLeaseCanBeTaken(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	ok, err := store.TryAcquire(ctx, lease("acc-1", "first", time.Minute), epoch)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.TryAcquire(ctx, lease("acc-1", "second", time.Minute), epoch.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.TryAcquire(ctx, lease("acc-1", "second", time.Minute), epoch.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	current, held, err := store.Get(ctx, "acc-1", epoch.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, held)
	assert.Equal(t, "second", current.Token)
}

func TestStoreReleaseChecksToken(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first := lease("acc-1", "first", time.Minute)
	ok, err := store.TryAcquire(ctx, first, epoch)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Release(ctx, lease("acc-1", "stale", time.Minute)))
	_, held, err := store.Get(ctx, "acc-1", epoch)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, store.Release(ctx, first))
	require.NoError(t, store.Release(ctx, first))
	_, held, err = store.Get(ctx, "acc-1", epoch)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestStoreRenew(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	current := lease("acc-1", "first", time.Minute)
	ok, err := store.TryAcquire(ctx, current, epoch)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Renew(ctx, current, epoch.Add(2*time.Minute), epoch.Add(50*time.Second)))
	got, held, err := store.Get(ctx, "acc-1", epoch.Add(90*time.Second))
	require.NoError(t, err)
	require.True(t, held)
	assert.Equal(t, epoch.Add(2*time.Minute), got.ExpiresAt)

	err = store.Renew(ctx, lease("acc-1", "other", time.Minute), epoch.Add(3*time.Minute), epoch.Add(90*time.Second))
	assert.ErrorIs(t, err, domain.ErrLeaseNotHeld)

	err = store.Renew(ctx, current, epoch.Add(5*time.Minute), epoch.Add(2*time.Minute))
	assert.ErrorIs(t, err, domain.ErrLeaseNotHeld)
}
