package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockManagerAcquireIsExclusive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const workers = 16
	var (
		mu      sync.Mutex
		granted []domain.Lease
		busy    int
		wg      sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := h.locks.Acquire(ctx, "acc-1", domain.Holder{Consumer: "worker"}, time.Minute)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted = append(granted, lease)
			case errors.Is(err, domain.ErrBusy):
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, granted, 1)
	assert.Equal(t, workers-1, busy)
	assert.NotEmpty(t, granted[0].Token)
	assert.Equal(t, epoch.Add(time.Minute), granted[0].ExpiresAt)
}

func TestLockManagerReleaseAllowsNextHolder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.locks.Acquire(ctx, "acc-1", domain.Holder{Consumer: "a"}, time.Minute)
	require.NoError(t, err)

	holder, held, err := h.locks.Holder(ctx, "acc-1")
	require.NoError(t, err)
	require.True(t, held)
	assert.Equal(t, "a", holder.Holder.Consumer)

	require.NoError(t, h.locks.Release(ctx, first))
	require.NoError(t, h.locks.Release(ctx, first))

	second, err := h.locks.Acquire(ctx, "acc-1", domain.Holder{Consumer: "b"}, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	// A stale holder cannot drop the newer lease.
	require.NoError(t, h.locks.Release(ctx, first))
	_, held, err = h.locks.Holder(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestLockManagerExpiredLeaseIsReclaimable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.locks.Acquire(ctx, "acc-1", domain.Holder{Consumer: "crashed"}, time.Minute)
	require.NoError(t, err)

	_, err = h.locks.Acquire(ctx, "acc-1", domain.Holder{Consumer: "b"}, time.Minute)
	assert.ErrorIs(t, err, domain.ErrBusy)

	h.clock.Advance(time.Minute)
	_, err = h.locks.Acquire(ctx, "acc-1", domain.Holder{Consumer: "b"}, time.Minute)
	assert.NoError(t, err)
}

func TestLockManagerRenew(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	lease, err := h.locks.Acquire(ctx, "acc-1", domain.Holder{Consumer: "a"}, time.Minute)
	require.NoError(t, err)

	h.clock.Advance(40 * time.Second)
	require.NoError(t, h.locks.Renew(ctx, &lease, time.Minute))
	assert.Equal(t, epoch.Add(100*time.Second), lease.ExpiresAt)

	h.clock.Advance(40 * time.Second)
	_, err = h.locks.Acquire(ctx, "acc-1", domain.Holder{Consumer: "b"}, time.Minute)
	assert.ErrorIs(t, err, domain.ErrBusy)

	h.clock.Advance(time.Minute)
	err = h.locks.Renew(ctx, &lease, time.Minute)
	assert.ErrorIs(t, err, domain.ErrLeaseNotHeld)
}

func TestLockManagerRejectsInvalidTTL(t *testing.T) {
	h := newHarness(t)

	_, err := h.locks.Acquire(context.Background(), "acc-1", domain.Holder{}, 0)
	assert.ErrorIs(t, err, ErrInvalidLeaseTTL)
}
