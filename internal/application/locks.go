package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
	"github.com/google/uuid"
)

var ErrInvalidLeaseTTL = errors.New("lease ttl must be greater than zero")

// LockManager grants exclusive per-account leases. Acquire never waits.
type LockManager struct {
	store    ports.LeaseStore
	clock    ports.Clock
	newToken func() string
}

func NewLockManager(store ports.LeaseStore, clock ports.Clock) *LockManager {
	return &LockManager{
		store:    store,
		clock:    orSystemClock(clock),
		newToken: uuid.NewString,
	}
}

// Acquire returns domain.ErrBusy immediately when another holder owns the account.
func (m *LockManager) Acquire(ctx context.Context, id domain.AccountID, holder domain.Holder, ttl time.Duration) (domain.Lease, error) {
	if ttl <= 0 {
		return domain.Lease{}, ErrInvalidLeaseTTL
	}

	now := m.clock.Now()
	lease := domain.Lease{
		AccountID:  id,
		Token:      m.newToken(),
		Holder:     holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	ok, err := m.store.TryAcquire(ctx, lease, now)
	if err != nil {
		return domain.Lease{}, fmt.Errorf("acquire lease on %s: %w", id, err)
	}
	if !ok {
		return domain.Lease{}, fmt.Errorf("%w: %s", domain.ErrBusy, id)
	}

	return lease, nil
}

// Renew pushes the lease expiry to now+ttl.
func (m *LockManager) Renew(ctx context.Context, lease *domain.Lease, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidLeaseTTL
	}

	now := m.clock.Now()
	expiresAt := now.Add(ttl)
	if err := m.store.Renew(ctx, *lease, expiresAt, now); err != nil {
		return fmt.Errorf("renew lease on %s: %w", lease.AccountID, err)
	}

	lease.ExpiresAt = expiresAt
	return nil
}

// Release is idempotent.
func (m *LockManager) Release(ctx context.Context, lease domain.Lease) error {
	if err := m.store.Release(ctx, lease); err != nil {
		return fmt.Errorf("release lease on %s: %w", lease.AccountID, err)
	}
	return nil
}

func (m *LockManager) Holder(ctx context.Context, id domain.AccountID) (domain.Lease, bool, error) {
	lease, ok, err := m.store.Get(ctx, id, m.clock.Now())
	if err != nil {
		return domain.Lease{}, false, fmt.Errorf("get lease on %s: %w", id, err)
	}
	return lease, ok, nil
}
