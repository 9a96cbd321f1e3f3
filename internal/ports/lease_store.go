package ports

import (
	"context"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
)

// LeaseStore keeps at most one unexpired lease per account.
type LeaseStore interface {
	// TryAcquire stores lease unless an unexpired lease exists for the account at now.
	// It returns false with a nil error when another holder owns the account.
	TryAcquire(ctx context.Context, lease domain.Lease, now time.Time) (bool, error)
	// Renew moves ExpiresAt of the lease identified by account and token. It returns domain.ErrLeaseNotHeld
	// when the token no longer owns the account or the lease already expired.
	Renew(ctx context.Context, lease domain.Lease, expiresAt time.Time, now time.Time) error
	// Release drops the lease if the token still owns it. Releasing twice is not an error.
	Release(ctx context.Context, lease domain.Lease) error
	// Get returns the unexpired lease for the account, if any.
	Get(ctx context.Context, id domain.AccountID, now time.Time) (domain.Lease, bool, error)
}
