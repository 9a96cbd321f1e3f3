package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

// LeaseStore keeps account leases in the account_leases table. Acquisition is one conditional
// upsert, so the database decides the winner when processes race for the same account.
type LeaseStore struct {
	store *Store
}

var _ ports.LeaseStore = (*LeaseStore)(nil)

func (s *Store) Leases() *LeaseStore {
	return &LeaseStore{store: s}
}

func (l *LeaseStore) TryAcquire(ctx context.Context, lease domain.Lease, now time.Time) (bool, error) {
	if err := l.store.check(ctx); err != nil {
		return false, err
	}

	result, err := l.store.sqlDB.ExecContext(ctx, `INSERT INTO account_leases (account_id, token, purpose, consumer, acquired_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(account_id) DO UPDATE SET
token = excluded.token,
purpose = excluded.purpose,
consumer = excluded.consumer,
acquired_at = excluded.acquired_at,
expires_at = excluded.expires_at
WHERE account_leases.expires_at <= ?`,
		string(lease.AccountID),
		lease.Token,
		lease.Holder.Purpose,
		lease.Holder.Consumer,
		toMillis(lease.AcquiredAt),
		toMillis(lease.ExpiresAt),
		toMillis(now),
	)
	if err != nil {
		return false, fmt.Errorf("acquire lease on %s: %w", lease.AccountID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease on %s: %w", lease.AccountID, err)
	}
	return affected > 0, nil
}

func (l *LeaseStore) Renew(ctx context.Context, lease domain.Lease, expiresAt time.Time, now time.Time) error {
	if err := l.store.check(ctx); err != nil {
		return err
	}

	result, err := l.store.sqlDB.ExecContext(ctx,
		"UPDATE account_leases SET expires_at = ? WHERE account_id = ? AND token = ? AND expires_at > ?",
		toMillis(expiresAt), string(lease.AccountID), lease.Token, toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("renew lease on %s: %w", lease.AccountID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("renew lease on %s: %w", lease.AccountID, err)
	}
	if affected == 0 {
		return domain.ErrLeaseNotHeld
	}
	return nil
}

func (l *LeaseStore) Release(ctx context.Context, lease domain.Lease) error {
	if err := l.store.check(ctx); err != nil {
		return err
	}

	_, err := l.store.sqlDB.ExecContext(ctx,
		"DELETE FROM account_leases WHERE account_id = ? AND token = ?",
		string(lease.AccountID), lease.Token,
	)
	if err != nil {
		return fmt.Errorf("release lease on %s: %w", lease.AccountID, err)
	}
	return nil
}

func (l *LeaseStore) Get(ctx context.Context, id domain.AccountID, now time.Time) (domain.Lease, bool, error) {
	if err := l.store.check(ctx); err != nil {
		return domain.Lease{}, false, err
	}

	var lease domain.Lease
	var acquired, expires int64
	err := l.store.sqlDB.QueryRowContext(ctx,
		"SELECT token, purpose, consumer, acquired_at, expires_at FROM account_leases WHERE account_id = ? AND expires_at > ?",
		string(id), toMillis(now),
	).Scan(&lease.Token, &lease.Holder.Purpose, &lease.Holder.Consumer, &acquired, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lease{}, false, nil
	}
	if err != nil {
		return domain.Lease{}, false, fmt.Errorf("get lease on %s: %w", id, err)
	}

	lease.AccountID = id
	lease.AcquiredAt = fromMillis(acquired)
	lease.ExpiresAt = fromMillis(expires)
	return lease, true, nil
}
