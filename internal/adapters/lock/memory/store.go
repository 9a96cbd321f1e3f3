package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
)

// Store is a process-local lease store. It serializes all lease operations behind one mutex,
// which is enough for workers sharing a process; use the sqlite store across processes.
type Store struct {
	mu     sync.Mutex
	leases map[domain.AccountID]domain.Lease
}

func NewStore() *Store {
	return &Store{leases: map[domain.AccountID]domain.Lease{}}
}

func (s *Store) TryAcquire(ctx context.Context, lease domain.Lease, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.leases[lease.AccountID]; ok && !current.Expired(now) {
		return false, nil
	}
	s.leases[lease.AccountID] = lease
	return true, nil
}

func (s *Store) Renew(ctx context.Context, lease domain.Lease, expiresAt time.Time, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.leases[lease.AccountID]
	if !ok || current.Token != lease.Token || current.Expired(now) {
		return domain.ErrLeaseNotHeld
	}
	current.ExpiresAt = expiresAt
	s.leases[lease.AccountID] = current
	return nil
}

func (s *Store) Release(ctx context.Context, lease domain.Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.leases[lease.AccountID]; ok && current.Token == lease.Token {
		delete(s.leases, lease.AccountID)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id domain.AccountID, now time.Time) (domain.Lease, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Lease{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.leases[id]
	if !ok || current.Expired(now) {
		return domain.Lease{}, false, nil
	}
	return current, true, nil
}
