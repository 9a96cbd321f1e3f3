package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

// Allocation is a granted lease plus the account snapshot taken under it.
type Allocation struct {
	Lease       domain.Lease
	Account     domain.Account
	Reservation Reservation
}

// Allocator bridges eligibility (registry and ledger) and exclusivity (lock manager).
type Allocator struct {
	registry   *Registry
	ledger     *Ledger
	locks      *LockManager
	classifier *Classifier
	events     ports.EventSink
	clock      ports.Clock
	defaultTTL time.Duration
}

func NewAllocator(registry *Registry, ledger *Ledger, locks *LockManager, classifier *Classifier, events ports.EventSink, clock ports.Clock, defaultTTL time.Duration) *Allocator {
	return &Allocator{
		registry:   registry,
		ledger:     ledger,
		locks:      locks,
		classifier: classifier,
		events:     orNopSink(events),
		clock:      orSystemClock(clock),
		defaultTTL: defaultTTL,
	}
}

// Allocate leases the least recently used eligible account. It never waits on a busy account and returns
// domain.ErrNoAccountsAvailable when every candidate is busy, over a limit or excluded.
func (a *Allocator) Allocate(ctx context.Context, req AllocationRequest) (Allocation, error) {
	ttl := req.TTL
	if ttl <= 0 {
		ttl = a.defaultTTL
	}
	if ttl <= 0 {
		return Allocation{}, ErrInvalidLeaseTTL
	}

	candidates, err := a.registry.ListEligible(ctx, req.Capability, req.Destination)
	if err != nil {
		return Allocation{}, err
	}

	excluded := make(map[domain.AccountID]struct{}, len(req.Exclude))
	for _, id := range req.Exclude {
		excluded[id] = struct{}{}
	}

	holder := domain.Holder{Purpose: req.Purpose, Consumer: req.Consumer}
	for _, candidate := range candidates {
		if _, skip := excluded[candidate.ID]; skip {
			continue
		}

		allocation, ok, err := a.tryCandidate(ctx, candidate.ID, req, holder, ttl)
		if err != nil {
			return Allocation{}, err
		}
		if !ok {
			continue
		}

		emit(ctx, a.events, a.clock, domain.Event{
			Type:      domain.EventAllocationGranted,
			AccountID: allocation.Account.ID,
			Reason:    fmt.Sprintf("%s %s", req.Capability, req.Destination),
		})
		return allocation, nil
	}

	emit(ctx, a.events, a.clock, domain.Event{
		Type:   domain.EventAllocationExhausted,
		Reason: fmt.Sprintf("%s %s", req.Capability, req.Destination),
	})
	return Allocation{}, domain.ErrNoAccountsAvailable
}

func (a *Allocator) tryCandidate(ctx context.Context, id domain.AccountID, req AllocationRequest, holder domain.Holder, ttl time.Duration) (Allocation, bool, error) {
	reservation, err := a.ledger.CheckAndReserve(ctx, id, req.Destination)
	if err != nil {
		if domain.IsTransient(err) || errors.Is(err, domain.ErrAccountNotFound) {
			return Allocation{}, false, nil
		}
		return Allocation{}, false, err
	}

	lease, err := a.locks.Acquire(ctx, id, holder, ttl)
	if err != nil {
		if errors.Is(err, domain.ErrBusy) {
			return Allocation{}, false, nil
		}
		return Allocation{}, false, err
	}

	// The eligibility read above happened before the lease; re-read now that this holder is exclusive.
	account, err := a.registry.Get(ctx, id)
	if err == nil && account.Eligible(req.Capability, req.Destination, a.clock.Now()) {
		return Allocation{Lease: lease, Account: account, Reservation: reservation}, true, nil
	}

	releaseErr := a.locks.Release(context.WithoutCancel(ctx), lease)
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return Allocation{}, false, errors.Join(err, releaseErr)
	}
	if releaseErr != nil {
		return Allocation{}, false, releaseErr
	}
	return Allocation{}, false, nil
}

// Renew extends the allocation's lease by the default ttl.
func (a *Allocator) Renew(ctx context.Context, allocation *Allocation) error {
	return a.locks.Renew(ctx, &allocation.Lease, a.defaultTTL)
}

// Release records the outcome of an executed action and always releases the lease.
// Success commits the reservation; failures are routed through the classifier and never touch counters.
func (a *Allocator) Release(ctx context.Context, allocation Allocation, outcome domain.UsageRecord) (err error) {
	ctx = context.WithoutCancel(ctx)
	defer func() {
		err = errors.Join(err, a.unlock(ctx, allocation, string(outcome.ErrorKind)))
	}()

	if outcome.Success {
		if _, err := a.ledger.Commit(ctx, allocation.Reservation); err != nil {
			return err
		}
		return nil
	}

	if _, err := a.registry.Touch(ctx, allocation.Account.ID, outcome.ErrorKind); err != nil {
		return err
	}
	if _, err := a.classifier.Apply(ctx, outcome); err != nil {
		return fmt.Errorf("apply penalty: %w", err)
	}
	return nil
}

// Abandon releases the lease of an action that never executed.
func (a *Allocator) Abandon(ctx context.Context, allocation Allocation) error {
	return a.unlock(context.WithoutCancel(ctx), allocation, "abandoned")
}

func (a *Allocator) unlock(ctx context.Context, allocation Allocation, reason string) error {
	err := a.locks.Release(ctx, allocation.Lease)
	emit(ctx, a.events, a.clock, domain.Event{
		Type:      domain.EventLeaseReleased,
		AccountID: allocation.Lease.AccountID,
		Reason:    reason,
	})
	return err
}
