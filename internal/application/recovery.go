package application

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

type RecoveryEntry struct {
	AccountID domain.AccountID
	WakeAt    time.Time
	index     int
}

type recoveryQueue []*RecoveryEntry

func (q recoveryQueue) Len() int { return len(q) }

func (q recoveryQueue) Less(i, j int) bool {
	if q[i].WakeAt.Equal(q[j].WakeAt) {
		return q[i].AccountID < q[j].AccountID
	}
	return q[i].WakeAt.Before(q[j].WakeAt)
}

func (q recoveryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *recoveryQueue) Push(x any) {
	entry := x.(*RecoveryEntry)
	entry.index = len(*q)
	*q = append(*q, entry)
}

func (q *recoveryQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*q = old[:n-1]
	return entry
}

// RecoveryScheduler is the only component that promotes cooling accounts back to active.
type RecoveryScheduler struct {
	registry *Registry
	ledger   *Ledger
	events   ports.EventSink
	clock    ports.Clock

	mu    sync.Mutex
	queue recoveryQueue
	byID  map[domain.AccountID]*RecoveryEntry

	sweepMu sync.Mutex
}

func NewRecoveryScheduler(registry *Registry, ledger *Ledger, events ports.EventSink, clock ports.Clock) *RecoveryScheduler {
	return &RecoveryScheduler{
		registry: registry,
		ledger:   ledger,
		events:   orNopSink(events),
		clock:    orSystemClock(clock),
		byID:     map[domain.AccountID]*RecoveryEntry{},
	}
}

// Schedule inserts or moves the wake time of an account.
func (s *RecoveryScheduler) Schedule(id domain.AccountID, wakeAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.byID[id]; ok {
		entry.WakeAt = wakeAt
		heap.Fix(&s.queue, entry.index)
		return
	}

	entry := &RecoveryEntry{AccountID: id, WakeAt: wakeAt}
	heap.Push(&s.queue, entry)
	s.byID[id] = entry
}

func (s *RecoveryScheduler) Remove(id domain.AccountID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[id]
	if !ok {
		return
	}
	heap.Remove(&s.queue, entry.index)
	delete(s.byID, id)
}

func (s *RecoveryScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Next returns the entry that wakes first.
func (s *RecoveryScheduler) Next() (RecoveryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 {
		return RecoveryEntry{}, false
	}
	return RecoveryEntry{AccountID: s.queue[0].AccountID, WakeAt: s.queue[0].WakeAt}, true
}

// Sync rebuilds the queue from persisted state so penalties applied by other processes, or before a restart, are honored.
func (s *RecoveryScheduler) Sync(ctx context.Context) error {
	accounts, err := s.registry.List(ctx)
	if err != nil {
		return err
	}

	cooling := make(map[domain.AccountID]time.Time, len(accounts))
	for _, account := range accounts {
		if account.Status == domain.AccountStatusCoolingDown {
			cooling[account.ID] = account.CooldownUntil
		}
	}

	s.mu.Lock()
	stale := make([]domain.AccountID, 0)
	for id := range s.byID {
		if _, ok := cooling[id]; !ok {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.Remove(id)
	}
	for id, wakeAt := range cooling {
		s.Schedule(id, wakeAt)
	}

	return nil
}

// Sweep promotes every account whose wake time has passed. Sweeps never overlap.
func (s *RecoveryScheduler) Sweep(ctx context.Context) ([]domain.AccountID, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	now := s.clock.Now()
	due := s.popDue(now)

	reactivated := make([]domain.AccountID, 0, len(due))
	var errs error
	for _, entry := range due {
		_, err := s.registry.Transition(ctx, TransitionCommand{
			ID:     entry.AccountID,
			Status: domain.AccountStatusActive,
			Reason: "cooldown expired",
		})
		if err == nil {
			reactivated = append(reactivated, entry.AccountID)
			emit(ctx, s.events, s.clock, domain.Event{
				Type:      domain.EventRecoveryReactivated,
				AccountID: entry.AccountID,
				From:      string(domain.AccountStatusCoolingDown),
				To:        string(domain.AccountStatusActive),
			})
			continue
		}

		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrAccountNotFound) {
			s.reconcile(ctx, entry.AccountID)
			continue
		}

		s.Schedule(entry.AccountID, entry.WakeAt)
		errs = errors.Join(errs, err)
	}

	return reactivated, errs
}

// Run syncs, rolls daily windows and sweeps on every tick until ctx is done.
func (s *RecoveryScheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be greater than zero")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.tick(ctx); err != nil && ctx.Err() == nil {
			emit(ctx, s.events, s.clock, domain.Event{
				Type:   domain.EventRecoverySweepFailed,
				Reason: err.Error(),
			})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *RecoveryScheduler) tick(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}

	var errs error
	if s.ledger != nil {
		if _, err := s.ledger.DailyReset(ctx); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if _, err := s.Sweep(ctx); err != nil {
		errs = errors.Join(errs, err)
	}
	return errs
}

func (s *RecoveryScheduler) popDue(now time.Time) []RecoveryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]RecoveryEntry, 0)
	for s.queue.Len() > 0 && !now.Before(s.queue[0].WakeAt) {
		entry := heap.Pop(&s.queue).(*RecoveryEntry)
		delete(s.byID, entry.AccountID)
		due = append(due, RecoveryEntry{AccountID: entry.AccountID, WakeAt: entry.WakeAt})
	}
	return due
}

// reconcile re-queues an account whose cooldown was extended since it was scheduled.
func (s *RecoveryScheduler) reconcile(ctx context.Context, id domain.AccountID) {
	account, err := s.registry.Get(ctx, id)
	if err != nil {
		return
	}
	if account.Status == domain.AccountStatusCoolingDown {
		s.Schedule(id, account.CooldownUntil)
	}
}
