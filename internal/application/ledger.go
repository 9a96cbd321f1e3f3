package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

// Reservation is the result of a successful limit check; committing it consumes one action.
type Reservation struct {
	AccountID   domain.AccountID
	Destination domain.Destination
	ReservedAt  time.Time
}

// Ledger owns the rate counters of every account.
type Ledger struct {
	repo   ports.AccountRepository
	events ports.EventSink
	clock  ports.Clock
}

func NewLedger(repo ports.AccountRepository, events ports.EventSink, clock ports.Clock) *Ledger {
	return &Ledger{
		repo:   repo,
		events: orNopSink(events),
		clock:  orSystemClock(clock),
	}
}

// CheckAndReserve returns domain.ErrDailyLimitExceeded or domain.ErrDestinationLimitExceeded when the account
// cannot take one more action. It never mutates counters.
func (l *Ledger) CheckAndReserve(ctx context.Context, id domain.AccountID, destination domain.Destination) (Reservation, error) {
	account, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return Reservation{}, fmt.Errorf("get account by id: %w", err)
	}

	now := l.clock.Now()
	if err := account.Usage.Check(account.Limits, destination, now); err != nil {
		return Reservation{}, err
	}

	return Reservation{AccountID: id, Destination: destination, ReservedAt: now}, nil
}

// Commit consumes the reservation after the action succeeded.
func (l *Ledger) Commit(ctx context.Context, reservation Reservation) (domain.Account, error) {
	now := l.clock.Now()
	account, err := l.repo.Update(ctx, reservation.AccountID, func(account *domain.Account) error {
		account.Usage.Commit(reservation.Destination, now)
		account.LastUsedAt = now
		account.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("commit usage: %w", err)
	}
	return account, nil
}

// DailyReset zeroes the daily counter of every account whose own 24h window elapsed and returns how many rolled.
func (l *Ledger) DailyReset(ctx context.Context) (int, error) {
	accounts, err := l.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	now := l.clock.Now()
	rolled := 0
	var errs error
	for _, account := range accounts {
		if !account.Usage.WindowElapsed(now) {
			continue
		}

		didRoll := false
		_, err := l.repo.Update(ctx, account.ID, func(account *domain.Account) error {
			didRoll = account.Usage.Roll(now)
			if didRoll {
				account.UpdatedAt = now
			}
			return nil
		})
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("reset account %s: %w", account.ID, err))
			continue
		}
		if !didRoll {
			continue
		}

		rolled++
		emit(ctx, l.events, l.clock, domain.Event{
			Type:      domain.EventLedgerDailyReset,
			AccountID: account.ID,
		})
	}

	return rolled, errs
}
