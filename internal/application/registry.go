package application

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

// Registry is the single source of truth for account existence and lifecycle status.
type Registry struct {
	repo     ports.AccountRepository
	events   ports.EventSink
	clock    ports.Clock
	defaults domain.AccountLimits
}

func NewRegistry(repo ports.AccountRepository, events ports.EventSink, clock ports.Clock, defaults domain.AccountLimits) *Registry {
	return &Registry{
		repo:     repo,
		events:   orNopSink(events),
		clock:    orSystemClock(clock),
		defaults: defaults,
	}
}

// Register creates an active account with zero counters.
func (r *Registry) Register(ctx context.Context, cmd RegisterAccountCommand) (domain.Account, error) {
	now := r.clock.Now()

	limits := cmd.Limits
	if limits.Daily <= 0 {
		limits.Daily = r.defaults.Daily
	}
	if limits.PerDestination <= 0 {
		limits.PerDestination = r.defaults.PerDestination
	}

	id := domain.AccountID(strings.TrimSpace(string(cmd.ID)))
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name = fmt.Sprintf("Account %s", id)
	}

	account := domain.Account{
		ID:            id,
		Name:          name,
		CredentialRef: strings.TrimSpace(cmd.CredentialRef),
		Capabilities:  domain.NormalizeCapabilities(cmd.Capabilities),
		Status:        domain.AccountStatusActive,
		Limits:        limits,
		Usage:         domain.Usage{WindowStart: now, PerDestination: map[domain.Destination]int{}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := account.Validate(); err != nil {
		return domain.Account{}, err
	}

	if err := r.repo.Create(ctx, account); err != nil {
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}

	emit(ctx, r.events, r.clock, domain.Event{
		Type:      domain.EventAccountRegistered,
		AccountID: account.ID,
		To:        string(account.Status),
	})

	return account, nil
}

func (r *Registry) Get(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	account, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account by id: %w", err)
	}
	return account, nil
}

func (r *Registry) List(ctx context.Context) ([]domain.Account, error) {
	accounts, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID < accounts[j].ID
	})
	return accounts, nil
}

// ListEligible returns active accounts under their limits for capability and destination,
// least recently used first.
func (r *Registry) ListEligible(ctx context.Context, capability domain.Capability, destination domain.Destination) ([]domain.Account, error) {
	accounts, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	now := r.clock.Now()
	eligible := make([]domain.Account, 0, len(accounts))
	for _, account := range accounts {
		if account.Eligible(capability, destination, now) {
			eligible = append(eligible, account)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		left, right := eligible[i].LastUsedAt, eligible[j].LastUsedAt
		if left.Equal(right) {
			return eligible[i].ID < eligible[j].ID
		}
		return left.Before(right)
	})

	return eligible, nil
}

// Transition moves an account along the lifecycle state machine.
func (r *Registry) Transition(ctx context.Context, cmd TransitionCommand) (domain.Account, error) {
	var from domain.AccountStatus
	updated, err := r.repo.Update(ctx, cmd.ID, func(account *domain.Account) error {
		from = account.Status
		next, err := account.Transition(cmd.Status, domain.TransitionMeta{
			Reason:        cmd.Reason,
			CooldownUntil: cmd.CooldownUntil,
		}, r.clock.Now())
		if err != nil {
			return err
		}
		*account = next
		return nil
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("transition account %s: %w", cmd.ID, err)
	}

	emit(ctx, r.events, r.clock, domain.Event{
		Type:      domain.EventAccountTransition,
		AccountID: cmd.ID,
		From:      string(from),
		To:        string(updated.Status),
		Reason:    cmd.Reason,
	})

	return updated, nil
}

// Touch records an executed action that did not succeed. Failures the account is not blamed for
// only move last_used_at.
func (r *Registry) Touch(ctx context.Context, id domain.AccountID, kind domain.ErrorKind) (domain.Account, error) {
	now := r.clock.Now()
	account, err := r.repo.Update(ctx, id, func(account *domain.Account) error {
		account.LastUsedAt = now
		account.UpdatedAt = now
		if kind != domain.ErrorKindTargetUnreachable {
			account.ErrorCount++
		}
		return nil
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("record account failure: %w", err)
	}
	return account, nil
}
