package application

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

// Service covers operator-facing reads and account maintenance outside the allocation path.
type Service struct {
	accounts  ports.AccountRepository
	campaigns ports.CampaignRepository
	locks     *LockManager
	store     ports.CredentialStore
	clock     ports.Clock
}

func NewService(accounts ports.AccountRepository, campaigns ports.CampaignRepository, locks *LockManager, store ports.CredentialStore, clock ports.Clock) *Service {
	return &Service{
		accounts:  accounts,
		campaigns: campaigns,
		locks:     locks,
		store:     store,
		clock:     orSystemClock(clock),
	}
}

// CredentialKey is the credential store key of an account.
func CredentialKey(id domain.AccountID) string {
	return fmt.Sprintf("opool://%s/credential", id)
}

// SetCredential stores the secret and points the account at it. The previous credential is removed
// only once the account references the new one. An unauthenticated account becomes active again.
func (s *Service) SetCredential(ctx context.Context, id domain.AccountID, secret string) error {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}
	previous := account.CredentialRef
	key := CredentialKey(id)

	if err := s.store.Put(ctx, key, secret); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}

	_, err = s.accounts.Update(ctx, id, func(account *domain.Account) error {
		now := s.clock.Now()
		account.CredentialRef = key
		account.UpdatedAt = now
		if account.Status != domain.AccountStatusUnauthenticated {
			return nil
		}
		next, err := account.Transition(domain.AccountStatusActive, domain.TransitionMeta{Reason: "credential updated"}, now)
		if err != nil {
			return err
		}
		*account = next
		return nil
	})
	if err != nil {
		if previous != key {
			if rollbackErr := s.store.Delete(ctx, key); rollbackErr != nil {
				return fmt.Errorf("save account credential and rollback stored secret: %w", errors.Join(err, rollbackErr))
			}
		}
		return fmt.Errorf("save account credential: %w", err)
	}

	if previous == "" || previous == key {
		return nil
	}
	if err := s.store.Delete(ctx, previous); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
		return fmt.Errorf("delete previous credential: %w", err)
	}

	return nil
}

func (s *Service) RemoveCredential(ctx context.Context, id domain.AccountID) error {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get account by id: %w", err)
	}
	if account.CredentialRef == "" {
		return nil
	}
	ref := account.CredentialRef

	_, err = s.accounts.Update(ctx, id, func(account *domain.Account) error {
		account.CredentialRef = ""
		account.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return fmt.Errorf("save account credential: %w", err)
	}

	if err := s.store.Delete(ctx, ref); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
		_, restoreErr := s.accounts.Update(ctx, id, func(account *domain.Account) error {
			account.CredentialRef = ref
			return nil
		})
		if restoreErr != nil {
			return fmt.Errorf("delete credential and restore ref: %w", errors.Join(err, restoreErr))
		}
		return fmt.Errorf("delete credential: %w", err)
	}

	return nil
}

func (s *Service) SetLimits(ctx context.Context, id domain.AccountID, limits domain.AccountLimits) (domain.Account, error) {
	if err := limits.Validate(); err != nil {
		return domain.Account{}, err
	}

	account, err := s.accounts.Update(ctx, id, func(account *domain.Account) error {
		account.Limits = limits
		account.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("save account limits: %w", err)
	}
	return account, nil
}

func (s *Service) GetStatus(ctx context.Context, id domain.AccountID) (AccountStatus, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return AccountStatus{}, fmt.Errorf("get account by id: %w", err)
	}

	return s.statusFromAccount(ctx, account)
}

func (s *Service) GetStatusAll(ctx context.Context) ([]AccountStatus, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID < accounts[j].ID
	})

	statuses := make([]AccountStatus, 0, len(accounts))
	for _, account := range accounts {
		status, err := s.statusFromAccount(ctx, account)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}

func (s *Service) GetCampaign(ctx context.Context, id domain.CampaignID) (CampaignReport, error) {
	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return CampaignReport{}, fmt.Errorf("get campaign: %w", err)
	}
	return ReportFromCampaign(campaign), nil
}

func (s *Service) ListCampaigns(ctx context.Context) ([]CampaignReport, error) {
	campaigns, err := s.campaigns.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	sort.Slice(campaigns, func(i, j int) bool {
		if campaigns[i].CreatedAt.Equal(campaigns[j].CreatedAt) {
			return campaigns[i].ID < campaigns[j].ID
		}
		return campaigns[i].CreatedAt.Before(campaigns[j].CreatedAt)
	})

	reports := make([]CampaignReport, 0, len(campaigns))
	for _, campaign := range campaigns {
		reports = append(reports, ReportFromCampaign(campaign))
	}
	return reports, nil
}

func (s *Service) statusFromAccount(ctx context.Context, account domain.Account) (AccountStatus, error) {
	status := AccountStatus{
		Account:   account,
		DailyUsed: account.Usage.DailyUsedAt(s.clock.Now()),
	}
	if s.locks == nil {
		return status, nil
	}

	lease, held, err := s.locks.Holder(ctx, account.ID)
	if err != nil {
		return AccountStatus{}, err
	}
	if held {
		status.Lease = &lease
	}
	return status, nil
}
