package application

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bnema/outreach-pool/internal/adapters/lock/memory"
	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mockAnyContext() interface{} {
	return mock.MatchedBy(func(context.Context) bool { return true })
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type accountRepo struct {
	mu       sync.Mutex
	accounts map[domain.AccountID]domain.Account
}

func newAccountRepo() *accountRepo {
	return &accountRepo{accounts: map[domain.AccountID]domain.Account{}}
}

func (r *accountRepo) Create(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.accounts[account.ID] = account.Clone()
	return nil
}

func (r *accountRepo) GetByID(_ context.Context, id domain.AccountID) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (r *accountRepo) List(_ context.Context) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	accounts := make([]domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		accounts = append(accounts, account.Clone())
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (r *accountRepo) Update(_ context.Context, id domain.AccountID, fn func(*domain.Account) error) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	account = account.Clone()
	if err := fn(&account); err != nil {
		return domain.Account{}, err
	}
	r.accounts[id] = account.Clone()
	return account, nil
}

type campaignRepo struct {
	mu        sync.Mutex
	campaigns map[domain.CampaignID]domain.Campaign
}

func newCampaignRepo() *campaignRepo {
	return &campaignRepo{campaigns: map[domain.CampaignID]domain.Campaign{}}
}

func cloneCampaign(campaign domain.Campaign) domain.Campaign {
	campaign.Targets = append([]domain.Target(nil), campaign.Targets...)
	for i := range campaign.Targets {
		campaign.Targets[i].ExcludedAccounts = append([]domain.AccountID(nil), campaign.Targets[i].ExcludedAccounts...)
	}
	return campaign
}

func (r *campaignRepo) Create(_ context.Context, campaign domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[campaign.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.campaigns[campaign.ID] = cloneCampaign(campaign)
	return nil
}

func (r *campaignRepo) GetByID(_ context.Context, id domain.CampaignID) (domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[id]
	if !ok {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	return cloneCampaign(campaign), nil
}

func (r *campaignRepo) List(_ context.Context) ([]domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaigns := make([]domain.Campaign, 0, len(r.campaigns))
	for _, campaign := range r.campaigns {
		campaigns = append(campaigns, cloneCampaign(campaign))
	}
	return campaigns, nil
}

func (r *campaignRepo) SaveTarget(_ context.Context, id domain.CampaignID, target domain.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[id]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	for i := range campaign.Targets {
		if campaign.Targets[i].ID == target.ID {
			campaign.Targets[i] = target
			r.campaigns[id] = campaign
			return nil
		}
	}
	return domain.ErrTargetNotFound
}

func (r *campaignRepo) TransitionStatus(_ context.Context, id domain.CampaignID, from, to domain.CampaignStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[id]
	if !ok {
		return false, domain.ErrCampaignNotFound
	}
	if campaign.Status != from {
		return false, nil
	}
	campaign.Status = to
	r.campaigns[id] = campaign
	return true, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Emit(_ context.Context, event domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) ofType(eventType domain.EventType) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]domain.Event, 0)
	for _, event := range s.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type harness struct {
	clock      *fakeClock
	accounts   *accountRepo
	campaigns  *campaignRepo
	leases     *memory.Store
	events     *recordingSink
	registry   *Registry
	ledger     *Ledger
	locks      *LockManager
	scheduler  *RecoveryScheduler
	classifier *Classifier
	allocator  *Allocator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock:     newFakeClock(epoch),
		accounts:  newAccountRepo(),
		campaigns: newCampaignRepo(),
		leases:    memory.NewStore(),
		events:    &recordingSink{},
	}
	h.registry = NewRegistry(h.accounts, h.events, h.clock, domain.AccountLimits{Daily: 50, PerDestination: domain.DefaultPerDestinationLimit})
	h.ledger = NewLedger(h.accounts, h.events, h.clock)
	h.locks = NewLockManager(h.leases, h.clock)
	h.scheduler = NewRecoveryScheduler(h.registry, h.ledger, h.events, h.clock)
	h.classifier = NewClassifier(PenaltyPolicy{CooldownBuffer: time.Minute, AbuseCooldown: 24 * time.Hour}, h.registry, h.scheduler, h.events, h.clock)
	h.allocator = NewAllocator(h.registry, h.ledger, h.locks, h.classifier, h.events, h.clock, 2*time.Minute)
	return h
}

func (h *harness) register(t *testing.T, id domain.AccountID, limits domain.AccountLimits) domain.Account {
	t.Helper()

	account, err := h.registry.Register(context.Background(), RegisterAccountCommand{
		ID:            id,
		CredentialRef: "opool://" + string(id) + "/credential",
		Limits:        limits,
	})
	require.NoError(t, err)
	return account
}

func (h *harness) account(t *testing.T, id domain.AccountID) domain.Account {
	t.Helper()

	account, err := h.registry.Get(context.Background(), id)
	require.NoError(t, err)
	return account
}
