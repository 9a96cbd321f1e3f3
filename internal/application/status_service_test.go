package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCredentialStore struct {
	mu        sync.Mutex
	values    map[string]string
	deleteErr error
}

func newMapCredentialStore() *mapCredentialStore {
	return &mapCredentialStore{values: map[string]string{}}
}

func (s *mapCredentialStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", domain.ErrSecretNotFound
	}
	return value, nil
}

func (s *mapCredentialStore) Put(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *mapCredentialStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.values, key)
	return nil
}

func newTestService(h *harness, store *mapCredentialStore) *Service {
	return NewService(h.accounts, h.campaigns, h.locks, store, h.clock)
}

func TestServiceSetCredentialRotatesPreviousRef(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := newMapCredentialStore()
	service := newTestService(h, store)
	h.register(t, "acc-1", domain.AccountLimits{})
	store.values["legacy://acc-1"] = "old"
	_, err := h.accounts.Update(ctx, "acc-1", func(account *domain.Account) error {
		account.CredentialRef = "legacy://acc-1"
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, service.SetCredential(ctx, "acc-1", "session-token"))

	account := h.account(t, "acc-1")
	assert.Equal(t, "opool://acc-1/credential", account.CredentialRef)
	assert.Equal(t, map[string]string{"opool://acc-1/credential": "session-token"}, store.values)
}

func TestServiceSetCredentialReactivatesUnauthenticatedAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := newMapCredentialStore()
	service := newTestService(h, store)
	h.register(t, "acc-1", domain.AccountLimits{})
	h.register(t, "acc-2", domain.AccountLimits{})

	_, err := h.classifier.Apply(ctx, failure("acc-1", domain.ErrorKindCredentialMissing, 0, epoch))
	require.NoError(t, err)
	require.Equal(t, domain.AccountStatusUnauthenticated, h.account(t, "acc-1").Status)
	_, err = h.registry.Transition(ctx, TransitionCommand{ID: "acc-2", Status: domain.AccountStatusDisabled, Reason: "banned"})
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	require.NoError(t, service.SetCredential(ctx, "acc-1", "fresh-token"))
	require.NoError(t, service.SetCredential(ctx, "acc-2", "fresh-token"))

	account := h.account(t, "acc-1")
	assert.Equal(t, domain.AccountStatusActive, account.Status)
	assert.Equal(t, "opool://acc-1/credential", account.CredentialRef)
	assert.Equal(t, epoch.Add(time.Minute), account.UpdatedAt)
	assert.Equal(t, domain.AccountStatusDisabled, h.account(t, "acc-2").Status)
}

func TestServiceSetCredentialUnknownAccount(t *testing.T) {
	h := newHarness(t)
	store := newMapCredentialStore()
	service := newTestService(h, store)

	err := service.SetCredential(context.Background(), "missing", "token")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Empty(t, store.values)
}

func TestServiceRemoveCredentialRestoresRefWhenDeleteFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := newMapCredentialStore()
	service := newTestService(h, store)
	h.register(t, "acc-1", domain.AccountLimits{})
	require.NoError(t, service.SetCredential(ctx, "acc-1", "token"))

	store.deleteErr = errors.New("disk full")
	err := service.RemoveCredential(ctx, "acc-1")
	require.Error(t, err)
	assert.Equal(t, "opool://acc-1/credential", h.account(t, "acc-1").CredentialRef)

	store.deleteErr = nil
	require.NoError(t, service.RemoveCredential(ctx, "acc-1"))
	assert.Empty(t, h.account(t, "acc-1").CredentialRef)
	assert.Empty(t, store.values)
}

func TestServiceSetLimits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	service := newTestService(h, newMapCredentialStore())
	h.register(t, "acc-1", domain.AccountLimits{})

	account, err := service.SetLimits(ctx, "acc-1", domain.AccountLimits{Daily: 5, PerDestination: 10})
	require.NoError(t, err)
	assert.Equal(t, domain.AccountLimits{Daily: 5, PerDestination: 10}, account.Limits)

	_, err = service.SetLimits(ctx, "acc-1", domain.AccountLimits{Daily: 0, PerDestination: 10})
	assert.Error(t, err)
}

func TestServiceGetStatusAllIncludesLeaseHolders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	service := newTestService(h, newMapCredentialStore())
	h.register(t, "acc-b", domain.AccountLimits{})
	h.register(t, "acc-a", domain.AccountLimits{})

	_, err := h.ledger.Commit(ctx, Reservation{AccountID: "acc-a", Destination: "chan1"})
	require.NoError(t, err)
	_, err = h.locks.Acquire(ctx, "acc-b", domain.Holder{Purpose: "camp-1/t0001", Consumer: "worker-1"}, time.Minute)
	require.NoError(t, err)

	statuses, err := service.GetStatusAll(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.Equal(t, domain.AccountID("acc-a"), statuses[0].Account.ID)
	assert.Equal(t, 1, statuses[0].DailyUsed)
	assert.Nil(t, statuses[0].Lease)

	require.NotNil(t, statuses[1].Lease)
	assert.Equal(t, "camp-1/t0001/worker-1", statuses[1].Lease.Holder.String())

	h.clock.Advance(domain.DailyWindow)
	status, err := service.GetStatus(ctx, "acc-a")
	require.NoError(t, err)
	assert.Zero(t, status.DailyUsed)
	assert.Equal(t, 1, status.Account.Usage.DailyUsed)
}

func TestServiceCampaignReports(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	service := newTestService(h, newMapCredentialStore())

	for i, id := range []domain.CampaignID{"camp-2", "camp-1"} {
		require.NoError(t, h.campaigns.Create(ctx, domain.Campaign{
			ID:         id,
			Capability: domain.CapabilityInvite,
			Status:     domain.CampaignStatusPending,
			Targets: []domain.Target{
				{ID: "t0001", Subject: "alice", State: domain.TargetStateSucceeded},
				{ID: "t0002", Subject: "bob", State: domain.TargetStateFailedPermanent, FailureReason: "target_unreachable after 3 attempts"},
			},
			CreatedAt: epoch.Add(time.Duration(i) * time.Minute),
		}))
	}

	reports, err := service.ListCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, domain.CampaignID("camp-2"), reports[0].ID)

	report, err := service.GetCampaign(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts[domain.TargetStateSucceeded])
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, domain.TargetID("t0002"), failed[0].ID)

	_, err = service.GetCampaign(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
}
