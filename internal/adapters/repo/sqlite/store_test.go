package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()

	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleAccount(id domain.AccountID) domain.Account {
	return domain.Account{
		ID:            id,
		Name:          "Primary",
		CredentialRef: "opool://" + string(id) + "/credential",
		Capabilities:  []domain.Capability{domain.CapabilityInvite},
		Status:        domain.AccountStatusActive,
		Limits:        domain.AccountLimits{Daily: 50, PerDestination: 200},
		Usage: domain.Usage{
			DailyUsed:      3,
			WindowStart:    created,
			PerDestination: map[domain.Destination]int{"chan1": 2, "chan2": 1},
		},
		LastUsedAt: created.Add(1500 * time.Millisecond),
		ErrorCount: 1,
		CreatedAt:  created,
		UpdatedAt:  created.Add(time.Minute),
	}
}

func sampleCampaign() domain.Campaign {
	return domain.Campaign{
		ID:         "camp-1",
		Name:       "Spring invites",
		Capability: domain.CapabilityInvite,
		Policy: domain.Policy{
			MaxAttemptsPerTarget: 3,
			InterActionDelay:     30 * time.Second,
			BatchSize:            2,
		},
		Status: domain.CampaignStatusPending,
		Targets: []domain.Target{
			{ID: "t-2", Subject: "user-2", Destination: "chan1", State: domain.TargetStatePending, UpdatedAt: created},
			{ID: "t-1", Subject: "user-1", Destination: "chan1", State: domain.TargetStatePending, UpdatedAt: created},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pool.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Accounts().Create(context.Background(), sampleAccount("acc-1")))
	require.NoError(t, first.Close())

	second := openTestStore(t, path)
	var applied int
	require.NoError(t, second.sqlDB.QueryRow("SELECT COUNT(*) FROM "+migrationTable).Scan(&applied))
	assert.Equal(t, 1, applied)

	_, err = second.Accounts().GetByID(context.Background(), "acc-1")
	assert.NoError(t, err)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open("  ")
	assert.Error(t, err)
}

func TestAccountRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo := openTestStore(t, filepath.Join(t.TempDir(), "pool.db")).Accounts()
	first := sampleAccount("acc-1")
	second := sampleAccount("acc-2")
	second.Capabilities = nil
	second.Usage.PerDestination = nil
	second.Status = domain.AccountStatusCoolingDown
	second.CooldownUntil = created.Add(6 * time.Minute)

	require.NoError(t, repo.Create(context.Background(), first))
	require.NoError(t, repo.Create(context.Background(), second))

	got, err := repo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	accounts, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Account{first, second}, accounts)

	err = repo.Create(context.Background(), first)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountRepositoryUpdate(t *testing.T) {
	t.Parallel()

	repo := openTestStore(t, filepath.Join(t.TempDir(), "pool.db")).Accounts()
	require.NoError(t, repo.Create(context.Background(), sampleAccount("acc-1")))

	updated, err := repo.Update(context.Background(), "acc-1", func(account *domain.Account) error {
		account.Usage.Commit("chan3", created.Add(time.Hour))
		account.Status = domain.AccountStatusDisabled
		account.DisabledReason = "banned"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Usage.DailyUsed)

	got, err := repo.GetByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, updated, got)
	assert.Equal(t, 1, got.Usage.PerDestination["chan3"])

	sentinel := errors.New("stop")
	_, err = repo.Update(context.Background(), "acc-1", func(account *domain.Account) error {
		account.Name = "changed"
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	_, err = repo.Update(context.Background(), "acc-1", func(account *domain.Account) error {
		account.Status = domain.AccountStatusCoolingDown
		return nil
	})
	assert.Error(t, err)

	got, err = repo.GetByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "Primary", got.Name)
	assert.Equal(t, domain.AccountStatusDisabled, got.Status)

	_, err = repo.Update(context.Background(), "missing", func(*domain.Account) error { return nil })
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountRepositoryConcurrentUpdatesAcrossHandles(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pool.db")
	stores := []*Store{openTestStore(t, path), openTestStore(t, path)}
	account := sampleAccount("acc-1")
	account.Usage = domain.Usage{}
	require.NoError(t, stores[0].Accounts().Create(context.Background(), account))

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := stores[i%2].Accounts().Update(context.Background(), "acc-1", func(account *domain.Account) error {
				account.Usage.Commit(domain.Destination(fmt.Sprintf("chan%d", i%3)), created)
				return nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := stores[1].Accounts().GetByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, workers, got.Usage.DailyUsed)
	assert.Equal(t, 7, got.Usage.PerDestination["chan0"])
}

func TestCampaignRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo := openTestStore(t, filepath.Join(t.TempDir(), "pool.db")).Campaigns()
	campaign := sampleCampaign()
	require.NoError(t, repo.Create(context.Background(), campaign))

	got, err := repo.GetByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign, got)

	campaigns, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Campaign{campaign}, campaigns)

	err = repo.Create(context.Background(), campaign)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestCampaignRepositorySaveTargetAndStatus(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, filepath.Join(t.TempDir(), "pool.db"))
	store.now = func() time.Time { return created.Add(time.Hour) }
	repo := store.Campaigns()
	campaign := sampleCampaign()
	require.NoError(t, repo.Create(context.Background(), campaign))

	target := campaign.Targets[1]
	target.LastAccountID = "acc-1"
	target.Fail(domain.ErrorKindTargetUnreachable, "private profile", 3, created.Add(time.Minute))
	require.NoError(t, repo.SaveTarget(context.Background(), campaign.ID, target))
	started, err := repo.TransitionStatus(context.Background(), campaign.ID, domain.CampaignStatusPending, domain.CampaignStatusRunning)
	require.NoError(t, err)
	assert.True(t, started)

	got, err := repo.GetByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusRunning, got.Status)
	assert.Equal(t, created.Add(time.Hour), got.UpdatedAt)
	assert.Equal(t, target, got.Targets[1])
	assert.Equal(t, []domain.AccountID{"acc-1"}, got.Targets[1].ExcludedAccounts)
	assert.Equal(t, campaign.Targets[0], got.Targets[0])

	err = repo.SaveTarget(context.Background(), campaign.ID, domain.Target{ID: "nope", State: domain.TargetStatePending})
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
	err = repo.SaveTarget(context.Background(), "missing", target)
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
	_, err = repo.TransitionStatus(context.Background(), "missing", domain.CampaignStatusRunning, domain.CampaignStatusCancelled)
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
}

func TestCampaignRepositoryTransitionStatusKeepsConcurrentCancel(t *testing.T) {
	t.Parallel()

	repo := openTestStore(t, filepath.Join(t.TempDir(), "pool.db")).Campaigns()
	ctx := context.Background()
	campaign := sampleCampaign()
	require.NoError(t, repo.Create(ctx, campaign))

	started, err := repo.TransitionStatus(ctx, campaign.ID, domain.CampaignStatusPending, domain.CampaignStatusRunning)
	require.NoError(t, err)
	require.True(t, started)
	cancelled, err := repo.TransitionStatus(ctx, campaign.ID, domain.CampaignStatusRunning, domain.CampaignStatusCancelled)
	require.NoError(t, err)
	require.True(t, cancelled)

	completed, err := repo.TransitionStatus(ctx, campaign.ID, domain.CampaignStatusRunning, domain.CampaignStatusCompleted)
	require.NoError(t, err)
	assert.False(t, completed)

	got, err := repo.GetByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusCancelled, got.Status)
}

func TestLeaseStoreExclusiveUntilExpiry(t *testing.T) {
	t.Parallel()

	leases := openTestStore(t, filepath.Join(t.TempDir(), "pool.db")).Leases()
	ctx := context.Background()
	first := domain.Lease{
		AccountID:  "acc-1",
		Token:      "tok-1",
		Holder:     domain.Holder{Purpose: "camp-1/t-1", Consumer: "worker-a"},
		AcquiredAt: created,
		ExpiresAt:  created.Add(2 * time.Minute),
	}
	second := first
	second.Token = "tok-2"
	second.Holder.Consumer = "worker-b"

	ok, err := leases.TryAcquire(ctx, first, created)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = leases.TryAcquire(ctx, second, created.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	held, found, err := leases.Get(ctx, "acc-1", created.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first, held)

	require.NoError(t, leases.Renew(ctx, first, created.Add(4*time.Minute), created.Add(time.Minute)))
	ok, err = leases.TryAcquire(ctx, second, created.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	second.AcquiredAt = created.Add(4 * time.Minute)
	second.ExpiresAt = created.Add(6 * time.Minute)
	ok, err = leases.TryAcquire(ctx, second, created.Add(4*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	err = leases.Renew(ctx, first, created.Add(8*time.Minute), created.Add(4*time.Minute))
	assert.ErrorIs(t, err, domain.ErrLeaseNotHeld)

	require.NoError(t, leases.Release(ctx, first))
	_, found, err = leases.Get(ctx, "acc-1", created.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, leases.Release(ctx, second))
	require.NoError(t, leases.Release(ctx, second))
	_, found, err = leases.Get(ctx, "acc-1", created.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLeaseStoreSingleWinnerAcrossHandles(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pool.db")
	stores := []*Store{openTestStore(t, path), openTestStore(t, path)}

	const contenders = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := stores[i%2].Leases().TryAcquire(context.Background(), domain.Lease{
				AccountID:  "acc-1",
				Token:      fmt.Sprintf("tok-%d", i),
				AcquiredAt: created,
				ExpiresAt:  created.Add(time.Minute),
			}, created)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestStoreCanceledContext(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, filepath.Join(t.TempDir(), "pool.db"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Accounts().List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = store.Leases().TryAcquire(ctx, domain.Lease{AccountID: "acc-1"}, created)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNilStoreIsNotConfigured(t *testing.T) {
	t.Parallel()

	var store *Store
	_, err := store.Accounts().List(context.Background())
	assert.EqualError(t, err, "storage is not configured")
}
