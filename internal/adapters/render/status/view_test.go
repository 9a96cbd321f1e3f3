package status

import (
	"testing"
	"time"

	"github.com/bnema/outreach-pool/internal/application"
	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

func TestRenderActiveAccount(t *testing.T) {
	output, err := Render([]application.AccountStatus{
		{
			Account: domain.Account{
				ID:           "acc-1",
				Name:         "Primary",
				Status:       domain.AccountStatusActive,
				Capabilities: []domain.Capability{domain.CapabilityInvite},
				Limits:       domain.AccountLimits{Daily: 50, PerDestination: 200},
				Usage: domain.Usage{
					DailyUsed:      12,
					WindowStart:    now.Add(-11 * time.Hour),
					PerDestination: map[domain.Destination]int{"chan1": 200, "chan2": 7, "chan3": 3, "chan4": 1},
				},
				LastUsedAt: now.Add(-5 * time.Minute),
				ErrorCount: 2,
			},
			DailyUsed: 12,
			Lease: &domain.Lease{
				AccountID: "acc-1",
				Holder:    domain.Holder{Purpose: "camp-1/t-3", Consumer: "worker-a"},
				ExpiresAt: now.Add(90 * time.Second),
			},
		},
	}, RenderOptions{Now: now})

	require.NoError(t, err)
	assert.Contains(t, output, "accounts: 1  active: 1")
	assert.Contains(t, output, "Primary (acc-1)")
	assert.Contains(t, output, "[active]")
	assert.Contains(t, output, "12/50 used")
	assert.Contains(t, output, "(resets in 13 hours (00:00 on 15 Feb))")
	assert.Contains(t, output, "destinations: chan1 200/200, chan2 7/200, chan3 3/200, +1 more")
	assert.Contains(t, output, "leased by camp-1/t-3/worker-a (expires in 2 minutes (11:01))")
	assert.Contains(t, output, "capabilities: invite")
	assert.Contains(t, output, "last used 5 minutes ago")
	assert.Contains(t, output, "errors: 2")
}

func TestRenderUnavailableAccounts(t *testing.T) {
	output, err := Render([]application.AccountStatus{
		{
			Account: domain.Account{
				ID:            "acc-1",
				Name:          "acc-1",
				Status:        domain.AccountStatusCoolingDown,
				CooldownUntil: now.Add(2 * time.Hour),
				Limits:        domain.AccountLimits{Daily: 50, PerDestination: 200},
			},
		},
		{
			Account: domain.Account{
				ID:             "acc-2",
				Name:           "Backup",
				Status:         domain.AccountStatusDisabled,
				DisabledReason: "banned by provider",
				Limits:         domain.AccountLimits{Daily: 50, PerDestination: 200},
			},
		},
		{
			Account: domain.Account{
				ID:     "acc-3",
				Name:   "Spare",
				Status: domain.AccountStatusUnauthenticated,
				Limits: domain.AccountLimits{Daily: 50, PerDestination: 200},
			},
		},
	}, RenderOptions{Now: now})

	require.NoError(t, err)
	assert.Contains(t, output, "accounts: 3  active: 0  cooling: 1  disabled: 1  unauthenticated: 1")
	assert.Contains(t, output, "[cooling_down]")
	assert.Contains(t, output, "cooldown ends in 2 hours (13:00)")
	assert.Contains(t, output, "disabled: banned by provider")
	assert.Contains(t, output, "credential needs to be refreshed")
	assert.Contains(t, output, "0/50 used")
	assert.NotContains(t, output, "resets")
	assert.NotContains(t, output, "leased by")
}

func TestRenderEmptyPool(t *testing.T) {
	output, err := Render(nil, RenderOptions{Now: now})

	require.NoError(t, err)
	assert.Contains(t, output, "accounts: 0")
	assert.Contains(t, output, "No accounts registered.")
}

func sampleReport() application.CampaignReport {
	return application.CampaignReport{
		ID:         "camp-1",
		Name:       "Spring invites",
		Capability: domain.CapabilityInvite,
		Status:     domain.CampaignStatusRunning,
		Counts: map[domain.TargetState]int{
			domain.TargetStateSucceeded:       2,
			domain.TargetStateFailedPermanent: 1,
			domain.TargetStatePending:         1,
		},
		Targets: []application.TargetReport{
			{ID: "t-1", Subject: "user-1", Destination: "chan1", State: domain.TargetStateSucceeded, Attempts: 0},
			{ID: "t-2", Subject: "user-2", Destination: "chan1", State: domain.TargetStateSucceeded},
			{
				ID:            "t-3",
				Subject:       "user-3",
				State:         domain.TargetStateFailedPermanent,
				Attempts:      3,
				FailureReason: "target_unreachable after 3 attempts: private profile",
			},
			{ID: "t-4", Subject: "user-4", State: domain.TargetStatePending, NextAttemptAt: now.Add(30 * time.Second)},
		},
		UpdatedAt: now.Add(-time.Minute),
	}
}

func TestRenderCampaign(t *testing.T) {
	output, err := RenderCampaign(sampleReport(), RenderOptions{Now: now})

	require.NoError(t, err)
	assert.Contains(t, output, "Campaign: Spring invites (camp-1)")
	assert.Contains(t, output, "[running]")
	assert.Contains(t, output, "capability: invite  targets: 4")
	assert.Contains(t, output, "75% done")
	assert.Contains(t, output, "succeeded: 2  failed: 1  pending: 1  in progress: 0")
	assert.Contains(t, output, "t-3 user-3 [failed_permanent] attempts: 3 target_unreachable after 3 attempts: private profile")
	assert.Contains(t, output, "t-4 user-4 [pending] next attempt in 30 seconds (11:00)")
	assert.NotContains(t, output, "t-1 user-1")
}

func TestRenderCampaignVerboseListsSucceededTargets(t *testing.T) {
	output, err := RenderCampaign(sampleReport(), RenderOptions{Now: now, Verbose: true})

	require.NoError(t, err)
	assert.Contains(t, output, "t-1 user-1 @chan1 [succeeded]")
}

func TestRenderCampaigns(t *testing.T) {
	output, err := RenderCampaigns([]application.CampaignReport{sampleReport()}, RenderOptions{Now: now})

	require.NoError(t, err)
	assert.Contains(t, output, "campaigns: 1")
	assert.Contains(t, output, "Spring invites (camp-1) [running]")
	assert.Contains(t, output, "invite  succeeded: 2")
	assert.Contains(t, output, "updated 1 minute ago")

	output, err = RenderCampaigns(nil, RenderOptions{Now: now})
	require.NoError(t, err)
	assert.Contains(t, output, "No campaigns created.")
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "1 second", humanDuration(200*time.Millisecond))
	assert.Equal(t, "59 seconds", humanDuration(59*time.Second))
	assert.Equal(t, "2 minutes", humanDuration(61*time.Second))
	assert.Equal(t, "13 hours", humanDuration(13*time.Hour))
	assert.Equal(t, "2 days", humanDuration(25*time.Hour))
}
