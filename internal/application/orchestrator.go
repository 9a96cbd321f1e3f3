package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// idlePoll bounds the wait when no pending target has a wake time, e.g. while another worker holds targets in progress.
const idlePoll = time.Second

type OrchestratorConfig struct {
	Defaults domain.Policy
	Backoff  BackoffPolicy
	// Consumer identifies this worker in lease holders.
	Consumer string
}

// Orchestrator drives campaigns to completion through the allocator.
type Orchestrator struct {
	allocator  *Allocator
	campaigns  ports.CampaignRepository
	capability ports.Capability
	events     ports.EventSink
	clock      ports.Clock
	config     OrchestratorConfig
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(allocator *Allocator, campaigns ports.CampaignRepository, capability ports.Capability, events ports.EventSink, clock ports.Clock, config OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		allocator:  allocator,
		campaigns:  campaigns,
		capability: capability,
		events:     orNopSink(events),
		clock:      orSystemClock(clock),
		config:     config,
		sleep:      sleepContext,
	}
}

// CreateCampaign persists a new pending campaign. Zero policy fields take the configured defaults.
func (o *Orchestrator) CreateCampaign(ctx context.Context, cmd CreateCampaignCommand) (domain.Campaign, error) {
	now := o.clock.Now()

	id := domain.CampaignID(strings.TrimSpace(string(cmd.ID)))
	if id == "" {
		id = domain.CampaignID(uuid.NewString())
	}

	policy := cmd.Policy
	if policy.MaxAttemptsPerTarget <= 0 {
		policy.MaxAttemptsPerTarget = o.config.Defaults.MaxAttemptsPerTarget
	}
	if policy.InterActionDelay == 0 {
		policy.InterActionDelay = o.config.Defaults.InterActionDelay
	}
	if policy.BatchSize <= 0 {
		policy.BatchSize = o.config.Defaults.BatchSize
	}

	targets := make([]domain.Target, len(cmd.Targets))
	for i, target := range cmd.Targets {
		targets[i] = domain.Target{
			ID:          target.ID,
			Subject:     target.Subject,
			Destination: target.Destination,
			State:       domain.TargetStatePending,
			UpdatedAt:   now,
		}
	}

	campaign := domain.Campaign{
		ID:         id,
		Name:       strings.TrimSpace(cmd.Name),
		Capability: domain.Capability(strings.ToLower(strings.TrimSpace(string(cmd.Capability)))),
		Policy:     policy,
		Status:     domain.CampaignStatusPending,
		Targets:    targets,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	campaign.NormalizeTargets()
	if campaign.Name == "" {
		campaign.Name = fmt.Sprintf("Campaign %s", campaign.ID)
	}
	if err := campaign.Validate(); err != nil {
		return domain.Campaign{}, err
	}

	if err := o.campaigns.Create(ctx, campaign); err != nil {
		return domain.Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	return campaign, nil
}

// Cancel marks the campaign cancelled. Running workers finish their in-flight actions and stop allocating.
func (o *Orchestrator) Cancel(ctx context.Context, id domain.CampaignID) error {
	for {
		campaign, err := o.campaigns.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get campaign: %w", err)
		}
		if campaign.Status.Terminal() {
			return nil
		}
		cancelled, err := o.campaigns.TransitionStatus(ctx, id, campaign.Status, domain.CampaignStatusCancelled)
		if err != nil {
			return fmt.Errorf("cancel campaign: %w", err)
		}
		if cancelled {
			return nil
		}
	}
}

// Run processes the campaign until every target is terminal, the campaign is cancelled or ctx is done.
// Allocation-layer errors never fail the run; only storage or configuration errors are returned.
func (o *Orchestrator) Run(ctx context.Context, id domain.CampaignID) (CampaignReport, error) {
	campaign, err := o.campaigns.GetByID(ctx, id)
	if err != nil {
		return CampaignReport{}, fmt.Errorf("get campaign: %w", err)
	}
	if campaign.Status.Terminal() {
		return ReportFromCampaign(campaign), nil
	}
	if err := campaign.Policy.Validate(); err != nil {
		return ReportFromCampaign(campaign), fmt.Errorf("campaign %s policy: %w", id, err)
	}

	if err := o.reclaim(ctx, campaign); err != nil {
		return ReportFromCampaign(campaign), err
	}
	// A concurrent cancel makes this a no-op; the loop below then sees it.
	if _, err := o.campaigns.TransitionStatus(ctx, id, campaign.Status, domain.CampaignStatusRunning); err != nil {
		return ReportFromCampaign(campaign), fmt.Errorf("start campaign: %w", err)
	}

	for {
		campaign, err = o.campaigns.GetByID(context.WithoutCancel(ctx), id)
		if err != nil {
			return CampaignReport{}, fmt.Errorf("get campaign: %w", err)
		}

		if campaign.Status == domain.CampaignStatusCancelled {
			o.finished(ctx, campaign)
			return ReportFromCampaign(campaign), nil
		}
		if campaign.Done() {
			return o.complete(ctx, campaign)
		}
		if err := ctx.Err(); err != nil {
			return ReportFromCampaign(campaign), err
		}

		now := o.clock.Now()
		due := campaign.Due(now, campaign.Policy.BatchSize)
		if len(due) == 0 {
			wait := idlePoll
			if wake, ok := campaign.NextWake(); ok {
				wait = wake.Sub(now)
			}
			if err := o.sleep(ctx, wait); err != nil {
				return ReportFromCampaign(campaign), err
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(campaign.Policy.BatchSize)
		for _, target := range due {
			g.Go(func() error {
				return o.process(gctx, campaign, target)
			})
		}
		if err := g.Wait(); err != nil {
			return ReportFromCampaign(campaign), fmt.Errorf("run campaign %s: %w", id, err)
		}
	}
}

// complete moves a running campaign to completed. A cancel that landed first wins.
func (o *Orchestrator) complete(ctx context.Context, campaign domain.Campaign) (CampaignReport, error) {
	ctx = context.WithoutCancel(ctx)
	completed, err := o.campaigns.TransitionStatus(ctx, campaign.ID, domain.CampaignStatusRunning, domain.CampaignStatusCompleted)
	if err != nil {
		return ReportFromCampaign(campaign), fmt.Errorf("complete campaign: %w", err)
	}
	if completed {
		campaign.Status = domain.CampaignStatusCompleted
	} else if campaign, err = o.campaigns.GetByID(ctx, campaign.ID); err != nil {
		return CampaignReport{}, fmt.Errorf("get campaign: %w", err)
	}
	o.finished(ctx, campaign)
	return ReportFromCampaign(campaign), nil
}

// reclaim returns targets left in progress by a crashed worker to pending.
func (o *Orchestrator) reclaim(ctx context.Context, campaign domain.Campaign) error {
	now := o.clock.Now()
	for _, target := range campaign.Targets {
		if !target.Reclaim(now) {
			continue
		}
		if err := o.campaigns.SaveTarget(ctx, campaign.ID, target); err != nil {
			return fmt.Errorf("reclaim target %s: %w", target.ID, err)
		}
	}
	return nil
}

func (o *Orchestrator) process(ctx context.Context, campaign domain.Campaign, target domain.Target) error {
	allocation, err := o.allocate(ctx, campaign, target)
	if err != nil {
		if !domain.IsTransient(err) {
			return err
		}
		now := o.clock.Now()
		target.Defer(now.Add(o.config.Backoff.Delay(target.Deferrals+1)), now)
		return o.save(ctx, campaign.ID, target)
	}

	now := o.clock.Now()
	lastUsed := allocation.Account.LastUsedAt
	if readyAt := lastUsed.Add(campaign.Policy.InterActionDelay); !lastUsed.IsZero() && now.Before(readyAt) {
		target.NextAttemptAt = readyAt
		target.UpdatedAt = now
		return errors.Join(o.allocator.Abandon(ctx, allocation), o.save(ctx, campaign.ID, target))
	}

	if err := target.Start(allocation.Account.ID, now); err != nil {
		return errors.Join(err, o.allocator.Abandon(ctx, allocation))
	}
	if err := o.save(ctx, campaign.ID, target); err != nil {
		return errors.Join(err, o.allocator.Abandon(ctx, allocation))
	}

	invokeErr := o.invoke(ctx, &allocation, campaign.Capability, target)
	var capErr *domain.CapabilityError
	if invokeErr != nil && !errors.As(invokeErr, &capErr) {
		// Nothing reached the provider: neither the account nor the target is at fault.
		target.Reclaim(o.clock.Now())
		return errors.Join(
			fmt.Errorf("invoke %s for target %s: %w", campaign.Capability, target.ID, invokeErr),
			o.allocator.Abandon(ctx, allocation),
			o.save(ctx, campaign.ID, target),
		)
	}
	record := domain.NewUsageRecord(allocation.Account.ID, campaign.Capability, target.Destination, invokeErr, o.clock.Now())
	releaseErr := o.allocator.Release(ctx, allocation, record)

	now = o.clock.Now()
	if record.Success {
		target.Succeed(now)
	} else {
		target.Fail(record.ErrorKind, record.Message, campaign.Policy.MaxAttemptsPerTarget, now)
	}
	saveErr := o.save(ctx, campaign.ID, target)

	emit(ctx, o.events, o.clock, domain.Event{
		Type:       domain.EventTargetOutcome,
		AccountID:  allocation.Account.ID,
		CampaignID: campaign.ID,
		TargetID:   target.ID,
		From:       string(domain.TargetStateInProgress),
		To:         string(target.State),
		Reason:     string(record.ErrorKind),
	})

	return errors.Join(releaseErr, saveErr)
}

// allocate prefers accounts the target has not failed on, falling back to any account rather than starving the target.
func (o *Orchestrator) allocate(ctx context.Context, campaign domain.Campaign, target domain.Target) (Allocation, error) {
	req := AllocationRequest{
		Capability:  campaign.Capability,
		Destination: target.Destination,
		Purpose:     fmt.Sprintf("%s/%s", campaign.ID, target.ID),
		Consumer:    o.config.Consumer,
		Exclude:     target.ExcludedAccounts,
	}

	allocation, err := o.allocator.Allocate(ctx, req)
	if errors.Is(err, domain.ErrNoAccountsAvailable) && len(req.Exclude) > 0 {
		req.Exclude = nil
		return o.allocator.Allocate(ctx, req)
	}
	return allocation, err
}

// invoke runs the capability to completion regardless of cancellation, renewing the lease at half its ttl.
func (o *Orchestrator) invoke(ctx context.Context, allocation *Allocation, capability domain.Capability, target domain.Target) error {
	ctx = context.WithoutCancel(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.keepAlive(ctx, allocation, done)
	}()

	err := o.capability.Invoke(ctx, ports.Invocation{
		Capability:    capability,
		AccountID:     allocation.Account.ID,
		CredentialRef: allocation.Account.CredentialRef,
		Subject:       target.Subject,
		Destination:   target.Destination,
	})

	close(done)
	wg.Wait()
	return err
}

func (o *Orchestrator) keepAlive(ctx context.Context, allocation *Allocation, done <-chan struct{}) {
	interval := allocation.Lease.ExpiresAt.Sub(allocation.Lease.AcquiredAt) / 2
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := o.allocator.Renew(ctx, allocation); err != nil {
				return
			}
		}
	}
}

func (o *Orchestrator) save(ctx context.Context, id domain.CampaignID, target domain.Target) error {
	if err := o.campaigns.SaveTarget(context.WithoutCancel(ctx), id, target); err != nil {
		return fmt.Errorf("save target %s: %w", target.ID, err)
	}
	return nil
}

func (o *Orchestrator) finished(ctx context.Context, campaign domain.Campaign) {
	emit(ctx, o.events, o.clock, domain.Event{
		Type:       domain.EventCampaignFinished,
		CampaignID: campaign.ID,
		To:         string(campaign.Status),
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
