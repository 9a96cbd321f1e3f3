package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

type Severity string

const (
	SeverityNone Severity = "none"
	SeveritySoft Severity = "soft"
	SeverityHard Severity = "hard"
	// SeverityReauth parks the account until an operator supplies a credential.
	SeverityReauth Severity = "reauth"
)

type PenaltyPolicy struct {
	// CooldownBuffer is added to provider-given waits to absorb clock skew.
	CooldownBuffer time.Duration
	// AbuseCooldown is the fixed penalty window for abuse flags.
	AbuseCooldown time.Duration
}

func (p PenaltyPolicy) Validate() error {
	if p.CooldownBuffer < 0 {
		return fmt.Errorf("cooldown buffer must not be negative")
	}
	if p.AbuseCooldown <= 0 {
		return fmt.Errorf("abuse cooldown must be greater than zero")
	}
	return nil
}

// Decision is the account-side consequence of one usage record.
type Decision struct {
	Kind          domain.ErrorKind
	Severity      Severity
	CooldownUntil time.Time
	Reason        string
}

// Classify maps a usage record to a penalty. It is a pure function of the record, the policy and now.
func (p PenaltyPolicy) Classify(record domain.UsageRecord, now time.Time) Decision {
	decision := Decision{Kind: record.ErrorKind, Severity: SeverityNone}
	if record.Success {
		return decision
	}

	switch record.ErrorKind {
	case domain.ErrorKindRateThrottled:
		wait := record.RetryAfter
		if wait < 0 {
			wait = 0
		}
		decision.Severity = SeveritySoft
		decision.CooldownUntil = now.Add(wait + p.CooldownBuffer)
		decision.Reason = fmt.Sprintf("rate throttled for %s", wait)
	case domain.ErrorKindAbuseFlagged:
		decision.Severity = SeveritySoft
		decision.CooldownUntil = now.Add(p.AbuseCooldown)
		decision.Reason = "abuse flagged"
	case domain.ErrorKindIdentityInvalidated:
		decision.Severity = SeverityHard
		decision.Reason = string(domain.ErrorKindIdentityInvalidated)
		if record.Message != "" {
			decision.Reason = fmt.Sprintf("%s: %s", domain.ErrorKindIdentityInvalidated, record.Message)
		}
	case domain.ErrorKindCredentialMissing:
		decision.Severity = SeverityReauth
		decision.Reason = string(domain.ErrorKindCredentialMissing)
		if record.Message != "" {
			decision.Reason = fmt.Sprintf("%s: %s", domain.ErrorKindCredentialMissing, record.Message)
		}
	case domain.ErrorKindTargetUnreachable, domain.ErrorKindUnknown, domain.ErrorKindNone:
	}

	return decision
}

// Classifier applies penalty decisions to the registry and feeds the recovery scheduler.
type Classifier struct {
	policy    PenaltyPolicy
	registry  *Registry
	scheduler *RecoveryScheduler
	events    ports.EventSink
	clock     ports.Clock
}

func NewClassifier(policy PenaltyPolicy, registry *Registry, scheduler *RecoveryScheduler, events ports.EventSink, clock ports.Clock) *Classifier {
	return &Classifier{
		policy:    policy,
		registry:  registry,
		scheduler: scheduler,
		events:    orNopSink(events),
		clock:     orSystemClock(clock),
	}
}

// Apply classifies record and performs the resulting transition synchronously.
func (c *Classifier) Apply(ctx context.Context, record domain.UsageRecord) (Decision, error) {
	decision := c.policy.Classify(record, c.clock.Now())
	emit(ctx, c.events, c.clock, domain.Event{
		Type:      domain.EventErrorClassified,
		AccountID: record.AccountID,
		To:        string(decision.Severity),
		Reason:    string(record.ErrorKind),
	})

	switch decision.Severity {
	case SeveritySoft:
		return decision, c.cooldown(ctx, record.AccountID, decision)
	case SeverityHard:
		return decision, c.disable(ctx, record.AccountID, decision)
	case SeverityReauth:
		return decision, c.unauthenticate(ctx, record.AccountID, decision)
	default:
		return decision, nil
	}
}

func (c *Classifier) cooldown(ctx context.Context, id domain.AccountID, decision Decision) error {
	account, err := c.registry.Get(ctx, id)
	if err != nil {
		return err
	}

	switch account.Status {
	case domain.AccountStatusDisabled:
		return nil
	case domain.AccountStatusCoolingDown:
		if !decision.CooldownUntil.After(account.CooldownUntil) {
			c.scheduler.Schedule(id, account.CooldownUntil)
			return nil
		}
	}

	_, err = c.registry.Transition(ctx, TransitionCommand{
		ID:            id,
		Status:        domain.AccountStatusCoolingDown,
		Reason:        decision.Reason,
		CooldownUntil: decision.CooldownUntil,
	})
	if err != nil {
		return err
	}

	c.scheduler.Schedule(id, decision.CooldownUntil)
	return nil
}

func (c *Classifier) disable(ctx context.Context, id domain.AccountID, decision Decision) error {
	c.scheduler.Remove(id)

	_, err := c.registry.Transition(ctx, TransitionCommand{
		ID:     id,
		Status: domain.AccountStatusDisabled,
		Reason: decision.Reason,
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		account, getErr := c.registry.Get(ctx, id)
		if getErr == nil && account.Status == domain.AccountStatusDisabled {
			return nil
		}
	}
	return err
}

// unauthenticate only moves active accounts; a disabled account stays disabled.
func (c *Classifier) unauthenticate(ctx context.Context, id domain.AccountID, decision Decision) error {
	_, err := c.registry.Transition(ctx, TransitionCommand{
		ID:     id,
		Status: domain.AccountStatusUnauthenticated,
		Reason: decision.Reason,
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		account, getErr := c.registry.Get(ctx, id)
		if getErr == nil && account.Status != domain.AccountStatusActive {
			return nil
		}
	}
	if err != nil {
		return err
	}

	c.scheduler.Remove(id)
	return nil
}
