package domain

import (
	"fmt"
	"strings"
	"time"
)

type CampaignID string
type TargetID string

type CampaignStatus string

const (
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

func (s CampaignStatus) Terminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusCancelled
}

type Policy struct {
	MaxAttemptsPerTarget int
	InterActionDelay     time.Duration
	BatchSize            int
}

func (p Policy) Validate() error {
	if p.MaxAttemptsPerTarget <= 0 {
		return fmt.Errorf("max attempts per target must be greater than zero")
	}
	if p.InterActionDelay < 0 {
		return fmt.Errorf("inter-action delay must not be negative")
	}
	if p.BatchSize <= 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	return nil
}

type Campaign struct {
	ID         CampaignID
	Name       string
	Capability Capability
	Policy     Policy
	Status     CampaignStatus
	Targets    []Target
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c Campaign) Validate() error {
	if strings.TrimSpace(string(c.ID)) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(string(c.Capability)) == "" {
		return fmt.Errorf("capability is required")
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	seen := make(map[TargetID]struct{}, len(c.Targets))
	for _, target := range c.Targets {
		if strings.TrimSpace(string(target.ID)) == "" {
			return fmt.Errorf("target id is required")
		}
		if _, ok := seen[target.ID]; ok {
			return fmt.Errorf("duplicate target id %q", target.ID)
		}
		seen[target.ID] = struct{}{}
	}

	return nil
}

// Done reports whether every target reached a terminal state.
func (c Campaign) Done() bool {
	for _, target := range c.Targets {
		if !target.State.Terminal() {
			return false
		}
	}
	return true
}

// Due returns up to limit pending targets whose next attempt time has passed, in campaign order.
func (c Campaign) Due(now time.Time, limit int) []Target {
	due := make([]Target, 0, limit)
	for _, target := range c.Targets {
		if len(due) == limit {
			break
		}
		if target.State == TargetStatePending && !now.Before(target.NextAttemptAt) {
			due = append(due, target)
		}
	}
	return due
}

// NextWake returns the earliest NextAttemptAt across pending targets.
func (c Campaign) NextWake() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, target := range c.Targets {
		if target.State != TargetStatePending {
			continue
		}
		if !found || target.NextAttemptAt.Before(earliest) {
			earliest = target.NextAttemptAt
			found = true
		}
	}
	return earliest, found
}

func (c Campaign) Counts() map[TargetState]int {
	counts := map[TargetState]int{}
	for _, target := range c.Targets {
		counts[target.State]++
	}
	return counts
}

// NormalizeTargets trims identifiers, drops empty ones and assigns positional ids where missing.
func (c *Campaign) NormalizeTargets() {
	if c == nil {
		return
	}

	targets := make([]Target, 0, len(c.Targets))
	for _, target := range c.Targets {
		target.Subject = strings.TrimSpace(target.Subject)
		target.Destination = Destination(strings.TrimSpace(string(target.Destination)))
		if target.Subject == "" && target.Destination == "" {
			continue
		}
		if target.ID == "" {
			target.ID = TargetID(fmt.Sprintf("t%04d", len(targets)+1))
		}
		if target.State == "" {
			target.State = TargetStatePending
		}
		targets = append(targets, target)
	}

	c.Targets = targets
}
