package domain

import (
	"fmt"
	"strings"
	"time"
)

type AccountID string

type Destination string

type Capability string

const (
	CapabilityInvite  Capability = "invite"
	CapabilityMessage Capability = "message"
)

type AccountStatus string

const (
	AccountStatusActive          AccountStatus = "active"
	AccountStatusCoolingDown     AccountStatus = "cooling_down"
	AccountStatusDisabled        AccountStatus = "disabled"
	AccountStatusUnauthenticated AccountStatus = "unauthenticated"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusCoolingDown, AccountStatusDisabled, AccountStatusUnauthenticated:
		return true
	default:
		return false
	}
}

type Account struct {
	ID   AccountID
	Name string
	// CredentialRef is an opaque handle forwarded to the capability; the core never reads the credential.
	CredentialRef  string
	Capabilities   []Capability
	Status         AccountStatus
	CooldownUntil  time.Time
	DisabledReason string
	Limits         AccountLimits
	Usage          Usage
	LastUsedAt     time.Time
	ErrorCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a Account) Validate() error {
	if strings.TrimSpace(string(a.ID)) == "" {
		return fmt.Errorf("id is required")
	}
	if !a.Status.Valid() {
		return fmt.Errorf("unsupported status %q", a.Status)
	}
	if err := a.Limits.Validate(); err != nil {
		return err
	}
	if a.Status == AccountStatusCoolingDown && a.CooldownUntil.IsZero() {
		return fmt.Errorf("cooldown_until is required while cooling down")
	}
	if a.Status != AccountStatusCoolingDown && !a.CooldownUntil.IsZero() {
		return fmt.Errorf("cooldown_until is only allowed while cooling down")
	}
	if a.Status == AccountStatusDisabled && strings.TrimSpace(a.DisabledReason) == "" {
		return fmt.Errorf("disabled_reason is required while disabled")
	}
	if a.Status != AccountStatusDisabled && a.DisabledReason != "" {
		return fmt.Errorf("disabled_reason is only allowed while disabled")
	}

	return nil
}

// Supports reports whether the account may perform capability. An empty list means any capability.
func (a Account) Supports(capability Capability) bool {
	if len(a.Capabilities) == 0 || capability == "" {
		return true
	}
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Eligible reports whether the account can take a new action for capability and destination at now.
// Cooling accounts are never eligible here, even past cooldown_until: only the recovery sweep promotes them.
func (a Account) Eligible(capability Capability, destination Destination, now time.Time) bool {
	if a.Status != AccountStatusActive {
		return false
	}
	if !a.Supports(capability) {
		return false
	}

	return a.Usage.Check(a.Limits, destination, now) == nil
}

func (a Account) Clone() Account {
	clone := a
	if a.Capabilities != nil {
		clone.Capabilities = append([]Capability(nil), a.Capabilities...)
	}
	clone.Usage = a.Usage.Clone()
	return clone
}

func NormalizeCapabilities(capabilities []Capability) []Capability {
	result := make([]Capability, 0, len(capabilities))
	seen := make(map[Capability]struct{}, len(capabilities))
	for _, capability := range capabilities {
		trimmed := Capability(strings.ToLower(strings.TrimSpace(string(capability))))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}

	return result
}
