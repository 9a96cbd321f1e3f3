package application

import (
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
)

type RegisterAccountCommand struct {
	ID            domain.AccountID
	Name          string
	CredentialRef string
	Capabilities  []domain.Capability
	// Limits left at zero fall back to the registry defaults.
	Limits domain.AccountLimits
}

type TransitionCommand struct {
	ID            domain.AccountID
	Status        domain.AccountStatus
	Reason        string
	CooldownUntil time.Time
}

type CreateCampaignCommand struct {
	ID         domain.CampaignID
	Name       string
	Capability domain.Capability
	Targets    []domain.Target
	// Zero-valued policy fields fall back to the orchestrator defaults.
	Policy domain.Policy
}

type AllocationRequest struct {
	Capability  domain.Capability
	Destination domain.Destination
	Purpose     string
	Consumer    string
	TTL         time.Duration
	Exclude     []domain.AccountID
}
