package ports

import (
	"context"

	"github.com/bnema/outreach-pool/internal/domain"
)

// Invocation is everything a capability needs to perform one action.
type Invocation struct {
	Capability    domain.Capability
	AccountID     domain.AccountID
	CredentialRef string
	Subject       string
	Destination   domain.Destination
}

// Capability performs one external action. Failures must be returned as *domain.CapabilityError;
// any other error is treated as domain.ErrorKindUnknown.
type Capability interface {
	Invoke(ctx context.Context, inv Invocation) error
}
