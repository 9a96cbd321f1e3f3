package domain

import "errors"

// Programmer or configuration errors. Never retried.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAlreadyExists     = errors.New("account already exists")
	ErrInvalidTransition = errors.New("invalid account transition")
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrTargetNotFound    = errors.New("target not found")
	ErrSecretNotFound    = errors.New("secret not found")
)

// Expected, transient outcomes of allocation. Absorbed by the orchestrator.
var (
	ErrBusy                     = errors.New("account busy")
	ErrDailyLimitExceeded       = errors.New("daily limit exceeded")
	ErrDestinationLimitExceeded = errors.New("destination limit exceeded")
	ErrNoAccountsAvailable      = errors.New("no accounts available")
	ErrLeaseNotHeld             = errors.New("lease not held")
)

// IsTransient reports whether err is an allocation-layer error that is recovered by retry or deferral.
func IsTransient(err error) bool {
	return errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrDailyLimitExceeded) ||
		errors.Is(err, ErrDestinationLimitExceeded) ||
		errors.Is(err, ErrNoAccountsAvailable)
}
