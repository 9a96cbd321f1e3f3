package domain

import (
	"fmt"
	"strings"
	"time"
)

type TransitionMeta struct {
	Reason        string
	CooldownUntil time.Time
}

// allowedTransitions lists every legal edge of the account lifecycle. Disabled has no outgoing edge.
var allowedTransitions = map[AccountStatus][]AccountStatus{
	AccountStatusActive:          {AccountStatusCoolingDown, AccountStatusDisabled, AccountStatusUnauthenticated},
	AccountStatusCoolingDown:     {AccountStatusActive, AccountStatusCoolingDown, AccountStatusDisabled},
	AccountStatusUnauthenticated: {AccountStatusActive, AccountStatusDisabled},
}

func CanTransition(from, to AccountStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Transition returns a copy of the account moved to status to, or ErrInvalidTransition.
func (a Account) Transition(to AccountStatus, meta TransitionMeta, now time.Time) (Account, error) {
	if !to.Valid() {
		return Account{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !CanTransition(a.Status, to) {
		return Account{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}

	next := a.Clone()
	switch to {
	case AccountStatusCoolingDown:
		if !meta.CooldownUntil.After(now) {
			return Account{}, fmt.Errorf("%w: cooldown_until must be in the future", ErrInvalidTransition)
		}
		if a.Status == AccountStatusCoolingDown && !meta.CooldownUntil.After(a.CooldownUntil) {
			return Account{}, fmt.Errorf("%w: cooldown can only be extended", ErrInvalidTransition)
		}
		next.CooldownUntil = meta.CooldownUntil
	case AccountStatusActive:
		if a.Status == AccountStatusCoolingDown && now.Before(a.CooldownUntil) {
			return Account{}, fmt.Errorf("%w: cooldown runs until %s", ErrInvalidTransition, a.CooldownUntil.Format(time.RFC3339))
		}
		next.CooldownUntil = time.Time{}
	case AccountStatusDisabled:
		reason := strings.TrimSpace(meta.Reason)
		if reason == "" {
			reason = "disabled"
		}
		next.CooldownUntil = time.Time{}
		next.DisabledReason = reason
	case AccountStatusUnauthenticated:
		next.CooldownUntil = time.Time{}
	}

	next.Status = to
	next.UpdatedAt = now
	return next, nil
}
