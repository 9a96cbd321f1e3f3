package domain

import (
	"fmt"
	"time"
)

type TargetState string

const (
	TargetStatePending         TargetState = "pending"
	TargetStateInProgress      TargetState = "in_progress"
	TargetStateSucceeded       TargetState = "succeeded"
	TargetStateFailedPermanent TargetState = "failed_permanent"
)

func (s TargetState) Terminal() bool {
	return s == TargetStateSucceeded || s == TargetStateFailedPermanent
}

// Target is one unit of campaign work: an action on Subject, optionally inside Destination.
type Target struct {
	ID          TargetID
	Subject     string
	Destination Destination
	State       TargetState
	// Attempts counts target-attributed failures; account-attributed failures do not consume attempts.
	Attempts int
	// Deferrals counts consecutive allocations that found no account; it drives backoff.
	Deferrals        int
	NextAttemptAt    time.Time
	LastAccountID    AccountID
	ExcludedAccounts []AccountID
	LastError        ErrorKind
	FailureReason    string
	UpdatedAt        time.Time
}

func (t Target) Excludes(id AccountID) bool {
	for _, excluded := range t.ExcludedAccounts {
		if excluded == id {
			return true
		}
	}
	return false
}

func (t *Target) Start(accountID AccountID, now time.Time) error {
	if t.State != TargetStatePending {
		return fmt.Errorf("target %s: cannot start from %s", t.ID, t.State)
	}
	t.State = TargetStateInProgress
	t.LastAccountID = accountID
	t.Deferrals = 0
	t.UpdatedAt = now
	return nil
}

func (t *Target) Succeed(now time.Time) {
	t.State = TargetStateSucceeded
	t.LastError = ErrorKindNone
	t.FailureReason = ""
	t.UpdatedAt = now
}

// Fail applies a failed attempt. Account faults send the target back to pending for a same-target retry;
// target faults consume an attempt, exclude the account for the next try and become permanent when attempts run out.
func (t *Target) Fail(kind ErrorKind, reason string, maxAttempts int, now time.Time) {
	t.LastError = kind
	t.UpdatedAt = now
	t.NextAttemptAt = now

	if kind == ErrorKindIdentityInvalidated || kind == ErrorKindCredentialMissing || !kind.AccountFault() {
		t.excludeLastAccount()
	}
	if kind.AccountFault() {
		t.State = TargetStatePending
		return
	}

	t.Attempts++
	if t.Attempts >= maxAttempts {
		t.State = TargetStateFailedPermanent
		t.FailureReason = fmt.Sprintf("%s after %d attempts: %s", kind, t.Attempts, reason)
		return
	}
	t.State = TargetStatePending
}

// Defer pushes the target back after no account could be allocated.
func (t *Target) Defer(next time.Time, now time.Time) {
	t.State = TargetStatePending
	t.Deferrals++
	t.NextAttemptAt = next
	t.UpdatedAt = now
}

// Reclaim returns an in-progress target to pending; used after a worker crash.
func (t *Target) Reclaim(now time.Time) bool {
	if t.State != TargetStateInProgress {
		return false
	}
	t.State = TargetStatePending
	t.NextAttemptAt = now
	t.UpdatedAt = now
	return true
}

func (t *Target) excludeLastAccount() {
	if t.LastAccountID == "" || t.Excludes(t.LastAccountID) {
		return
	}
	t.ExcludedAccounts = append(t.ExcludedAccounts, t.LastAccountID)
}
