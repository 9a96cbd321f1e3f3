package domain

import (
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	ErrorKindNone                ErrorKind = ""
	ErrorKindRateThrottled       ErrorKind = "rate_throttled"
	ErrorKindAbuseFlagged        ErrorKind = "abuse_flagged"
	ErrorKindIdentityInvalidated ErrorKind = "identity_invalidated"
	ErrorKindTargetUnreachable   ErrorKind = "target_unreachable"
	// ErrorKindCredentialMissing means the account has no resolvable credential; an operator has to supply one.
	ErrorKindCredentialMissing ErrorKind = "credential_missing"
	// ErrorKindUnknown covers capability failures that could not be normalized into one of the kinds above.
	ErrorKindUnknown ErrorKind = "unknown"
)

func (k ErrorKind) Valid() bool {
	switch k {
	case ErrorKindRateThrottled, ErrorKindAbuseFlagged, ErrorKindIdentityInvalidated, ErrorKindTargetUnreachable,
		ErrorKindCredentialMissing, ErrorKindUnknown:
		return true
	default:
		return false
	}
}

// AccountFault reports whether the account rather than the target caused the failure.
func (k ErrorKind) AccountFault() bool {
	switch k {
	case ErrorKindRateThrottled, ErrorKindAbuseFlagged, ErrorKindIdentityInvalidated, ErrorKindCredentialMissing:
		return true
	default:
		return false
	}
}

func ParseErrorKind(raw string) ErrorKind {
	kind := ErrorKind(raw)
	if kind == ErrorKindNone || kind.Valid() {
		return kind
	}
	return ErrorKindUnknown
}

// CapabilityError is the normalized failure returned by a capability invocation.
type CapabilityError struct {
	Kind       ErrorKind
	RetryAfter time.Duration
	Message    string
}

func (e *CapabilityError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf extracts the ErrorKind carried by err; any other non-nil error is ErrorKindUnknown.
func KindOf(err error) (ErrorKind, time.Duration) {
	if err == nil {
		return ErrorKindNone, 0
	}

	var capErr *CapabilityError
	if errors.As(err, &capErr) {
		if !capErr.Kind.Valid() {
			return ErrorKindUnknown, 0
		}
		return capErr.Kind, capErr.RetryAfter
	}

	return ErrorKindUnknown, 0
}

// UsageRecord is the outcome of one attempted action.
type UsageRecord struct {
	AccountID   AccountID
	Destination Destination
	ActionType  Capability
	Success     bool
	ErrorKind   ErrorKind
	RetryAfter  time.Duration
	Message     string
	Timestamp   time.Time
}

func NewUsageRecord(accountID AccountID, action Capability, destination Destination, err error, now time.Time) UsageRecord {
	kind, retryAfter := KindOf(err)
	record := UsageRecord{
		AccountID:   accountID,
		Destination: destination,
		ActionType:  action,
		Success:     err == nil,
		ErrorKind:   kind,
		RetryAfter:  retryAfter,
		Timestamp:   now,
	}
	if err != nil {
		record.Message = err.Error()
	}
	return record
}
