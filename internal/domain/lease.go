package domain

import "time"

// Holder identifies who owns a lease.
type Holder struct {
	Purpose  string
	Consumer string
}

func (h Holder) String() string {
	if h.Purpose == "" {
		return h.Consumer
	}
	return h.Purpose + "/" + h.Consumer
}

// Lease is an exclusive, time-bounded claim on one account.
// Token distinguishes successive leases on the same account so a stale holder cannot release a newer lease.
type Lease struct {
	AccountID  AccountID
	Token      string
	Holder     Holder
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l Lease) Remaining(now time.Time) time.Duration {
	if l.Expired(now) {
		return 0
	}
	return l.ExpiresAt.Sub(now)
}
