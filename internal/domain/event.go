package domain

import "time"

type EventType string

const (
	EventAccountRegistered   EventType = "account.registered"
	EventAccountTransition   EventType = "account.transition"
	EventAllocationGranted   EventType = "allocation.granted"
	EventAllocationExhausted EventType = "allocation.exhausted"
	EventLeaseReleased       EventType = "lease.released"
	EventErrorClassified     EventType = "error.classified"
	EventRecoveryReactivated EventType = "recovery.reactivated"
	EventRecoverySweepFailed EventType = "recovery.sweep_failed"
	EventLedgerDailyReset    EventType = "ledger.daily_reset"
	EventTargetOutcome       EventType = "target.outcome"
	EventCampaignFinished    EventType = "campaign.finished"
)

// Event is a one-way observability record.
type Event struct {
	Type       EventType
	Time       time.Time
	AccountID  AccountID
	From       string
	To         string
	Reason     string
	CampaignID CampaignID
	TargetID   TargetID
}
