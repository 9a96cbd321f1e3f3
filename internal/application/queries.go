package application

import (
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
)

type AccountStatus struct {
	Account domain.Account
	// DailyUsed is the daily counter as seen at query time; zero when the window already elapsed.
	DailyUsed int
	Lease     *domain.Lease
}

type TargetReport struct {
	ID            domain.TargetID
	Subject       string
	Destination   domain.Destination
	State         domain.TargetState
	Attempts      int
	NextAttemptAt time.Time
	LastAccountID domain.AccountID
	FailureReason string
}

// CampaignReport is what a caller sees of a campaign: every target, with its state and failure reason.
type CampaignReport struct {
	ID         domain.CampaignID
	Name       string
	Capability domain.Capability
	Status     domain.CampaignStatus
	Counts     map[domain.TargetState]int
	Targets    []TargetReport
	UpdatedAt  time.Time
}

func ReportFromCampaign(campaign domain.Campaign) CampaignReport {
	targets := make([]TargetReport, 0, len(campaign.Targets))
	for _, target := range campaign.Targets {
		targets = append(targets, TargetReport{
			ID:            target.ID,
			Subject:       target.Subject,
			Destination:   target.Destination,
			State:         target.State,
			Attempts:      target.Attempts,
			NextAttemptAt: target.NextAttemptAt,
			LastAccountID: target.LastAccountID,
			FailureReason: target.FailureReason,
		})
	}

	return CampaignReport{
		ID:         campaign.ID,
		Name:       campaign.Name,
		Capability: campaign.Capability,
		Status:     campaign.Status,
		Counts:     campaign.Counts(),
		Targets:    targets,
		UpdatedAt:  campaign.UpdatedAt,
	}
}

// Failed returns the permanently failed targets.
func (r CampaignReport) Failed() []TargetReport {
	failed := make([]TargetReport, 0)
	for _, target := range r.Targets {
		if target.State == domain.TargetStateFailedPermanent {
			failed = append(failed, target)
		}
	}
	return failed
}
