package ports

import (
	"context"

	"github.com/bnema/outreach-pool/internal/domain"
)

// CampaignRepository is the campaign source port: the orchestrator pulls targets and pushes per-target outcomes back.
type CampaignRepository interface {
	Create(ctx context.Context, campaign domain.Campaign) error
	GetByID(ctx context.Context, id domain.CampaignID) (domain.Campaign, error)
	List(ctx context.Context) ([]domain.Campaign, error)
	SaveTarget(ctx context.Context, id domain.CampaignID, target domain.Target) error
	// TransitionStatus sets status to only while the campaign is still in from and reports whether it did.
	TransitionStatus(ctx context.Context, id domain.CampaignID, from, to domain.CampaignStatus) (bool, error)
}
