package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	campaignsPathKey    = "storage.campaigns_path"
	campaignsConfigFile = "campaigns.toml"
)

type CampaignRepository struct {
	path string
	mu   *sync.RWMutex
	now  func() time.Time
}

var _ ports.CampaignRepository = (*CampaignRepository)(nil)

func NewCampaignRepository(cfg *viper.Viper) (*CampaignRepository, error) {
	path, err := resolvePath(cfg, campaignsPathKey, campaignsConfigFile)
	if err != nil {
		return nil, err
	}

	return &CampaignRepository{
		path: path,
		mu:   lockForPath(path),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *CampaignRepository) Create(ctx context.Context, campaign domain.Campaign) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	for _, entry := range file.Campaigns {
		if entry.ID == string(campaign.ID) {
			return fmt.Errorf("%w: campaign %s", domain.ErrAlreadyExists, campaign.ID)
		}
	}
	file.Campaigns = append(file.Campaigns, toCampaignSchema(campaign))

	return r.writeSchema(file)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id domain.CampaignID) (domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return domain.Campaign{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Campaign{}, err
	}

	for _, entry := range file.Campaigns {
		if entry.ID == string(id) {
			return fromCampaignSchema(entry), nil
		}
	}

	return domain.Campaign{}, domain.ErrCampaignNotFound
}

func (r *CampaignRepository) List(ctx context.Context) ([]domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	campaigns := make([]domain.Campaign, 0, len(file.Campaigns))
	for _, entry := range file.Campaigns {
		campaigns = append(campaigns, fromCampaignSchema(entry))
	}

	return campaigns, nil
}

func (r *CampaignRepository) SaveTarget(ctx context.Context, id domain.CampaignID, target domain.Target) error {
	return r.mutate(ctx, id, func(campaign *campaignSchema) error {
		for i := range campaign.Targets {
			if campaign.Targets[i].ID == string(target.ID) {
				campaign.Targets[i] = toTargetSchema(target)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", domain.ErrTargetNotFound, target.ID)
	})
}

var errStatusChanged = errors.New("campaign status changed")

func (r *CampaignRepository) TransitionStatus(ctx context.Context, id domain.CampaignID, from, to domain.CampaignStatus) (bool, error) {
	err := r.mutate(ctx, id, func(campaign *campaignSchema) error {
		if campaign.Status != string(from) {
			return errStatusChanged
		}
		campaign.Status = string(to)
		return nil
	})
	if errors.Is(err, errStatusChanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *CampaignRepository) mutate(ctx context.Context, id domain.CampaignID, fn func(*campaignSchema) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	for i := range file.Campaigns {
		if file.Campaigns[i].ID != string(id) {
			continue
		}
		if err := fn(&file.Campaigns[i]); err != nil {
			return err
		}
		file.Campaigns[i].UpdatedAt = formatTime(r.now())
		return r.writeSchema(file)
	}

	return domain.ErrCampaignNotFound
}

func (r *CampaignRepository) readSchema() (campaignsFileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file := campaignsFileSchema{}
			file.applyDefaults()
			return file, nil
		}
		return campaignsFileSchema{}, fmt.Errorf("read campaigns file: %w", err)
	}

	var file campaignsFileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return campaignsFileSchema{}, fmt.Errorf("decode campaigns file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return campaignsFileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *CampaignRepository) writeSchema(file campaignsFileSchema) error {
	file.applyDefaults()

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode campaigns file: %w", err)
	}

	return writeFileAtomic(r.path, data)
}

func toCampaignSchema(campaign domain.Campaign) campaignSchema {
	targets := make([]targetSchema, 0, len(campaign.Targets))
	for _, target := range campaign.Targets {
		targets = append(targets, toTargetSchema(target))
	}

	return campaignSchema{
		ID:         string(campaign.ID),
		Name:       campaign.Name,
		Capability: string(campaign.Capability),
		Status:     string(campaign.Status),
		Policy: policySchema{
			MaxAttemptsPerTarget: campaign.Policy.MaxAttemptsPerTarget,
			InterActionDelay:     campaign.Policy.InterActionDelay.String(),
			BatchSize:            campaign.Policy.BatchSize,
		},
		Targets:   targets,
		CreatedAt: formatTime(campaign.CreatedAt),
		UpdatedAt: formatTime(campaign.UpdatedAt),
	}
}

func fromCampaignSchema(campaign campaignSchema) domain.Campaign {
	targets := make([]domain.Target, 0, len(campaign.Targets))
	for _, target := range campaign.Targets {
		targets = append(targets, fromTargetSchema(target))
	}

	delay, err := time.ParseDuration(campaign.Policy.InterActionDelay)
	if err != nil {
		delay = 0
	}

	return domain.Campaign{
		ID:         domain.CampaignID(campaign.ID),
		Name:       campaign.Name,
		Capability: domain.Capability(campaign.Capability),
		Status:     domain.CampaignStatus(campaign.Status),
		Policy: domain.Policy{
			MaxAttemptsPerTarget: campaign.Policy.MaxAttemptsPerTarget,
			InterActionDelay:     delay,
			BatchSize:            campaign.Policy.BatchSize,
		},
		Targets:   targets,
		CreatedAt: parseTime(campaign.CreatedAt),
		UpdatedAt: parseTime(campaign.UpdatedAt),
	}
}

func toTargetSchema(target domain.Target) targetSchema {
	var excluded []string
	for _, id := range target.ExcludedAccounts {
		excluded = append(excluded, string(id))
	}

	return targetSchema{
		ID:               string(target.ID),
		Subject:          target.Subject,
		Destination:      string(target.Destination),
		State:            string(target.State),
		Attempts:         target.Attempts,
		Deferrals:        target.Deferrals,
		NextAttemptAt:    formatTime(target.NextAttemptAt),
		LastAccountID:    string(target.LastAccountID),
		ExcludedAccounts: excluded,
		LastError:        string(target.LastError),
		FailureReason:    target.FailureReason,
		UpdatedAt:        formatTime(target.UpdatedAt),
	}
}

func fromTargetSchema(target targetSchema) domain.Target {
	var excluded []domain.AccountID
	for _, id := range target.ExcludedAccounts {
		excluded = append(excluded, domain.AccountID(id))
	}

	state := domain.TargetState(target.State)
	if state == "" {
		state = domain.TargetStatePending
	}

	return domain.Target{
		ID:               domain.TargetID(target.ID),
		Subject:          target.Subject,
		Destination:      domain.Destination(target.Destination),
		State:            state,
		Attempts:         target.Attempts,
		Deferrals:        target.Deferrals,
		NextAttemptAt:    parseTime(target.NextAttemptAt),
		LastAccountID:    domain.AccountID(target.LastAccountID),
		ExcludedAccounts: excluded,
		LastError:        domain.ErrorKind(target.LastError),
		FailureReason:    target.FailureReason,
		UpdatedAt:        parseTime(target.UpdatedAt),
	}
}
