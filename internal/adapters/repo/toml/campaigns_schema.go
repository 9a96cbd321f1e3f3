package toml

import "fmt"

const currentCampaignsSchemaVersion = 1

type campaignsFileSchema struct {
	Version   int              `toml:"version"`
	Campaigns []campaignSchema `toml:"campaigns"`
}

func (s *campaignsFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentCampaignsSchemaVersion
	}
}

func (s campaignsFileSchema) validateVersion() error {
	if s.Version > currentCampaignsSchemaVersion {
		return fmt.Errorf("unsupported campaigns schema version %d (current %d)", s.Version, currentCampaignsSchemaVersion)
	}

	return nil
}

type campaignSchema struct {
	ID         string         `toml:"id"`
	Name       string         `toml:"name"`
	Capability string         `toml:"capability"`
	Status     string         `toml:"status"`
	Policy     policySchema   `toml:"policy"`
	Targets    []targetSchema `toml:"targets"`
	CreatedAt  string         `toml:"created_at"`
	UpdatedAt  string         `toml:"updated_at"`
}

type policySchema struct {
	MaxAttemptsPerTarget int    `toml:"max_attempts_per_target"`
	InterActionDelay     string `toml:"inter_action_delay"`
	BatchSize            int    `toml:"batch_size"`
}

type targetSchema struct {
	ID               string   `toml:"id"`
	Subject          string   `toml:"subject"`
	Destination      string   `toml:"destination,omitempty"`
	State            string   `toml:"state"`
	Attempts         int      `toml:"attempts"`
	Deferrals        int      `toml:"deferrals,omitempty"`
	NextAttemptAt    string   `toml:"next_attempt_at,omitempty"`
	LastAccountID    string   `toml:"last_account_id,omitempty"`
	ExcludedAccounts []string `toml:"excluded_accounts,omitempty"`
	LastError        string   `toml:"last_error,omitempty"`
	FailureReason    string   `toml:"failure_reason,omitempty"`
	UpdatedAt        string   `toml:"updated_at,omitempty"`
}
