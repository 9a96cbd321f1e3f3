package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Accounts []accountSchema `toml:"accounts"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported accounts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type accountSchema struct {
	ID             string       `toml:"id"`
	Name           string       `toml:"name"`
	CredentialRef  string       `toml:"credential_ref,omitempty"`
	Capabilities   []string     `toml:"capabilities,omitempty"`
	Status         string       `toml:"status"`
	CooldownUntil  string       `toml:"cooldown_until,omitempty"`
	DisabledReason string       `toml:"disabled_reason,omitempty"`
	Limits         limitsSchema `toml:"limits"`
	Usage          usageSchema  `toml:"usage"`
	LastUsedAt     string       `toml:"last_used_at,omitempty"`
	ErrorCount     int          `toml:"error_count"`
	CreatedAt      string       `toml:"created_at"`
	UpdatedAt      string       `toml:"updated_at"`
}

type limitsSchema struct {
	Daily          int `toml:"daily"`
	PerDestination int `toml:"per_destination"`
}

type usageSchema struct {
	DailyUsed      int            `toml:"daily_used"`
	WindowStart    string         `toml:"window_start,omitempty"`
	PerDestination map[string]int `toml:"per_destination,omitempty"`
}
