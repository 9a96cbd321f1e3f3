// Package config loads pool settings from $OPOOL_HOME/config.toml, with OPOOL_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

const (
	defaultHomeDir = ".opool"
	configFileName = "config.toml"

	DriverTOML   = "toml"
	DriverSQLite = "sqlite"

	SecretsFile = "file"
	SecretsPass = "pass"
	SecretsAuto = "auto"
)

// Env holds the process environment overrides.
type Env struct {
	Home              string `env:"OPOOL_HOME"`
	StorageDriver     string `env:"OPOOL_STORAGE_DRIVER"`
	WorkerID          string `env:"OPOOL_WORKER_ID"`
	LogLevel          string `env:"OPOOL_LOG_LEVEL"`
	LogFormat         string `env:"OPOOL_LOG_FORMAT"`
	CapabilityCommand string `env:"OPOOL_CAPABILITY_COMMAND"`
}

type Limits struct {
	Daily          int
	PerDestination int
}

type Recovery struct {
	CooldownBuffer time.Duration
	AbuseCooldown  time.Duration
	SweepInterval  time.Duration
}

type Campaign struct {
	MaxAttemptsPerTarget int
	InterActionDelay     time.Duration
	BatchSize            int
	BackoffInitial       time.Duration
	BackoffMax           time.Duration
}

type Storage struct {
	Driver        string
	AccountsPath  string
	CampaignsPath string
	SQLitePath    string
}

type Secrets struct {
	Backend string
	Path    string
}

type Capability struct {
	Command string
	Args    []string
	Timeout time.Duration
}

type Log struct {
	Level  string
	Format string
}

type Config struct {
	Home       string
	WorkerID   string
	Limits     Limits
	Recovery   Recovery
	LeaseTTL   time.Duration
	Campaign   Campaign
	Storage    Storage
	Secrets    Secrets
	Capability Capability
	Log        Log

	// Viper carries the resolved keys to the adapters that read their own paths.
	Viper *viper.Viper
}

// Load reads config.toml from the pool home when present, then applies environment overrides.
// A missing config file is not an error.
func Load() (Config, error) {
	var overrides Env
	if err := env.Parse(&overrides); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return LoadWith(overrides)
}

func LoadWith(overrides Env) (Config, error) {
	home, err := resolveHome(overrides.Home)
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v, home)
	v.SetConfigFile(filepath.Join(home, configFileName))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.Set("home", home)
	setIfNotEmpty(v, "storage.driver", overrides.StorageDriver)
	setIfNotEmpty(v, "worker_id", overrides.WorkerID)
	setIfNotEmpty(v, "log.level", overrides.LogLevel)
	setIfNotEmpty(v, "log.format", overrides.LogFormat)
	setIfNotEmpty(v, "capability.command", overrides.CapabilityCommand)

	cfg := Config{
		Home:     home,
		WorkerID: v.GetString("worker_id"),
		Limits: Limits{
			Daily:          v.GetInt("limits.daily_limit"),
			PerDestination: v.GetInt("limits.per_destination_limit"),
		},
		Recovery: Recovery{
			CooldownBuffer: time.Duration(v.GetInt("recovery.cooldown_buffer_seconds")) * time.Second,
			AbuseCooldown:  v.GetDuration("recovery.abuse_cooldown_duration"),
			SweepInterval:  v.GetDuration("recovery.sweep_interval"),
		},
		LeaseTTL: v.GetDuration("allocator.lease_ttl"),
		Campaign: Campaign{
			MaxAttemptsPerTarget: v.GetInt("campaign.max_attempts_per_target"),
			InterActionDelay:     v.GetDuration("campaign.inter_action_delay"),
			BatchSize:            v.GetInt("campaign.batch_size"),
			BackoffInitial:       v.GetDuration("campaign.backoff_initial"),
			BackoffMax:           v.GetDuration("campaign.backoff_max"),
		},
		Storage: Storage{
			Driver:        strings.ToLower(strings.TrimSpace(v.GetString("storage.driver"))),
			AccountsPath:  v.GetString("storage.accounts_path"),
			CampaignsPath: v.GetString("storage.campaigns_path"),
			SQLitePath:    v.GetString("storage.sqlite_path"),
		},
		Secrets: Secrets{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("secrets.backend"))),
			Path:    v.GetString("secrets.path"),
		},
		Capability: Capability{
			Command: v.GetString("capability.command"),
			Args:    v.GetStringSlice("capability.args"),
			Timeout: v.GetDuration("capability.timeout"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Viper: v,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("limits.daily_limit", 50)
	v.SetDefault("limits.per_destination_limit", 200)
	v.SetDefault("recovery.cooldown_buffer_seconds", 60)
	v.SetDefault("recovery.abuse_cooldown_duration", "24h")
	v.SetDefault("recovery.sweep_interval", "10s")
	v.SetDefault("allocator.lease_ttl", "2m")
	v.SetDefault("campaign.max_attempts_per_target", 3)
	v.SetDefault("campaign.inter_action_delay", "30s")
	v.SetDefault("campaign.batch_size", 4)
	v.SetDefault("campaign.backoff_initial", "5s")
	v.SetDefault("campaign.backoff_max", "5m")
	v.SetDefault("storage.driver", DriverTOML)
	v.SetDefault("storage.accounts_path", filepath.Join(home, "accounts.toml"))
	v.SetDefault("storage.campaigns_path", filepath.Join(home, "campaigns.toml"))
	v.SetDefault("storage.sqlite_path", filepath.Join(home, "pool.db"))
	v.SetDefault("secrets.backend", SecretsFile)
	v.SetDefault("secrets.path", filepath.Join(home, "secrets"))
	v.SetDefault("capability.timeout", "5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate rejects settings that would make every campaign misbehave.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, value int64) {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be greater than zero", name))
		}
	}

	positive("limits.daily_limit", int64(c.Limits.Daily))
	positive("limits.per_destination_limit", int64(c.Limits.PerDestination))
	positive("recovery.abuse_cooldown_duration", int64(c.Recovery.AbuseCooldown))
	positive("recovery.sweep_interval", int64(c.Recovery.SweepInterval))
	positive("allocator.lease_ttl", int64(c.LeaseTTL))
	positive("campaign.max_attempts_per_target", int64(c.Campaign.MaxAttemptsPerTarget))
	positive("campaign.batch_size", int64(c.Campaign.BatchSize))
	positive("campaign.backoff_initial", int64(c.Campaign.BackoffInitial))
	if c.Recovery.CooldownBuffer < 0 {
		errs = append(errs, fmt.Errorf("recovery.cooldown_buffer_seconds must not be negative"))
	}
	if c.Campaign.InterActionDelay < 0 {
		errs = append(errs, fmt.Errorf("campaign.inter_action_delay must not be negative"))
	}
	if c.Campaign.BackoffMax < c.Campaign.BackoffInitial {
		errs = append(errs, fmt.Errorf("campaign.backoff_max must not be below campaign.backoff_initial"))
	}
	if c.Capability.Timeout < 0 {
		errs = append(errs, fmt.Errorf("capability.timeout must not be negative"))
	}

	switch c.Storage.Driver {
	case DriverTOML, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver))
	}
	switch c.Secrets.Backend {
	case SecretsFile, SecretsPass, SecretsAuto:
	default:
		errs = append(errs, fmt.Errorf("unsupported secrets.backend %q", c.Secrets.Backend))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log.format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Logger builds the slog logger selected by log.level and log.format.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unsupported log.level %q", raw)
	}
	return level, nil
}

func resolveHome(override string) (string, error) {
	home := strings.TrimSpace(override)
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		home = filepath.Join(userHome, defaultHomeDir)
	}

	absHome, err := filepath.Abs(home)
	if err != nil {
		return "", fmt.Errorf("resolve pool home: %w", err)
	}
	return filepath.Clean(absHome), nil
}

func setIfNotEmpty(v *viper.Viper, key, value string) {
	if strings.TrimSpace(value) != "" {
		v.Set(key, value)
	}
}
