package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	scriptcapability "github.com/bnema/outreach-pool/internal/adapters/capability/script"
	"github.com/bnema/outreach-pool/internal/adapters/events/slogsink"
	memorylock "github.com/bnema/outreach-pool/internal/adapters/lock/memory"
	statusadapter "github.com/bnema/outreach-pool/internal/adapters/render/status"
	sqliterepo "github.com/bnema/outreach-pool/internal/adapters/repo/sqlite"
	tomlrepo "github.com/bnema/outreach-pool/internal/adapters/repo/toml"
	chainstore "github.com/bnema/outreach-pool/internal/adapters/secrets/chain"
	filestore "github.com/bnema/outreach-pool/internal/adapters/secrets/file"
	passstore "github.com/bnema/outreach-pool/internal/adapters/secrets/pass"
	"github.com/bnema/outreach-pool/internal/application"
	"github.com/bnema/outreach-pool/internal/config"
	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
	"github.com/google/uuid"
)

type app struct {
	config       config.Config
	logger       *slog.Logger
	registry     *application.Registry
	ledger       *application.Ledger
	recovery     *application.RecoveryScheduler
	orchestrator *application.Orchestrator
	service      *application.Service

	statusRenderer    func([]application.AccountStatus, statusadapter.RenderOptions) (string, error)
	campaignRenderer  func(application.CampaignReport, statusadapter.RenderOptions) (string, error)
	campaignsRenderer func([]application.CampaignReport, statusadapter.RenderOptions) (string, error)

	now   func() time.Time
	close func() error
}

type storage struct {
	accounts  ports.AccountRepository
	campaigns ports.CampaignRepository
	leases    ports.LeaseStore
	close     func() error
}

func wireApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := cfg.Logger(os.Stderr)
	events := slogsink.NewSink(logger)
	clock := ports.SystemClock{}

	store, err := wireStorage(cfg)
	if err != nil {
		return nil, err
	}

	credentials, err := wireCredentials(cfg)
	if err != nil {
		_ = store.close()
		return nil, err
	}

	capability := scriptcapability.New(
		cfg.Capability.Command,
		credentials,
		scriptcapability.WithArgs(cfg.Capability.Args...),
		scriptcapability.WithTimeout(cfg.Capability.Timeout),
	)

	registry := application.NewRegistry(store.accounts, events, clock, domain.AccountLimits{
		Daily:          cfg.Limits.Daily,
		PerDestination: cfg.Limits.PerDestination,
	})
	ledger := application.NewLedger(store.accounts, events, clock)
	locks := application.NewLockManager(store.leases, clock)
	recovery := application.NewRecoveryScheduler(registry, ledger, events, clock)
	classifier := application.NewClassifier(application.PenaltyPolicy{
		CooldownBuffer: cfg.Recovery.CooldownBuffer,
		AbuseCooldown:  cfg.Recovery.AbuseCooldown,
	}, registry, recovery, events, clock)
	allocator := application.NewAllocator(registry, ledger, locks, classifier, events, clock, cfg.LeaseTTL)

	consumer := cfg.WorkerID
	if consumer == "" {
		consumer = "worker-" + uuid.NewString()
	}
	orchestrator := application.NewOrchestrator(allocator, store.campaigns, capability, events, clock, application.OrchestratorConfig{
		Defaults: domain.Policy{
			MaxAttemptsPerTarget: cfg.Campaign.MaxAttemptsPerTarget,
			InterActionDelay:     cfg.Campaign.InterActionDelay,
			BatchSize:            cfg.Campaign.BatchSize,
		},
		Backoff: application.BackoffPolicy{
			Initial: cfg.Campaign.BackoffInitial,
			Max:     cfg.Campaign.BackoffMax,
		},
		Consumer: consumer,
	})

	return &app{
		config:            cfg,
		logger:            logger,
		registry:          registry,
		ledger:            ledger,
		recovery:          recovery,
		orchestrator:      orchestrator,
		service:           application.NewService(store.accounts, store.campaigns, locks, credentials, clock),
		statusRenderer:    statusadapter.Render,
		campaignRenderer:  statusadapter.RenderCampaign,
		campaignsRenderer: statusadapter.RenderCampaigns,
		now:               clock.Now,
		close:             store.close,
	}, nil
}

// wireStorage picks the account, campaign and lease backends. The TOML files only serialize
// writers inside one process, so leases stay in memory with that driver.
func wireStorage(cfg config.Config) (storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := sqliterepo.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return storage{}, fmt.Errorf("wire sqlite storage: %w", err)
		}
		return storage{
			accounts:  db.Accounts(),
			campaigns: db.Campaigns(),
			leases:    db.Leases(),
			close:     db.Close,
		}, nil
	default:
		accounts, err := tomlrepo.NewRepository(cfg.Viper)
		if err != nil {
			return storage{}, fmt.Errorf("wire account repository: %w", err)
		}
		campaigns, err := tomlrepo.NewCampaignRepository(cfg.Viper)
		if err != nil {
			return storage{}, fmt.Errorf("wire campaign repository: %w", err)
		}
		return storage{
			accounts:  accounts,
			campaigns: campaigns,
			leases:    memorylock.NewStore(),
			close:     func() error { return nil },
		}, nil
	}
}

func wireCredentials(cfg config.Config) (ports.CredentialStore, error) {
	switch cfg.Secrets.Backend {
	case config.SecretsPass:
		return passstore.NewStore(), nil
	case config.SecretsAuto:
		store, err := chainstore.NewPassFirstWithFileFallback(cfg.Secrets.Path)
		if err != nil {
			return nil, fmt.Errorf("wire credential store chain: %w", err)
		}
		return store, nil
	default:
		return filestore.NewStore(cfg.Secrets.Path), nil
	}
}
