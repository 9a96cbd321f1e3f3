package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	accountsPathKey    = "storage.accounts_path"
	homeKey            = "home"
	storeFileMode      = 0o600
	storeDirMode       = 0o700
	defaultHomeDir     = ".opool"
	accountsConfigFile = "accounts.toml"
	tempFilePattern    = ".opool-*.toml.tmp"
)

// Repository stores accounts in one TOML file. Writers in the same process are serialized per path;
// the file backend is meant for a single process, use the sqlite backend to share a pool between processes.
type Repository struct {
	accountsPath string
	mu           *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.AccountRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	accountsPath, err := resolvePath(cfg, accountsPathKey, accountsConfigFile)
	if err != nil {
		return nil, err
	}

	return &Repository{accountsPath: accountsPath, mu: lockForPath(accountsPath)}, nil
}

func (r *Repository) Path() string {
	return r.accountsPath
}

func (r *Repository) Create(ctx context.Context, account domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	for _, entry := range file.Accounts {
		if entry.ID == string(account.ID) {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, account.ID)
		}
	}
	file.Accounts = append(file.Accounts, toSchema(account))

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Account{}, err
	}

	for _, entry := range file.Accounts {
		if entry.ID == string(id) {
			return fromSchema(entry), nil
		}
	}

	return domain.Account{}, domain.ErrAccountNotFound
}

func (r *Repository) List(ctx context.Context) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(file.Accounts))
	for _, entry := range file.Accounts {
		accounts = append(accounts, fromSchema(entry))
	}

	return accounts, nil
}

// Update applies fn under the write lock and persists the result only when fn succeeds.
func (r *Repository) Update(ctx context.Context, id domain.AccountID, fn func(*domain.Account) error) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Account{}, err
	}

	for i := range file.Accounts {
		if file.Accounts[i].ID != string(id) {
			continue
		}

		account := fromSchema(file.Accounts[i])
		if err := fn(&account); err != nil {
			return domain.Account{}, err
		}
		if err := account.Validate(); err != nil {
			return domain.Account{}, fmt.Errorf("validate account %s: %w", id, err)
		}
		file.Accounts[i] = toSchema(account)

		if err := r.writeSchema(file); err != nil {
			return domain.Account{}, err
		}
		return account, nil
	}

	return domain.Account{}, domain.ErrAccountNotFound
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.accountsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file := fileSchema{}
			file.applyDefaults()
			return file, nil
		}
		return fileSchema{}, fmt.Errorf("read accounts file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode accounts file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode accounts file: %w", err)
	}

	return writeFileAtomic(r.accountsPath, data)
}

// resolvePath reads key from cfg, falling back to name inside the configured home or ~/.opool.
func resolvePath(cfg *viper.Viper, key, name string) (string, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	path := cfg.GetString(key)
	if path == "" {
		home := cfg.GetString(homeKey)
		if home == "" {
			userHome, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve home directory: %w", err)
			}
			home = filepath.Join(userHome, defaultHomeDir)
		}
		path = filepath.Join(home, name)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", key, err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

// writeFileAtomic replaces path through a temp file in the same directory so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), storeDirMode); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp store file: %w", err)
	}

	if err := tempFile.Chmod(storeFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp store file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp store file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}

	cleanup = false
	return nil
}

func toSchema(account domain.Account) accountSchema {
	capabilities := make([]string, 0, len(account.Capabilities))
	for _, capability := range account.Capabilities {
		capabilities = append(capabilities, string(capability))
	}

	perDestination := make(map[string]int, len(account.Usage.PerDestination))
	for destination, count := range account.Usage.PerDestination {
		perDestination[string(destination)] = count
	}

	return accountSchema{
		ID:             string(account.ID),
		Name:           account.Name,
		CredentialRef:  account.CredentialRef,
		Capabilities:   capabilities,
		Status:         string(account.Status),
		CooldownUntil:  formatTime(account.CooldownUntil),
		DisabledReason: account.DisabledReason,
		Limits: limitsSchema{
			Daily:          account.Limits.Daily,
			PerDestination: account.Limits.PerDestination,
		},
		Usage: usageSchema{
			DailyUsed:      account.Usage.DailyUsed,
			WindowStart:    formatTime(account.Usage.WindowStart),
			PerDestination: perDestination,
		},
		LastUsedAt: formatTime(account.LastUsedAt),
		ErrorCount: account.ErrorCount,
		CreatedAt:  formatTime(account.CreatedAt),
		UpdatedAt:  formatTime(account.UpdatedAt),
	}
}

func fromSchema(account accountSchema) domain.Account {
	var capabilities []domain.Capability
	for _, capability := range account.Capabilities {
		capabilities = append(capabilities, domain.Capability(capability))
	}

	perDestination := make(map[domain.Destination]int, len(account.Usage.PerDestination))
	for destination, count := range account.Usage.PerDestination {
		perDestination[domain.Destination(destination)] = count
	}

	limits := domain.AccountLimits{
		Daily:          account.Limits.Daily,
		PerDestination: account.Limits.PerDestination,
	}
	if limits.PerDestination <= 0 {
		limits.PerDestination = domain.DefaultPerDestinationLimit
	}

	status := domain.AccountStatus(account.Status)
	if status == "" {
		status = domain.AccountStatusActive
	}

	return domain.Account{
		ID:             domain.AccountID(account.ID),
		Name:           account.Name,
		CredentialRef:  account.CredentialRef,
		Capabilities:   capabilities,
		Status:         status,
		CooldownUntil:  parseTime(account.CooldownUntil),
		DisabledReason: account.DisabledReason,
		Limits:         limits,
		Usage: domain.Usage{
			DailyUsed:      account.Usage.DailyUsed,
			WindowStart:    parseTime(account.Usage.WindowStart),
			PerDestination: perDestination,
		},
		LastUsedAt: parseTime(account.LastUsedAt),
		ErrorCount: account.ErrorCount,
		CreatedAt:  parseTime(account.CreatedAt),
		UpdatedAt:  parseTime(account.UpdatedAt),
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed.UTC()
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339Nano)
}
