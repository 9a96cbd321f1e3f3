package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

const accountColumns = `id, name, credential_ref, capabilities_json, status, cooldown_until, disabled_reason,
daily_limit, per_destination_limit, daily_used, window_start, last_used_at, error_count, created_at, updated_at`

// AccountRepository is the accounts view of a Store.
type AccountRepository struct {
	store *Store
}

var _ ports.AccountRepository = (*AccountRepository)(nil)

func (s *Store) Accounts() *AccountRepository {
	return &AccountRepository{store: s}
}

func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	if err := r.store.check(ctx); err != nil {
		return err
	}

	tx, err := r.store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create account: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var found int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM accounts WHERE id = ?", string(account.ID)).Scan(&found)
	if err == nil {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, account.ID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check account %s: %w", account.ID, err)
	}

	capabilities, err := encodeCapabilities(account.Capabilities)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(account.ID),
		account.Name,
		account.CredentialRef,
		capabilities,
		string(account.Status),
		toMillis(account.CooldownUntil),
		account.DisabledReason,
		account.Limits.Daily,
		account.Limits.PerDestination,
		account.Usage.DailyUsed,
		toMillis(account.Usage.WindowStart),
		toMillis(account.LastUsedAt),
		account.ErrorCount,
		toMillis(account.CreatedAt),
		toMillis(account.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert account %s: %w", account.ID, err)
	}
	if err := writeDestinationUsage(ctx, tx, account); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *AccountRepository) GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error) {
	if err := r.store.check(ctx); err != nil {
		return domain.Account{}, err
	}
	return getAccount(ctx, r.store.sqlDB, id)
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	if err := r.store.check(ctx); err != nil {
		return nil, err
	}

	rows, err := r.store.sqlDB.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	usage, err := listDestinationUsage(ctx, r.store.sqlDB, "")
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if counts, ok := usage[accounts[i].ID]; ok {
			accounts[i].Usage.PerDestination = counts
		}
	}

	return accounts, nil
}

// Update reads, mutates and writes the account inside one immediate transaction, which holds the
// database write lock for the whole read-modify-write across processes.
func (r *AccountRepository) Update(ctx context.Context, id domain.AccountID, fn func(*domain.Account) error) (domain.Account, error) {
	if err := r.store.check(ctx); err != nil {
		return domain.Account{}, err
	}

	tx, err := r.store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Account{}, fmt.Errorf("begin update account: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	account, err := getAccount(ctx, tx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if err := fn(&account); err != nil {
		return domain.Account{}, err
	}
	if err := account.Validate(); err != nil {
		return domain.Account{}, fmt.Errorf("validate account %s: %w", id, err)
	}

	capabilities, err := encodeCapabilities(account.Capabilities)
	if err != nil {
		return domain.Account{}, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE accounts SET
name = ?, credential_ref = ?, capabilities_json = ?, status = ?, cooldown_until = ?, disabled_reason = ?,
daily_limit = ?, per_destination_limit = ?, daily_used = ?, window_start = ?, last_used_at = ?,
error_count = ?, updated_at = ?
WHERE id = ?`,
		account.Name,
		account.CredentialRef,
		capabilities,
		string(account.Status),
		toMillis(account.CooldownUntil),
		account.DisabledReason,
		account.Limits.Daily,
		account.Limits.PerDestination,
		account.Usage.DailyUsed,
		toMillis(account.Usage.WindowStart),
		toMillis(account.LastUsedAt),
		account.ErrorCount,
		toMillis(account.UpdatedAt),
		string(id),
	)
	if err != nil {
		return domain.Account{}, fmt.Errorf("update account %s: %w", id, err)
	}
	if err := writeDestinationUsage(ctx, tx, account); err != nil {
		return domain.Account{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Account{}, fmt.Errorf("commit account %s: %w", id, err)
	}
	return account, nil
}

func getAccount(ctx context.Context, q queryer, id domain.AccountID) (domain.Account, error) {
	row := q.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", string(id))
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}

	usage, err := listDestinationUsage(ctx, q, id)
	if err != nil {
		return domain.Account{}, err
	}
	account.Usage.PerDestination = usage[id]
	return account, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (domain.Account, error) {
	var account domain.Account
	var id, status, capabilities string
	var cooldownUntil, windowStart, lastUsedAt, created, updated int64
	err := row.Scan(
		&id,
		&account.Name,
		&account.CredentialRef,
		&capabilities,
		&status,
		&cooldownUntil,
		&account.DisabledReason,
		&account.Limits.Daily,
		&account.Limits.PerDestination,
		&account.Usage.DailyUsed,
		&windowStart,
		&lastUsedAt,
		&account.ErrorCount,
		&created,
		&updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, err
		}
		return domain.Account{}, fmt.Errorf("scan account: %w", err)
	}

	account.ID = domain.AccountID(id)
	account.Status = domain.AccountStatus(status)
	account.CooldownUntil = fromMillis(cooldownUntil)
	account.Usage.WindowStart = fromMillis(windowStart)
	account.LastUsedAt = fromMillis(lastUsedAt)
	account.CreatedAt = fromMillis(created)
	account.UpdatedAt = fromMillis(updated)
	if err := json.Unmarshal([]byte(capabilities), &account.Capabilities); err != nil {
		return domain.Account{}, fmt.Errorf("decode capabilities of %s: %w", id, err)
	}
	if len(account.Capabilities) == 0 {
		account.Capabilities = nil
	}
	return account, nil
}

// listDestinationUsage loads per-destination counters, for one account or for all when id is empty.
func listDestinationUsage(ctx context.Context, q queryer, id domain.AccountID) (map[domain.AccountID]map[domain.Destination]int, error) {
	query := "SELECT account_id, destination, used FROM account_destination_usage"
	var args []any
	if id != "" {
		query += " WHERE account_id = ?"
		args = append(args, string(id))
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list destination usage: %w", err)
	}
	defer rows.Close()

	usage := map[domain.AccountID]map[domain.Destination]int{}
	for rows.Next() {
		var accountID, destination string
		var used int
		if err := rows.Scan(&accountID, &destination, &used); err != nil {
			return nil, fmt.Errorf("scan destination usage: %w", err)
		}
		counts, ok := usage[domain.AccountID(accountID)]
		if !ok {
			counts = map[domain.Destination]int{}
			usage[domain.AccountID(accountID)] = counts
		}
		counts[domain.Destination(destination)] = used
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list destination usage: %w", err)
	}
	return usage, nil
}

func writeDestinationUsage(ctx context.Context, tx *sql.Tx, account domain.Account) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM account_destination_usage WHERE account_id = ?", string(account.ID)); err != nil {
		return fmt.Errorf("clear destination usage of %s: %w", account.ID, err)
	}
	for destination, used := range account.Usage.PerDestination {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO account_destination_usage (account_id, destination, used) VALUES (?, ?, ?)",
			string(account.ID), string(destination), used,
		)
		if err != nil {
			return fmt.Errorf("write destination usage of %s: %w", account.ID, err)
		}
	}
	return nil
}

func encodeCapabilities(capabilities []domain.Capability) (string, error) {
	if capabilities == nil {
		capabilities = []domain.Capability{}
	}
	data, err := json.Marshal(capabilities)
	if err != nil {
		return "", fmt.Errorf("encode capabilities: %w", err)
	}
	return string(data), nil
}
