package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/bnema/outreach-pool/internal/ports"
)

const (
	campaignColumns = `id, name, capability, status, max_attempts_per_target, inter_action_delay_ms, batch_size, created_at, updated_at`
	targetColumns   = `id, subject, destination, state, attempts, deferrals, next_attempt_at, last_account_id,
excluded_accounts_json, last_error, failure_reason, updated_at`
)

// CampaignRepository is the campaigns view of a Store. Targets keep their insertion order.
type CampaignRepository struct {
	store *Store
}

var _ ports.CampaignRepository = (*CampaignRepository)(nil)

func (s *Store) Campaigns() *CampaignRepository {
	return &CampaignRepository{store: s}
}

func (r *CampaignRepository) Create(ctx context.Context, campaign domain.Campaign) error {
	if err := r.store.check(ctx); err != nil {
		return err
	}

	tx, err := r.store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create campaign: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var found int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM campaigns WHERE id = ?", string(campaign.ID)).Scan(&found)
	if err == nil {
		return fmt.Errorf("%w: campaign %s", domain.ErrAlreadyExists, campaign.ID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check campaign %s: %w", campaign.ID, err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO campaigns (`+campaignColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(campaign.ID),
		campaign.Name,
		string(campaign.Capability),
		string(campaign.Status),
		campaign.Policy.MaxAttemptsPerTarget,
		campaign.Policy.InterActionDelay.Milliseconds(),
		campaign.Policy.BatchSize,
		toMillis(campaign.CreatedAt),
		toMillis(campaign.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert campaign %s: %w", campaign.ID, err)
	}

	for position, target := range campaign.Targets {
		excluded, err := encodeExcluded(target.ExcludedAccounts)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO campaign_targets (campaign_id, position, `+targetColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(campaign.ID),
			position,
			string(target.ID),
			target.Subject,
			string(target.Destination),
			string(target.State),
			target.Attempts,
			target.Deferrals,
			toMillis(target.NextAttemptAt),
			string(target.LastAccountID),
			excluded,
			string(target.LastError),
			target.FailureReason,
			toMillis(target.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert target %s: %w", target.ID, err)
		}
	}

	return tx.Commit()
}

func (r *CampaignRepository) GetByID(ctx context.Context, id domain.CampaignID) (domain.Campaign, error) {
	if err := r.store.check(ctx); err != nil {
		return domain.Campaign{}, err
	}

	row := r.store.sqlDB.QueryRowContext(ctx, "SELECT "+campaignColumns+" FROM campaigns WHERE id = ?", string(id))
	campaign, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	if err != nil {
		return domain.Campaign{}, err
	}

	campaign.Targets, err = r.listTargets(ctx, id)
	if err != nil {
		return domain.Campaign{}, err
	}
	return campaign, nil
}

func (r *CampaignRepository) List(ctx context.Context) ([]domain.Campaign, error) {
	if err := r.store.check(ctx); err != nil {
		return nil, err
	}

	rows, err := r.store.sqlDB.QueryContext(ctx, "SELECT "+campaignColumns+" FROM campaigns ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}

	var campaigns []domain.Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		campaigns = append(campaigns, campaign)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	_ = rows.Close()

	for i := range campaigns {
		campaigns[i].Targets, err = r.listTargets(ctx, campaigns[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return campaigns, nil
}

func (r *CampaignRepository) SaveTarget(ctx context.Context, id domain.CampaignID, target domain.Target) error {
	if err := r.store.check(ctx); err != nil {
		return err
	}

	excluded, err := encodeExcluded(target.ExcludedAccounts)
	if err != nil {
		return err
	}

	tx, err := r.store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save target: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := touchCampaign(ctx, tx, id, r.store.now()); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `UPDATE campaign_targets SET
subject = ?, destination = ?, state = ?, attempts = ?, deferrals = ?, next_attempt_at = ?,
last_account_id = ?, excluded_accounts_json = ?, last_error = ?, failure_reason = ?, updated_at = ?
WHERE campaign_id = ? AND id = ?`,
		target.Subject,
		string(target.Destination),
		string(target.State),
		target.Attempts,
		target.Deferrals,
		toMillis(target.NextAttemptAt),
		string(target.LastAccountID),
		excluded,
		string(target.LastError),
		target.FailureReason,
		toMillis(target.UpdatedAt),
		string(id),
		string(target.ID),
	)
	if err != nil {
		return fmt.Errorf("update target %s: %w", target.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update target %s: %w", target.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrTargetNotFound, target.ID)
	}

	return tx.Commit()
}

func (r *CampaignRepository) TransitionStatus(ctx context.Context, id domain.CampaignID, from, to domain.CampaignStatus) (bool, error) {
	if err := r.store.check(ctx); err != nil {
		return false, err
	}

	result, err := r.store.sqlDB.ExecContext(ctx, "UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), toMillis(r.store.now()), string(id), string(from))
	if err != nil {
		return false, fmt.Errorf("transition campaign %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition campaign %s: %w", id, err)
	}
	if affected > 0 {
		return true, nil
	}

	var found int
	err = r.store.sqlDB.QueryRowContext(ctx, "SELECT 1 FROM campaigns WHERE id = ?", string(id)).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrCampaignNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check campaign %s: %w", id, err)
	}
	return false, nil
}

// touchCampaign bumps updated_at.
func touchCampaign(ctx context.Context, q queryer, id domain.CampaignID, now time.Time) error {
	result, err := q.ExecContext(ctx, "UPDATE campaigns SET updated_at = ? WHERE id = ?", toMillis(now), string(id))
	if err != nil {
		return fmt.Errorf("update campaign %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update campaign %s: %w", id, err)
	}
	if affected == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}

func (r *CampaignRepository) listTargets(ctx context.Context, id domain.CampaignID) ([]domain.Target, error) {
	rows, err := r.store.sqlDB.QueryContext(ctx,
		"SELECT "+targetColumns+" FROM campaign_targets WHERE campaign_id = ? ORDER BY position",
		string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("list targets of %s: %w", id, err)
	}
	defer rows.Close()

	var targets []domain.Target
	for rows.Next() {
		var target domain.Target
		var targetID, destination, state, lastAccount, excluded, lastError string
		var nextAttempt, updated int64
		err := rows.Scan(
			&targetID,
			&target.Subject,
			&destination,
			&state,
			&target.Attempts,
			&target.Deferrals,
			&nextAttempt,
			&lastAccount,
			&excluded,
			&lastError,
			&target.FailureReason,
			&updated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}

		target.ID = domain.TargetID(targetID)
		target.Destination = domain.Destination(destination)
		target.State = domain.TargetState(state)
		target.NextAttemptAt = fromMillis(nextAttempt)
		target.LastAccountID = domain.AccountID(lastAccount)
		target.LastError = domain.ErrorKind(lastError)
		target.UpdatedAt = fromMillis(updated)
		if err := json.Unmarshal([]byte(excluded), &target.ExcludedAccounts); err != nil {
			return nil, fmt.Errorf("decode excluded accounts of %s: %w", targetID, err)
		}
		if len(target.ExcludedAccounts) == 0 {
			target.ExcludedAccounts = nil
		}
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list targets of %s: %w", id, err)
	}
	return targets, nil
}

func scanCampaign(row scanner) (domain.Campaign, error) {
	var campaign domain.Campaign
	var id, capability, status string
	var delayMillis, created, updated int64
	err := row.Scan(
		&id,
		&campaign.Name,
		&capability,
		&status,
		&campaign.Policy.MaxAttemptsPerTarget,
		&delayMillis,
		&campaign.Policy.BatchSize,
		&created,
		&updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Campaign{}, err
		}
		return domain.Campaign{}, fmt.Errorf("scan campaign: %w", err)
	}

	campaign.ID = domain.CampaignID(id)
	campaign.Capability = domain.Capability(capability)
	campaign.Status = domain.CampaignStatus(status)
	campaign.Policy.InterActionDelay = time.Duration(delayMillis) * time.Millisecond
	campaign.CreatedAt = fromMillis(created)
	campaign.UpdatedAt = fromMillis(updated)
	return campaign, nil
}

func encodeExcluded(ids []domain.AccountID) (string, error) {
	if ids == nil {
		ids = []domain.AccountID{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode excluded accounts: %w", err)
	}
	return string(data), nil
}
