package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/adscale/internal/domain"
)

// ResetRepo persists daily budget-reset events.
type ResetRepo struct{ db *sql.DB }

// NewResetRepo creates a Postgres-backed reset repository.
func NewResetRepo(db *sql.DB) *ResetRepo { return &ResetRepo{db: db} }

// Insert records one reset. The (ad_assets_id, reset_date) unique index
// makes the reset worker idempotent across restarts; a duplicate insert
// reports alreadyDone instead of an error.
func (r *ResetRepo) Insert(ctx context.Context, reset *domain.BudgetReset) (alreadyDone bool, err error) {
	if reset.ID == "" {
		reset.ID = uuid.New().String()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO ad_budget_resets (id, ad_assets_id, reset_date, budget_before, budget_after)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ad_assets_id, reset_date) DO NOTHING
	`, reset.ID, reset.AdAssetID, reset.ResetDate, reset.BudgetBefore, reset.BudgetAfter)
	if err != nil {
		return false, fmt.Errorf("insert budget reset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert budget reset: %w", err)
	}
	return n == 0, nil
}

// WasResetOn reports whether the asset has already been reset for the given
// asset-local date (YYYY-MM-DD).
func (r *ResetRepo) WasResetOn(ctx context.Context, assetID, resetDate string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM ad_budget_resets WHERE ad_assets_id = $1 AND reset_date = $2)
	`, assetID, resetDate).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check budget reset: %w", err)
	}
	return exists, nil
}

// ListSince returns an asset's reset events from the given time, newest first.
func (r *ResetRepo) ListSince(ctx context.Context, assetID string, since time.Time) ([]domain.BudgetReset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ad_assets_id, reset_date, budget_before, budget_after, created_at
		FROM ad_budget_resets
		WHERE ad_assets_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`, assetID, since)
	if err != nil {
		return nil, fmt.Errorf("list budget resets: %w", err)
	}
	defer rows.Close()

	var out []domain.BudgetReset
	for rows.Next() {
		var br domain.BudgetReset
		if err := rows.Scan(&br.ID, &br.AdAssetID, &br.ResetDate, &br.BudgetBefore, &br.BudgetAfter, &br.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan budget reset: %w", err)
		}
		out = append(out, br)
	}
	return out, rows.Err()
}
