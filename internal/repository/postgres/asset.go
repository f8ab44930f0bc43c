package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/engine"
)

// AssetRepo reads ad_assets and applies the compare-and-swap budget update.
type AssetRepo struct{ db *sql.DB }

// NewAssetRepo creates a Postgres-backed asset repository.
func NewAssetRepo(db *sql.DB) *AssetRepo { return &AssetRepo{db: db} }

func (r *AssetRepo) Get(ctx context.Context, id string) (*domain.AdAsset, error) {
	a := &domain.AdAsset{}
	var autoReset sql.NullFloat64
	var resetTime sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, ad_asset_id, ad_asset_type, ad_platform, product_id,
		       current_budget, COALESCE(timezone,''), auto_reset_budget,
		       reset_time, is_active, created_at, updated_at
		FROM ad_assets WHERE id = $1
	`, id).Scan(
		&a.ID, &a.UserID, &a.PlatformAssetID, &a.AssetType, &a.Platform, &a.ProductID,
		&a.CurrentBudget, &a.Timezone, &autoReset, &resetTime, &a.IsActive,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, engine.ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	if autoReset.Valid {
		a.AutoResetBudget = &autoReset.Float64
	}
	if resetTime.Valid {
		a.ResetTime = resetTime.String
	}
	return a, nil
}

// ListWithResetPolicy returns active assets that carry a daily-reset policy.
func (r *AssetRepo) ListWithResetPolicy(ctx context.Context) ([]domain.AdAsset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, ad_asset_id, ad_asset_type, ad_platform, product_id,
		       current_budget, COALESCE(timezone,''), auto_reset_budget,
		       reset_time, is_active, created_at, updated_at
		FROM ad_assets
		WHERE is_active = true AND auto_reset_budget IS NOT NULL AND reset_time IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("list reset assets: %w", err)
	}
	defer rows.Close()

	var out []domain.AdAsset
	for rows.Next() {
		var a domain.AdAsset
		var autoReset sql.NullFloat64
		var resetTime sql.NullString
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.PlatformAssetID, &a.AssetType, &a.Platform, &a.ProductID,
			&a.CurrentBudget, &a.Timezone, &autoReset, &resetTime, &a.IsActive,
			&a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		if autoReset.Valid {
			a.AutoResetBudget = &autoReset.Float64
		}
		if resetTime.Valid {
			a.ResetTime = resetTime.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AdjustBudget performs the one mutation the engine is allowed, atomically:
//
//	UPDATE current_budget WHERE current_budget = budgetBefore  (CAS)
//	INSERT the audit row
//
// in a single transaction. Zero rows from the CAS means a concurrent writer
// (overlapping run or manual adjustment) won; nothing is written and
// ErrBudgetConflict is returned. A budget change and its history row commit
// together or not at all.
func (r *AssetRepo) AdjustBudget(ctx context.Context, assetID string, budgetBefore, budgetAfter float64, rec *domain.HistoryRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin budget tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE ad_assets SET current_budget = $1, updated_at = NOW()
		WHERE id = $2 AND current_budget = $3
	`, budgetAfter, assetID, budgetBefore)
	if err != nil {
		return fmt.Errorf("cas budget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cas budget: %w", err)
	}
	if n == 0 {
		return engine.ErrBudgetConflict
	}

	if err := insertHistoryTx(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit budget tx: %w", err)
	}
	return nil
}

func insertHistoryTx(ctx context.Context, tx *sql.Tx, rec *domain.HistoryRecord) error {
	actionResult, err := json.Marshal(rec.ActionResult)
	if err != nil {
		return fmt.Errorf("marshal action_result: %w", err)
	}
	var conditionsResult []byte
	if rec.ConditionsResult != nil {
		conditionsResult, err = json.Marshal(rec.ConditionsResult)
		if err != nil {
			return fmt.Errorf("marshal conditions_result: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ad_auto_scale_history
			(id, rule_id, ad_assets_id, user_id, action_type, action_executed,
			 action_result, conditions_result, execution_source, reason, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.ID, rec.RuleID, rec.AdAssetID, rec.UserID, rec.ActionType,
		rec.ActionExecuted, actionResult, conditionsResult,
		rec.ExecutionSource, nullIfEmpty(rec.Reason), rec.ExecutedAt)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
