package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/adscale/internal/domain"
	"github.com/lib/pq"
)

// HistoryRepo persists and queries the ad_auto_scale_history audit trail.
// Rows are append-only; there is deliberately no Update.
type HistoryRepo struct{ db *sql.DB }

// NewHistoryRepo creates a Postgres-backed history repository.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

func (r *HistoryRepo) Insert(ctx context.Context, rec *domain.HistoryRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertHistoryTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *HistoryRepo) LastExecuted(ctx context.Context, ruleID string, actionType domain.ActionType) (*time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT executed_at FROM ad_auto_scale_history
		WHERE rule_id = $1 AND action_type = $2 AND action_executed = true
		ORDER BY executed_at DESC LIMIT 1
	`, ruleID, actionType).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last executed: %w", err)
	}
	return &t, nil
}

func (r *HistoryRepo) LastExecutedForAsset(ctx context.Context, assetID string, actionType domain.ActionType) (*time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT executed_at FROM ad_auto_scale_history
		WHERE ad_assets_id = $1 AND action_type = $2 AND action_executed = true
		ORDER BY executed_at DESC LIMIT 1
	`, assetID, actionType).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last executed for asset: %w", err)
	}
	return &t, nil
}

// ListBudgetChanges returns the executed-action timeline projection for an
// asset since the given time, oldest first (the chart plots left to right).
func (r *HistoryRepo) ListBudgetChanges(ctx context.Context, assetID string, since time.Time) ([]domain.BudgetChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT h.id, h.rule_id, COALESCE(r.name,''), h.action_type,
		       h.action_result, h.executed_at
		FROM ad_auto_scale_history h
		LEFT JOIN ad_auto_scale r ON r.id = h.rule_id
		WHERE h.ad_assets_id = $1 AND h.action_executed = true AND h.executed_at >= $2
		ORDER BY h.executed_at
	`, assetID, since)
	if err != nil {
		return nil, fmt.Errorf("list budget changes: %w", err)
	}
	defer rows.Close()

	var out []domain.BudgetChange
	for rows.Next() {
		var bc domain.BudgetChange
		var result []byte
		if err := rows.Scan(&bc.ID, &bc.RuleID, &bc.RuleName, &bc.ActionType, &result, &bc.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan budget change: %w", err)
		}
		var ar domain.ActionResult
		if err := json.Unmarshal(result, &ar); err != nil {
			return nil, fmt.Errorf("decode action_result for %s: %w", bc.ID, err)
		}
		bc.BudgetBefore = ar.BudgetBefore
		bc.BudgetAfter = ar.BudgetAfter
		bc.BudgetChange = ar.Change
		out = append(out, bc)
	}
	return out, rows.Err()
}

// ListBefore streams history rows older than the cutoff for archival,
// oldest first, in id order for stable pagination.
func (r *HistoryRepo) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, rule_id, ad_assets_id, user_id, action_type, action_executed,
		       action_result, conditions_result, execution_source,
		       COALESCE(reason,''), executed_at
		FROM ad_auto_scale_history
		WHERE executed_at < $1
		ORDER BY executed_at, id
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list history before: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		var actionResult, conditionsResult []byte
		if err := rows.Scan(&rec.ID, &rec.RuleID, &rec.AdAssetID, &rec.UserID,
			&rec.ActionType, &rec.ActionExecuted, &actionResult, &conditionsResult,
			&rec.ExecutionSource, &rec.Reason, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal(actionResult, &rec.ActionResult); err != nil {
			return nil, fmt.Errorf("decode action_result for %s: %w", rec.ID, err)
		}
		if len(conditionsResult) > 0 {
			rec.ConditionsResult = &domain.ConditionsResult{}
			if err := json.Unmarshal(conditionsResult, rec.ConditionsResult); err != nil {
				return nil, fmt.Errorf("decode conditions_result for %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteByIDs removes exactly the given archived rows. The archiver trims
// by id rather than by timestamp: a timestamp cutoff could take out a row
// that ties with the batch boundary on executed_at but was never uploaded.
func (r *HistoryRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM ad_auto_scale_history WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete history batch: %w", err)
	}
	return res.RowsAffected()
}
