// Package postgres implements the storage interfaces declared by the engine
// and service packages against PostgreSQL (database/sql + lib/pq).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/engine"
)

// RuleRepo manages ad_auto_scale rows.
type RuleRepo struct{ db *sql.DB }

// NewRuleRepo creates a Postgres-backed rule repository.
func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

const ruleColumns = `id, user_id, name, ad_assets_id, is_active, status, config, created_at, updated_at`

func scanRule(row interface{ Scan(...interface{}) error }) (*domain.Rule, error) {
	var r domain.Rule
	var cfg []byte
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.AdAssetID, &r.IsActive,
		&r.Status, &cfg, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Config = json.RawMessage(cfg)
	return &r, nil
}

func (r *RuleRepo) Get(ctx context.Context, id string) (*domain.Rule, error) {
	rule, err := scanRule(r.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM ad_auto_scale WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, engine.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

// ListActive returns evaluation candidates: is_active rules joined to a
// live asset, oldest first so long-standing rules are not starved by new
// ones when a run is cancelled partway.
func (r *RuleRepo) ListActive(ctx context.Context, userID string) ([]domain.Rule, error) {
	q := `SELECT ` + prefixedRuleColumns("r") + `
		FROM ad_auto_scale r
		JOIN ad_assets a ON a.id = r.ad_assets_id
		WHERE r.is_active = true AND a.is_active = true`
	args := []interface{}{}
	if userID != "" {
		q += ` AND r.user_id = $1`
		args = append(args, userID)
	}
	q += ` ORDER BY r.created_at`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

// ListByUser returns all of a user's rules for the CRUD surface.
func (r *RuleRepo) ListByUser(ctx context.Context, userID string) ([]domain.Rule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM ad_auto_scale WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func (r *RuleRepo) Create(ctx context.Context, rule *domain.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO ad_auto_scale (id, user_id, name, ad_assets_id, is_active, status, config)
		VALUES ($1, $2, $3, $4, $5, 1, $6)
		RETURNING created_at, updated_at
	`, rule.ID, rule.UserID, rule.Name, rule.AdAssetID, rule.IsActive, []byte(rule.Config),
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (r *RuleRepo) Update(ctx context.Context, rule *domain.Rule) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ad_auto_scale
		SET name=$1, ad_assets_id=$2, is_active=$3, config=$4, updated_at=NOW()
		WHERE id=$5 AND user_id=$6
	`, rule.Name, rule.AdAssetID, rule.IsActive, []byte(rule.Config), rule.ID, rule.UserID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return engine.ErrRuleNotFound
	}
	return nil
}

func (r *RuleRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM ad_auto_scale WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return engine.ErrRuleNotFound
	}
	return nil
}

func prefixedRuleColumns(alias string) string {
	return alias + `.id, ` + alias + `.user_id, ` + alias + `.name, ` +
		alias + `.ad_assets_id, ` + alias + `.is_active, ` + alias + `.status, ` +
		alias + `.config, ` + alias + `.created_at, ` + alias + `.updated_at`
}
