package engine

import (
	"context"
	"time"

	"github.com/ignite/adscale/internal/domain"
)

// RuleStore loads rules for evaluation. The engine never mutates rules.
type RuleStore interface {
	// ListActive returns active rules (is_active=true), optionally scoped
	// to one user. An empty userID means all users (cron mode).
	ListActive(ctx context.Context, userID string) ([]domain.Rule, error)

	// Get returns one rule regardless of is_active (the single-rule test
	// path may exercise inactive rules). Returns ErrRuleNotFound.
	Get(ctx context.Context, id string) (*domain.Rule, error)
}

// AssetStore reads ad assets and applies the one mutation the engine is
// allowed: a compare-and-swap budget change paired with its audit row.
type AssetStore interface {
	// Get returns an asset. Returns ErrAssetNotFound.
	Get(ctx context.Context, id string) (*domain.AdAsset, error)

	// AdjustBudget atomically sets current_budget from budgetBefore to
	// budgetAfter and inserts rec, in one transaction. Returns
	// ErrBudgetConflict (and writes nothing) if current_budget no longer
	// equals budgetBefore.
	AdjustBudget(ctx context.Context, assetID string, budgetBefore, budgetAfter float64, rec *domain.HistoryRecord) error
}

// HistoryStore persists and queries the append-only audit trail.
type HistoryStore interface {
	// Insert appends one history row (used for non-budget-changing rows:
	// pause, disable_product, guard suppressions, no-match traces).
	Insert(ctx context.Context, rec *domain.HistoryRecord) error

	// LastExecuted returns when the given rule last successfully executed
	// the given action type (action_executed=true), or nil if never.
	LastExecuted(ctx context.Context, ruleID string, actionType domain.ActionType) (*time.Time, error)

	// LastExecutedForAsset is LastExecuted scoped by asset instead of rule;
	// it backs the adjust_to_spend cooldown which guards the asset across
	// rules.
	LastExecutedForAsset(ctx context.Context, assetID string, actionType domain.ActionType) (*time.Time, error)
}

// ProductStore deactivates the product that owns an asset
// (the disable_product action).
type ProductStore interface {
	DisableProduct(ctx context.Context, productID string) error
}
