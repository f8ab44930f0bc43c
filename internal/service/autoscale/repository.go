package autoscale

import (
	"context"
	"time"

	"github.com/ignite/adscale/internal/domain"
)

// RuleRepository is the rule CRUD contract.
// Implementations must be safe for concurrent use.
type RuleRepository interface {
	// Get returns a single rule. Returns engine.ErrRuleNotFound if it
	// doesn't exist.
	Get(ctx context.Context, id string) (*domain.Rule, error)

	// ListByUser returns all of a user's rules, newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.Rule, error)

	// Create inserts a new rule, assigning an id when empty.
	Create(ctx context.Context, rule *domain.Rule) error

	// Update modifies a rule scoped to its owner.
	Update(ctx context.Context, rule *domain.Rule) error

	// Delete removes a rule scoped to its owner.
	Delete(ctx context.Context, userID, id string) error
}

// AssetRepository reads ad assets.
type AssetRepository interface {
	Get(ctx context.Context, id string) (*domain.AdAsset, error)
}

// HistoryRepository serves the executed-action stats projection.
type HistoryRepository interface {
	ListBudgetChanges(ctx context.Context, assetID string, since time.Time) ([]domain.BudgetChange, error)
}

// ResetRepository serves the daily-reset stats projection.
type ResetRepository interface {
	ListSince(ctx context.Context, assetID string, since time.Time) ([]domain.BudgetReset, error)
}

// BudgetReader resolves the live budget view. RealTime bypasses any caching
// layer in front of the aggregates.
type BudgetReader interface {
	BudgetStatus(ctx context.Context, asset *domain.AdAsset) (*domain.BudgetStatus, error)
	BudgetStatusRealTime(ctx context.Context, asset *domain.AdAsset) (*domain.BudgetStatus, error)
}
