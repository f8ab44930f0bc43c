package domain

import (
	"time"
)

// ExecutionSource distinguishes engine-driven changes from human overrides.
type ExecutionSource string

const (
	SourceAuto   ExecutionSource = "auto"
	SourceManual ExecutionSource = "manual"
)

// ActionResult is the before/after budget snapshot stored on a history row.
type ActionResult struct {
	BudgetBefore float64 `json:"budget_before"`
	BudgetAfter  float64 `json:"budget_after"`
	Change       float64 `json:"change"`
}

// MetricEvaluation is the audit detail for one evaluated condition.
// Value is nil when the metric was absent from the snapshot (absence means
// "not satisfied", never an error).
type MetricEvaluation struct {
	Value     *float64 `json:"value"`
	Operator  Operator `json:"operator"`
	Threshold float64  `json:"threshold"`
	Met       bool     `json:"met"`
}

// GroupTrace captures one condition group's evaluation: the within-group
// logic applied, the outcome, and every condition's detail keyed by
// Condition.SnapshotKey (full evaluation, no short-circuit).
type GroupTrace struct {
	GroupIndex       int                         `json:"group_index"`
	Logic            string                      `json:"logic"`
	Result           bool                        `json:"result"`
	MetricsEvaluated map[string]MetricEvaluation `json:"metrics_evaluated"`
}

// BlockTrace captures one block of the if/elseif chain.
type BlockTrace struct {
	Block  int          `json:"block"`
	Name   string       `json:"block_name,omitempty"`
	Result bool         `json:"result"`
	Groups []GroupTrace `json:"groups"`
}

// ConditionsResult is the full evaluation trace persisted in
// ad_auto_scale_history.conditions_result. The stats UI parses this shape
// structurally, so it is a load-bearing contract.
type ConditionsResult struct {
	Logic      ConditionsLogic `json:"logic"`
	FiredBlock int             `json:"fired_block"` // -1 when no block fired
	Blocks     []BlockTrace    `json:"blocks"`
}

// HistoryRecord is one immutable audit row: a realized (or attempted)
// budget-affecting action. ActionExecuted distinguishes "rule matched but a
// guard suppressed execution" from an actual mutation.
type HistoryRecord struct {
	ID               string            `json:"id" db:"id"`
	RuleID           *string           `json:"rule_id" db:"rule_id"` // nil for manual
	AdAssetID        string            `json:"ad_assets_id" db:"ad_assets_id"`
	UserID           string            `json:"user_id" db:"user_id"`
	ActionType       ActionType        `json:"action_type" db:"action_type"`
	ActionExecuted   bool              `json:"action_executed" db:"action_executed"`
	ActionResult     ActionResult      `json:"action_result" db:"action_result"`
	ConditionsResult *ConditionsResult `json:"conditions_result" db:"conditions_result"`
	ExecutionSource  ExecutionSource   `json:"execution_source" db:"execution_source"`
	Reason           string            `json:"reason,omitempty" db:"reason"`
	ExecutedAt       time.Time         `json:"executed_at" db:"executed_at"`
}

// BudgetChange is the timeline projection served by the stats endpoints.
type BudgetChange struct {
	ID           string     `json:"id"`
	RuleID       *string    `json:"rule_id"`
	RuleName     string     `json:"rule_name"`
	ActionType   ActionType `json:"action_type"`
	BudgetBefore float64    `json:"budget_before"`
	BudgetAfter  float64    `json:"budget_after"`
	BudgetChange float64    `json:"budget_change"`
	ExecutedAt   time.Time  `json:"executed_at"`
}

// BudgetReset is one daily budget-reset event for an asset.
type BudgetReset struct {
	ID           string    `json:"id"`
	AdAssetID    string    `json:"ad_assets_id"`
	ResetDate    string    `json:"reset_date"` // YYYY-MM-DD in asset-local time
	BudgetBefore float64   `json:"budget_before"`
	BudgetAfter  float64   `json:"budget_after"`
	CreatedAt    time.Time `json:"created_at"`
}
