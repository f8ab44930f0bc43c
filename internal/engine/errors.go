package engine

import "errors"

// Sentinel errors for the rule engine and its storage contracts.
var (
	// ErrRuleNotFound is returned when a rule id does not exist.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrAssetNotFound is returned when a rule references an ad asset that
	// no longer exists (data integrity: skip the rule, continue the run).
	ErrAssetNotFound = errors.New("ad asset not found")

	// ErrBudgetConflict is returned by the compare-and-swap budget update
	// when a concurrent writer changed the budget first.
	ErrBudgetConflict = errors.New("budget changed concurrently")
)
