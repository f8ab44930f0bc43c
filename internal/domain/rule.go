package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConditionsLogic governs how conditions combine inside a group and how
// groups combine inside a block. The two halves are duals:
//
//	and_or_and: conditions within a group = AND, groups with each other = OR
//	or_and_or:  conditions within a group = OR,  groups with each other = AND
type ConditionsLogic string

const (
	LogicAndOrAnd ConditionsLogic = "and_or_and"
	LogicOrAndOr  ConditionsLogic = "or_and_or"
)

// Metric identifies a performance number a condition can test.
type Metric string

const (
	MetricROAS          Metric = "roas"
	MetricProfit        Metric = "profit"
	MetricResults       Metric = "results"
	MetricCostPerResult Metric = "cost_per_result"
	MetricSpend         Metric = "spend"
	MetricImpressions   Metric = "impressions"
	MetricClicks        Metric = "clicks"
	MetricFrequency     Metric = "frequency"

	// Rolling deltas computed by the metrics ingestion job.
	MetricROASChange1h   Metric = "roas_change_1h"
	MetricROASChange2h   Metric = "roas_change_2h"
	MetricROASChange3h   Metric = "roas_change_3h"
	MetricProfitChange1h Metric = "profit_change_1h"
	MetricProfitChange2h Metric = "profit_change_2h"
	MetricProfitChange3h Metric = "profit_change_3h"

	// Wall-clock predicates. These ignore time_range and compare against
	// the asset's local clock, not the metrics snapshot.
	MetricCurrentHour      Metric = "current_hour"
	MetricCurrentDayOfWeek Metric = "current_day_of_week"
)

var knownMetrics = map[Metric]bool{
	MetricROAS: true, MetricProfit: true, MetricResults: true,
	MetricCostPerResult: true, MetricSpend: true, MetricImpressions: true,
	MetricClicks: true, MetricFrequency: true,
	MetricROASChange1h: true, MetricROASChange2h: true, MetricROASChange3h: true,
	MetricProfitChange1h: true, MetricProfitChange2h: true, MetricProfitChange3h: true,
	MetricCurrentHour: true, MetricCurrentDayOfWeek: true,
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool { return knownMetrics[m] }

// IsWallClock reports whether m compares against the local clock instead of
// the metrics snapshot.
func (m Metric) IsWallClock() bool {
	return m == MetricCurrentHour || m == MetricCurrentDayOfWeek
}

// Operator is a comparison operator applied to (value, threshold).
type Operator string

const (
	OpGT       Operator = ">"
	OpGTE      Operator = ">="
	OpLT       Operator = "<"
	OpLTE      Operator = "<="
	OpEQ       Operator = "=="
	OpNEQ      Operator = "!="
	OpIsWithin Operator = "is_within"
)

var knownOperators = map[Operator]bool{
	OpGT: true, OpGTE: true, OpLT: true, OpLTE: true,
	OpEQ: true, OpNEQ: true, OpIsWithin: true,
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool { return knownOperators[o] }

// ValueSuffix is a display/interpretation hint for numeric values.
// For conditions it is display-only; comparisons always use the raw number.
// For budget actions it decides percent-of-current vs absolute currency.
type ValueSuffix string

const (
	SuffixNone     ValueSuffix = ""
	SuffixPercent  ValueSuffix = "percent"
	SuffixCurrency ValueSuffix = "currency"
)

// TimeRange scopes a metric lookup.
type TimeRange string

const (
	RangeToday     TimeRange = "today"
	RangeYesterday TimeRange = "yesterday"
	RangeLast3d    TimeRange = "last_3d"
	RangeLast7d    TimeRange = "last_7d"
	RangeLast14d   TimeRange = "last_14d"
	RangeLast30d   TimeRange = "last_30d"
	RangeLifetime  TimeRange = "lifetime"
)

var knownRanges = map[TimeRange]bool{
	RangeToday: true, RangeYesterday: true, RangeLast3d: true,
	RangeLast7d: true, RangeLast14d: true, RangeLast30d: true,
	RangeLifetime: true,
}

// Valid reports whether r is a known time range.
func (r TimeRange) Valid() bool { return knownRanges[r] }

// Condition is a single predicate against a metric or the wall clock.
type Condition struct {
	Metric   Metric   `json:"metric"`
	Operator Operator `json:"operator"`
	Value    float64  `json:"value"`

	// Tolerance for is_within: met when |metric - Value| <= Tolerance.
	Tolerance float64 `json:"tolerance,omitempty"`

	// Wall-clock operands. ValueHour is 0-23; ValueDay is ISO weekday
	// (1=Monday .. 7=Sunday).
	ValueHour int `json:"value_hour,omitempty"`
	ValueDay  int `json:"value_day,omitempty"`

	ValueSuffix ValueSuffix `json:"value_suffix,omitempty"`
	TimeRange   TimeRange   `json:"time_range,omitempty"`
}

// SnapshotKey is the key a condition's metric resolves under in a metrics
// snapshot: "metric@range" for range-scoped metrics, bare metric name for
// wall-clock predicates.
func (c Condition) SnapshotKey() string {
	if c.Metric.IsWallClock() {
		return string(c.Metric)
	}
	return string(c.Metric) + "@" + string(c.TimeRange)
}

// ConditionGroup is a set of conditions combined under a single AND/OR
// (taken from the rule's ConditionsLogic; groups carry no logic of their own).
type ConditionGroup struct {
	Conditions []Condition `json:"conditions"`
}

// ActionType enumerates what a fired block can do.
type ActionType string

const (
	ActionPause          ActionType = "pause"
	ActionIncreaseBudget ActionType = "increase_budget"
	ActionDecreaseBudget ActionType = "decrease_budget"
	ActionAdjustToSpend  ActionType = "adjust_to_spend"
	ActionDisableProduct ActionType = "disable_product"
	// ActionManualAdjust and ActionBudgetReset are never present in rule
	// config; they are the synthetic action types recorded by the manual
	// budget-adjust path and the daily reset worker.
	ActionManualAdjust ActionType = "manual_adjust"
	ActionBudgetReset  ActionType = "budget_reset"
)

// ChangeType qualifies budget actions.
type ChangeType string

const (
	ChangeIncrease ChangeType = "increase"
	ChangeDecrease ChangeType = "decrease"
	ChangeSet      ChangeType = "set"
)

// AdjustmentType qualifies adjust_to_spend actions.
type AdjustmentType string

const (
	AdjustAdd      AdjustmentType = "add"
	AdjustSubtract AdjustmentType = "subtract"
)

// TimePeriod is the execution-frequency guard on an action.
type TimePeriod string

const (
	PeriodEverytime TimePeriod = "everytime"
	PeriodOnce      TimePeriod = "once"
	PeriodDaily     TimePeriod = "daily"
	PeriodEvery3h   TimePeriod = "every_3h"
	PeriodEvery6h   TimePeriod = "every_6h"
)

var knownPeriods = map[TimePeriod]bool{
	PeriodEverytime: true, PeriodOnce: true, PeriodDaily: true,
	PeriodEvery3h: true, PeriodEvery6h: true,
}

// MinSpacing returns the minimum spacing between successful executions for
// interval-style periods, or 0 for everytime/once/daily which use different
// checks.
func (p TimePeriod) MinSpacing() time.Duration {
	switch p {
	case PeriodEvery3h:
		return 3 * time.Hour
	case PeriodEvery6h:
		return 6 * time.Hour
	default:
		return 0
	}
}

// Action is what to do when a block fires.
type Action struct {
	ActionType ActionType `json:"action_type"`

	// Budget actions (increase_budget / decrease_budget).
	ChangeType  ChangeType  `json:"change_type,omitempty"`
	ChangeBy    float64     `json:"change_by,omitempty"`
	ValueSuffix ValueSuffix `json:"value_suffix,omitempty"`
	// UntilLimit is the ceiling for increases / floor for decreases.
	UntilLimit *float64   `json:"until_limit,omitempty"`
	TimePeriod TimePeriod `json:"time_period,omitempty"`

	// adjust_to_spend.
	AdjustmentType  AdjustmentType `json:"adjustment_type,omitempty"`
	AdjustmentValue float64        `json:"adjustment_value,omitempty"`
	CooldownHours   int            `json:"cooldown_hours,omitempty"`
}

// Block is one step of the if/elseif chain: its own condition groups and its
// own action list. Blocks are tried in declaration order and only the first
// satisfied block's actions execute.
type Block struct {
	Name    string           `json:"block_name,omitempty"`
	Groups  []ConditionGroup `json:"condition_groups"`
	Actions []Action         `json:"actions"`
}

// RuleConfig is the validated, normalized form of a rule's config column.
type RuleConfig struct {
	ConditionsLogic ConditionsLogic `json:"conditions_logic"`
	Blocks          []Block         `json:"condition_blocks"`
}

// ruleConfigWire accepts both the current block-chain shape and the legacy
// flat shape (rule-wide condition_groups + actions), which normalizes to a
// single block.
type ruleConfigWire struct {
	ConditionsLogic ConditionsLogic  `json:"conditions_logic"`
	Blocks          []Block          `json:"condition_blocks"`
	ConditionGroups []ConditionGroup `json:"condition_groups"`
	Actions         []Action         `json:"actions"`
}

// ParseRuleConfig unmarshals and validates a rule's config JSON into a
// strongly-typed RuleConfig. Unknown metrics, operators, ranges and action
// kinds are rejected here so evaluation never sees a malformed rule.
func ParseRuleConfig(raw []byte) (*RuleConfig, error) {
	var w ruleConfigWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse rule config: %w", err)
	}

	cfg := &RuleConfig{ConditionsLogic: w.ConditionsLogic, Blocks: w.Blocks}
	if len(cfg.Blocks) == 0 && (len(w.ConditionGroups) > 0 || len(w.Actions) > 0) {
		cfg.Blocks = []Block{{Groups: w.ConditionGroups, Actions: w.Actions}}
	}

	if cfg.ConditionsLogic != LogicAndOrAnd && cfg.ConditionsLogic != LogicOrAndOr {
		return nil, fmt.Errorf("unknown conditions_logic %q", cfg.ConditionsLogic)
	}

	for bi, b := range cfg.Blocks {
		if len(b.Actions) == 0 {
			return nil, fmt.Errorf("block %d: no actions", bi)
		}
		for gi, g := range b.Groups {
			if len(g.Conditions) == 0 {
				return nil, fmt.Errorf("block %d group %d: empty group", bi, gi)
			}
			for ci, c := range g.Conditions {
				if err := validateCondition(c); err != nil {
					return nil, fmt.Errorf("block %d group %d condition %d: %w", bi, gi, ci, err)
				}
			}
		}
		for ai, a := range b.Actions {
			if err := validateAction(a); err != nil {
				return nil, fmt.Errorf("block %d action %d: %w", bi, ai, err)
			}
		}
	}
	return cfg, nil
}

func validateCondition(c Condition) error {
	if !c.Metric.Valid() {
		return fmt.Errorf("unknown metric %q", c.Metric)
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	switch c.Metric {
	case MetricCurrentHour:
		if c.ValueHour < 0 || c.ValueHour > 23 {
			return fmt.Errorf("value_hour %d out of range", c.ValueHour)
		}
	case MetricCurrentDayOfWeek:
		if c.ValueDay < 1 || c.ValueDay > 7 {
			return fmt.Errorf("value_day %d out of range (ISO 1-7)", c.ValueDay)
		}
	default:
		if !c.TimeRange.Valid() {
			return fmt.Errorf("unknown time_range %q", c.TimeRange)
		}
	}
	if c.Operator == OpIsWithin && c.Tolerance < 0 {
		return fmt.Errorf("negative is_within tolerance")
	}
	return nil
}

func validateAction(a Action) error {
	// The frequency guard applies to every action type, so an unknown
	// period is rejected everywhere instead of degrading to everytime.
	if a.TimePeriod != "" && !knownPeriods[a.TimePeriod] {
		return fmt.Errorf("unknown time_period %q", a.TimePeriod)
	}
	switch a.ActionType {
	case ActionPause, ActionDisableProduct:
		return nil
	case ActionIncreaseBudget, ActionDecreaseBudget:
		if a.ChangeBy <= 0 {
			return fmt.Errorf("change_by must be positive")
		}
		if a.ValueSuffix != SuffixPercent && a.ValueSuffix != SuffixCurrency {
			return fmt.Errorf("budget action needs percent or currency value_suffix")
		}
		return nil
	case ActionAdjustToSpend:
		if a.AdjustmentType != AdjustAdd && a.AdjustmentType != AdjustSubtract {
			return fmt.Errorf("unknown adjustment_type %q", a.AdjustmentType)
		}
		if a.AdjustmentValue < 0 {
			return fmt.Errorf("negative adjustment_value")
		}
		if a.CooldownHours < 0 {
			return fmt.Errorf("negative cooldown_hours")
		}
		return nil
	default:
		return fmt.Errorf("unknown action_type %q", a.ActionType)
	}
}

// Rule is a user-owned automation unit bound to one ad asset. Config is kept
// raw here; callers run ParseRuleConfig so a malformed row can be skipped
// per-rule instead of failing a whole engine pass.
type Rule struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Name      string          `json:"name" db:"name"`
	AdAssetID string          `json:"ad_assets_id" db:"ad_assets_id"`
	IsActive  bool            `json:"is_active" db:"is_active"`
	Status    int             `json:"status" db:"status"`
	Config    json.RawMessage `json:"config" db:"config"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
