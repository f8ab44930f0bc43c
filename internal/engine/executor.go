package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/adscale/internal/adplatform"
	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/metrics"
)

// Suppression reasons recorded on action_executed=0 history rows.
const (
	ReasonCooldown     = "cooldown"
	ReasonTimePeriod   = "time_period"
	ReasonBudgetFloor  = "budget_floor"
	ReasonLimitReached = "limit_reached"
)

// Outcome is the realized result of applying one action.
type Outcome struct {
	Executed     bool    `json:"executed"`
	ActionType   domain.ActionType `json:"action_type"`
	BudgetBefore float64 `json:"budget_before"`
	BudgetAfter  float64 `json:"budget_after"`
	Reason       string  `json:"reason,omitempty"`
}

// Executor applies resolved actions against the ad platform and persists the
// audit trail. Ordering is load-bearing: the platform mutation happens first
// and the history row records the platform-confirmed budget, inside the same
// transaction as the compare-and-swap on ad_assets.current_budget.
type Executor struct {
	platform adplatform.Client
	assets   AssetStore
	history  HistoryStore
	products ProductStore
	metrics  metrics.Provider

	now func() time.Time // injectable clock for guard tests
}

// NewExecutor wires an action executor.
func NewExecutor(platform adplatform.Client, assets AssetStore, history HistoryStore, products ProductStore, provider metrics.Provider) *Executor {
	return &Executor{
		platform: platform,
		assets:   assets,
		history:  history,
		products: products,
		metrics:  provider,
		now:      time.Now,
	}
}

// Apply executes one action for a fired rule. Guard violations (frequency,
// cooldown, floors, limits) are normal outcomes, not errors: they return
// Executed=false with a reason and log an action_executed=0 history row.
// Platform failures return an error with no history row written (the rule is
// "not evaluated this cycle" and retries next schedule).
func (ex *Executor) Apply(ctx context.Context, rule *domain.Rule, asset *domain.AdAsset, action domain.Action, trace *domain.ConditionsResult) (*Outcome, error) {
	now := ex.now()

	if reason, err := ex.frequencyBlocked(ctx, rule, asset, action, now); err != nil {
		return nil, fmt.Errorf("frequency guard: %w", err)
	} else if reason != "" {
		return ex.suppress(ctx, rule, asset, action, trace, reason)
	}

	switch action.ActionType {
	case domain.ActionPause:
		if err := ex.platform.PauseAsset(ctx, asset); err != nil {
			return nil, fmt.Errorf("pause asset %s: %w", asset.ID, err)
		}
		return ex.recordNoBudgetChange(ctx, rule, asset, action, trace)

	case domain.ActionDisableProduct:
		if err := ex.products.DisableProduct(ctx, asset.ProductID); err != nil {
			return nil, fmt.Errorf("disable product %s: %w", asset.ProductID, err)
		}
		return ex.recordNoBudgetChange(ctx, rule, asset, action, trace)

	case domain.ActionIncreaseBudget, domain.ActionDecreaseBudget:
		target, reason := budgetTarget(action, asset.CurrentBudget)
		if reason != "" {
			return ex.suppress(ctx, rule, asset, action, trace, reason)
		}
		return ex.applyBudget(ctx, rule, asset, action, trace, target)

	case domain.ActionAdjustToSpend:
		target, reason, err := ex.adjustToSpendTarget(ctx, asset, action)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			return ex.suppress(ctx, rule, asset, action, trace, reason)
		}
		return ex.applyBudget(ctx, rule, asset, action, trace, target)
	}

	return nil, fmt.Errorf("unknown action type %q", action.ActionType)
}

// ApplyManual is the manual-override path: a human-initiated budget change
// that bypasses rule evaluation but shares the platform call, the
// compare-and-swap, and the audit trail with the automatic path.
func (ex *Executor) ApplyManual(ctx context.Context, asset *domain.AdAsset, budgetAfter float64, reason string) (*domain.HistoryRecord, error) {
	if budgetAfter <= 0 {
		return nil, fmt.Errorf("new budget must be greater than zero")
	}

	confirmed, err := ex.platform.UpdateBudget(ctx, asset, budgetAfter)
	if err != nil {
		return nil, fmt.Errorf("platform budget update: %w", err)
	}

	rec := &domain.HistoryRecord{
		ID:             uuid.New().String(),
		AdAssetID:      asset.ID,
		UserID:         asset.UserID,
		ActionType:     domain.ActionManualAdjust,
		ActionExecuted: true,
		ActionResult: domain.ActionResult{
			BudgetBefore: asset.CurrentBudget,
			BudgetAfter:  confirmed,
			Change:       confirmed - asset.CurrentBudget,
		},
		ExecutionSource: domain.SourceManual,
		Reason:          reason,
		ExecutedAt:      ex.now(),
	}

	if err := ex.assets.AdjustBudget(ctx, asset.ID, asset.CurrentBudget, confirmed, rec); err != nil {
		return nil, err
	}
	asset.CurrentBudget = confirmed
	return rec, nil
}

// budgetTarget computes the clamped target budget for increase/decrease.
// Returns a suppression reason instead of a target when the change cannot be
// applied: the clamped result would be <= 0, or the limit leaves no room.
func budgetTarget(action domain.Action, current float64) (float64, string) {
	delta := action.ChangeBy
	if action.ValueSuffix == domain.SuffixPercent {
		delta = current * action.ChangeBy / 100
	}

	var target float64
	if action.ActionType == domain.ActionIncreaseBudget {
		target = current + delta
		if action.UntilLimit != nil && target > *action.UntilLimit {
			target = *action.UntilLimit
		}
		if target <= current {
			return 0, ReasonLimitReached
		}
	} else {
		target = current - delta
		if action.UntilLimit != nil && target < *action.UntilLimit {
			target = *action.UntilLimit
		}
		if target <= 0 {
			return 0, ReasonBudgetFloor
		}
		if target >= current {
			return 0, ReasonLimitReached
		}
	}
	return target, ""
}

// adjustToSpendTarget computes spend(today) +/- adjustment_value.
func (ex *Executor) adjustToSpendTarget(ctx context.Context, asset *domain.AdAsset, action domain.Action) (float64, string, error) {
	snap, err := ex.metrics.Snapshot(ctx, asset, []metrics.Key{{Metric: domain.MetricSpend, Range: domain.RangeToday}})
	if err != nil {
		return 0, "", fmt.Errorf("spend lookup for %s: %w", asset.ID, err)
	}
	spend, ok := snap.Lookup(string(domain.MetricSpend) + "@" + string(domain.RangeToday))
	if !ok {
		spend = 0
	}

	target := spend + action.AdjustmentValue
	if action.AdjustmentType == domain.AdjustSubtract {
		target = spend - action.AdjustmentValue
	}
	if target <= 0 {
		return 0, ReasonBudgetFloor, nil
	}
	return target, "", nil
}

// applyBudget performs the platform call then the CAS+audit transaction.
func (ex *Executor) applyBudget(ctx context.Context, rule *domain.Rule, asset *domain.AdAsset, action domain.Action, trace *domain.ConditionsResult, target float64) (*Outcome, error) {
	confirmed, err := ex.platform.UpdateBudget(ctx, asset, target)
	if err != nil {
		return nil, fmt.Errorf("platform budget update for %s: %w", asset.ID, err)
	}

	rec := ex.newRecord(rule, asset, action, trace)
	rec.ActionExecuted = true
	rec.ActionResult = domain.ActionResult{
		BudgetBefore: asset.CurrentBudget,
		BudgetAfter:  confirmed,
		Change:       confirmed - asset.CurrentBudget,
	}

	if err := ex.assets.AdjustBudget(ctx, asset.ID, asset.CurrentBudget, confirmed, rec); err != nil {
		return nil, err
	}

	out := &Outcome{
		Executed:     true,
		ActionType:   action.ActionType,
		BudgetBefore: asset.CurrentBudget,
		BudgetAfter:  confirmed,
	}
	asset.CurrentBudget = confirmed
	return out, nil
}

// frequencyBlocked checks the time_period and cooldown guards against the
// execution history. Only action_executed=1 rows count.
func (ex *Executor) frequencyBlocked(ctx context.Context, rule *domain.Rule, asset *domain.AdAsset, action domain.Action, now time.Time) (string, error) {
	if action.ActionType == domain.ActionAdjustToSpend && action.CooldownHours > 0 {
		last, err := ex.history.LastExecutedForAsset(ctx, asset.ID, domain.ActionAdjustToSpend)
		if err != nil {
			return "", err
		}
		if last != nil && now.Sub(*last) < time.Duration(action.CooldownHours)*time.Hour {
			return ReasonCooldown, nil
		}
		return "", nil
	}

	switch action.TimePeriod {
	case "", domain.PeriodEverytime:
		return "", nil
	case domain.PeriodOnce:
		last, err := ex.history.LastExecuted(ctx, rule.ID, action.ActionType)
		if err != nil {
			return "", err
		}
		if last != nil {
			return ReasonTimePeriod, nil
		}
	case domain.PeriodDaily:
		last, err := ex.history.LastExecuted(ctx, rule.ID, action.ActionType)
		if err != nil {
			return "", err
		}
		if last != nil {
			loc := asset.Location()
			ly, lm, ld := last.In(loc).Date()
			ny, nm, nd := now.In(loc).Date()
			if ly == ny && lm == nm && ld == nd {
				return ReasonTimePeriod, nil
			}
		}
	case domain.PeriodEvery3h, domain.PeriodEvery6h:
		last, err := ex.history.LastExecuted(ctx, rule.ID, action.ActionType)
		if err != nil {
			return "", err
		}
		if last != nil && now.Sub(*last) < action.TimePeriod.MinSpacing() {
			return ReasonTimePeriod, nil
		}
	}
	return "", nil
}

// suppress records a "matched but guard blocked" outcome. The history row is
// observability only; a failed insert is logged and does not fail the run.
func (ex *Executor) suppress(ctx context.Context, rule *domain.Rule, asset *domain.AdAsset, action domain.Action, trace *domain.ConditionsResult, reason string) (*Outcome, error) {
	rec := ex.newRecord(rule, asset, action, trace)
	rec.ActionExecuted = false
	rec.Reason = reason
	rec.ActionResult = domain.ActionResult{
		BudgetBefore: asset.CurrentBudget,
		BudgetAfter:  asset.CurrentBudget,
	}
	if err := ex.history.Insert(ctx, rec); err != nil {
		log.Printf("[Executor] suppression history insert failed rule=%s: %v", rule.ID, err)
	}
	return &Outcome{
		ActionType:   action.ActionType,
		BudgetBefore: asset.CurrentBudget,
		BudgetAfter:  asset.CurrentBudget,
		Reason:       reason,
	}, nil
}

// recordNoBudgetChange audits an executed action that leaves the budget
// untouched (pause, disable_product).
func (ex *Executor) recordNoBudgetChange(ctx context.Context, rule *domain.Rule, asset *domain.AdAsset, action domain.Action, trace *domain.ConditionsResult) (*Outcome, error) {
	rec := ex.newRecord(rule, asset, action, trace)
	rec.ActionExecuted = true
	rec.ActionResult = domain.ActionResult{
		BudgetBefore: asset.CurrentBudget,
		BudgetAfter:  asset.CurrentBudget,
	}
	if err := ex.history.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("history insert: %w", err)
	}
	return &Outcome{
		Executed:     true,
		ActionType:   action.ActionType,
		BudgetBefore: asset.CurrentBudget,
		BudgetAfter:  asset.CurrentBudget,
	}, nil
}

func (ex *Executor) newRecord(rule *domain.Rule, asset *domain.AdAsset, action domain.Action, trace *domain.ConditionsResult) *domain.HistoryRecord {
	ruleID := rule.ID
	return &domain.HistoryRecord{
		ID:               uuid.New().String(),
		RuleID:           &ruleID,
		AdAssetID:        asset.ID,
		UserID:           rule.UserID,
		ActionType:       action.ActionType,
		ConditionsResult: trace,
		ExecutionSource:  domain.SourceAuto,
		ExecutedAt:       ex.now(),
	}
}
