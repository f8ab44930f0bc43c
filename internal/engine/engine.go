package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/metrics"
	"github.com/ignite/adscale/internal/pkg/distlock"
)

// LockFunc builds a distributed lock for one asset. The engine acquires it
// around evaluation+execution so an overlapping cron invocation (or a manual
// adjustment racing the engine) cannot double-apply budget changes to the
// same asset. Nil disables locking (tests, single-process deployments that
// rely on the CAS alone).
type LockFunc func(assetID string) distlock.DistLock

// RuleError is one per-rule failure in a run summary.
type RuleError struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Kind     string `json:"kind"` // config | data | transient
	Error    string `json:"error"`
}

// RunSummary aggregates one engine pass.
type RunSummary struct {
	Success           bool        `json:"success"`
	RulesProcessed    int         `json:"rules_processed"`
	RulesFired        int         `json:"rules_fired"`
	ActionsExecuted   int         `json:"actions_executed"`
	ActionsSuppressed int         `json:"actions_suppressed"`
	RulesSkipped      int         `json:"rules_skipped"`
	Errors            []RuleError `json:"errors,omitempty"`
	ExecutionTimeMS   int64       `json:"execution_time_ms"`
}

// RuleResult is the outcome of processing a single rule.
type RuleResult struct {
	Fired      bool                    `json:"fired"`
	BlockIndex int                     `json:"block_index"`
	Trace      domain.ConditionsResult `json:"trace"`
	Outcomes   []Outcome               `json:"outcomes,omitempty"`
	Skipped    bool                    `json:"skipped,omitempty"`
	SkipReason string                  `json:"skip_reason,omitempty"`
}

// Engine orchestrates rule evaluation: loads active rules, batches one
// metrics snapshot per rule, evaluates, executes fired actions, and
// aggregates a run summary. A failing rule never aborts the run.
type Engine struct {
	rules    RuleStore
	assets   AssetStore
	provider metrics.Provider
	executor *Executor
	lockFor  LockFunc

	// RecordNoMatch persists an action_executed=0 trace row when a rule
	// evaluates without firing. Off by default: on a short cron interval
	// this writes one row per rule per cycle, so it is a diagnostic switch,
	// not a steady-state setting.
	RecordNoMatch bool

	now func() time.Time
}

// New creates a rule engine.
func New(rules RuleStore, assets AssetStore, provider metrics.Provider, executor *Executor, lockFor LockFunc) *Engine {
	return &Engine{
		rules:    rules,
		assets:   assets,
		provider: provider,
		executor: executor,
		lockFor:  lockFor,
		now:      time.Now,
	}
}

// ProcessRules runs one engine pass. An empty userID processes all users
// (cron mode). Rules run sequentially; ctx cancellation aborts between
// rules, never mid-action.
func (e *Engine) ProcessRules(ctx context.Context, userID string) (*RunSummary, error) {
	start := e.now()
	summary := &RunSummary{Success: true}

	rules, err := e.rules.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	for i := range rules {
		if ctx.Err() != nil {
			summary.Success = false
			log.Printf("[Engine] run aborted after %d/%d rules: %v", i, len(rules), ctx.Err())
			break
		}

		rule := &rules[i]
		summary.RulesProcessed++

		res, err := e.processRule(ctx, rule, false)
		if err != nil {
			summary.Success = false
			summary.Errors = append(summary.Errors, classifyRuleError(rule, err))
			log.Printf("[Engine] rule %s (%s) failed: %v", rule.ID, rule.Name, err)
			continue
		}
		e.tally(summary, res)
	}

	summary.ExecutionTimeMS = e.now().Sub(start).Milliseconds()
	log.Printf("[Engine] pass complete: processed=%d fired=%d executed=%d suppressed=%d errors=%d in %dms",
		summary.RulesProcessed, summary.RulesFired, summary.ActionsExecuted,
		summary.ActionsSuppressed, len(summary.Errors), summary.ExecutionTimeMS)
	return summary, nil
}

// ProcessRule runs the identical per-rule body used inside ProcessRules for
// one already-loaded rule.
func (e *Engine) ProcessRule(ctx context.Context, rule *domain.Rule) (*RuleResult, error) {
	return e.processRule(ctx, rule, false)
}

// EvaluateSingleRule is the public test seam for admin "test this rule"
// tooling. It loads the rule by id and runs the same per-rule body,
// regardless of is_active (the caller asked for this exact rule). With
// dryRun, actions are resolved but not executed.
func (e *Engine) EvaluateSingleRule(ctx context.Context, ruleID string, dryRun bool) (*RuleResult, error) {
	rule, err := e.rules.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return e.evaluateOnly(ctx, rule)
	}
	return e.processRule(ctx, rule, true)
}

func (e *Engine) processRule(ctx context.Context, rule *domain.Rule, force bool) (*RuleResult, error) {
	if !rule.IsActive && !force {
		// Callers filter inactive rules already; defense in depth.
		return &RuleResult{BlockIndex: -1, Skipped: true, SkipReason: "inactive"}, nil
	}

	cfg, err := domain.ParseRuleConfig(rule.Config)
	if err != nil {
		return nil, &ruleConfigError{err}
	}

	asset, err := e.assets.Get(ctx, rule.AdAssetID)
	if err != nil {
		return nil, err
	}

	if e.lockFor != nil {
		lock := e.lockFor(asset.ID)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("asset lock: %w", err)
		}
		if !acquired {
			return &RuleResult{BlockIndex: -1, Skipped: true, SkipReason: "asset_locked"}, nil
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Printf("[Engine] release asset lock %s: %v", asset.ID, err)
			}
		}()
	}

	snap, err := e.provider.Snapshot(ctx, asset, metrics.KeysForConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("metrics snapshot: %w", err)
	}

	ev := Evaluate(cfg, snap, asset.LocalNow(e.now()))
	res := &RuleResult{Fired: ev.Fired, BlockIndex: ev.BlockIndex, Trace: ev.Trace}

	if !ev.Fired {
		if e.RecordNoMatch {
			e.recordNoMatch(ctx, rule, asset, cfg, &ev.Trace)
		}
		return res, nil
	}

	for _, action := range ev.Actions {
		out, err := e.executor.Apply(ctx, rule, asset, action, &ev.Trace)
		if err != nil {
			// Earlier actions of this block already executed and were
			// audited; surface the failure for the remainder.
			return res, err
		}
		res.Outcomes = append(res.Outcomes, *out)
	}
	return res, nil
}

// evaluateOnly is the dry-run body: full evaluation, no guards, no actions.
func (e *Engine) evaluateOnly(ctx context.Context, rule *domain.Rule) (*RuleResult, error) {
	cfg, err := domain.ParseRuleConfig(rule.Config)
	if err != nil {
		return nil, &ruleConfigError{err}
	}
	asset, err := e.assets.Get(ctx, rule.AdAssetID)
	if err != nil {
		return nil, err
	}
	snap, err := e.provider.Snapshot(ctx, asset, metrics.KeysForConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("metrics snapshot: %w", err)
	}
	ev := Evaluate(cfg, snap, asset.LocalNow(e.now()))
	return &RuleResult{Fired: ev.Fired, BlockIndex: ev.BlockIndex, Trace: ev.Trace}, nil
}

func (e *Engine) recordNoMatch(ctx context.Context, rule *domain.Rule, asset *domain.AdAsset, cfg *domain.RuleConfig, trace *domain.ConditionsResult) {
	if len(cfg.Blocks) == 0 || len(cfg.Blocks[0].Actions) == 0 {
		return
	}
	ruleID := rule.ID
	rec := &domain.HistoryRecord{
		ID:               uuid.New().String(),
		RuleID:           &ruleID,
		AdAssetID:        asset.ID,
		UserID:           rule.UserID,
		ActionType:       cfg.Blocks[0].Actions[0].ActionType,
		ActionExecuted:   false,
		ConditionsResult: trace,
		ExecutionSource:  domain.SourceAuto,
		Reason:           "no_match",
		ActionResult: domain.ActionResult{
			BudgetBefore: asset.CurrentBudget,
			BudgetAfter:  asset.CurrentBudget,
		},
		ExecutedAt: e.now(),
	}
	if err := e.executor.history.Insert(ctx, rec); err != nil {
		log.Printf("[Engine] no-match trace insert failed rule=%s: %v", rule.ID, err)
	}
}

func (e *Engine) tally(summary *RunSummary, res *RuleResult) {
	if res.Skipped {
		summary.RulesSkipped++
		return
	}
	if res.Fired {
		summary.RulesFired++
	}
	for _, out := range res.Outcomes {
		if out.Executed {
			summary.ActionsExecuted++
		} else {
			summary.ActionsSuppressed++
		}
	}
}

func classifyRuleError(rule *domain.Rule, err error) RuleError {
	kind := "transient"
	switch {
	case errors.Is(err, ErrAssetNotFound):
		kind = "data"
	case isConfigError(err):
		kind = "config"
	}
	return RuleError{RuleID: rule.ID, RuleName: rule.Name, Kind: kind, Error: err.Error()}
}

func isConfigError(err error) bool {
	var re *ruleConfigError
	return errors.As(err, &re)
}

// ruleConfigError tags ParseRuleConfig failures for classification.
type ruleConfigError struct{ err error }

func (e *ruleConfigError) Error() string { return e.err.Error() }
func (e *ruleConfigError) Unwrap() error { return e.err }
