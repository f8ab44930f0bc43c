package autoscale

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/engine"
)

// Service implements autoscale business logic. It coordinates the rule
// repository, the engine, and the budget executor. All public methods are
// safe for concurrent use if the underlying repositories are.
type Service struct {
	rules   RuleRepository
	assets  AssetRepository
	history HistoryRepository
	resets  ResetRepository
	budgets BudgetReader
	eng     *engine.Engine
	exec    *engine.Executor
}

// NewService wires an autoscale service.
func NewService(rules RuleRepository, assets AssetRepository, history HistoryRepository, resets ResetRepository, budgets BudgetReader, eng *engine.Engine, exec *engine.Executor) *Service {
	return &Service{
		rules:   rules,
		assets:  assets,
		history: history,
		resets:  resets,
		budgets: budgets,
		eng:     eng,
		exec:    exec,
	}
}

// CreateRuleInput holds the fields for creating a new rule.
type CreateRuleInput struct {
	Name      string          `json:"name"`
	AdAssetID string          `json:"ad_assets_id"`
	IsActive  bool            `json:"is_active"`
	Config    json.RawMessage `json:"config"`
}

// CreateRule validates and persists a new rule. The config is parsed up
// front so a malformed rule is rejected at write time instead of silently
// failing every engine cycle.
func (s *Service) CreateRule(ctx context.Context, userID string, input CreateRuleInput) (*domain.Rule, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if _, err := domain.ParseRuleConfig(input.Config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := s.checkAssetOwner(ctx, userID, input.AdAssetID); err != nil {
		return nil, err
	}

	rule := &domain.Rule{
		UserID:    userID,
		Name:      input.Name,
		AdAssetID: input.AdAssetID,
		IsActive:  input.IsActive,
		Config:    input.Config,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	log.Printf("[autoscale.Service] rule %s created for asset %s", rule.ID, rule.AdAssetID)
	return rule, nil
}

// UpdateRule replaces a rule's mutable fields, scoped to its owner.
func (s *Service) UpdateRule(ctx context.Context, userID, id string, input CreateRuleInput) (*domain.Rule, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if _, err := domain.ParseRuleConfig(input.Config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := s.checkAssetOwner(ctx, userID, input.AdAssetID); err != nil {
		return nil, err
	}

	rule := &domain.Rule{
		ID:        id,
		UserID:    userID,
		Name:      input.Name,
		AdAssetID: input.AdAssetID,
		IsActive:  input.IsActive,
		Config:    input.Config,
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// GetRule returns a rule scoped to its owner.
func (s *Service) GetRule(ctx context.Context, userID, id string) (*domain.Rule, error) {
	rule, err := s.rules.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.UserID != userID {
		return nil, engine.ErrRuleNotFound
	}
	return rule, nil
}

// ListRules returns all of a user's rules.
func (s *Service) ListRules(ctx context.Context, userID string) ([]domain.Rule, error) {
	return s.rules.ListByUser(ctx, userID)
}

// DeleteRule removes a rule scoped to its owner. History rows keep their
// rule_id; the audit trail outlives the rule.
func (s *Service) DeleteRule(ctx context.Context, userID, id string) error {
	return s.rules.Delete(ctx, userID, id)
}

// AdjustBudget applies a human-initiated budget change through the same
// platform-call / compare-and-swap / audit path the engine uses.
func (s *Service) AdjustBudget(ctx context.Context, userID, assetID string, newBudget float64, reason string) (*domain.HistoryRecord, error) {
	if newBudget <= 0 {
		return nil, ErrNonPositiveBudget
	}
	asset, err := s.assets.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset.UserID != userID {
		return nil, ErrAssetOwnership
	}
	rec, err := s.exec.ApplyManual(ctx, asset, newBudget, reason)
	if err != nil {
		return nil, err
	}
	log.Printf("[autoscale.Service] manual adjust asset=%s %.2f -> %.2f", assetID,
		rec.ActionResult.BudgetBefore, rec.ActionResult.BudgetAfter)
	return rec, nil
}

// BudgetStatus returns the live budget view for the manual-adjust UI.
// realTime bypasses the metrics cache.
func (s *Service) BudgetStatus(ctx context.Context, userID, assetID string, realTime bool) (*domain.BudgetStatus, error) {
	asset, err := s.assets.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset.UserID != userID {
		return nil, ErrAssetOwnership
	}
	if realTime {
		return s.budgets.BudgetStatusRealTime(ctx, asset)
	}
	return s.budgets.BudgetStatus(ctx, asset)
}

// BudgetChanges returns the executed-action timeline for an asset over a
// named range ("24h", "7d", "30d").
func (s *Service) BudgetChanges(ctx context.Context, userID, assetID, rng string) ([]domain.BudgetChange, error) {
	asset, err := s.assets.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset.UserID != userID {
		return nil, ErrAssetOwnership
	}
	since, err := sinceForRange(rng, time.Now())
	if err != nil {
		return nil, err
	}
	return s.history.ListBudgetChanges(ctx, assetID, since)
}

// BudgetResetsDaily returns an asset's daily reset events over a named range.
func (s *Service) BudgetResetsDaily(ctx context.Context, userID, assetID, rng string) ([]domain.BudgetReset, error) {
	asset, err := s.assets.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset.UserID != userID {
		return nil, ErrAssetOwnership
	}
	since, err := sinceForRange(rng, time.Now())
	if err != nil {
		return nil, err
	}
	return s.resets.ListSince(ctx, assetID, since)
}

// RunNow triggers one engine pass over the user's active rules.
func (s *Service) RunNow(ctx context.Context, userID string) (*engine.RunSummary, error) {
	return s.eng.ProcessRules(ctx, userID)
}

// TestRule evaluates a single rule on demand, regardless of is_active.
// With dryRun the conditions are evaluated but no action executes.
func (s *Service) TestRule(ctx context.Context, userID, ruleID string, dryRun bool) (*engine.RuleResult, error) {
	if _, err := s.GetRule(ctx, userID, ruleID); err != nil {
		return nil, err
	}
	return s.eng.EvaluateSingleRule(ctx, ruleID, dryRun)
}

func (s *Service) checkAssetOwner(ctx context.Context, userID, assetID string) error {
	asset, err := s.assets.Get(ctx, assetID)
	if err != nil {
		return err
	}
	if asset.UserID != userID {
		return ErrAssetOwnership
	}
	return nil
}

// sinceForRange maps a stats range name to its window start.
func sinceForRange(rng string, now time.Time) (time.Time, error) {
	switch rng {
	case "", "7d":
		return now.AddDate(0, 0, -7), nil
	case "24h":
		return now.Add(-24 * time.Hour), nil
	case "30d":
		return now.AddDate(0, 0, -30), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRange, rng)
}
