package autoscale

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ignite/adscale/internal/adplatform"
	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/engine"
	"github.com/ignite/adscale/internal/metrics"
)

var validConfig = json.RawMessage(`{
	"conditions_logic": "and_or_and",
	"condition_blocks": [{
		"condition_groups": [{"conditions": [
			{"metric": "roas", "operator": ">", "value": 2, "time_range": "today"}
		]}],
		"actions": [{"action_type": "pause"}]
	}]
}`)

// memRules backs both the service's RuleRepository and the engine's RuleStore.
type memRules struct {
	rules map[string]*domain.Rule
	next  int
}

func (m *memRules) Get(_ context.Context, id string) (*domain.Rule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, engine.ErrRuleNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRules) ListByUser(_ context.Context, userID string) ([]domain.Rule, error) {
	var out []domain.Rule
	for _, r := range m.rules {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRules) ListActive(_ context.Context, userID string) ([]domain.Rule, error) {
	var out []domain.Rule
	for _, r := range m.rules {
		if r.IsActive && (userID == "" || r.UserID == userID) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRules) Create(_ context.Context, rule *domain.Rule) error {
	if rule.ID == "" {
		m.next++
		rule.ID = fmt.Sprintf("r%d", m.next)
	}
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	cp := *rule
	m.rules[rule.ID] = &cp
	return nil
}

func (m *memRules) Update(_ context.Context, rule *domain.Rule) error {
	existing, ok := m.rules[rule.ID]
	if !ok || existing.UserID != rule.UserID {
		return engine.ErrRuleNotFound
	}
	cp := *rule
	m.rules[rule.ID] = &cp
	return nil
}

func (m *memRules) Delete(_ context.Context, userID, id string) error {
	existing, ok := m.rules[id]
	if !ok || existing.UserID != userID {
		return engine.ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

// memAssets backs both AssetRepository and the engine's AssetStore.
type memAssets struct {
	assets map[string]*domain.AdAsset
}

func (m *memAssets) Get(_ context.Context, id string) (*domain.AdAsset, error) {
	a, ok := m.assets[id]
	if !ok {
		return nil, engine.ErrAssetNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAssets) AdjustBudget(_ context.Context, assetID string, before, after float64, rec *domain.HistoryRecord) error {
	a, ok := m.assets[assetID]
	if !ok {
		return engine.ErrAssetNotFound
	}
	if a.CurrentBudget != before {
		return engine.ErrBudgetConflict
	}
	a.CurrentBudget = after
	return nil
}

type memHistory struct {
	changes []domain.BudgetChange
}

func (m *memHistory) Insert(context.Context, *domain.HistoryRecord) error { return nil }
func (m *memHistory) LastExecuted(context.Context, string, domain.ActionType) (*time.Time, error) {
	return nil, nil
}
func (m *memHistory) LastExecutedForAsset(context.Context, string, domain.ActionType) (*time.Time, error) {
	return nil, nil
}
func (m *memHistory) ListBudgetChanges(_ context.Context, _ string, _ time.Time) ([]domain.BudgetChange, error) {
	return m.changes, nil
}

type memResets struct {
	resets []domain.BudgetReset
}

func (m *memResets) ListSince(context.Context, string, time.Time) ([]domain.BudgetReset, error) {
	return m.resets, nil
}

type memProducts struct{}

func (memProducts) DisableProduct(context.Context, string) error { return nil }

type stubBudgets struct {
	realTimeCalls int
	cachedCalls   int
}

func (s *stubBudgets) BudgetStatus(_ context.Context, asset *domain.AdAsset) (*domain.BudgetStatus, error) {
	s.cachedCalls++
	return &domain.BudgetStatus{CurrentDaily: asset.CurrentBudget}, nil
}

func (s *stubBudgets) BudgetStatusRealTime(_ context.Context, asset *domain.AdAsset) (*domain.BudgetStatus, error) {
	s.realTimeCalls++
	return &domain.BudgetStatus{CurrentDaily: asset.CurrentBudget}, nil
}

type stubMetrics struct{}

func (stubMetrics) Snapshot(context.Context, *domain.AdAsset, []metrics.Key) (metrics.Snapshot, error) {
	return metrics.Snapshot{"roas@today": 3}, nil
}

func (stubMetrics) BudgetStatus(_ context.Context, asset *domain.AdAsset) (*domain.BudgetStatus, error) {
	return &domain.BudgetStatus{CurrentDaily: asset.CurrentBudget}, nil
}

type serviceFixture struct {
	svc      *Service
	rules    *memRules
	assets   *memAssets
	budgets  *stubBudgets
	platform *adplatform.Fake
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	fx := &serviceFixture{
		rules: &memRules{rules: map[string]*domain.Rule{}},
		assets: &memAssets{assets: map[string]*domain.AdAsset{
			"asset-1": {ID: "asset-1", UserID: "u1", ProductID: "p1", CurrentBudget: 100, Timezone: "UTC"},
			"asset-2": {ID: "asset-2", UserID: "u2", CurrentBudget: 50, Timezone: "UTC"},
		}},
		budgets:  &stubBudgets{},
		platform: &adplatform.Fake{},
	}
	history := &memHistory{changes: []domain.BudgetChange{{ID: "h1", BudgetChange: 20}}}
	resets := &memResets{resets: []domain.BudgetReset{{ID: "br1", ResetDate: "2026-03-10"}}}

	exec := engine.NewExecutor(fx.platform, fx.assets, history, memProducts{}, stubMetrics{})
	eng := engine.New(fx.rules, fx.assets, stubMetrics{}, exec, nil)
	fx.svc = NewService(fx.rules, fx.assets, history, resets, fx.budgets, eng, exec)
	return fx
}

func TestCreateRule(t *testing.T) {
	fx := newServiceFixture(t)

	rule, err := fx.svc.CreateRule(context.Background(), "u1", CreateRuleInput{
		Name: "scale up", AdAssetID: "asset-1", IsActive: true, Config: validConfig,
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if rule.ID == "" || rule.UserID != "u1" {
		t.Errorf("rule = %+v", rule)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.CreateRule(ctx, "u1", CreateRuleInput{AdAssetID: "asset-1", Config: validConfig}); err == nil || !strings.Contains(err.Error(), "required") {
		t.Errorf("missing name: err = %v", err)
	}
	if _, err := fx.svc.CreateRule(ctx, "u1", CreateRuleInput{Name: "x", AdAssetID: "asset-1", Config: json.RawMessage(`{"conditions_logic":"bad"}`)}); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("bad config: err = %v", err)
	}
	if _, err := fx.svc.CreateRule(ctx, "u1", CreateRuleInput{Name: "x", AdAssetID: "asset-2", Config: validConfig}); !errors.Is(err, ErrAssetOwnership) {
		t.Errorf("foreign asset: err = %v", err)
	}
	if _, err := fx.svc.CreateRule(ctx, "u1", CreateRuleInput{Name: "x", AdAssetID: "missing", Config: validConfig}); !errors.Is(err, engine.ErrAssetNotFound) {
		t.Errorf("missing asset: err = %v", err)
	}
}

func TestGetRuleMasksOtherUsers(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	rule, err := fx.svc.CreateRule(ctx, "u1", CreateRuleInput{
		Name: "mine", AdAssetID: "asset-1", Config: validConfig,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fx.svc.GetRule(ctx, "u1", rule.ID); err != nil {
		t.Errorf("owner read failed: %v", err)
	}
	// Another user sees not-found, not forbidden: rule ids are not probeable.
	if _, err := fx.svc.GetRule(ctx, "u2", rule.ID); !errors.Is(err, engine.ErrRuleNotFound) {
		t.Errorf("foreign read: err = %v, want ErrRuleNotFound", err)
	}
}

func TestAdjustBudget(t *testing.T) {
	fx := newServiceFixture(t)

	rec, err := fx.svc.AdjustBudget(context.Background(), "u1", "asset-1", 180, "weekend push")
	if err != nil {
		t.Fatalf("AdjustBudget: %v", err)
	}
	if rec.ActionType != domain.ActionManualAdjust || rec.ExecutionSource != domain.SourceManual {
		t.Errorf("record = %+v", rec)
	}
	if rec.ActionResult.BudgetAfter != 180 {
		t.Errorf("after = %v", rec.ActionResult.BudgetAfter)
	}
	if got := fx.assets.assets["asset-1"].CurrentBudget; got != 180 {
		t.Errorf("stored budget = %v", got)
	}
	if len(fx.platform.BudgetCalls) != 1 {
		t.Error("platform must be called before the local write")
	}
}

func TestAdjustBudgetGuards(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.AdjustBudget(ctx, "u1", "asset-1", 0, ""); !errors.Is(err, ErrNonPositiveBudget) {
		t.Errorf("zero budget: err = %v", err)
	}
	if _, err := fx.svc.AdjustBudget(ctx, "u1", "asset-2", 80, ""); !errors.Is(err, ErrAssetOwnership) {
		t.Errorf("foreign asset: err = %v", err)
	}
	if len(fx.platform.BudgetCalls) != 0 {
		t.Error("rejected adjustments must not reach the platform")
	}
}

func TestBudgetStatusRealTimeRouting(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.BudgetStatus(ctx, "u1", "asset-1", false); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.BudgetStatus(ctx, "u1", "asset-1", true); err != nil {
		t.Fatal(err)
	}
	if fx.budgets.cachedCalls != 1 || fx.budgets.realTimeCalls != 1 {
		t.Errorf("cached=%d realTime=%d, want 1/1", fx.budgets.cachedCalls, fx.budgets.realTimeCalls)
	}
}

func TestBudgetChangesRange(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	changes, err := fx.svc.BudgetChanges(ctx, "u1", "asset-1", "7d")
	if err != nil {
		t.Fatalf("BudgetChanges: %v", err)
	}
	if len(changes) != 1 {
		t.Errorf("changes = %+v", changes)
	}

	if _, err := fx.svc.BudgetChanges(ctx, "u1", "asset-1", "90d"); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("bad range: err = %v", err)
	}
	if _, err := fx.svc.BudgetChanges(ctx, "u1", "asset-2", "7d"); !errors.Is(err, ErrAssetOwnership) {
		t.Errorf("foreign asset: err = %v", err)
	}
}

func TestSinceForRange(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		rng     string
		want    time.Time
		wantErr bool
	}{
		{"", now.AddDate(0, 0, -7), false},
		{"7d", now.AddDate(0, 0, -7), false},
		{"24h", now.Add(-24 * time.Hour), false},
		{"30d", now.AddDate(0, 0, -30), false},
		{"1y", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := sinceForRange(tt.rng, now)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidRange) {
				t.Errorf("%q: err = %v", tt.rng, err)
			}
			continue
		}
		if err != nil || !got.Equal(tt.want) {
			t.Errorf("%q: got %v, %v", tt.rng, got, err)
		}
	}
}

func TestTestRuleDryRun(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	rule, err := fx.svc.CreateRule(ctx, "u1", CreateRuleInput{
		Name: "spot check", AdAssetID: "asset-1", Config: validConfig,
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := fx.svc.TestRule(ctx, "u1", rule.ID, true)
	if err != nil {
		t.Fatalf("TestRule: %v", err)
	}
	if !res.Fired {
		t.Errorf("result = %+v, want fired (roas 3 > 2)", res)
	}
	if len(fx.platform.PausedIDs) != 0 {
		t.Error("dry run must not execute the pause")
	}

	if _, err := fx.svc.TestRule(ctx, "u2", rule.ID, true); !errors.Is(err, engine.ErrRuleNotFound) {
		t.Errorf("foreign test: err = %v", err)
	}
}

func TestRunNow(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.CreateRule(ctx, "u1", CreateRuleInput{
		Name: "live", AdAssetID: "asset-1", IsActive: true, Config: validConfig,
	}); err != nil {
		t.Fatal(err)
	}

	summary, err := fx.svc.RunNow(ctx, "u1")
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if summary.RulesProcessed != 1 || summary.RulesFired != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if len(fx.platform.PausedIDs) != 1 {
		t.Errorf("paused = %v, want the fired pause executed", fx.platform.PausedIDs)
	}
}
