package metrics

import (
	"context"
	"testing"

	"github.com/ignite/adscale/internal/domain"
)

func TestKeysForConfig(t *testing.T) {
	cfg := &domain.RuleConfig{
		ConditionsLogic: domain.LogicAndOrAnd,
		Blocks: []domain.Block{
			{
				Groups: []domain.ConditionGroup{
					{Conditions: []domain.Condition{
						{Metric: domain.MetricROAS, TimeRange: domain.RangeToday},
						{Metric: domain.MetricSpend, TimeRange: domain.RangeToday},
						{Metric: domain.MetricCurrentHour}, // wall clock, excluded
					}},
				},
			},
			{
				Groups: []domain.ConditionGroup{
					{Conditions: []domain.Condition{
						// Duplicate of block 0, must dedupe.
						{Metric: domain.MetricROAS, TimeRange: domain.RangeToday},
						// Same metric, different range: distinct key.
						{Metric: domain.MetricROAS, TimeRange: domain.RangeLast7d},
					}},
				},
			},
		},
	}

	keys := KeysForConfig(cfg)
	if len(keys) != 3 {
		t.Fatalf("keys = %v, want 3 unique", keys)
	}
	want := map[string]bool{"roas@today": true, "spend@today": true, "roas@last_7d": true}
	for _, k := range keys {
		if !want[k.String()] {
			t.Errorf("unexpected key %s", k)
		}
	}
}

func TestDerive(t *testing.T) {
	agg := &aggregates{Spend: 50, Revenue: 150, Results: 10, Impressions: 1000, Clicks: 80, Reach: 400}

	tests := []struct {
		metric    domain.Metric
		want      float64
		wantFound bool
	}{
		{domain.MetricSpend, 50, true},
		{domain.MetricProfit, 100, true},
		{domain.MetricROAS, 3, true},
		{domain.MetricCostPerResult, 5, true},
		{domain.MetricFrequency, 2.5, true},
		{domain.MetricResults, 10, true},
	}
	for _, tt := range tests {
		got, found := derive(tt.metric, agg)
		if found != tt.wantFound || got != tt.want {
			t.Errorf("derive(%s) = %v,%v, want %v,%v", tt.metric, got, found, tt.want, tt.wantFound)
		}
	}

	// Zero denominators are undefined, not zero.
	empty := &aggregates{}
	for _, m := range []domain.Metric{domain.MetricROAS, domain.MetricCostPerResult, domain.MetricFrequency} {
		if _, found := derive(m, empty); found {
			t.Errorf("derive(%s) on empty aggregates should report not found", m)
		}
	}
}

func TestNoCacheBudgetsRealTime(t *testing.T) {
	inner := stubProvider{snap: Snapshot{"spend@today": 30}}
	nc := NoCacheBudgets{Provider: inner}

	asset := &domain.AdAsset{ID: "a1", CurrentBudget: 100}
	bs, err := nc.BudgetStatusRealTime(context.Background(), asset)
	if err != nil {
		t.Fatalf("BudgetStatusRealTime: %v", err)
	}
	if bs.CurrentDaily != 100 || bs.Spent != 30 {
		t.Errorf("status = %+v", bs)
	}
}
