// Package metrics supplies aggregated ad performance numbers to the rule
// engine. The engine asks for exactly the (metric, time_range) pairs a rule's
// conditions reference; providers resolve them into a flat snapshot keyed by
// Condition.SnapshotKey ("metric@range").
package metrics

import (
	"context"

	"github.com/ignite/adscale/internal/domain"
)

// Key identifies one requested aggregate.
type Key struct {
	Metric domain.Metric
	Range  domain.TimeRange
}

// String renders the snapshot key for this pair.
func (k Key) String() string {
	return string(k.Metric) + "@" + string(k.Range)
}

// Snapshot is a resolved set of metric values. A missing key means the
// metric could not be computed for that range (e.g. no spend yet); condition
// evaluation treats absence as "not satisfied", never as an error.
type Snapshot map[string]float64

// Lookup returns the value for a snapshot key.
func (s Snapshot) Lookup(key string) (float64, bool) {
	v, ok := s[key]
	return v, ok
}

// Provider resolves metric aggregates for an ad asset.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Snapshot resolves the requested keys for the asset. Keys that cannot
	// be computed are omitted from the result, not errored.
	Snapshot(ctx context.Context, asset *domain.AdAsset, keys []Key) (Snapshot, error)

	// BudgetStatus returns the real-time budget view for the asset:
	// current daily budget, spend so far today, and the remainder.
	BudgetStatus(ctx context.Context, asset *domain.AdAsset) (*domain.BudgetStatus, error)
}

// NoCacheBudgets adapts a bare Provider for callers that expect a real-time
// bypass. Without a cache every read is already real-time.
type NoCacheBudgets struct {
	Provider
}

// BudgetStatusRealTime reads straight through.
func (n NoCacheBudgets) BudgetStatusRealTime(ctx context.Context, asset *domain.AdAsset) (*domain.BudgetStatus, error) {
	return n.Provider.BudgetStatus(ctx, asset)
}

// KeysForConfig collects the unique metric keys a parsed rule config needs,
// so the engine can batch one snapshot per asset per cycle. Wall-clock
// predicates resolve against the clock and are excluded.
func KeysForConfig(cfg *domain.RuleConfig) []Key {
	seen := make(map[Key]bool)
	var keys []Key
	for _, b := range cfg.Blocks {
		for _, g := range b.Groups {
			for _, c := range g.Conditions {
				if c.Metric.IsWallClock() {
					continue
				}
				k := Key{Metric: c.Metric, Range: c.TimeRange}
				if !seen[k] {
					seen[k] = true
					keys = append(keys, k)
				}
			}
		}
	}
	return keys
}
