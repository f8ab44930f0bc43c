package engine

import (
	"fmt"
	"time"

	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/metrics"
)

// Evaluation is the outcome of evaluating one rule config against a
// snapshot: whether any block fired, which one, the actions to execute, and
// the full audit trace.
type Evaluation struct {
	Fired      bool
	BlockIndex int // -1 when no block fired
	Actions    []domain.Action
	Trace      domain.ConditionsResult
}

// Evaluate runs the first-match-wins block chain. Blocks are tried in
// declaration order like an if/elseif chain; only the first satisfied
// block's actions execute. Every block and every condition is still fully
// evaluated so the persisted trace explains "why didn't it fire" too.
//
// A block with no condition groups never fires (vacuous = no match).
func Evaluate(cfg *domain.RuleConfig, snap metrics.Snapshot, now time.Time) Evaluation {
	ev := Evaluation{
		BlockIndex: -1,
		Trace: domain.ConditionsResult{
			Logic:      cfg.ConditionsLogic,
			FiredBlock: -1,
		},
	}

	for bi, block := range cfg.Blocks {
		bt := domain.BlockTrace{Block: bi, Name: block.Name}

		for gi, g := range block.Groups {
			bt.Groups = append(bt.Groups, evaluateGroup(gi, g, cfg.ConditionsLogic, snap, now))
		}
		bt.Result = combineGroups(bt.Groups, cfg.ConditionsLogic)

		if bt.Result && !ev.Fired {
			ev.Fired = true
			ev.BlockIndex = bi
			ev.Actions = block.Actions
			ev.Trace.FiredBlock = bi
		}
		ev.Trace.Blocks = append(ev.Trace.Blocks, bt)
	}
	return ev
}

// evaluateGroup applies the within-group half of the rule's logic:
// and_or_and groups AND their conditions, or_and_or groups OR them.
// No short-circuit: every condition lands in the trace.
func evaluateGroup(idx int, g domain.ConditionGroup, logic domain.ConditionsLogic, snap metrics.Snapshot, now time.Time) domain.GroupTrace {
	inner := "and"
	if logic == domain.LogicOrAndOr {
		inner = "or"
	}

	gt := domain.GroupTrace{
		GroupIndex:       idx,
		Logic:            inner,
		MetricsEvaluated: make(map[string]domain.MetricEvaluation, len(g.Conditions)),
	}

	allMet, anyMet := true, false
	for _, c := range g.Conditions {
		res := EvaluateCondition(c, snap, now)
		gt.MetricsEvaluated[traceKey(gt.MetricsEvaluated, c.SnapshotKey())] = res
		if res.Met {
			anyMet = true
		} else {
			allMet = false
		}
	}

	if inner == "and" {
		gt.Result = allMet && len(g.Conditions) > 0
	} else {
		gt.Result = anyMet
	}
	return gt
}

// traceKey disambiguates two conditions in one group on the same
// metric+range (different thresholds), so neither overwrites the other in
// the trace. The first keeps the plain key; later ones get #2, #3, ...
func traceKey(seen map[string]domain.MetricEvaluation, key string) string {
	if _, dup := seen[key]; !dup {
		return key
	}
	for n := 2; ; n++ {
		k := fmt.Sprintf("%s#%d", key, n)
		if _, dup := seen[k]; !dup {
			return k
		}
	}
}

// combineGroups applies the between-groups half of the logic:
// and_or_and ORs the groups, or_and_or ANDs them. An empty group list never
// satisfies a block.
func combineGroups(groups []domain.GroupTrace, logic domain.ConditionsLogic) bool {
	if len(groups) == 0 {
		return false
	}
	if logic == domain.LogicAndOrAnd {
		for _, g := range groups {
			if g.Result {
				return true
			}
		}
		return false
	}
	for _, g := range groups {
		if !g.Result {
			return false
		}
	}
	return true
}
