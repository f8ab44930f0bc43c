package engine

import (
	"math"
	"time"

	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/metrics"
)

// EvaluateCondition evaluates one predicate against a metrics snapshot and
// the asset-local wall clock. Pure function: a missing metric value yields
// met=false with a nil value, never an error.
func EvaluateCondition(c domain.Condition, snap metrics.Snapshot, now time.Time) domain.MetricEvaluation {
	switch c.Metric {
	case domain.MetricCurrentHour:
		v := float64(now.Hour())
		return domain.MetricEvaluation{
			Value:     &v,
			Operator:  c.Operator,
			Threshold: float64(c.ValueHour),
			Met:       compare(c.Operator, v, float64(c.ValueHour), c.Tolerance),
		}
	case domain.MetricCurrentDayOfWeek:
		v := float64(isoWeekday(now))
		return domain.MetricEvaluation{
			Value:     &v,
			Operator:  c.Operator,
			Threshold: float64(c.ValueDay),
			Met:       compare(c.Operator, v, float64(c.ValueDay), c.Tolerance),
		}
	}

	ev := domain.MetricEvaluation{Operator: c.Operator, Threshold: c.Value}
	v, ok := snap.Lookup(c.SnapshotKey())
	if !ok {
		return ev // absent metric: not satisfied
	}
	ev.Value = &v
	ev.Met = compare(c.Operator, v, c.Value, c.Tolerance)
	return ev
}

// compare applies an operator to (value, threshold). is_within is
// "difference within X": |value - threshold| <= tolerance.
func compare(op domain.Operator, value, threshold, tolerance float64) bool {
	switch op {
	case domain.OpGT:
		return value > threshold
	case domain.OpGTE:
		return value >= threshold
	case domain.OpLT:
		return value < threshold
	case domain.OpLTE:
		return value <= threshold
	case domain.OpEQ:
		return value == threshold
	case domain.OpNEQ:
		return value != threshold
	case domain.OpIsWithin:
		return math.Abs(value-threshold) <= tolerance
	}
	return false
}

// isoWeekday maps time.Weekday to ISO-8601 (1=Monday .. 7=Sunday).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
