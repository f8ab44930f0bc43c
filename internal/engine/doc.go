// Package engine implements the ad auto-scale rule engine: condition
// evaluation against metric snapshots, first-match-wins block selection,
// guarded action execution against the ad platform, and the cron-mode
// orchestration over all active rules.
//
// Layering:
//
//	EvaluateCondition  — one predicate, pure, no I/O
//	evaluateGroup      — AND/OR over a group, full trace
//	Evaluate           — blocks in order, first satisfied block fires
//	Executor           — guards, platform mutation, audit persistence
//	Engine             — rule loading, snapshot batching, run summary
//
// The evaluators are pure functions; all I/O (metrics, platform, storage)
// enters through the interfaces in stores.go so the whole pipeline is
// testable with in-memory fakes.
package engine
