// Package autoscale implements the user-facing business logic around the
// rule engine: rule lifecycle management, manual budget adjustments, and the
// stats projections the dashboard renders.
//
// The engine itself (evaluation and action execution) lives in
// internal/engine; this package owns everything a request handler needs and
// should never import from api/.
package autoscale
