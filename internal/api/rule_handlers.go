package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/adscale/internal/pkg/httputil"
	"github.com/ignite/adscale/internal/service/autoscale"
)

// CreateRule creates a new autoscale rule.
//
//	POST /api/adAutoScale
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var input autoscale.CreateRuleInput
	if !httputil.Decode(w, r, &input) {
		return
	}

	rule, err := h.svc.CreateRule(r.Context(), UserID(r.Context()), input)
	if err != nil {
		if isValidationError(err) {
			httputil.BadRequest(w, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, rule)
}

// ListRules returns all of the caller's rules.
//
//	GET /api/adAutoScale
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListRules(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, rules)
}

// GetRule returns a single rule.
//
//	GET /api/adAutoScale/{ruleID}
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.svc.GetRule(r.Context(), UserID(r.Context()), chi.URLParam(r, "ruleID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, rule)
}

// UpdateRule replaces a rule's fields.
//
//	PUT /api/adAutoScale/{ruleID}
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var input autoscale.CreateRuleInput
	if !httputil.Decode(w, r, &input) {
		return
	}

	rule, err := h.svc.UpdateRule(r.Context(), UserID(r.Context()), chi.URLParam(r, "ruleID"), input)
	if err != nil {
		if isValidationError(err) {
			httputil.BadRequest(w, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, rule)
}

// DeleteRule removes a rule. Its history rows are retained.
//
//	DELETE /api/adAutoScale/{ruleID}
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRule(r.Context(), UserID(r.Context()), chi.URLParam(r, "ruleID")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// TestRule evaluates one rule on demand and returns the full trace.
// dry_run=1 skips action execution.
//
//	POST /api/adAutoScale/{ruleID}/test?dry_run=1
func (h *Handlers) TestRule(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "1"
	res, err := h.svc.TestRule(r.Context(), UserID(r.Context()), chi.URLParam(r, "ruleID"), dryRun)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// RunNow triggers one engine pass over the caller's active rules.
//
//	POST /api/adAutoScale/run
func (h *Handlers) RunNow(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.RunNow(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, summary)
}

// isValidationError distinguishes bad input from infrastructure failures on
// the create/update path, where config parse errors surface as plain errors.
func isValidationError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid config") || strings.Contains(msg, "required")
}
