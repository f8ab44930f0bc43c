package api

import (
	"net/http"

	"github.com/ignite/adscale/internal/pkg/httputil"
)

// adjustBudgetRequest is the manual budget override payload. The older UI
// sends ad_asset_id and budget_after; both spellings are accepted.
// budget_before and adjustment_amount from that contract are ignored: the
// server derives them from a fresh read so a stale client value can never
// be written.
type adjustBudgetRequest struct {
	AdAssetID    string  `json:"ad_assets_id"`
	AdAssetIDAlt string  `json:"ad_asset_id"`
	NewBudget    float64 `json:"new_budget"`
	BudgetAfter  float64 `json:"budget_after"`
	Reason       string  `json:"reason"`
}

// AdjustBudget applies a human-initiated budget change.
//
//	POST /api/adAutoScale/adjust-budget
func (h *Handlers) AdjustBudget(w http.ResponseWriter, r *http.Request) {
	var req adjustBudgetRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	assetID := req.AdAssetID
	if assetID == "" {
		assetID = req.AdAssetIDAlt
	}
	if assetID == "" {
		httputil.BadRequest(w, "ad_assets_id is required")
		return
	}
	newBudget := req.NewBudget
	if newBudget == 0 {
		newBudget = req.BudgetAfter
	}

	rec, err := h.svc.AdjustBudget(r.Context(), UserID(r.Context()), assetID, newBudget, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, rec)
}

// BudgetStatus returns the live budget view for an asset. real_time=1
// bypasses the metrics cache; the manual-adjust UI sends it before letting a
// human edit.
//
//	GET /api/adMetrics/budget-status?ad_assets_id=...&real_time=1
func (h *Handlers) BudgetStatus(w http.ResponseWriter, r *http.Request) {
	assetID := queryAssetID(r)
	if assetID == "" {
		httputil.BadRequest(w, "ad_assets_id is required")
		return
	}
	realTime := r.URL.Query().Get("real_time") == "1"

	status, err := h.svc.BudgetStatus(r.Context(), UserID(r.Context()), assetID, realTime)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, status)
}
