package api

import (
	"net/http"

	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/pkg/httputil"
)

// queryAssetID reads the asset id from the query string, accepting the
// older UI's spellings (asset_id, ad_asset_id) next to ad_assets_id.
func queryAssetID(r *http.Request) string {
	for _, key := range []string{"ad_assets_id", "ad_asset_id", "asset_id"} {
		if v := r.URL.Query().Get(key); v != "" {
			return v
		}
	}
	return ""
}

// BudgetChanges returns an asset's executed-action timeline.
//
//	GET /api/adAutoScale/stats/budget-changes?ad_assets_id=...&range=7d
func (h *Handlers) BudgetChanges(w http.ResponseWriter, r *http.Request) {
	assetID := queryAssetID(r)
	if assetID == "" {
		httputil.BadRequest(w, "ad_assets_id is required")
		return
	}

	changes, err := h.svc.BudgetChanges(r.Context(), UserID(r.Context()), assetID, r.URL.Query().Get("range"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if changes == nil {
		changes = []domain.BudgetChange{}
	}
	httputil.OK(w, changes)
}

// BudgetResetsDaily returns an asset's daily budget-reset events.
//
//	GET /api/adAutoScale/stats/budget-resets-daily?ad_assets_id=...&range=7d
func (h *Handlers) BudgetResetsDaily(w http.ResponseWriter, r *http.Request) {
	assetID := queryAssetID(r)
	if assetID == "" {
		httputil.BadRequest(w, "ad_assets_id is required")
		return
	}

	resets, err := h.svc.BudgetResetsDaily(r.Context(), UserID(r.Context()), assetID, r.URL.Query().Get("range"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if resets == nil {
		resets = []domain.BudgetReset{}
	}
	httputil.OK(w, resets)
}
