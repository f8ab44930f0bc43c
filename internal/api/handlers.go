package api

import (
	"errors"
	"net/http"

	"github.com/ignite/adscale/internal/engine"
	"github.com/ignite/adscale/internal/pkg/httputil"
	"github.com/ignite/adscale/internal/service/autoscale"
)

// Handlers holds the HTTP handlers for the autoscale API surface.
type Handlers struct {
	svc *autoscale.Service
}

// NewHandlers creates the handler set.
func NewHandlers(svc *autoscale.Service) *Handlers {
	return &Handlers{svc: svc}
}

// writeServiceError maps service-layer errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrRuleNotFound):
		httputil.NotFound(w, "rule not found")
	case errors.Is(err, engine.ErrAssetNotFound):
		httputil.NotFound(w, "ad asset not found")
	case errors.Is(err, autoscale.ErrAssetOwnership):
		httputil.Forbidden(w, err.Error())
	case errors.Is(err, autoscale.ErrNonPositiveBudget),
		errors.Is(err, autoscale.ErrInvalidRange):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, engine.ErrBudgetConflict):
		httputil.Conflict(w, "budget changed concurrently, retry")
	default:
		httputil.InternalError(w, err)
	}
}
