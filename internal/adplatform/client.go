// Package adplatform is the boundary to the external advertising platforms.
// The engine only needs two capabilities: mutate an asset's daily budget and
// pause an asset. Everything else about the platforms (auth refresh, per-kind
// endpoints, metric pulls) lives behind the gateway service this client talks
// to.
package adplatform

import (
	"context"

	"github.com/ignite/adscale/internal/domain"
)

// Client mutates live ad assets on their platform.
// Implementations must be safe for concurrent use.
type Client interface {
	// UpdateBudget sets the asset's daily budget and returns the budget the
	// platform confirmed. Platforms round or clamp (e.g. to currency minor
	// units or account minimums), so the confirmed value is authoritative
	// and is what gets audited.
	UpdateBudget(ctx context.Context, asset *domain.AdAsset, newBudget float64) (float64, error)

	// PauseAsset pauses delivery for the asset. No budget change.
	PauseAsset(ctx context.Context, asset *domain.AdAsset) error
}
