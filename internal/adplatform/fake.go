package adplatform

import (
	"context"
	"sync"

	"github.com/ignite/adscale/internal/domain"
)

// Fake is an in-memory Client for tests and local development. It records
// every call and can simulate platform-side clamping and failures.
type Fake struct {
	mu sync.Mutex

	// Clamp, when non-nil, rewrites the requested budget into the confirmed
	// one (platforms round to minor units or enforce account minimums).
	Clamp func(requested float64) float64

	// Err, when non-nil, is returned by every call.
	Err error

	BudgetCalls []FakeBudgetCall
	PausedIDs   []string
}

// FakeBudgetCall records one UpdateBudget invocation.
type FakeBudgetCall struct {
	AssetID   string
	Requested float64
	Confirmed float64
}

func (f *Fake) UpdateBudget(_ context.Context, asset *domain.AdAsset, newBudget float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	confirmed := newBudget
	if f.Clamp != nil {
		confirmed = f.Clamp(newBudget)
	}
	f.BudgetCalls = append(f.BudgetCalls, FakeBudgetCall{
		AssetID: asset.ID, Requested: newBudget, Confirmed: confirmed,
	})
	return confirmed, nil
}

func (f *Fake) PauseAsset(_ context.Context, asset *domain.AdAsset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.PausedIDs = append(f.PausedIDs, asset.ID)
	return nil
}
