package engine

import (
	"context"
	"time"

	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/metrics"
)

// In-memory stores shared by the executor and engine tests.

type fakeRuleStore struct {
	rules []domain.Rule
}

func (f *fakeRuleStore) ListActive(_ context.Context, userID string) ([]domain.Rule, error) {
	var out []domain.Rule
	for _, r := range f.rules {
		if !r.IsActive {
			continue
		}
		if userID != "" && r.UserID != userID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRuleStore) Get(_ context.Context, id string) (*domain.Rule, error) {
	for i := range f.rules {
		if f.rules[i].ID == id {
			r := f.rules[i]
			return &r, nil
		}
	}
	return nil, ErrRuleNotFound
}

type fakeAssetStore struct {
	assets map[string]*domain.AdAsset

	adjusted []*domain.HistoryRecord
	// conflictOnce makes the next AdjustBudget fail with ErrBudgetConflict.
	conflictOnce bool
}

func (f *fakeAssetStore) Get(_ context.Context, id string) (*domain.AdAsset, error) {
	a, ok := f.assets[id]
	if !ok {
		return nil, ErrAssetNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssetStore) AdjustBudget(_ context.Context, assetID string, before, after float64, rec *domain.HistoryRecord) error {
	if f.conflictOnce {
		f.conflictOnce = false
		return ErrBudgetConflict
	}
	a, ok := f.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}
	if a.CurrentBudget != before {
		return ErrBudgetConflict
	}
	a.CurrentBudget = after
	f.adjusted = append(f.adjusted, rec)
	return nil
}

type fakeHistoryStore struct {
	inserted []*domain.HistoryRecord

	lastByRule  map[string]time.Time // ruleID + "|" + actionType
	lastByAsset map[string]time.Time // assetID + "|" + actionType
}

func (f *fakeHistoryStore) Insert(_ context.Context, rec *domain.HistoryRecord) error {
	f.inserted = append(f.inserted, rec)
	return nil
}

func (f *fakeHistoryStore) LastExecuted(_ context.Context, ruleID string, at domain.ActionType) (*time.Time, error) {
	if t, ok := f.lastByRule[ruleID+"|"+string(at)]; ok {
		return &t, nil
	}
	return nil, nil
}

func (f *fakeHistoryStore) LastExecutedForAsset(_ context.Context, assetID string, at domain.ActionType) (*time.Time, error) {
	if t, ok := f.lastByAsset[assetID+"|"+string(at)]; ok {
		return &t, nil
	}
	return nil, nil
}

type fakeProductStore struct {
	disabled []string
}

func (f *fakeProductStore) DisableProduct(_ context.Context, productID string) error {
	f.disabled = append(f.disabled, productID)
	return nil
}

type fakeProvider struct {
	snap metrics.Snapshot
	err  error
}

func (f *fakeProvider) Snapshot(_ context.Context, _ *domain.AdAsset, _ []metrics.Key) (metrics.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func (f *fakeProvider) BudgetStatus(_ context.Context, asset *domain.AdAsset) (*domain.BudgetStatus, error) {
	spent := f.snap["spend@today"]
	return &domain.BudgetStatus{
		CurrentDaily:   asset.CurrentBudget,
		Spent:          spent,
		RemainingDaily: asset.CurrentBudget - spent,
	}, nil
}

// fakeLock is a DistLock whose acquisition outcome is fixed.
type fakeLock struct {
	acquire  bool
	acquired int
	released int
}

func (l *fakeLock) Acquire(context.Context) (bool, error) {
	l.acquired++
	return l.acquire, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.released++
	return nil
}
