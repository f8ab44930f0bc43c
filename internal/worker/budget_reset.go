package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/adscale/internal/adplatform"
	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/engine"
)

// DefaultResetPollInterval is how often the worker checks for due resets.
const DefaultResetPollInterval = time.Minute

// ResetAssetStore is the asset access the reset worker needs.
type ResetAssetStore interface {
	// ListWithResetPolicy returns active assets carrying a daily-reset policy.
	ListWithResetPolicy(ctx context.Context) ([]domain.AdAsset, error)

	// AdjustBudget applies the compare-and-swap budget update with its audit
	// row, same contract as engine.AssetStore.
	AdjustBudget(ctx context.Context, assetID string, budgetBefore, budgetAfter float64, rec *domain.HistoryRecord) error
}

// ResetStore persists reset events and answers idempotency checks.
type ResetStore interface {
	Insert(ctx context.Context, reset *domain.BudgetReset) (alreadyDone bool, err error)
	WasResetOn(ctx context.Context, assetID, resetDate string) (bool, error)
}

// BudgetResetWorker restores each asset's budget to its configured
// auto_reset_budget once per asset-local day, at the asset's reset_time.
// One reset per (asset, local date); the ad_budget_resets unique index plus
// WasResetOn make restarts and multiple instances idempotent.
type BudgetResetWorker struct {
	assets   ResetAssetStore
	resets   ResetStore
	platform adplatform.Client

	pollInterval time.Duration
	now          func() time.Time

	// Stats
	resetsApplied int64
	errors        int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewBudgetResetWorker creates a budget reset worker.
func NewBudgetResetWorker(assets ResetAssetStore, resets ResetStore, platform adplatform.Client) *BudgetResetWorker {
	return &BudgetResetWorker{
		assets:       assets,
		resets:       resets,
		platform:     platform,
		pollInterval: DefaultResetPollInterval,
		now:          time.Now,
	}
}

// SetPollInterval overrides the default poll interval. Must be called
// before Start.
func (w *BudgetResetWorker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// Start begins the reset polling loop.
func (w *BudgetResetWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("budget reset worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	log.Printf("[BudgetReset] Starting with poll interval: %v", w.pollInterval)

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop gracefully stops the worker.
func (w *BudgetResetWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	log.Printf("[BudgetReset] Stopping...")
	w.cancel()
	w.wg.Wait()
	log.Printf("[BudgetReset] Stopped. Resets applied: %d, Errors: %d",
		atomic.LoadInt64(&w.resetsApplied), atomic.LoadInt64(&w.errors))
}

func (w *BudgetResetWorker) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processDueResets(w.ctx)
		}
	}
}

// processDueResets scans reset-enabled assets and applies any reset whose
// asset-local reset time has passed today.
func (w *BudgetResetWorker) processDueResets(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, w.pollInterval)
	defer cancel()

	assets, err := w.assets.ListWithResetPolicy(ctx)
	if err != nil {
		log.Printf("[BudgetReset] Error listing assets: %v", err)
		atomic.AddInt64(&w.errors, 1)
		return
	}

	for i := range assets {
		if ctx.Err() != nil {
			return
		}
		asset := &assets[i]

		due, resetDate, err := w.isDue(ctx, asset)
		if err != nil {
			log.Printf("[BudgetReset] Asset %s: %v", asset.ID, err)
			atomic.AddInt64(&w.errors, 1)
			continue
		}
		if !due {
			continue
		}

		if err := w.applyReset(ctx, asset, resetDate); err != nil {
			log.Printf("[BudgetReset] Asset %s reset failed: %v", asset.ID, err)
			atomic.AddInt64(&w.errors, 1)
		}
	}
}

// isDue reports whether the asset's local reset moment has passed today and
// no reset has been recorded for the local date yet.
func (w *BudgetResetWorker) isDue(ctx context.Context, asset *domain.AdAsset) (bool, string, error) {
	local := asset.LocalNow(w.now())
	resetDate := local.Format("2006-01-02")

	at, err := time.ParseInLocation("15:04", asset.ResetTime, local.Location())
	if err != nil {
		return false, "", fmt.Errorf("bad reset_time %q: %w", asset.ResetTime, err)
	}
	resetMoment := time.Date(local.Year(), local.Month(), local.Day(),
		at.Hour(), at.Minute(), 0, 0, local.Location())
	if local.Before(resetMoment) {
		return false, "", nil
	}

	done, err := w.resets.WasResetOn(ctx, asset.ID, resetDate)
	if err != nil {
		return false, "", err
	}
	return !done, resetDate, nil
}

// applyReset pushes the reset budget to the platform, applies the
// compare-and-swap with its audit row, then records the reset event.
func (w *BudgetResetWorker) applyReset(ctx context.Context, asset *domain.AdAsset, resetDate string) error {
	target := *asset.AutoResetBudget
	if target == asset.CurrentBudget {
		// Nothing moved the budget today. Record the event so the asset is
		// not re-checked every minute for the rest of the local day.
		_, err := w.resets.Insert(ctx, &domain.BudgetReset{
			AdAssetID:    asset.ID,
			ResetDate:    resetDate,
			BudgetBefore: asset.CurrentBudget,
			BudgetAfter:  asset.CurrentBudget,
		})
		return err
	}

	confirmed, err := w.platform.UpdateBudget(ctx, asset, target)
	if err != nil {
		return fmt.Errorf("platform budget update: %w", err)
	}

	rec := &domain.HistoryRecord{
		ID:             uuid.New().String(),
		AdAssetID:      asset.ID,
		UserID:         asset.UserID,
		ActionType:     domain.ActionBudgetReset,
		ActionExecuted: true,
		ActionResult: domain.ActionResult{
			BudgetBefore: asset.CurrentBudget,
			BudgetAfter:  confirmed,
			Change:       confirmed - asset.CurrentBudget,
		},
		ExecutionSource: domain.SourceAuto,
		Reason:          "daily_reset",
		ExecutedAt:      w.now(),
	}

	if err := w.assets.AdjustBudget(ctx, asset.ID, asset.CurrentBudget, confirmed, rec); err != nil {
		if errors.Is(err, engine.ErrBudgetConflict) {
			// Something else moved the budget between our read and the CAS;
			// the next poll re-reads and retries.
			log.Printf("[BudgetReset] Asset %s: budget moved concurrently, retrying next poll", asset.ID)
			return nil
		}
		return err
	}

	alreadyDone, err := w.resets.Insert(ctx, &domain.BudgetReset{
		AdAssetID:    asset.ID,
		ResetDate:    resetDate,
		BudgetBefore: rec.ActionResult.BudgetBefore,
		BudgetAfter:  confirmed,
	})
	if err != nil {
		return fmt.Errorf("record reset: %w", err)
	}
	if !alreadyDone {
		atomic.AddInt64(&w.resetsApplied, 1)
		log.Printf("[BudgetReset] Asset %s reset %.2f -> %.2f (%s)",
			asset.ID, rec.ActionResult.BudgetBefore, confirmed, resetDate)
	}
	return nil
}
