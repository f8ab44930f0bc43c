package worker

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/adscale/internal/adplatform"
	"github.com/ignite/adscale/internal/domain"
	"github.com/ignite/adscale/internal/engine"
	"github.com/ignite/adscale/internal/metrics"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

// Minimal engine stores for scheduler tests; the pass itself is exercised in
// the engine package.

type noRules struct{}

func (noRules) ListActive(context.Context, string) ([]domain.Rule, error) { return nil, nil }
func (noRules) Get(context.Context, string) (*domain.Rule, error) {
	return nil, engine.ErrRuleNotFound
}

type noAssets struct{}

func (noAssets) Get(context.Context, string) (*domain.AdAsset, error) {
	return nil, engine.ErrAssetNotFound
}
func (noAssets) AdjustBudget(context.Context, string, float64, float64, *domain.HistoryRecord) error {
	return nil
}

type noHistory struct{}

func (noHistory) Insert(context.Context, *domain.HistoryRecord) error { return nil }
func (noHistory) LastExecuted(context.Context, string, domain.ActionType) (*time.Time, error) {
	return nil, nil
}
func (noHistory) LastExecutedForAsset(context.Context, string, domain.ActionType) (*time.Time, error) {
	return nil, nil
}

type noProducts struct{}

func (noProducts) DisableProduct(context.Context, string) error { return nil }

type noMetrics struct{}

func (noMetrics) Snapshot(context.Context, *domain.AdAsset, []metrics.Key) (metrics.Snapshot, error) {
	return metrics.Snapshot{}, nil
}
func (noMetrics) BudgetStatus(context.Context, *domain.AdAsset) (*domain.BudgetStatus, error) {
	return &domain.BudgetStatus{}, nil
}

func emptyEngine() *engine.Engine {
	exec := engine.NewExecutor(&adplatform.Fake{}, noAssets{}, noHistory{}, noProducts{}, noMetrics{})
	return engine.New(noRules{}, noAssets{}, noMetrics{}, exec, nil)
}

func TestSchedulerRunOncePGLock(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WillReturnResult(sqlmock.NewResult(0, 1))

	es := NewEngineScheduler(emptyEngine(), db, time.Minute)
	es.RunOnce(context.Background())

	if got := atomic.LoadInt64(&es.passes); got != 1 {
		t.Errorf("passes = %d, want 1", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSchedulerRunOnceSkipsWhenLocked(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// Another instance holds the run lock.
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	es := NewEngineScheduler(emptyEngine(), db, time.Minute)
	es.RunOnce(context.Background())

	if got := atomic.LoadInt64(&es.passes); got != 0 {
		t.Errorf("passes = %d, want 0 when the lock is held elsewhere", got)
	}
	if got := atomic.LoadInt64(&es.errors); got != 0 {
		t.Errorf("errors = %d, a held lock is not an error", got)
	}
}

func TestSchedulerDefaultInterval(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	es := NewEngineScheduler(emptyEngine(), db, 0)
	if es.interval != DefaultEngineInterval {
		t.Errorf("interval = %v, want %v", es.interval, DefaultEngineInterval)
	}
}
