package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/adscale/internal/domain"
	"github.com/lib/pq"
)

func TestHistoryRepoInsert(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ad_auto_scale_history").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewHistoryRepo(db)
	if err := repo.Insert(context.Background(), historyRecord("a1")); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestHistoryRepoLastExecuted(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	when := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT executed_at FROM ad_auto_scale_history").
		WithArgs("r1", "increase_budget").
		WillReturnRows(sqlmock.NewRows([]string{"executed_at"}).AddRow(when))

	repo := NewHistoryRepo(db)
	got, err := repo.LastExecuted(context.Background(), "r1", domain.ActionIncreaseBudget)
	if err != nil {
		t.Fatalf("LastExecuted() error: %v", err)
	}
	if got == nil || !got.Equal(when) {
		t.Errorf("last = %v, want %v", got, when)
	}
}

func TestHistoryRepoLastExecutedNever(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT executed_at FROM ad_auto_scale_history").
		WithArgs("r1", "pause").
		WillReturnError(sql.ErrNoRows)

	repo := NewHistoryRepo(db)
	got, err := repo.LastExecuted(context.Background(), "r1", domain.ActionPause)
	if err != nil {
		t.Fatalf("LastExecuted() error: %v", err)
	}
	if got != nil {
		t.Errorf("last = %v, want nil for no prior execution", got)
	}
}

func TestHistoryRepoListBudgetChanges(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	ruleID := "r1"
	when := time.Now()
	mock.ExpectQuery("SELECT h.id, h.rule_id, COALESCE").
		WithArgs("a1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "rule_id", "name", "action_type", "action_result", "executed_at"}).
			AddRow("h1", ruleID, "scale up", "increase_budget",
				[]byte(`{"budget_before":100,"budget_after":120,"change":20}`), when).
			AddRow("h2", nil, "", "manual_adjust",
				[]byte(`{"budget_before":120,"budget_after":90,"change":-30}`), when))

	repo := NewHistoryRepo(db)
	changes, err := repo.ListBudgetChanges(context.Background(), "a1", when.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ListBudgetChanges() error: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(changes))
	}
	if changes[0].BudgetChange != 20 || changes[0].RuleName != "scale up" {
		t.Errorf("change[0] = %+v", changes[0])
	}
	if changes[1].RuleID != nil || changes[1].BudgetChange != -30 {
		t.Errorf("manual change = %+v", changes[1])
	}
}

func TestHistoryRepoListBefore(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	cutoff := time.Now().AddDate(0, 0, -90)
	cols := []string{"id", "rule_id", "ad_assets_id", "user_id", "action_type", "action_executed",
		"action_result", "conditions_result", "execution_source", "reason", "executed_at"}
	mock.ExpectQuery("SELECT (.+) FROM ad_auto_scale_history.*WHERE executed_at <").
		WithArgs(cutoff, 100).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("h1", "r1", "a1", "u1", "pause", true,
				[]byte(`{"budget_before":50,"budget_after":50,"change":0}`),
				[]byte(`{"logic":"and_or_and","fired_block":0,"blocks":[]}`),
				"auto", "", cutoff.Add(-time.Hour)).
			AddRow("h2", nil, "a1", "u1", "manual_adjust", true,
				[]byte(`{"budget_before":50,"budget_after":70,"change":20}`),
				nil, "manual", "bump", cutoff.Add(-time.Minute)))

	repo := NewHistoryRepo(db)
	recs, err := repo.ListBefore(context.Background(), cutoff, 100)
	if err != nil {
		t.Fatalf("ListBefore() error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].ConditionsResult == nil || recs[0].ConditionsResult.FiredBlock != 0 {
		t.Errorf("conditions_result = %+v", recs[0].ConditionsResult)
	}
	if recs[1].ConditionsResult != nil {
		t.Error("manual row should have no conditions_result")
	}
	if recs[1].Reason != "bump" {
		t.Errorf("reason = %q", recs[1].Reason)
	}
}

func TestHistoryRepoDeleteByIDs(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM ad_auto_scale_history WHERE id = ANY").
		WithArgs(pq.Array([]string{"h1", "h2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewHistoryRepo(db)
	n, err := repo.DeleteByIDs(context.Background(), []string{"h1", "h2"})
	if err != nil {
		t.Fatalf("DeleteByIDs() error: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
}

func TestHistoryRepoDeleteByIDsEmpty(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewHistoryRepo(db)
	n, err := repo.DeleteByIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("DeleteByIDs() error: %v", err)
	}
	if n != 0 {
		t.Errorf("deleted = %d, want 0", n)
	}
	// No statement reaches the database for an empty batch.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
