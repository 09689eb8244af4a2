package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"tradedesk/internal/models"
)

// ============================================================
// RiskLimitRepository Tests
// ============================================================

func TestRiskLimitRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	connID := 3
	limit := &models.RiskLimit{
		UserID:              "user-1",
		ConnectionID:        &connID,
		ExecutionMode:       models.ExecutionModeManual,
		MaxNotionalPerOrder: 500,
		MaxDailyNotional:    2000,
		AllowedSymbols:      pq.StringArray{"BTC-USD", "ETH-USD"},
	}

	mock.ExpectQuery(`INSERT INTO risk_limits`).
		WithArgs("user-1", (*int)(nil), 3, models.ExecutionModeManual,
			500.0, 2000.0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	repo := NewRiskLimitRepository(db)
	if err := repo.Create(limit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit.ID != 9 {
		t.Errorf("expected ID=9, got %d", limit.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRiskLimitRepositoryGetForUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "strategy_id", "connection_id", "execution_mode",
		"max_notional_per_order", "max_daily_notional", "allowed_symbols", "created_at", "updated_at",
	}).
		AddRow(1, "user-1", nil, nil, models.ExecutionModeManual, 1000.0, 5000.0, "{}", now, now).
		AddRow(2, "user-1", nil, 3, models.ExecutionModeAutoSandbox, 500.0, 2000.0, `{"BTC-USD"}`, now, now)

	mock.ExpectQuery(`SELECT .+ FROM risk_limits WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnRows(rows)

	repo := NewRiskLimitRepository(db)
	limits, err := repo.GetForUser("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limits) != 2 {
		t.Fatalf("expected 2 limits, got %d", len(limits))
	}
	if limits[0].ConnectionID != nil {
		t.Error("global limit must have nil connection id")
	}
	if limits[1].ConnectionID == nil || *limits[1].ConnectionID != 3 {
		t.Errorf("scoped limit connection id = %v, want 3", limits[1].ConnectionID)
	}
	if len(limits[1].AllowedSymbols) != 1 || limits[1].AllowedSymbols[0] != "BTC-USD" {
		t.Errorf("allowed symbols = %v", limits[1].AllowedSymbols)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRiskLimitRepositoryUpdate_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE risk_limits`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRiskLimitRepository(db)
	err = repo.Update(&models.RiskLimit{ID: 99, ExecutionMode: models.ExecutionModeDisabled})
	if !errors.Is(err, ErrRiskLimitNotFound) {
		t.Errorf("expected ErrRiskLimitNotFound, got %v", err)
	}
}

func TestRiskLimitRepositoryDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM risk_limits WHERE id = \$1`).
		WithArgs(9).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRiskLimitRepository(db)
	if err := repo.Delete(9); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
