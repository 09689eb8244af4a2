package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"tradedesk/internal/models"
)

// ============================================================
// BalanceRepository Tests
// ============================================================

func TestBalanceRepositoryUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	syncedAt := time.Now()
	balance := &models.Balance{
		UserID:       "user-1",
		ConnectionID: 3,
		Currency:     "BTC",
		Total:        1.25,
		Available:    1.0,
		SyncedAt:     syncedAt,
	}

	mock.ExpectQuery(`INSERT INTO balances .+ ON CONFLICT`).
		WithArgs("user-1", 3, "BTC", 1.25, 1.0, syncedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	repo := NewBalanceRepository(db)
	if err := repo.Upsert(balance); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.ID != 11 {
		t.Errorf("expected ID=11, got %d", balance.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestBalanceRepositoryGetByConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "connection_id", "currency", "total", "available", "synced_at"}).
		AddRow(1, "user-1", 3, "BTC", 1.25, 1.0, now).
		AddRow(2, "user-1", 3, "USD", 5000.0, 4500.0, now)

	mock.ExpectQuery(`SELECT .+ FROM balances WHERE connection_id = \$1`).
		WithArgs(3).
		WillReturnRows(rows)

	repo := NewBalanceRepository(db)
	balances, err := repo.GetByConnection(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(balances))
	}
	if balances[0].Currency != "BTC" || balances[1].Currency != "USD" {
		t.Errorf("unexpected balances: %+v", balances)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestBalanceRepositoryDeleteByConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM balances WHERE connection_id = \$1`).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 4))

	repo := NewBalanceRepository(db)
	if err := repo.DeleteByConnection(3); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
