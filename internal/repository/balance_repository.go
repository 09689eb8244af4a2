package repository

import (
	"database/sql"
	"time"

	"tradedesk/internal/models"
)

// BalanceRepository - работа с таблицей balances.
// Строки пишутся только аддитивным upsert'ом: сверка обновляет известные
// валюты и добавляет новые, но никогда не удаляет строки. Валюта, которую
// биржа перестала отдавать, сохраняет последнее известное значение.
type BalanceRepository struct {
	db *sql.DB
}

// NewBalanceRepository создает новый экземпляр репозитория
func NewBalanceRepository(db *sql.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Upsert вставляет или обновляет баланс валюты для подключения
func (r *BalanceRepository) Upsert(balance *models.Balance) error {
	query := `
		INSERT INTO balances (user_id, connection_id, currency, total, available, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, connection_id, currency)
		DO UPDATE SET total = $4, available = $5, synced_at = $6
		RETURNING id`

	if balance.SyncedAt.IsZero() {
		balance.SyncedAt = time.Now()
	}

	err := r.db.QueryRow(
		query,
		balance.UserID,
		balance.ConnectionID,
		balance.Currency,
		balance.Total,
		balance.Available,
		balance.SyncedAt,
	).Scan(&balance.ID)

	if err != nil {
		return err
	}

	return nil
}

func scanBalance(row interface{ Scan(...interface{}) error }) (*models.Balance, error) {
	balance := &models.Balance{}
	err := row.Scan(
		&balance.ID,
		&balance.UserID,
		&balance.ConnectionID,
		&balance.Currency,
		&balance.Total,
		&balance.Available,
		&balance.SyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return balance, nil
}

const balanceColumns = `id, user_id, connection_id, currency, total, available, synced_at`

// GetByConnection возвращает балансы подключения
func (r *BalanceRepository) GetByConnection(connectionID int) ([]*models.Balance, error) {
	query := `SELECT ` + balanceColumns + ` FROM balances WHERE connection_id = $1 ORDER BY currency`

	rows, err := r.db.Query(query, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []*models.Balance
	for rows.Next() {
		balance, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, balance)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return balances, nil
}

// GetByUserID возвращает балансы пользователя по всем подключениям
func (r *BalanceRepository) GetByUserID(userID string) ([]*models.Balance, error) {
	query := `SELECT ` + balanceColumns + ` FROM balances WHERE user_id = $1 ORDER BY connection_id, currency`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []*models.Balance
	for rows.Next() {
		balance, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, balance)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return balances, nil
}

// DeleteByConnection удаляет балансы при удалении подключения
func (r *BalanceRepository) DeleteByConnection(connectionID int) error {
	query := `DELETE FROM balances WHERE connection_id = $1`

	_, err := r.db.Exec(query, connectionID)
	return err
}
