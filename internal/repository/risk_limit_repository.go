package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradedesk/internal/models"
)

// Ошибки репозитория risk-лимитов
var (
	ErrRiskLimitNotFound = errors.New("risk limit not found")
)

// RiskLimitRepository - работа с таблицей risk_limits
type RiskLimitRepository struct {
	db *sql.DB
}

// NewRiskLimitRepository создает новый экземпляр репозитория
func NewRiskLimitRepository(db *sql.DB) *RiskLimitRepository {
	return &RiskLimitRepository{db: db}
}

const riskLimitColumns = `id, user_id, strategy_id, connection_id, execution_mode,
	max_notional_per_order, max_daily_notional, allowed_symbols, created_at, updated_at`

// Create создает лимит и возвращает его ID
func (r *RiskLimitRepository) Create(limit *models.RiskLimit) error {
	query := `
		INSERT INTO risk_limits (user_id, strategy_id, connection_id, execution_mode,
			max_notional_per_order, max_daily_notional, allowed_symbols, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	now := time.Now()
	limit.CreatedAt = now
	limit.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		limit.UserID,
		limit.StrategyID,
		limit.ConnectionID,
		limit.ExecutionMode,
		limit.MaxNotionalPerOrder,
		limit.MaxDailyNotional,
		limit.AllowedSymbols,
		limit.CreatedAt,
		limit.UpdatedAt,
	).Scan(&limit.ID)

	if err != nil {
		return err
	}

	return nil
}

func scanRiskLimit(row interface{ Scan(...interface{}) error }) (*models.RiskLimit, error) {
	limit := &models.RiskLimit{}
	err := row.Scan(
		&limit.ID,
		&limit.UserID,
		&limit.StrategyID,
		&limit.ConnectionID,
		&limit.ExecutionMode,
		&limit.MaxNotionalPerOrder,
		&limit.MaxDailyNotional,
		&limit.AllowedSymbols,
		&limit.CreatedAt,
		&limit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return limit, nil
}

// GetByID возвращает лимит по ID
func (r *RiskLimitRepository) GetByID(id int) (*models.RiskLimit, error) {
	query := `SELECT ` + riskLimitColumns + ` FROM risk_limits WHERE id = $1`

	limit, err := scanRiskLimit(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRiskLimitNotFound
		}
		return nil, err
	}

	return limit, nil
}

// GetForUser возвращает все лимиты пользователя.
// Выбор наиболее специфичного лимита для ордера выполняет risk gate.
func (r *RiskLimitRepository) GetForUser(userID string) ([]*models.RiskLimit, error) {
	query := `SELECT ` + riskLimitColumns + ` FROM risk_limits WHERE user_id = $1 ORDER BY id`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var limits []*models.RiskLimit
	for rows.Next() {
		limit, err := scanRiskLimit(rows)
		if err != nil {
			return nil, err
		}
		limits = append(limits, limit)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return limits, nil
}

// Update обновляет параметры лимита
func (r *RiskLimitRepository) Update(limit *models.RiskLimit) error {
	query := `
		UPDATE risk_limits
		SET execution_mode = $1, max_notional_per_order = $2, max_daily_notional = $3,
			allowed_symbols = $4, updated_at = $5
		WHERE id = $6`

	limit.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		query,
		limit.ExecutionMode,
		limit.MaxNotionalPerOrder,
		limit.MaxDailyNotional,
		limit.AllowedSymbols,
		limit.UpdatedAt,
		limit.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrRiskLimitNotFound
	}

	return nil
}

// Delete удаляет лимит
func (r *RiskLimitRepository) Delete(id int) error {
	query := `DELETE FROM risk_limits WHERE id = $1`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrRiskLimitNotFound
	}

	return nil
}
