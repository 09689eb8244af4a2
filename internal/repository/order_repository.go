package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradedesk/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrStaleTransition - условный UPDATE не нашел строку в ожидаемом
	// статусе: ордер уже переведен другим вызовом
	ErrStaleTransition = errors.New("order status transition is stale")
)

// OrderRepository - работа с таблицей orders
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, user_id, connection_id, idempotency_key, strategy_id,
	symbol, side, type, quantity, price, stop_price, user_initiated,
	status, exchange_order_id, reject_reason, failure_class, created_at, updated_at`

// Create создает запись об ордере в статусе pending
func (r *OrderRepository) Create(order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, connection_id, idempotency_key, strategy_id,
			symbol, side, type, quantity, price, stop_price, user_initiated,
			status, exchange_order_id, reject_reason, failure_class, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`

	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		order.UserID,
		order.ConnectionID,
		order.IdempotencyKey,
		order.StrategyID,
		order.Symbol,
		order.Side,
		order.Type,
		order.Quantity,
		order.Price,
		order.StopPrice,
		order.UserInitiated,
		order.Status,
		order.ExchangeOrderID,
		order.RejectReason,
		order.FailureClass,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&order.ID)

	if err != nil {
		return err
	}

	return nil
}

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.ConnectionID,
		&order.IdempotencyKey,
		&order.StrategyID,
		&order.Symbol,
		&order.Side,
		&order.Type,
		&order.Quantity,
		&order.Price,
		&order.StopPrice,
		&order.UserInitiated,
		&order.Status,
		&order.ExchangeOrderID,
		&order.RejectReason,
		&order.FailureClass,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id int) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// GetByIdempotencyKey возвращает ордер пользователя по ключу идемпотентности.
// Уникальный индекс (user_id, idempotency_key) гарантирует не больше одной строки.
func (r *OrderRepository) GetByIdempotencyKey(userID, key string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND idempotency_key = $2`

	order, err := scanOrder(r.db.QueryRow(query, userID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// GetByUserID возвращает последние ордера пользователя
func (r *OrderRepository) GetByUserID(userID string, limit int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.Query(query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// TransitionStatus переводит ордер из fromStatus в toStatus.
// UPDATE условный: строка меняется только если текущий статус совпадает
// с ожидаемым, что исключает гонку двух конкурентных переходов.
func (r *OrderRepository) TransitionStatus(id int, fromStatus, toStatus, exchangeOrderID string) error {
	query := `
		UPDATE orders
		SET status = $1, exchange_order_id = $2, updated_at = $3
		WHERE id = $4 AND status = $5`

	result, err := r.db.Exec(query, toStatus, exchangeOrderID, time.Now(), id, fromStatus)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrStaleTransition
	}

	return nil
}

// MarkFailed переводит pending-ордер в rejected с классом отказа и причиной
func (r *OrderRepository) MarkFailed(id int, failureClass, reason string) error {
	query := `
		UPDATE orders
		SET status = $1, failure_class = $2, reject_reason = $3, updated_at = $4
		WHERE id = $5 AND status = $6`

	result, err := r.db.Exec(query, models.OrderStatusRejected, failureClass, reason, time.Now(), id, models.OrderStatusPending)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrStaleTransition
	}

	return nil
}

// SumNotionalSince возвращает суммарный notional принятых ордеров
// в области действия лимита начиная с указанного момента.
//
// Считаются все ордера, дошедшие до биржи или ожидающие отправки:
// pending, open, filled. Отклоненные и отмененные не расходуют дневной бюджет.
// excludeOrderID исключает проверяемый ордер: его pending-строка записана
// до проверки лимитов и не должна учитываться в уже израсходованном бюджете.
// NULL в strategyID/connectionID означает "без фильтра по этой оси".
func (r *OrderRepository) SumNotionalSince(userID string, strategyID, connectionID *int, since time.Time, excludeOrderID int) (float64, error) {
	query := `
		SELECT COALESCE(SUM(quantity * price), 0)
		FROM orders
		WHERE user_id = $1
			AND id <> $2
			AND created_at >= $3
			AND status IN ($4, $5, $6)
			AND ($7::int IS NULL OR strategy_id = $7)
			AND ($8::int IS NULL OR connection_id = $8)`

	var total float64
	err := r.db.QueryRow(
		query,
		userID,
		excludeOrderID,
		since,
		models.OrderStatusPending,
		models.OrderStatusOpen,
		models.OrderStatusFilled,
		strategyID,
		connectionID,
	).Scan(&total)

	if err != nil {
		return 0, err
	}

	return total, nil
}

// CountByStatus возвращает количество ордеров пользователя в статусе
func (r *OrderRepository) CountByStatus(userID, status string) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = $2`

	var count int
	err := r.db.QueryRow(query, userID, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
