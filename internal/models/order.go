package models

import "time"

// Статусы ордера.
// Жизненный цикл движется только вперед: pending → open → терминальный.
const (
	OrderStatusPending   = "pending"   // записан в БД, биржа еще не вызвана
	OrderStatusOpen      = "open"      // биржа подтвердила, exchange_order_id присвоен
	OrderStatusFilled    = "filled"    // терминальный
	OrderStatusCancelled = "cancelled" // терминальный
	OrderStatusRejected  = "rejected"  // терминальный (risk gate, валидация или биржа)
)

// Стороны ордера
const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

// Типы ордера
const (
	OrderTypeMarket    = "market"
	OrderTypeLimit     = "limit"
	OrderTypeStopLimit = "stop_limit"
)

// Классы отказа: различают "до биржи не дошло", "биржа отклонила"
// и "неизвестно из-за таймаута" (биржа могла принять ордер).
const (
	FailureRiskDenied       = "risk_denied"
	FailureValidation       = "validation"
	FailureExchangeRejected = "exchange_rejected"
	FailureTimeout          = "timeout"
	FailureAuth             = "auth"
	FailureNetwork          = "network"
)

// Order представляет запись об ордере.
// Создается в статусе pending ДО любого сетевого вызова, поэтому каждая
// попытка исполнения остается в журнале даже при падении процесса.
type Order struct {
	ID             int    `json:"id" db:"id"`
	UserID         string `json:"user_id" db:"user_id"`
	ConnectionID   int    `json:"connection_id" db:"connection_id"`
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`
	StrategyID     *int   `json:"strategy_id,omitempty" db:"strategy_id"`

	Symbol    string  `json:"symbol" db:"symbol"`
	Side      string  `json:"side" db:"side"`
	Type      string  `json:"type" db:"type"`
	Quantity  float64 `json:"quantity" db:"quantity"`
	Price     float64 `json:"price,omitempty" db:"price"`           // 0 для market без reference price
	StopPrice float64 `json:"stop_price,omitempty" db:"stop_price"` // только stop_limit

	// UserInitiated отличает ручной ордер от автоматического (стратегия).
	// Execution mode в RiskLimit трактует их по-разному.
	UserInitiated bool `json:"user_initiated" db:"user_initiated"`

	Status          string `json:"status" db:"status"`
	ExchangeOrderID string `json:"exchange_order_id,omitempty" db:"exchange_order_id"`
	RejectReason    string `json:"reject_reason,omitempty" db:"reject_reason"`
	FailureClass    string `json:"failure_class,omitempty" db:"failure_class"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Notional возвращает долларовую экспозицию ордера (количество × цена)
func (o *Order) Notional() float64 {
	return o.Quantity * o.Price
}

// IsTerminal возвращает true для конечных статусов
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled ||
		o.Status == OrderStatusCancelled ||
		o.Status == OrderStatusRejected
}

// OrderRequest - входные параметры размещения ордера
type OrderRequest struct {
	IdempotencyKey string  `json:"idempotency_key"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Type           string  `json:"type"`
	Quantity       float64 `json:"quantity"`
	Price          float64 `json:"price,omitempty"`
	StopPrice      float64 `json:"stop_price,omitempty"`
	UserInitiated  bool    `json:"user_initiated"`
	StrategyID     *int    `json:"strategy_id,omitempty"`
}

// Notional возвращает долларовую экспозицию запроса
func (r *OrderRequest) Notional() float64 {
	return r.Quantity * r.Price
}
