package trading

import (
	"context"
	"time"

	"tradedesk/internal/exchange"
	"tradedesk/internal/models"
)

// OrderRepositoryInterface определяет интерфейс репозитория ордеров
type OrderRepositoryInterface interface {
	Create(order *models.Order) error
	GetByID(id int) (*models.Order, error)
	GetByIdempotencyKey(userID, key string) (*models.Order, error)
	TransitionStatus(id int, fromStatus, toStatus, exchangeOrderID string) error
	MarkFailed(id int, failureClass, reason string) error
	SumNotionalSince(userID string, strategyID, connectionID *int, since time.Time, excludeOrderID int) (float64, error)
}

// RiskLimitRepositoryInterface определяет интерфейс репозитория risk-лимитов
type RiskLimitRepositoryInterface interface {
	GetForUser(userID string) ([]*models.RiskLimit, error)
}

// ConnectionRepositoryInterface определяет интерфейс репозитория подключений
type ConnectionRepositoryInterface interface {
	GetByID(id int) (*models.Connection, error)
	GetActive() ([]*models.Connection, error)
	UpdateStatus(id int, status, lastError string) error
	SetLastSync(id int, syncedAt time.Time) error
}

// BalanceRepositoryInterface определяет интерфейс репозитория балансов
type BalanceRepositoryInterface interface {
	Upsert(balance *models.Balance) error
}

// ClientResolver выдает готового клиента биржи для подключения:
// загружает запись, расшифровывает секреты и собирает клиента через фабрику
type ClientResolver interface {
	ResolveClient(ctx context.Context, connectionID int) (exchange.ExchangeClient, *models.Connection, error)
}

// Broadcaster рассылает события жизненного цикла подписчикам WebSocket
type Broadcaster interface {
	BroadcastOrderUpdate(order *models.Order)
	BroadcastBalanceSync(userID string, connectionID, currencies int)
}
