package websocket

import (
	"time"

	"tradedesk/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeOrderUpdate - изменение статуса ордера.
	// Отправляется на каждый переход жизненного цикла:
	// pending → open → filled/cancelled/rejected.
	MessageTypeOrderUpdate MessageType = "orderUpdate"

	// MessageTypeBalanceSync - завершение сверки балансов подключения
	MessageTypeBalanceSync MessageType = "balanceSync"

	// MessageTypeConnectionStatus - изменение статуса подключения
	// (например, биржа отклонила учетные данные)
	MessageTypeConnectionStatus MessageType = "connectionStatus"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// OrderUpdateMessage - сообщение об изменении статуса ордера.
// Поле Data сериализуется через json-теги модели: зашифрованных
// или чувствительных полей в Order нет.
type OrderUpdateMessage struct {
	BaseMessage
	Data *models.Order `json:"data"`
}

// BalanceSyncMessage - сообщение о завершенной сверке балансов
type BalanceSyncMessage struct {
	BaseMessage
	ConnectionID int `json:"connection_id"`
	Currencies   int `json:"currencies"` // количество обновленных валют
}

// ConnectionStatusMessage - сообщение об изменении статуса подключения
type ConnectionStatusMessage struct {
	BaseMessage
	ConnectionID int    `json:"connection_id"`
	Status       string `json:"status"`
	LastError    string `json:"last_error,omitempty"`
}

// NewOrderUpdateMessage создает сообщение обновления ордера
func NewOrderUpdateMessage(order *models.Order) *OrderUpdateMessage {
	return &OrderUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeOrderUpdate,
			Timestamp: time.Now(),
		},
		Data: order,
	}
}

// NewBalanceSyncMessage создает сообщение о сверке балансов
func NewBalanceSyncMessage(connectionID, currencies int) *BalanceSyncMessage {
	return &BalanceSyncMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeBalanceSync,
			Timestamp: time.Now(),
		},
		ConnectionID: connectionID,
		Currencies:   currencies,
	}
}

// NewConnectionStatusMessage создает сообщение о статусе подключения
func NewConnectionStatusMessage(connectionID int, status, lastError string) *ConnectionStatusMessage {
	return &ConnectionStatusMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeConnectionStatus,
			Timestamp: time.Now(),
		},
		ConnectionID: connectionID,
		Status:       status,
		LastError:    lastError,
	}
}
