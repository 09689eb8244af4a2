package trading

import "tradedesk/internal/models"

// ValidTransitions определяет допустимые переходы между статусами ордера.
// Жизненный цикл движется только вперед: из терминальных статусов
// (filled, cancelled, rejected) переходов нет.
var ValidTransitions = map[string][]string{
	models.OrderStatusPending: {models.OrderStatusOpen, models.OrderStatusRejected, models.OrderStatusFilled},
	models.OrderStatusOpen:    {models.OrderStatusFilled, models.OrderStatusCancelled, models.OrderStatusRejected},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StatusInfo возвращает описание статуса для UI
func StatusInfo(s string) string {
	switch s {
	case models.OrderStatusPending:
		return "Ордер записан, отправка на биржу..."
	case models.OrderStatusOpen:
		return "Ордер принят биржей"
	case models.OrderStatusFilled:
		return "Ордер исполнен"
	case models.OrderStatusCancelled:
		return "Ордер отменен"
	case models.OrderStatusRejected:
		return "Ордер отклонен"
	default:
		return "Неизвестный статус"
	}
}
