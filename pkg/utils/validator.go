package utils

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// validator.go - валидация входных данных ордеров
//
// Проверки выполняются ДО обращения к risk-лимитам и бирже:
// невалидный запрос отклоняется без сетевых вызовов.

// Символ: буквы/цифры, опциональный разделитель - или /
// Примеры: BTCUSDT, BTC-USD, XBT/USD
var symbolRe = regexp.MustCompile(`^[A-Z0-9]{2,12}([-/][A-Z0-9]{2,12})?$`)

// ValidateSymbol проверяет формат торгового символа
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !symbolRe.MatchString(strings.ToUpper(symbol)) {
		return fmt.Errorf("invalid symbol format: %q", symbol)
	}
	return nil
}

// ValidateSide проверяет сторону ордера
func ValidateSide(side string) error {
	switch side {
	case "buy", "sell":
		return nil
	default:
		return fmt.Errorf("invalid side: %q (want buy or sell)", side)
	}
}

// ValidateOrderType проверяет тип ордера
func ValidateOrderType(orderType string) error {
	switch orderType {
	case "market", "limit", "stop_limit":
		return nil
	default:
		return fmt.Errorf("invalid order type: %q (want market, limit or stop_limit)", orderType)
	}
}

// ValidateQuantity проверяет объём ордера
func ValidateQuantity(quantity float64) error {
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		return fmt.Errorf("quantity must be a finite number")
	}
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", quantity)
	}
	return nil
}

// ValidatePrice проверяет цену лимитного ордера
func ValidatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("price must be a finite number")
	}
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %v", price)
	}
	return nil
}

// ValidateIdempotencyKey проверяет ключ идемпотентности
// Пустой ключ допустим: сервер сгенерирует свой
func ValidateIdempotencyKey(key string) error {
	if len(key) > 64 {
		return fmt.Errorf("idempotency key too long: %d chars (max 64)", len(key))
	}
	return nil
}
