package models

import (
	"time"

	"github.com/lib/pq"
)

// Режимы исполнения.
// Определяют, какие ордера вообще могут дойти до биржи.
const (
	ExecutionModeManual      = "manual"       // только ордера, размещенные пользователем вручную
	ExecutionModeAutoSandbox = "auto_sandbox" // автоматика разрешена только на sandbox-подключениях
	ExecutionModeAutoProd    = "auto_prod"    // автоматика разрешена и на production
	ExecutionModeDisabled    = "disabled"     // любые ордера запрещены
)

// RiskLimit - лимиты пользователя на исполнение ордеров.
//
// Область действия задается парой (StrategyID, ConnectionID):
// оба nil = глобальный лимит пользователя. При нескольких подходящих
// лимитах выбирается самый специфичный (см. Specificity).
type RiskLimit struct {
	ID           int    `json:"id" db:"id"`
	UserID       string `json:"user_id" db:"user_id"`
	StrategyID   *int   `json:"strategy_id,omitempty" db:"strategy_id"`
	ConnectionID *int   `json:"connection_id,omitempty" db:"connection_id"`

	ExecutionMode       string  `json:"execution_mode" db:"execution_mode"` // обязателен
	MaxNotionalPerOrder float64 `json:"max_notional_per_order" db:"max_notional_per_order"` // 0 = без лимита
	MaxDailyNotional    float64 `json:"max_daily_notional" db:"max_daily_notional"`         // 0 = без лимита

	// AllowedSymbols - whitelist символов. Пустой список = любые символы.
	AllowedSymbols pq.StringArray `json:"allowed_symbols" db:"allowed_symbols"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Specificity возвращает вес области действия лимита:
// strategy+connection (3) > connection (2) > strategy (1) > global (0).
// Используется для детерминированного выбора самого специфичного лимита.
func (l *RiskLimit) Specificity() int {
	score := 0
	if l.StrategyID != nil {
		score++
	}
	if l.ConnectionID != nil {
		score += 2
	}
	return score
}

// Matches проверяет, применим ли лимит к ордеру на данном подключении
func (l *RiskLimit) Matches(strategyID *int, connectionID int) bool {
	if l.ConnectionID != nil && *l.ConnectionID != connectionID {
		return false
	}
	if l.StrategyID != nil {
		if strategyID == nil || *l.StrategyID != *strategyID {
			return false
		}
	}
	return true
}

// AllowsSymbol проверяет символ по whitelist (пустой = без ограничений)
func (l *RiskLimit) AllowsSymbol(symbol string) bool {
	if len(l.AllowedSymbols) == 0 {
		return true
	}
	for _, s := range l.AllowedSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}
