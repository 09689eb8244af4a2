package exchange

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json - быстрый кодек для разбора ответов бирж
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultRequestTimeout - предельное время одного запроса к бирже.
// Запрос, не уложившийся в таймаут, считается неудачным (см. IsTimeout),
// но биржа могла его принять - поэтому таймаут отличим от отказа биржи.
const DefaultRequestTimeout = 10 * time.Second

// ExchangeClient определяет унифицированный интерфейс клиента биржи.
// Все варианты (включая simulation) используются downstream-кодом одинаково.
type ExchangeClient interface {
	// Provider возвращает имя провайдера
	Provider() string

	// GetBalances получает остатки по всем валютам аккаунта
	GetBalances(ctx context.Context) ([]Balance, error)

	// CreateOrder размещает ордер и возвращает подтверждение биржи
	CreateOrder(ctx context.Context, params OrderParams) (*OrderAck, error)

	// TestConnection выполняет низкопривилегированный read-запрос.
	// Возвращает false (не ошибку и не панику) при любом сбое
	// аутентификации или сети.
	TestConnection(ctx context.Context) bool
}

// Credentials - расшифрованные учетные данные для одного подключения.
// Живут только внутри вызова фабрики и клиента, в логи не попадают.
type Credentials struct {
	APIKey      string
	Secret      string
	Passphrase  string // только coinbase legacy
	BearerToken string // только OAuth flow (coinbase advanced)
}

// ClientConfig - нормализованная конфигурация подключения.
// Тройка (Provider, APIFamily, Environment) однозначно выбирает вариант
// клиента и его базовый URL.
type ClientConfig struct {
	Provider    string
	APIFamily   string
	Environment string // prod | sandbox
	Credentials Credentials
	Timeout     time.Duration // 0 = DefaultRequestTimeout
}

func (c ClientConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultRequestTimeout
}

// Balance - остаток по одной валюте
type Balance struct {
	Currency  string  `json:"currency"`
	Total     float64 `json:"total"`
	Available float64 `json:"available"`
}

// OrderParams - параметры размещения ордера в терминах биржи
type OrderParams struct {
	ClientOrderID string  // идемпотентный id на стороне биржи (где поддерживается)
	Symbol        string
	Side          string // buy | sell
	Type          string // market | limit | stop_limit
	Quantity      float64
	Price         float64 // для limit
	StopPrice     float64 // для stop_limit
}

// OrderAck - подтверждение приема ордера биржей
type OrderAck struct {
	ExchangeOrderID string `json:"exchange_order_id"`
	Status          string `json:"status,omitempty"` // статус в терминах биржи, как есть
}
