package models

import "time"

// Поддерживаемые провайдеры (биржи и paper trading)
const (
	ProviderCoinbase   = "coinbase"
	ProviderBinanceUS  = "binanceus"
	ProviderKraken     = "kraken"
	ProviderBybit      = "bybit"
	ProviderSimulation = "simulation"
)

// API-семейства провайдеров.
// У Coinbase два несовместимых поколения API с разными схемами подписи,
// поэтому провайдер и семейство хранятся отдельно.
const (
	FamilyLegacy   = "legacy"   // Coinbase Exchange (HMAC + passphrase)
	FamilyAdvanced = "advanced" // Coinbase Advanced Trade (JWT или OAuth bearer)
	FamilySpot     = "spot"     // Binance US, Kraken
	FamilyV5       = "v5"       // Bybit
	FamilyPaper    = "paper"    // Simulation
)

// Окружения подключения
const (
	EnvProduction = "prod"
	EnvSandbox    = "sandbox"
)

// Статусы подключения
const (
	ConnectionStatusConnected    = "connected"
	ConnectionStatusPendingOAuth = "pending_oauth" // OAuth flow начат, токен еще не получен
	ConnectionStatusError        = "error"         // биржа отклонила учетные данные
	ConnectionStatusDisabled     = "disabled"
)

// Connection представляет учетные данные пользователя для одного провайдера.
// Ключи хранятся только в зашифрованном виде и не сериализуются в JSON.
type Connection struct {
	ID          int    `json:"id" db:"id"`
	UserID      string `json:"user_id" db:"user_id"`
	Label       string `json:"label" db:"label"`
	Provider    string `json:"provider" db:"provider"`
	APIFamily   string `json:"api_family" db:"api_family"`
	Environment string `json:"environment" db:"environment"`

	APIKey      string `json:"-" db:"api_key"`      // зашифрован (vault envelope)
	SecretKey   string `json:"-" db:"secret_key"`   // зашифрован
	Passphrase  string `json:"-" db:"passphrase"`   // зашифрован, только coinbase legacy
	BearerToken string `json:"-" db:"bearer_token"` // зашифрован, только OAuth flow

	// Capability flags: что разрешено делать через это подключение
	CanRead             bool `json:"can_read" db:"can_read"`
	CanTradeSpot        bool `json:"can_trade_spot" db:"can_trade_spot"`
	CanTradeDerivatives bool `json:"can_trade_derivatives" db:"can_trade_derivatives"`
	CanWithdraw         bool `json:"can_withdraw" db:"can_withdraw"`
	CanOnchain          bool `json:"can_onchain" db:"can_onchain"`

	Status     string     `json:"status" db:"status"`
	LastError  string     `json:"last_error,omitempty" db:"last_error"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// IsSandbox возвращает true для sandbox-подключений
func (c *Connection) IsSandbox() bool {
	return c.Environment == EnvSandbox
}

// CanTrade возвращает true если подключение активно и позволяет торговать
func (c *Connection) CanTrade() bool {
	return c.Status == ConnectionStatusConnected && (c.CanTradeSpot || c.CanTradeDerivatives)
}
