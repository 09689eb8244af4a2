package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Vault      VaultConfig
	Executor   ExecutorConfig
	Reconciler ReconcilerConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// VaultConfig - ключевой материал для шифрования секретов подключений.
// PreviousKey нужен только в период ротации: данные старой версии
// читаются им, новые шифруются текущим ключом.
type VaultConfig struct {
	Key         string
	PreviousKey string
	KeyVersion  int
}

// ExecutorConfig - настройки пайплайна исполнения ордеров
type ExecutorConfig struct {
	SubmitTimeout       time.Duration // предельное время отправки ордера на биржу
	MaxRateLimitRetries int           // повторы ТОЛЬКО при rate limit биржи
}

// ReconcilerConfig - настройки фоновой сверки балансов
type ReconcilerConfig struct {
	Interval time.Duration
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradedesk"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Vault: VaultConfig{
			Key:         getEnv("VAULT_KEY", ""),
			PreviousKey: getEnv("VAULT_KEY_PREVIOUS", ""),
			KeyVersion:  getEnvAsInt("VAULT_KEY_VERSION", 1),
		},
		Executor: ExecutorConfig{
			SubmitTimeout:       getEnvAsDuration("ORDER_SUBMIT_TIMEOUT", 10*time.Second),
			MaxRateLimitRetries: getEnvAsInt("ORDER_RATE_LIMIT_RETRIES", 3),
		},
		Reconciler: ReconcilerConfig{
			Interval: getEnvAsDuration("BALANCE_SYNC_INTERVAL", 1*time.Minute),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// VAULT_KEY обязателен: без него секреты подключений нечем шифровать
	if c.Vault.Key == "" {
		return fmt.Errorf("VAULT_KEY is required for encrypting exchange credentials")
	}

	if len(c.Vault.Key) < 16 {
		return fmt.Errorf("VAULT_KEY must be at least 16 characters")
	}

	if c.Vault.KeyVersion < 1 {
		return fmt.Errorf("VAULT_KEY_VERSION must be at least 1, got %d", c.Vault.KeyVersion)
	}

	if c.Vault.PreviousKey != "" && c.Vault.KeyVersion < 2 {
		return fmt.Errorf("VAULT_KEY_PREVIOUS requires VAULT_KEY_VERSION >= 2")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Executor.SubmitTimeout <= 0 {
		return fmt.Errorf("ORDER_SUBMIT_TIMEOUT must be positive, got %v", c.Executor.SubmitTimeout)
	}

	if c.Executor.MaxRateLimitRetries < 0 {
		return fmt.Errorf("ORDER_RATE_LIMIT_RETRIES cannot be negative, got %d", c.Executor.MaxRateLimitRetries)
	}

	if c.Executor.MaxRateLimitRetries > 10 {
		return fmt.Errorf("ORDER_RATE_LIMIT_RETRIES should not exceed 10, got %d", c.Executor.MaxRateLimitRetries)
	}

	if c.Reconciler.Interval < 10*time.Second {
		return fmt.Errorf("BALANCE_SYNC_INTERVAL must be at least 10s, got %v", c.Reconciler.Interval)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
