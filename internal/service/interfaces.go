package service

import (
	"tradedesk/internal/models"
)

// ConnectionRepositoryInterface - операции с подключениями, нужные сервисному слою
type ConnectionRepositoryInterface interface {
	Create(conn *models.Connection) error
	GetByID(id int) (*models.Connection, error)
	GetByUserID(userID string) ([]*models.Connection, error)
	UpdateStatus(id int, status, lastError string) error
	UpdateCredentials(id int, apiKey, secretKey, passphrase, bearerToken string) error
	Delete(id int) error
}

// BalanceRepositoryInterface - операции с балансами, нужные сервисному слою
type BalanceRepositoryInterface interface {
	GetByConnection(connectionID int) ([]*models.Balance, error)
	GetByUserID(userID string) ([]*models.Balance, error)
	DeleteByConnection(connectionID int) error
}

// VaultInterface - envelope-шифрование секретов подключений
type VaultInterface interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(envelope string) (string, error)
}
