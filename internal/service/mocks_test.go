package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"tradedesk/internal/exchange"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

// ============ Mock ConnectionRepository ============

type MockConnectionRepository struct {
	mu          sync.Mutex
	connections map[int]*models.Connection
	nextID      int
	createErr   error
}

func NewMockConnectionRepository() *MockConnectionRepository {
	return &MockConnectionRepository{
		connections: make(map[int]*models.Connection),
		nextID:      1,
	}
}

func (m *MockConnectionRepository) Create(conn *models.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	conn.ID = m.nextID
	m.nextID++
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = conn.CreatedAt
	copied := *conn
	m.connections[conn.ID] = &copied
	return nil
}

func (m *MockConnectionRepository) GetByID(id int) (*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[id]
	if !ok {
		return nil, repository.ErrConnectionNotFound
	}
	copied := *conn
	return &copied, nil
}

func (m *MockConnectionRepository) GetByUserID(userID string) ([]*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Connection
	for _, conn := range m.connections {
		if conn.UserID == userID {
			copied := *conn
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *MockConnectionRepository) UpdateStatus(id int, status, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[id]
	if !ok {
		return repository.ErrConnectionNotFound
	}
	conn.Status = status
	conn.LastError = lastError
	return nil
}

func (m *MockConnectionRepository) UpdateCredentials(id int, apiKey, secretKey, passphrase, bearerToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[id]
	if !ok {
		return repository.ErrConnectionNotFound
	}
	conn.APIKey = apiKey
	conn.SecretKey = secretKey
	conn.Passphrase = passphrase
	conn.BearerToken = bearerToken
	return nil
}

func (m *MockConnectionRepository) Delete(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[id]; !ok {
		return repository.ErrConnectionNotFound
	}
	delete(m.connections, id)
	return nil
}

// ============ Mock BalanceRepository ============

type MockBalanceRepository struct {
	mu      sync.Mutex
	deleted []int
}

func (m *MockBalanceRepository) GetByConnection(connectionID int) ([]*models.Balance, error) {
	return nil, nil
}

func (m *MockBalanceRepository) GetByUserID(userID string) ([]*models.Balance, error) {
	return nil, nil
}

func (m *MockBalanceRepository) DeleteByConnection(connectionID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, connectionID)
	return nil
}

// ============ Mock Vault ============

// MockVault помечает данные обратимым префиксом вместо настоящего шифрования
type MockVault struct {
	encryptErr error
}

func (m *MockVault) Encrypt(plaintext string) (string, error) {
	if m.encryptErr != nil {
		return "", m.encryptErr
	}
	return "enc:" + plaintext, nil
}

func (m *MockVault) Decrypt(envelope string) (string, error) {
	if !strings.HasPrefix(envelope, "enc:") {
		return "", errors.New("invalid envelope")
	}
	return strings.TrimPrefix(envelope, "enc:"), nil
}

// ============ Stub ExchangeClient ============

type stubClient struct {
	provider string
	testOK   bool
	creds    exchange.Credentials
}

func (c *stubClient) Provider() string { return c.provider }

func (c *stubClient) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	return nil, nil
}

func (c *stubClient) CreateOrder(ctx context.Context, params exchange.OrderParams) (*exchange.OrderAck, error) {
	return &exchange.OrderAck{ExchangeOrderID: "stub-1"}, nil
}

func (c *stubClient) TestConnection(ctx context.Context) bool { return c.testOK }
