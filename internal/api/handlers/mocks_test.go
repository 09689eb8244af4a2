package handlers

import (
	"bytes"
	"context"
	"net/http/httptest"

	"github.com/gorilla/mux"

	"tradedesk/internal/api/middleware"
	"tradedesk/internal/exchange"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
	"tradedesk/internal/service"
)

// newTestRouter собирает маршрутизатор с Identity middleware,
// как в боевом SetupRoutes
func newTestRouter(register func(api *mux.Router)) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Identity)
	register(api)
	return router
}

// doRequest выполняет запрос от имени пользователя
func doRequest(router *mux.Router, method, path, userID string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// ============ Mock ConnectionManager ============

type MockConnectionManager struct {
	connections map[int]*models.Connection

	connectErr error
	testOK     bool
	testErr    error
	oauthErr   error
	updateErr  error
}

func NewMockConnectionManager() *MockConnectionManager {
	return &MockConnectionManager{connections: make(map[int]*models.Connection), testOK: true}
}

func (m *MockConnectionManager) Connect(ctx context.Context, userID string, req *service.ConnectRequest) (*models.Connection, error) {
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	conn := &models.Connection{
		ID: len(m.connections) + 1, UserID: userID,
		Provider: req.Provider, APIFamily: req.APIFamily,
		Status: models.ConnectionStatusConnected,
	}
	m.connections[conn.ID] = conn
	return conn, nil
}

func (m *MockConnectionManager) CompleteOAuth(ctx context.Context, userID string, connectionID int, bearerToken string) (*models.Connection, error) {
	if m.oauthErr != nil {
		return nil, m.oauthErr
	}
	return m.Get(userID, connectionID)
}

func (m *MockConnectionManager) UpdateCredentials(ctx context.Context, userID string, connectionID int, creds exchange.Credentials) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	_, err := m.Get(userID, connectionID)
	return err
}

func (m *MockConnectionManager) Test(ctx context.Context, userID string, connectionID int) (bool, error) {
	if m.testErr != nil {
		return false, m.testErr
	}
	if _, err := m.Get(userID, connectionID); err != nil {
		return false, err
	}
	return m.testOK, nil
}

func (m *MockConnectionManager) List(userID string) ([]*models.Connection, error) {
	var result []*models.Connection
	for _, conn := range m.connections {
		if conn.UserID == userID {
			result = append(result, conn)
		}
	}
	return result, nil
}

func (m *MockConnectionManager) Get(userID string, connectionID int) (*models.Connection, error) {
	conn, ok := m.connections[connectionID]
	if !ok || conn.UserID != userID {
		return nil, repository.ErrConnectionNotFound
	}
	return conn, nil
}

func (m *MockConnectionManager) Disconnect(userID string, connectionID int) error {
	if _, err := m.Get(userID, connectionID); err != nil {
		return err
	}
	delete(m.connections, connectionID)
	return nil
}

// ============ Mock BalanceSyncer ============

type MockSyncer struct {
	err   error
	calls int
}

func (m *MockSyncer) SyncConnection(ctx context.Context, connectionID int) error {
	m.calls++
	return m.err
}

// ============ Mock OrderPlacer ============

type MockPlacer struct {
	order   *models.Order
	err     error
	lastReq *models.OrderRequest
}

func (m *MockPlacer) PlaceOrder(ctx context.Context, userID string, connectionID int, req *models.OrderRequest) (*models.Order, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.order != nil {
		return m.order, nil
	}
	return &models.Order{
		ID: 1, UserID: userID, ConnectionID: connectionID,
		Symbol: req.Symbol, Status: models.OrderStatusOpen,
	}, nil
}

// ============ Mock OrderReader ============

type MockOrderReader struct {
	orders map[int]*models.Order
}

func NewMockOrderReader() *MockOrderReader {
	return &MockOrderReader{orders: make(map[int]*models.Order)}
}

func (m *MockOrderReader) GetByID(id int) (*models.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (m *MockOrderReader) GetByUserID(userID string, limit int) ([]*models.Order, error) {
	var result []*models.Order
	for _, order := range m.orders {
		if order.UserID == userID && len(result) < limit {
			result = append(result, order)
		}
	}
	return result, nil
}

// ============ Mock RiskLimitStore ============

type MockRiskLimitStore struct {
	limits map[int]*models.RiskLimit
	nextID int
}

func NewMockRiskLimitStore() *MockRiskLimitStore {
	return &MockRiskLimitStore{limits: make(map[int]*models.RiskLimit), nextID: 1}
}

func (m *MockRiskLimitStore) Create(limit *models.RiskLimit) error {
	limit.ID = m.nextID
	m.nextID++
	m.limits[limit.ID] = limit
	return nil
}

func (m *MockRiskLimitStore) GetByID(id int) (*models.RiskLimit, error) {
	limit, ok := m.limits[id]
	if !ok {
		return nil, repository.ErrRiskLimitNotFound
	}
	return limit, nil
}

func (m *MockRiskLimitStore) GetForUser(userID string) ([]*models.RiskLimit, error) {
	var result []*models.RiskLimit
	for _, limit := range m.limits {
		if limit.UserID == userID {
			result = append(result, limit)
		}
	}
	return result, nil
}

func (m *MockRiskLimitStore) Update(limit *models.RiskLimit) error {
	if _, ok := m.limits[limit.ID]; !ok {
		return repository.ErrRiskLimitNotFound
	}
	m.limits[limit.ID] = limit
	return nil
}

func (m *MockRiskLimitStore) Delete(id int) error {
	if _, ok := m.limits[id]; !ok {
		return repository.ErrRiskLimitNotFound
	}
	delete(m.limits, id)
	return nil
}

// ============ Mock BalanceReader ============

type MockBalanceReader struct {
	balances []*models.Balance
	err      error
}

func (m *MockBalanceReader) GetByUserID(userID string) ([]*models.Balance, error) {
	if m.err != nil {
		return nil, m.err
	}
	var result []*models.Balance
	for _, b := range m.balances {
		if b.UserID == userID {
			result = append(result, b)
		}
	}
	return result, nil
}

func (m *MockBalanceReader) GetByConnection(connectionID int) ([]*models.Balance, error) {
	if m.err != nil {
		return nil, m.err
	}
	var result []*models.Balance
	for _, b := range m.balances {
		if b.ConnectionID == connectionID {
			result = append(result, b)
		}
	}
	return result, nil
}
