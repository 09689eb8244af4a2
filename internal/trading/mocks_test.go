package trading

import (
	"context"
	"errors"
	"sync"
	"time"

	"tradedesk/internal/exchange"
	"tradedesk/internal/models"
)

var (
	errDuplicateKey       = errors.New("duplicate idempotency key")
	errOrderNotFound      = errors.New("order not found")
	errStaleTransition    = errors.New("stale transition")
	errConnectionNotFound = errors.New("connection not found")
)

// ============ Mock OrderRepository ============

type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[int]*models.Order
	byKey  map[string]*models.Order
	nextID int

	createErr      error
	sumNotional    float64 // израсходованный бюджет до начала теста
	sumNotionalErr error
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[int]*models.Order),
		byKey:  make(map[string]*models.Order),
		nextID: 1,
	}
}

func (m *MockOrderRepository) Create(order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	key := order.UserID + "/" + order.IdempotencyKey
	if _, exists := m.byKey[key]; exists {
		return errDuplicateKey
	}
	order.ID = m.nextID
	m.nextID++
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	copied := *order
	m.orders[order.ID] = &copied
	m.byKey[key] = &copied
	return nil
}

func (m *MockOrderRepository) GetByID(id int) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, errOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (m *MockOrderRepository) GetByIdempotencyKey(userID, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.byKey[userID+"/"+key]
	if !ok {
		return nil, errOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (m *MockOrderRepository) TransitionStatus(id int, fromStatus, toStatus, exchangeOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok || order.Status != fromStatus {
		return errStaleTransition
	}
	order.Status = toStatus
	order.ExchangeOrderID = exchangeOrderID
	order.UpdatedAt = time.Now()
	return nil
}

func (m *MockOrderRepository) MarkFailed(id int, failureClass, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok || order.Status != models.OrderStatusPending {
		return errStaleTransition
	}
	order.Status = models.OrderStatusRejected
	order.FailureClass = failureClass
	order.RejectReason = reason
	return nil
}

// SumNotionalSince повторяет семантику SQL-запроса репозитория:
// суммирует pending/open/filled ордера в окне и области действия лимита,
// исключая проверяемый ордер по id. sumNotional добавляется как бюджет,
// израсходованный до начала теста.
func (m *MockOrderRepository) SumNotionalSince(userID string, strategyID, connectionID *int, since time.Time, excludeOrderID int) (float64, error) {
	if m.sumNotionalErr != nil {
		return 0, m.sumNotionalErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.sumNotional
	for _, order := range m.orders {
		if order.UserID != userID || order.ID == excludeOrderID {
			continue
		}
		if order.CreatedAt.Before(since) {
			continue
		}
		switch order.Status {
		case models.OrderStatusPending, models.OrderStatusOpen, models.OrderStatusFilled:
		default:
			continue
		}
		if strategyID != nil && (order.StrategyID == nil || *order.StrategyID != *strategyID) {
			continue
		}
		if connectionID != nil && order.ConnectionID != *connectionID {
			continue
		}
		total += order.Quantity * order.Price
	}

	return total, nil
}

// ============ Mock RiskLimitRepository ============

type MockRiskLimitRepository struct {
	limits []*models.RiskLimit
	err    error
}

func (m *MockRiskLimitRepository) GetForUser(userID string) ([]*models.RiskLimit, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.limits, nil
}

// ============ Mock ConnectionRepository ============

type MockConnectionRepository struct {
	mu          sync.Mutex
	connections map[int]*models.Connection
	statusLog   []string
	lastSync    map[int]time.Time
}

func NewMockConnectionRepository() *MockConnectionRepository {
	return &MockConnectionRepository{
		connections: make(map[int]*models.Connection),
		lastSync:    make(map[int]time.Time),
	}
}

func (m *MockConnectionRepository) Add(conn *models.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID] = conn
}

func (m *MockConnectionRepository) GetByID(id int) (*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[id]
	if !ok {
		return nil, errConnectionNotFound
	}
	return conn, nil
}

func (m *MockConnectionRepository) GetActive() ([]*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []*models.Connection
	for _, conn := range m.connections {
		if conn.Status == models.ConnectionStatusConnected {
			active = append(active, conn)
		}
	}
	return active, nil
}

func (m *MockConnectionRepository) UpdateStatus(id int, status, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[id]
	if !ok {
		return errConnectionNotFound
	}
	conn.Status = status
	conn.LastError = lastError
	m.statusLog = append(m.statusLog, status)
	return nil
}

func (m *MockConnectionRepository) SetLastSync(id int, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[id]; !ok {
		return errConnectionNotFound
	}
	m.lastSync[id] = syncedAt
	return nil
}

// ============ Mock BalanceRepository ============

type MockBalanceRepository struct {
	mu       sync.Mutex
	balances map[string]*models.Balance
	upserts  int
	err      error
}

func NewMockBalanceRepository() *MockBalanceRepository {
	return &MockBalanceRepository{balances: make(map[string]*models.Balance)}
}

func (m *MockBalanceRepository) Upsert(balance *models.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	key := balance.UserID + "/" + balance.Currency
	copied := *balance
	m.balances[key] = &copied
	m.upserts++
	return nil
}

// ============ Mock ExchangeClient ============

type MockExchangeClient struct {
	mu           sync.Mutex
	provider     string
	balances     []exchange.Balance
	balancesErr  error
	ack          *exchange.OrderAck
	createErr    error
	createErrSeq []error // если задан, ошибки выдаются по порядку
	createCalls  int
	balanceCalls int
	blockCh      chan struct{} // если задан, GetBalances ждет закрытия
}

func (m *MockExchangeClient) Provider() string {
	if m.provider == "" {
		return "simulation"
	}
	return m.provider
}

func (m *MockExchangeClient) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	m.mu.Lock()
	m.balanceCalls++
	block := m.blockCh
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.balancesErr != nil {
		return nil, m.balancesErr
	}
	return m.balances, nil
}

func (m *MockExchangeClient) CreateOrder(ctx context.Context, params exchange.OrderParams) (*exchange.OrderAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := m.createCalls
	m.createCalls++

	if len(m.createErrSeq) > 0 {
		if call < len(m.createErrSeq) {
			if err := m.createErrSeq[call]; err != nil {
				return nil, err
			}
		}
	} else if m.createErr != nil {
		return nil, m.createErr
	}

	if m.ack != nil {
		return m.ack, nil
	}
	return &exchange.OrderAck{ExchangeOrderID: "ex-1", Status: "open"}, nil
}

func (m *MockExchangeClient) TestConnection(ctx context.Context) bool {
	_, err := m.GetBalances(ctx)
	return err == nil
}

func (m *MockExchangeClient) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

// ============ Mock ClientResolver ============

type MockResolver struct {
	client *MockExchangeClient
	conns  *MockConnectionRepository
	err    error
}

func (m *MockResolver) ResolveClient(ctx context.Context, connectionID int) (exchange.ExchangeClient, *models.Connection, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	conn, err := m.conns.GetByID(connectionID)
	if err != nil {
		return nil, nil, err
	}
	return m.client, conn, nil
}

// ============ Mock Broadcaster ============

type MockBroadcaster struct {
	mu           sync.Mutex
	orderUpdates []*models.Order
	balanceSyncs int
}

func (m *MockBroadcaster) BroadcastOrderUpdate(order *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *order
	m.orderUpdates = append(m.orderUpdates, &copied)
}

func (m *MockBroadcaster) BroadcastBalanceSync(userID string, connectionID, currencies int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceSyncs++
}
