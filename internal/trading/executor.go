package trading

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"tradedesk/internal/exchange"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
	"tradedesk/pkg/retry"
	"tradedesk/pkg/utils"
)

// ExecutorConfig - конфигурация исполнителя ордеров
type ExecutorConfig struct {
	// MaxRateLimitRetries - бюджет повторов при rate limit биржи
	MaxRateLimitRetries int

	// SubmitTimeout - таймаут одного обращения к бирже
	SubmitTimeout time.Duration
}

// DefaultExecutorConfig возвращает конфигурацию по умолчанию
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxRateLimitRetries: 3,
		SubmitTimeout:       10 * time.Second,
	}
}

// Executor проводит ордер через полный жизненный цикл:
// валидация → идемпотентность → проверка подключения → запись pending →
// risk gate → отправка на биржу → open/rejected.
//
// Запись pending создается ДО сетевого вызова: упавший процесс оставляет
// след каждой попытки, а условные UPDATE'ы исключают двойные переходы.
type Executor struct {
	orders      OrderRepositoryInterface
	connections ConnectionRepositoryInterface
	risk        *RiskGate
	resolver    ClientResolver
	broadcaster Broadcaster // может быть nil
	config      ExecutorConfig
}

// NewExecutor создает новый исполнитель
func NewExecutor(
	orders OrderRepositoryInterface,
	connections ConnectionRepositoryInterface,
	risk *RiskGate,
	resolver ClientResolver,
	broadcaster Broadcaster,
	config ExecutorConfig,
) *Executor {
	return &Executor{
		orders:      orders,
		connections: connections,
		risk:        risk,
		resolver:    resolver,
		broadcaster: broadcaster,
		config:      config,
	}
}

// PlaceOrder размещает ордер на подключении пользователя.
//
// Повторный вызов с тем же ключом идемпотентности возвращает существующий
// ордер без второго обращения к бирже. Подключение должно принадлежать
// пользователю: чужое возвращает ErrConnectionNotFound до каких-либо записей.
// Ошибки валидации и отказы risk gate возвращаются вызывающему; отказ биржи
// возвращает ордер в статусе rejected без ошибки - решение биржи записано,
// операция сервера прошла штатно.
func (e *Executor) PlaceOrder(ctx context.Context, userID string, connectionID int, req *models.OrderRequest) (*models.Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = generateIdempotencyKey()
	}

	// Повтор с тем же ключом - отдаем существующий ордер как есть
	if existing, err := e.orders.GetByIdempotencyKey(userID, req.IdempotencyKey); err == nil {
		IdempotentReplays.Inc()
		return existing, nil
	}

	// Подключение проверяется ДО записи pending: ордер на несуществующее
	// или неторгуемое подключение - ошибка запроса, попытки исполнения
	// не было и в журнал она не попадает
	conn, err := e.connections.GetByID(connectionID)
	if err != nil {
		return nil, err
	}
	// Чужое подключение неотличимо от несуществующего
	if conn.UserID != userID {
		return nil, repository.ErrConnectionNotFound
	}
	if !conn.CanTrade() {
		return nil, &ValidationError{
			Field:   "connection_id",
			Message: fmt.Sprintf("connection %d is not tradable (status %s)", conn.ID, conn.Status),
		}
	}

	order := &models.Order{
		UserID:         userID,
		ConnectionID:   connectionID,
		IdempotencyKey: req.IdempotencyKey,
		StrategyID:     req.StrategyID,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Type:           req.Type,
		Quantity:       req.Quantity,
		Price:          req.Price,
		StopPrice:      req.StopPrice,
		UserInitiated:  req.UserInitiated,
		Status:         models.OrderStatusPending,
	}

	if err := e.orders.Create(order); err != nil {
		// Гонка двух запросов с одним ключом: уникальный индекс пропустил
		// только одного, второй получает результат первого
		if existing, lookupErr := e.orders.GetByIdempotencyKey(userID, req.IdempotencyKey); lookupErr == nil {
			IdempotentReplays.Inc()
			return existing, nil
		}
		return nil, fmt.Errorf("persist order: %w", err)
	}

	// Risk gate работает до расшифровки секретов: отклоненный ордер
	// не трогает vault и не собирает клиента биржи
	if err := e.risk.Authorize(conn, req, order.ID); err != nil {
		var denial *DenialError
		if errors.As(err, &denial) {
			return e.failOrder(order, models.FailureRiskDenied, denial.Reason), err
		}
		return e.failOrder(order, models.FailureValidation, err.Error()), err
	}

	client, _, err := e.resolver.ResolveClient(ctx, connectionID)
	if err != nil {
		return e.failOrder(order, models.FailureValidation, err.Error()), err
	}

	return e.submit(ctx, client, conn, order)
}

// submit отправляет pending-ордер на биржу и фиксирует исход
func (e *Executor) submit(ctx context.Context, client exchange.ExchangeClient, conn *models.Connection, order *models.Order) (*models.Order, error) {
	params := exchange.OrderParams{
		ClientOrderID: order.IdempotencyKey,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Type:          order.Type,
		Quantity:      order.Quantity,
		Price:         order.Price,
		StopPrice:     order.StopPrice,
	}

	cfg := retry.DefaultConfig()
	cfg.MaxRetries = e.config.MaxRateLimitRetries
	// Повторяем ТОЛЬКО rate limit: любые другие ошибки либо терминальны,
	// либо (таймаут) могли оставить принятый биржей ордер
	cfg.RetryIf = exchange.IsRateLimit
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Printf("order %d: rate limited by %s, retry %d in %v", order.ID, conn.Provider, attempt, delay)
	}

	submitCtx, cancel := context.WithTimeout(ctx, e.config.SubmitTimeout)
	defer cancel()

	started := time.Now()
	ack, err := retry.DoWithResult(submitCtx, func() (*exchange.OrderAck, error) {
		return client.CreateOrder(submitCtx, params)
	}, cfg)
	OrderExecutionLatency.WithLabelValues(conn.Provider, order.Side).
		Observe(float64(time.Since(started).Milliseconds()))

	if err != nil {
		return e.handleSubmitError(order, conn, err)
	}

	// Simulation исполняет мгновенно; остальные отвечают принятием
	toStatus := models.OrderStatusOpen
	if ack.Status == models.OrderStatusFilled {
		toStatus = models.OrderStatusFilled
	}

	if err := e.orders.TransitionStatus(order.ID, models.OrderStatusPending, toStatus, ack.ExchangeOrderID); err != nil {
		// Переход уже сделан конкурентным вызовом - читаем актуальное состояние
		log.Printf("order %d: transition to %s failed: %v", order.ID, toStatus, err)
		return e.orders.GetByID(order.ID)
	}

	order.Status = toStatus
	order.ExchangeOrderID = ack.ExchangeOrderID
	OrdersSubmitted.WithLabelValues(conn.Provider, toStatus).Inc()

	if e.broadcaster != nil {
		e.broadcaster.BroadcastOrderUpdate(order)
	}

	return order, nil
}

// handleSubmitError классифицирует ошибку биржи и финализирует ордер
func (e *Executor) handleSubmitError(order *models.Order, conn *models.Connection, err error) (*models.Order, error) {
	switch {
	case exchange.IsTimeout(err):
		// Таймаут-класс: биржа МОГЛА принять ордер. Это не жесткий отказ:
		// класс timeout сигнализирует сверке проверить статус на бирже.
		OrdersSubmitted.WithLabelValues(conn.Provider, "timeout").Inc()
		return e.failOrder(order, models.FailureTimeout, "submission timed out, exchange state unknown"), nil

	case exchange.IsAuth(err):
		// Невалидные учетные данные: гасим подключение, чтобы фоновые
		// операции не долбили биржу заведомо мертвым ключом
		OrdersSubmitted.WithLabelValues(conn.Provider, "auth_error").Inc()
		if updateErr := e.connections.UpdateStatus(conn.ID, models.ConnectionStatusError, err.Error()); updateErr != nil {
			log.Printf("connection %d: failed to mark error status: %v", conn.ID, updateErr)
		}
		return e.failOrder(order, models.FailureAuth, err.Error()), nil

	case exchange.IsRejection(err):
		OrdersSubmitted.WithLabelValues(conn.Provider, "rejected").Inc()
		return e.failOrder(order, models.FailureExchangeRejected, err.Error()), nil

	case exchange.IsRateLimit(err):
		// Бюджет повторов исчерпан
		OrdersSubmitted.WithLabelValues(conn.Provider, "rate_limited").Inc()
		return e.failOrder(order, models.FailureNetwork, "rate limit retry budget exhausted"), nil

	default:
		OrdersSubmitted.WithLabelValues(conn.Provider, "network_error").Inc()
		return e.failOrder(order, models.FailureNetwork, err.Error()), nil
	}
}

// failOrder переводит ордер в rejected и возвращает обновленную запись
func (e *Executor) failOrder(order *models.Order, failureClass, reason string) *models.Order {
	if err := e.orders.MarkFailed(order.ID, failureClass, reason); err != nil {
		log.Printf("order %d: failed to mark %s: %v", order.ID, failureClass, err)
	}
	order.Status = models.OrderStatusRejected
	order.FailureClass = failureClass
	order.RejectReason = reason

	if e.broadcaster != nil {
		e.broadcaster.BroadcastOrderUpdate(order)
	}

	return order
}

// validateRequest проверяет запрос до любых обращений к БД и бирже
func validateRequest(req *models.OrderRequest) error {
	if err := utils.ValidateSymbol(req.Symbol); err != nil {
		return &ValidationError{Field: "symbol", Message: err.Error()}
	}
	if err := utils.ValidateSide(req.Side); err != nil {
		return &ValidationError{Field: "side", Message: err.Error()}
	}
	if err := utils.ValidateOrderType(req.Type); err != nil {
		return &ValidationError{Field: "type", Message: err.Error()}
	}
	if err := utils.ValidateQuantity(req.Quantity); err != nil {
		return &ValidationError{Field: "quantity", Message: err.Error()}
	}
	if req.Type == models.OrderTypeLimit || req.Type == models.OrderTypeStopLimit {
		if err := utils.ValidatePrice(req.Price); err != nil {
			return &ValidationError{Field: "price", Message: err.Error()}
		}
	}
	if req.Type == models.OrderTypeStopLimit {
		if err := utils.ValidatePrice(req.StopPrice); err != nil {
			return &ValidationError{Field: "stop_price", Message: err.Error()}
		}
	}
	if err := utils.ValidateIdempotencyKey(req.IdempotencyKey); err != nil {
		return &ValidationError{Field: "idempotency_key", Message: err.Error()}
	}
	return nil
}

// generateIdempotencyKey создает серверный ключ для запросов без ключа
func generateIdempotencyKey() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand не отказывает на поддерживаемых платформах
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return "srv-" + hex.EncodeToString(buf)
}
