package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"tradedesk/internal/api/middleware"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
	"tradedesk/internal/trading"
)

// OrderPlacer размещает ордер через полный пайплайн исполнения
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, userID string, connectionID int, req *models.OrderRequest) (*models.Order, error)
}

// OrderReader читает журнал ордеров
type OrderReader interface {
	GetByID(id int) (*models.Order, error)
	GetByUserID(userID string, limit int) ([]*models.Order, error)
}

// defaultOrdersLimit и maxOrdersLimit ограничивают выдачу журнала
const (
	defaultOrdersLimit = 50
	maxOrdersLimit     = 500
)

// PlaceOrderRequest - body запроса размещения ордера
type PlaceOrderRequest struct {
	ConnectionID int `json:"connection_id"`
	models.OrderRequest
}

// OrderHandler обрабатывает запросы размещения и чтения ордеров
type OrderHandler struct {
	executor OrderPlacer
	orders   OrderReader
}

// NewOrderHandler создает новый OrderHandler
func NewOrderHandler(executor OrderPlacer, orders OrderReader) *OrderHandler {
	return &OrderHandler{executor: executor, orders: orders}
}

// PlaceOrder размещает ордер
// POST /api/v1/orders
//
// Отклоненный биржей или risk gate ордер - это УСПЕШНЫЙ ответ сервера
// (201 с записью в статусе rejected): попытка исполнения зафиксирована
// в журнале. Ошибки валидации и отказы risk gate до создания записи
// возвращаются HTTP-статусами.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req PlaceOrderRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "bad_request")
		return
	}
	if req.ConnectionID <= 0 {
		respondError(w, http.StatusBadRequest, "connection_id is required", "bad_request")
		return
	}

	// Ордера через HTTP API всегда пользовательские; автоматические
	// размещают стратегии напрямую через executor
	req.OrderRequest.UserInitiated = true

	order, err := h.executor.PlaceOrder(r.Context(), userID, req.ConnectionID, &req.OrderRequest)
	if err != nil {
		h.respondPlaceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) respondPlaceError(w http.ResponseWriter, err error) {
	switch {
	case trading.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error(), "validation")
	case trading.IsDenial(err):
		respondError(w, http.StatusForbidden, err.Error(), "risk_denied")
	case errors.Is(err, repository.ErrConnectionNotFound):
		respondError(w, http.StatusNotFound, "connection not found", "not_found")
	default:
		respondError(w, http.StatusInternalServerError, "failed to place order", "internal")
	}
}

// GetOrders возвращает последние ордера пользователя
// GET /api/v1/orders?limit=50
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	limit := defaultOrdersLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer", "bad_request")
			return
		}
		limit = parsed
		if limit > maxOrdersLimit {
			limit = maxOrdersLimit
		}
	}

	orders, err := h.orders.GetByUserID(userID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load orders", "internal")
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}

	respondJSON(w, http.StatusOK, orders)
}

// GetOrder возвращает ордер по ID
// GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", "bad_request")
		return
	}

	order, err := h.orders.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "order not found", "not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load order", "internal")
		return
	}

	// Чужой ордер неотличим от несуществующего
	if order.UserID != userID {
		respondError(w, http.StatusNotFound, "order not found", "not_found")
		return
	}

	respondJSON(w, http.StatusOK, order)
}
