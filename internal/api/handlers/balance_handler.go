package handlers

import (
	"net/http"

	"tradedesk/internal/api/middleware"
	"tradedesk/internal/models"
)

// BalanceReader читает сохраненные балансы
type BalanceReader interface {
	GetByUserID(userID string) ([]*models.Balance, error)
	GetByConnection(connectionID int) ([]*models.Balance, error)
}

// BalanceHandler обрабатывает запросы чтения балансов.
// Балансы отдаются из БД как есть: актуальность определяется synced_at,
// свежие данные запрашиваются через POST /connections/{id}/sync.
type BalanceHandler struct {
	balances    BalanceReader
	connections ConnectionManager
}

// NewBalanceHandler создает новый BalanceHandler
func NewBalanceHandler(balances BalanceReader, connections ConnectionManager) *BalanceHandler {
	return &BalanceHandler{balances: balances, connections: connections}
}

// GetBalances возвращает балансы пользователя по всем подключениям
// GET /api/v1/balances
func (h *BalanceHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	balances, err := h.balances.GetByUserID(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load balances", "internal")
		return
	}
	if balances == nil {
		balances = []*models.Balance{}
	}

	respondJSON(w, http.StatusOK, balances)
}

// GetConnectionBalances возвращает балансы одного подключения
// GET /api/v1/connections/{id}/balances
func (h *BalanceHandler) GetConnectionBalances(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id, ok := connectionID(w, r)
	if !ok {
		return
	}

	// Ownership через сервис подключений
	if _, err := h.connections.Get(userID, id); err != nil {
		respondError(w, http.StatusNotFound, "connection not found", "not_found")
		return
	}

	balances, err := h.balances.GetByConnection(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load balances", "internal")
		return
	}
	if balances == nil {
		balances = []*models.Balance{}
	}

	respondJSON(w, http.StatusOK, balances)
}
