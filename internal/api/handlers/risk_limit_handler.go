package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/lib/pq"

	"tradedesk/internal/api/middleware"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
)

// RiskLimitStore - CRUD хранилища risk-лимитов
type RiskLimitStore interface {
	Create(limit *models.RiskLimit) error
	GetByID(id int) (*models.RiskLimit, error)
	GetForUser(userID string) ([]*models.RiskLimit, error)
	Update(limit *models.RiskLimit) error
	Delete(id int) error
}

// validExecutionModes - допустимые значения execution_mode
var validExecutionModes = map[string]bool{
	models.ExecutionModeManual:      true,
	models.ExecutionModeAutoSandbox: true,
	models.ExecutionModeAutoProd:    true,
	models.ExecutionModeDisabled:    true,
}

// RiskLimitRequest - body запросов создания и обновления лимита
type RiskLimitRequest struct {
	StrategyID          *int     `json:"strategy_id,omitempty"`
	ConnectionID        *int     `json:"connection_id,omitempty"`
	ExecutionMode       string   `json:"execution_mode"`
	MaxNotionalPerOrder float64  `json:"max_notional_per_order"`
	MaxDailyNotional    float64  `json:"max_daily_notional"`
	AllowedSymbols      []string `json:"allowed_symbols,omitempty"`
}

func (r *RiskLimitRequest) validate() string {
	if !validExecutionModes[r.ExecutionMode] {
		return "execution_mode must be one of: manual, auto_sandbox, auto_prod, disabled"
	}
	if r.MaxNotionalPerOrder < 0 || r.MaxDailyNotional < 0 {
		return "notional limits must not be negative"
	}
	return ""
}

// RiskLimitHandler обрабатывает запросы управления risk-лимитами
type RiskLimitHandler struct {
	limits RiskLimitStore
}

// NewRiskLimitHandler создает новый RiskLimitHandler
func NewRiskLimitHandler(limits RiskLimitStore) *RiskLimitHandler {
	return &RiskLimitHandler{limits: limits}
}

// GetRiskLimits возвращает все лимиты пользователя
// GET /api/v1/risk-limits
func (h *RiskLimitHandler) GetRiskLimits(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	limits, err := h.limits.GetForUser(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load risk limits", "internal")
		return
	}
	if limits == nil {
		limits = []*models.RiskLimit{}
	}

	respondJSON(w, http.StatusOK, limits)
}

// CreateRiskLimit создает лимит
// POST /api/v1/risk-limits
func (h *RiskLimitHandler) CreateRiskLimit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req RiskLimitRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "bad_request")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg, "validation")
		return
	}

	limit := &models.RiskLimit{
		UserID:              userID,
		StrategyID:          req.StrategyID,
		ConnectionID:        req.ConnectionID,
		ExecutionMode:       req.ExecutionMode,
		MaxNotionalPerOrder: req.MaxNotionalPerOrder,
		MaxDailyNotional:    req.MaxDailyNotional,
		AllowedSymbols:      pq.StringArray(req.AllowedSymbols),
	}

	if err := h.limits.Create(limit); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create risk limit", "internal")
		return
	}

	respondJSON(w, http.StatusCreated, limit)
}

// UpdateRiskLimit обновляет параметры лимита
// PUT /api/v1/risk-limits/{id}
func (h *RiskLimitHandler) UpdateRiskLimit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	limit, ok := h.ownedLimit(w, r, userID)
	if !ok {
		return
	}

	var req RiskLimitRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "bad_request")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg, "validation")
		return
	}

	// Область действия (strategy_id, connection_id) неизменяема:
	// для другой области создается новый лимит
	limit.ExecutionMode = req.ExecutionMode
	limit.MaxNotionalPerOrder = req.MaxNotionalPerOrder
	limit.MaxDailyNotional = req.MaxDailyNotional
	limit.AllowedSymbols = pq.StringArray(req.AllowedSymbols)

	if err := h.limits.Update(limit); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update risk limit", "internal")
		return
	}

	respondJSON(w, http.StatusOK, limit)
}

// DeleteRiskLimit удаляет лимит
// DELETE /api/v1/risk-limits/{id}
func (h *RiskLimitHandler) DeleteRiskLimit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	limit, ok := h.ownedLimit(w, r, userID)
	if !ok {
		return
	}

	if err := h.limits.Delete(limit.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete risk limit", "internal")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedLimit загружает лимит из пути и проверяет владельца.
// Чужой лимит неотличим от несуществующего.
func (h *RiskLimitHandler) ownedLimit(w http.ResponseWriter, r *http.Request, userID string) (*models.RiskLimit, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid risk limit id", "bad_request")
		return nil, false
	}

	limit, err := h.limits.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrRiskLimitNotFound) {
			respondError(w, http.StatusNotFound, "risk limit not found", "not_found")
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, "failed to load risk limit", "internal")
		return nil, false
	}
	if limit.UserID != userID {
		respondError(w, http.StatusNotFound, "risk limit not found", "not_found")
		return nil, false
	}

	return limit, true
}
