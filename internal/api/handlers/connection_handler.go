package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"tradedesk/internal/api/middleware"
	"tradedesk/internal/exchange"
	"tradedesk/internal/models"
	"tradedesk/internal/repository"
	"tradedesk/internal/service"
	"tradedesk/internal/trading"
)

// ConnectionManager - операции жизненного цикла подключений
type ConnectionManager interface {
	Connect(ctx context.Context, userID string, req *service.ConnectRequest) (*models.Connection, error)
	CompleteOAuth(ctx context.Context, userID string, connectionID int, bearerToken string) (*models.Connection, error)
	UpdateCredentials(ctx context.Context, userID string, connectionID int, creds exchange.Credentials) error
	Test(ctx context.Context, userID string, connectionID int) (bool, error)
	List(userID string) ([]*models.Connection, error)
	Get(userID string, connectionID int) (*models.Connection, error)
	Disconnect(userID string, connectionID int) error
}

// BalanceSyncer запускает сверку балансов подключения
type BalanceSyncer interface {
	SyncConnection(ctx context.Context, connectionID int) error
}

// ConnectionHandler обрабатывает запросы управления подключениями к биржам
type ConnectionHandler struct {
	connections ConnectionManager
	syncer      BalanceSyncer
}

// NewConnectionHandler создает новый ConnectionHandler
func NewConnectionHandler(connections ConnectionManager, syncer BalanceSyncer) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, syncer: syncer}
}

// GetConnections возвращает подключения пользователя
// GET /api/v1/connections
func (h *ConnectionHandler) GetConnections(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	connections, err := h.connections.List(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load connections", "internal")
		return
	}
	if connections == nil {
		connections = []*models.Connection{}
	}

	respondJSON(w, http.StatusOK, connections)
}

// Connect создает подключение
// POST /api/v1/connections
func (h *ConnectionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req service.ConnectRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "bad_request")
		return
	}

	conn, err := h.connections.Connect(r.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, exchange.ErrUnsupportedConfiguration):
			respondError(w, http.StatusBadRequest, err.Error(), "unsupported_configuration")
		case errors.Is(err, service.ErrCredentialsRejected):
			respondError(w, http.StatusUnprocessableEntity, err.Error(), "credentials_rejected")
		case errors.Is(err, exchange.ErrMissingCredentials):
			respondError(w, http.StatusBadRequest, err.Error(), "missing_credentials")
		default:
			respondError(w, http.StatusInternalServerError, "failed to create connection", "internal")
		}
		return
	}

	respondJSON(w, http.StatusCreated, conn)
}

// GetConnection возвращает подключение по ID
// GET /api/v1/connections/{id}
func (h *ConnectionHandler) GetConnection(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id, ok := connectionID(w, r)
	if !ok {
		return
	}

	conn, err := h.connections.Get(userID, id)
	if err != nil {
		h.respondConnectionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, conn)
}

// Disconnect удаляет подключение
// DELETE /api/v1/connections/{id}
func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id, ok := connectionID(w, r)
	if !ok {
		return
	}

	if err := h.connections.Disconnect(userID, id); err != nil {
		h.respondConnectionError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TestConnection проверяет сохраненные учетные данные живым запросом
// POST /api/v1/connections/{id}/test
func (h *ConnectionHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id, ok := connectionID(w, r)
	if !ok {
		return
	}

	alive, err := h.connections.Test(r.Context(), userID, id)
	if err != nil {
		h.respondConnectionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": alive})
}

// CompleteOAuth завершает OAuth flow подключения
// POST /api/v1/connections/{id}/oauth
func (h *ConnectionHandler) CompleteOAuth(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id, ok := connectionID(w, r)
	if !ok {
		return
	}

	var req struct {
		BearerToken string `json:"bearer_token"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "bad_request")
		return
	}
	if req.BearerToken == "" {
		respondError(w, http.StatusBadRequest, "bearer_token is required", "bad_request")
		return
	}

	conn, err := h.connections.CompleteOAuth(r.Context(), userID, id, req.BearerToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOAuthNotPending):
			respondError(w, http.StatusConflict, err.Error(), "oauth_not_pending")
		case errors.Is(err, service.ErrCredentialsRejected):
			respondError(w, http.StatusUnprocessableEntity, err.Error(), "credentials_rejected")
		default:
			h.respondConnectionError(w, err)
		}
		return
	}

	respondJSON(w, http.StatusOK, conn)
}

// UpdateCredentials заменяет учетные данные подключения
// PUT /api/v1/connections/{id}/credentials
func (h *ConnectionHandler) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id, ok := connectionID(w, r)
	if !ok {
		return
	}

	var req struct {
		APIKey      string `json:"api_key"`
		SecretKey   string `json:"secret_key"`
		Passphrase  string `json:"passphrase,omitempty"`
		BearerToken string `json:"bearer_token,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "bad_request")
		return
	}

	err := h.connections.UpdateCredentials(r.Context(), userID, id, exchange.Credentials{
		APIKey:      req.APIKey,
		Secret:      req.SecretKey,
		Passphrase:  req.Passphrase,
		BearerToken: req.BearerToken,
	})
	if err != nil {
		if errors.Is(err, service.ErrCredentialsRejected) {
			respondError(w, http.StatusUnprocessableEntity, err.Error(), "credentials_rejected")
			return
		}
		h.respondConnectionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, &SuccessResponse{Message: "credentials updated"})
}

// SyncBalances запускает сверку балансов подключения
// POST /api/v1/connections/{id}/sync
func (h *ConnectionHandler) SyncBalances(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id, ok := connectionID(w, r)
	if !ok {
		return
	}

	// Ownership проверяется до обращения к бирже
	if _, err := h.connections.Get(userID, id); err != nil {
		h.respondConnectionError(w, err)
		return
	}

	if err := h.syncer.SyncConnection(r.Context(), id); err != nil {
		if errors.Is(err, trading.ErrSyncInProgress) {
			respondError(w, http.StatusConflict, "balance sync already in progress", "sync_in_progress")
			return
		}
		respondError(w, http.StatusBadGateway, "balance sync failed: "+err.Error(), "sync_failed")
		return
	}

	respondJSON(w, http.StatusOK, &SuccessResponse{Message: "balances synced"})
}

func (h *ConnectionHandler) respondConnectionError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrConnectionNotFound) {
		respondError(w, http.StatusNotFound, "connection not found", "not_found")
		return
	}
	respondError(w, http.StatusInternalServerError, "connection operation failed", "internal")
}

// connectionID извлекает {id} из пути; при ошибке пишет 400 и возвращает false
func connectionID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid connection id", "bad_request")
		return 0, false
	}
	return id, true
}
