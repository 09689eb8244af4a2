package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"tradedesk/internal/models"
)

func riskLimitRouter(store *MockRiskLimitStore) *mux.Router {
	h := NewRiskLimitHandler(store)
	return newTestRouter(func(api *mux.Router) {
		api.HandleFunc("/risk-limits", h.GetRiskLimits).Methods("GET")
		api.HandleFunc("/risk-limits", h.CreateRiskLimit).Methods("POST")
		api.HandleFunc("/risk-limits/{id}", h.UpdateRiskLimit).Methods("PUT")
		api.HandleFunc("/risk-limits/{id}", h.DeleteRiskLimit).Methods("DELETE")
	})
}

func TestCreateRiskLimit(t *testing.T) {
	store := NewMockRiskLimitStore()
	router := riskLimitRouter(store)

	body := []byte(`{"execution_mode":"manual","max_notional_per_order":500,"allowed_symbols":["BTC-USD"]}`)
	rec := doRequest(router, "POST", "/api/v1/risk-limits", "user-1", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	limit := store.limits[1]
	if limit == nil {
		t.Fatal("limit not stored")
	}
	if limit.UserID != "user-1" {
		t.Errorf("user = %q, want user-1 (from identity, not body)", limit.UserID)
	}
	if limit.ExecutionMode != models.ExecutionModeManual {
		t.Errorf("mode = %q, want manual", limit.ExecutionMode)
	}
}

func TestCreateRiskLimit_InvalidMode(t *testing.T) {
	router := riskLimitRouter(NewMockRiskLimitStore())

	body := []byte(`{"execution_mode":"yolo"}`)
	rec := doRequest(router, "POST", "/api/v1/risk-limits", "user-1", body)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "execution_mode") {
		t.Errorf("error does not name the field: %s", rec.Body.String())
	}
}

func TestCreateRiskLimit_NegativeNotional(t *testing.T) {
	router := riskLimitRouter(NewMockRiskLimitStore())

	body := []byte(`{"execution_mode":"manual","max_daily_notional":-5}`)
	rec := doRequest(router, "POST", "/api/v1/risk-limits", "user-1", body)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateRiskLimit_ScopeImmutable(t *testing.T) {
	store := NewMockRiskLimitStore()
	connID := 3
	store.limits[1] = &models.RiskLimit{
		ID: 1, UserID: "user-1", ConnectionID: &connID,
		ExecutionMode: models.ExecutionModeManual,
	}
	store.nextID = 2
	router := riskLimitRouter(store)

	// connection_id в body игнорируется: область действия неизменяема
	body := []byte(`{"execution_mode":"disabled","connection_id":99}`)
	rec := doRequest(router, "PUT", "/api/v1/risk-limits/1", "user-1", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	updated := store.limits[1]
	if updated.ExecutionMode != models.ExecutionModeDisabled {
		t.Errorf("mode = %q, want disabled", updated.ExecutionMode)
	}
	if updated.ConnectionID == nil || *updated.ConnectionID != 3 {
		t.Errorf("connection scope changed: %v", updated.ConnectionID)
	}
}

func TestDeleteRiskLimit_Ownership(t *testing.T) {
	store := NewMockRiskLimitStore()
	store.limits[1] = &models.RiskLimit{ID: 1, UserID: "user-1", ExecutionMode: models.ExecutionModeManual}
	router := riskLimitRouter(store)

	// Чужой лимит неотличим от несуществующего
	if rec := doRequest(router, "DELETE", "/api/v1/risk-limits/1", "user-2", nil); rec.Code != http.StatusNotFound {
		t.Errorf("non-owner status = %d, want 404", rec.Code)
	}

	if rec := doRequest(router, "DELETE", "/api/v1/risk-limits/1", "user-1", nil); rec.Code != http.StatusNoContent {
		t.Errorf("owner status = %d, want 204", rec.Code)
	}
}

func TestGetRiskLimits_Empty(t *testing.T) {
	router := riskLimitRouter(NewMockRiskLimitStore())

	rec := doRequest(router, "GET", "/api/v1/risk-limits", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rec.Body.String())
	}
}
