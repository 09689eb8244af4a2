package trading

import (
	"errors"
	"testing"

	"github.com/lib/pq"

	"tradedesk/internal/models"
)

func intPtr(v int) *int { return &v }

func testConnection(id int, sandbox bool) *models.Connection {
	env := models.EnvProduction
	if sandbox {
		env = models.EnvSandbox
	}
	return &models.Connection{
		ID:           id,
		UserID:       "user-1",
		Provider:     models.ProviderBybit,
		APIFamily:    models.FamilyV5,
		Environment:  env,
		Status:       models.ConnectionStatusConnected,
		CanRead:      true,
		CanTradeSpot: true,
	}
}

func manualOrder(symbol string, qty, price float64) *models.OrderRequest {
	return &models.OrderRequest{
		Symbol:        symbol,
		Side:          models.OrderSideBuy,
		Type:          models.OrderTypeLimit,
		Quantity:      qty,
		Price:         price,
		UserInitiated: true,
	}
}

func TestRiskGateResolveLimit_MostSpecificWins(t *testing.T) {
	limits := &MockRiskLimitRepository{limits: []*models.RiskLimit{
		{ID: 1, UserID: "user-1", ExecutionMode: models.ExecutionModeManual},                                            // global
		{ID: 2, UserID: "user-1", ConnectionID: intPtr(3), ExecutionMode: models.ExecutionModeManual},                   // connection
		{ID: 3, UserID: "user-1", StrategyID: intPtr(7), ExecutionMode: models.ExecutionModeManual},                     // strategy
		{ID: 4, UserID: "user-1", StrategyID: intPtr(7), ConnectionID: intPtr(3), ExecutionMode: models.ExecutionModeManual}, // both
	}}
	gate := NewRiskGate(limits, NewMockOrderRepository())

	tests := []struct {
		name         string
		strategyID   *int
		connectionID int
		wantLimitID  int
	}{
		{"strategy+connection beats all", intPtr(7), 3, 4},
		{"connection beats strategy", nil, 3, 2},
		{"strategy beats global", intPtr(7), 99, 3},
		{"global fallback", nil, 99, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, err := gate.ResolveLimit("user-1", tt.strategyID, tt.connectionID)
			if err != nil {
				t.Fatalf("ResolveLimit() error = %v", err)
			}
			if limit == nil {
				t.Fatal("ResolveLimit() returned nil")
			}
			if limit.ID != tt.wantLimitID {
				t.Errorf("ResolveLimit() limit ID = %d, want %d", limit.ID, tt.wantLimitID)
			}
		})
	}
}

func TestRiskGateResolveLimit_TieBreakLowestID(t *testing.T) {
	limits := &MockRiskLimitRepository{limits: []*models.RiskLimit{
		{ID: 8, UserID: "user-1", ConnectionID: intPtr(3), ExecutionMode: models.ExecutionModeManual},
		{ID: 5, UserID: "user-1", ConnectionID: intPtr(3), ExecutionMode: models.ExecutionModeManual},
	}}
	gate := NewRiskGate(limits, NewMockOrderRepository())

	limit, err := gate.ResolveLimit("user-1", nil, 3)
	if err != nil {
		t.Fatalf("ResolveLimit() error = %v", err)
	}
	if limit.ID != 5 {
		t.Errorf("tie-break limit ID = %d, want 5 (lowest)", limit.ID)
	}
}

func TestRiskGateAuthorize_NoLimit(t *testing.T) {
	gate := NewRiskGate(&MockRiskLimitRepository{}, NewMockOrderRepository())
	conn := testConnection(3, false)

	// Ручной ордер без лимита разрешен
	if err := gate.Authorize(conn, manualOrder("BTC-USD", 1, 100), 0); err != nil {
		t.Errorf("manual order without limit: %v", err)
	}

	// Автоматический - запрещен
	auto := manualOrder("BTC-USD", 1, 100)
	auto.UserInitiated = false
	auto.StrategyID = intPtr(7)
	err := gate.Authorize(conn, auto, 0)
	if !IsDenial(err) {
		t.Errorf("automated order without limit: got %v, want DenialError", err)
	}
}

func TestRiskGateAuthorize_ExecutionModes(t *testing.T) {
	tests := []struct {
		name          string
		mode          string
		userInitiated bool
		sandbox       bool
		wantDenied    bool
	}{
		{"disabled denies manual", models.ExecutionModeDisabled, true, false, true},
		{"disabled denies automated", models.ExecutionModeDisabled, false, false, true},
		{"manual allows user order", models.ExecutionModeManual, true, false, false},
		{"manual denies automated", models.ExecutionModeManual, false, false, true},
		{"auto_sandbox allows automated on sandbox", models.ExecutionModeAutoSandbox, false, true, false},
		{"auto_sandbox denies automated on prod", models.ExecutionModeAutoSandbox, false, false, true},
		{"auto_sandbox allows manual on prod", models.ExecutionModeAutoSandbox, true, false, false},
		{"auto_prod allows automated on prod", models.ExecutionModeAutoProd, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := &MockRiskLimitRepository{limits: []*models.RiskLimit{
				{ID: 1, UserID: "user-1", ExecutionMode: tt.mode},
			}}
			gate := NewRiskGate(limits, NewMockOrderRepository())

			req := manualOrder("BTC-USD", 1, 100)
			req.UserInitiated = tt.userInitiated

			err := gate.Authorize(testConnection(3, tt.sandbox), req, 0)
			if tt.wantDenied && !IsDenial(err) {
				t.Errorf("got %v, want DenialError", err)
			}
			if !tt.wantDenied && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRiskGateAuthorize_SymbolWhitelist(t *testing.T) {
	limits := &MockRiskLimitRepository{limits: []*models.RiskLimit{
		{ID: 1, UserID: "user-1", ExecutionMode: models.ExecutionModeManual,
			AllowedSymbols: pq.StringArray{"BTC-USD", "ETH-USD"}},
	}}
	gate := NewRiskGate(limits, NewMockOrderRepository())
	conn := testConnection(3, false)

	if err := gate.Authorize(conn, manualOrder("BTC-USD", 1, 100), 0); err != nil {
		t.Errorf("whitelisted symbol: %v", err)
	}

	err := gate.Authorize(conn, manualOrder("DOGE-USD", 1, 100), 0)
	if !IsDenial(err) {
		t.Errorf("non-whitelisted symbol: got %v, want DenialError", err)
	}
}

func TestRiskGateAuthorize_PerOrderNotional(t *testing.T) {
	limits := &MockRiskLimitRepository{limits: []*models.RiskLimit{
		{ID: 1, UserID: "user-1", ExecutionMode: models.ExecutionModeManual, MaxNotionalPerOrder: 500},
	}}
	gate := NewRiskGate(limits, NewMockOrderRepository())
	conn := testConnection(3, false)

	// 4 * 100 = 400 < 500
	if err := gate.Authorize(conn, manualOrder("BTC-USD", 4, 100), 0); err != nil {
		t.Errorf("notional 400 under limit 500: %v", err)
	}

	// 6 * 100 = 600 > 500
	err := gate.Authorize(conn, manualOrder("BTC-USD", 6, 100), 0)
	if !IsDenial(err) {
		t.Errorf("notional 600 over limit 500: got %v, want DenialError", err)
	}
}

func TestRiskGateAuthorize_DailyNotional(t *testing.T) {
	orders := NewMockOrderRepository()
	orders.sumNotional = 1800

	limits := &MockRiskLimitRepository{limits: []*models.RiskLimit{
		{ID: 1, UserID: "user-1", ExecutionMode: models.ExecutionModeManual, MaxDailyNotional: 2000},
	}}
	gate := NewRiskGate(limits, orders)
	conn := testConnection(3, false)

	// 1800 + 100 = 1900 <= 2000
	if err := gate.Authorize(conn, manualOrder("BTC-USD", 1, 100), 0); err != nil {
		t.Errorf("within daily budget: %v", err)
	}

	// 1800 + 300 = 2100 > 2000
	err := gate.Authorize(conn, manualOrder("BTC-USD", 3, 100), 0)
	if !IsDenial(err) {
		t.Errorf("over daily budget: got %v, want DenialError", err)
	}
}

func TestRiskGateAuthorize_UnpricedMarketOrder(t *testing.T) {
	limits := &MockRiskLimitRepository{limits: []*models.RiskLimit{
		{ID: 1, UserID: "user-1", ExecutionMode: models.ExecutionModeManual, MaxNotionalPerOrder: 500},
	}}
	gate := NewRiskGate(limits, NewMockOrderRepository())
	conn := testConnection(3, false)

	// Market без reference price при notional-лимите - fail closed
	req := &models.OrderRequest{
		Symbol: "BTC-USD", Side: models.OrderSideBuy, Type: models.OrderTypeMarket,
		Quantity: 1, UserInitiated: true,
	}
	err := gate.Authorize(conn, req, 0)
	if !IsDenial(err) {
		t.Errorf("unpriced market order with notional cap: got %v, want DenialError", err)
	}

	// Без notional-лимитов market без цены разрешен
	limits.limits[0].MaxNotionalPerOrder = 0
	if err := gate.Authorize(conn, req, 0); err != nil {
		t.Errorf("unpriced market order without caps: %v", err)
	}
}

func TestRiskGateAuthorize_RepositoryError(t *testing.T) {
	limits := &MockRiskLimitRepository{err: errors.New("db down")}
	gate := NewRiskGate(limits, NewMockOrderRepository())

	err := gate.Authorize(testConnection(3, false), manualOrder("BTC-USD", 1, 100), 0)
	if err == nil || IsDenial(err) {
		t.Errorf("repository error must surface as plain error, got %v", err)
	}
}
