package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradedesk/internal/api/handlers"
	"tradedesk/internal/api/middleware"
	"tradedesk/internal/repository"
	"tradedesk/internal/service"
	"tradedesk/internal/trading"
	"tradedesk/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	ConnectionService *service.ConnectionService
	Executor          *trading.Executor
	Reconciler        *trading.Reconciler
	Orders            *repository.OrderRepository
	RiskLimits        *repository.RiskLimitRepository
	Balances          *repository.BalanceRepository
	Hub               *websocket.Hub
}

// SetupRoutes настраивает все HTTP маршруты приложения.
//
// Структура маршрутов:
//
// /api/v1/ (за Identity middleware, X-User-ID обязателен)
//
//	├── /connections/
//	│   ├── GET    /                 - список подключений
//	│   ├── POST   /                 - создать подключение
//	│   ├── GET    /{id}             - получить подключение
//	│   ├── DELETE /{id}             - удалить подключение
//	│   ├── POST   /{id}/test        - проверить учетные данные
//	│   ├── POST   /{id}/oauth       - завершить OAuth flow
//	│   ├── PUT    /{id}/credentials - заменить учетные данные
//	│   ├── POST   /{id}/sync        - сверить балансы
//	│   └── GET    /{id}/balances    - балансы подключения
//	├── /orders/
//	│   ├── GET  /      - журнал ордеров
//	│   ├── POST /      - разместить ордер
//	│   └── GET  /{id}  - получить ордер
//	├── /risk-limits/
//	│   ├── GET    /     - список лимитов
//	│   ├── POST   /     - создать лимит
//	│   ├── PUT    /{id} - обновить лимит
//	│   └── DELETE /{id} - удалить лимит
//	└── /balances - все балансы пользователя
//
// /ws/stream - WebSocket поток событий (orderUpdate, balanceSync)
// /metrics   - Prometheus метрики
// /health    - health check
// /debug/pprof/* - профилировщик (за DebugAuth)
//
// Middleware применяется в порядке: Recovery, Logging, CORS,
// затем Identity только для /api/v1.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	connectionHandler := handlers.NewConnectionHandler(deps.ConnectionService, deps.Reconciler)
	orderHandler := handlers.NewOrderHandler(deps.Executor, deps.Orders)
	riskLimitHandler := handlers.NewRiskLimitHandler(deps.RiskLimits)
	balanceHandler := handlers.NewBalanceHandler(deps.Balances, deps.ConnectionService)

	// API v1: все маршруты требуют identity
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Identity)

	// Connection routes
	api.HandleFunc("/connections", connectionHandler.GetConnections).Methods("GET")
	api.HandleFunc("/connections", connectionHandler.Connect).Methods("POST")
	api.HandleFunc("/connections/{id}", connectionHandler.GetConnection).Methods("GET")
	api.HandleFunc("/connections/{id}", connectionHandler.Disconnect).Methods("DELETE")
	api.HandleFunc("/connections/{id}/test", connectionHandler.TestConnection).Methods("POST")
	api.HandleFunc("/connections/{id}/oauth", connectionHandler.CompleteOAuth).Methods("POST")
	api.HandleFunc("/connections/{id}/credentials", connectionHandler.UpdateCredentials).Methods("PUT")
	api.HandleFunc("/connections/{id}/sync", connectionHandler.SyncBalances).Methods("POST")
	api.HandleFunc("/connections/{id}/balances", balanceHandler.GetConnectionBalances).Methods("GET")

	// Order routes
	api.HandleFunc("/orders", orderHandler.GetOrders).Methods("GET")
	api.HandleFunc("/orders", orderHandler.PlaceOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", orderHandler.GetOrder).Methods("GET")

	// Risk limit routes
	api.HandleFunc("/risk-limits", riskLimitHandler.GetRiskLimits).Methods("GET")
	api.HandleFunc("/risk-limits", riskLimitHandler.CreateRiskLimit).Methods("POST")
	api.HandleFunc("/risk-limits/{id}", riskLimitHandler.UpdateRiskLimit).Methods("PUT")
	api.HandleFunc("/risk-limits/{id}", riskLimitHandler.DeleteRiskLimit).Methods("DELETE")

	// Balance routes
	api.HandleFunc("/balances", balanceHandler.GetBalances).Methods("GET")

	// WebSocket: identity проверяется внутри ServeWS по тому же заголовку
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Профилировщик за Basic auth
	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.PathPrefix("/").Handler(http.HandlerFunc(pprof.Index))

	return router
}
