package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradedesk/internal/api"
	"tradedesk/internal/config"
	"tradedesk/internal/repository"
	"tradedesk/internal/service"
	"tradedesk/internal/trading"
	"tradedesk/internal/websocket"
	"tradedesk/pkg/crypto"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database: %s", cfg.Database.DSNWithoutPassword())

	// Vault для шифрования секретов подключений
	vault, err := crypto.NewVault(cfg.Vault.Key, cfg.Vault.PreviousKey, cfg.Vault.KeyVersion)
	if err != nil {
		log.Fatalf("Failed to initialize vault: %v", err)
	}

	// Репозитории
	connectionRepo := repository.NewConnectionRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	riskLimitRepo := repository.NewRiskLimitRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)

	// WebSocket hub для real-time событий
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Сервис подключений: проверка, шифрование и резолв клиентов бирж
	connectionService := service.NewConnectionService(connectionRepo, balanceRepo, vault)

	// Пайплайн исполнения ордеров
	riskGate := trading.NewRiskGate(riskLimitRepo, orderRepo)
	executor := trading.NewExecutor(
		orderRepo,
		connectionRepo,
		riskGate,
		connectionService,
		hub,
		trading.ExecutorConfig{
			SubmitTimeout:       cfg.Executor.SubmitTimeout,
			MaxRateLimitRetries: cfg.Executor.MaxRateLimitRetries,
		},
	)

	// Фоновая сверка балансов
	reconciler := trading.NewReconciler(connectionRepo, balanceRepo, connectionService, hub)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go reconciler.Start(ctx, cfg.Reconciler.Interval)

	// HTTP роутер
	router := api.SetupRoutes(&api.Dependencies{
		ConnectionService: connectionService,
		Executor:          executor,
		Reconciler:        reconciler,
		Orders:            orderRepo,
		RiskLimits:        riskLimitRepo,
		Balances:          balanceRepo,
		Hub:               hub,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Останавливаем фоновую сверку до закрытия HTTP
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
