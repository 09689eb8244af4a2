package trading

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tradedesk/internal/exchange"
	"tradedesk/internal/models"
	"tradedesk/pkg/retry"
)

// Reconciler сверяет локальные балансы с биржей.
//
// Запись только аддитивная: upsert по (user_id, connection_id, currency).
// Валюта, пропавшая из ответа биржи, сохраняет последнее известное
// значение - сверка никогда не удаляет строки.
//
// На каждое подключение действует single-flight: конкурентный запрос
// сверки того же подключения получает ErrSyncInProgress вместо второго
// обращения к бирже.
type Reconciler struct {
	connections ConnectionRepositoryInterface
	balances    BalanceRepositoryInterface
	resolver    ClientResolver
	broadcaster Broadcaster // может быть nil

	mu       sync.Mutex
	inFlight map[int]struct{}
}

// NewReconciler создает новый reconciler
func NewReconciler(
	connections ConnectionRepositoryInterface,
	balances BalanceRepositoryInterface,
	resolver ClientResolver,
	broadcaster Broadcaster,
) *Reconciler {
	return &Reconciler{
		connections: connections,
		balances:    balances,
		resolver:    resolver,
		broadcaster: broadcaster,
		inFlight:    make(map[int]struct{}),
	}
}

// SyncConnection выполняет одну сверку балансов подключения
func (r *Reconciler) SyncConnection(ctx context.Context, connectionID int) error {
	r.mu.Lock()
	if _, busy := r.inFlight[connectionID]; busy {
		r.mu.Unlock()
		return ErrSyncInProgress
	}
	r.inFlight[connectionID] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inFlight, connectionID)
		r.mu.Unlock()
	}()

	started := time.Now()
	err := r.sync(ctx, connectionID)
	BalanceSyncLatency.Observe(float64(time.Since(started).Milliseconds()))

	return err
}

func (r *Reconciler) sync(ctx context.Context, connectionID int) error {
	client, conn, err := r.resolver.ResolveClient(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("resolve client for connection %d: %w", connectionID, err)
	}

	cfg := retry.ConservativeConfig()
	// Auth-ошибки и отмену контекста не повторяем; сетевые сбои - да
	cfg.RetryIf = func(err error) bool {
		return retry.RetryIfNotContext(err) && !exchange.IsAuth(err)
	}

	balances, err := retry.DoWithResult(ctx, func() ([]exchange.Balance, error) {
		return client.GetBalances(ctx)
	}, cfg)

	if err != nil {
		BalanceSyncs.WithLabelValues(conn.Provider, "error").Inc()
		if exchange.IsAuth(err) {
			if updateErr := r.connections.UpdateStatus(conn.ID, models.ConnectionStatusError, err.Error()); updateErr != nil {
				log.Printf("connection %d: failed to mark error status: %v", conn.ID, updateErr)
			}
		}
		return fmt.Errorf("fetch balances from %s: %w", conn.Provider, err)
	}

	syncedAt := time.Now()
	written := 0
	for _, b := range balances {
		// Нулевые строки не пишем: биржи отдают сотни пустых валют
		if b.Total <= 0 {
			continue
		}
		balance := &models.Balance{
			UserID:       conn.UserID,
			ConnectionID: conn.ID,
			Currency:     b.Currency,
			Total:        b.Total,
			Available:    b.Available,
			SyncedAt:     syncedAt,
		}
		if err := r.balances.Upsert(balance); err != nil {
			BalanceSyncs.WithLabelValues(conn.Provider, "error").Inc()
			return fmt.Errorf("upsert balance %s: %w", b.Currency, err)
		}
		written++
	}

	if err := r.connections.SetLastSync(conn.ID, syncedAt); err != nil {
		log.Printf("connection %d: failed to stamp last sync: %v", conn.ID, err)
	}

	BalanceSyncs.WithLabelValues(conn.Provider, "success").Inc()

	if r.broadcaster != nil {
		r.broadcaster.BroadcastBalanceSync(conn.UserID, conn.ID, written)
	}

	return nil
}

// Start запускает периодическую сверку всех активных подключений.
// Блокирует до отмены контекста; запускать в отдельной горутине.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("balance reconciler started, interval %v", interval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("balance reconciler stopped")
			return
		case <-ticker.C:
			r.syncAll(ctx)
		}
	}
}

func (r *Reconciler) syncAll(ctx context.Context) {
	connections, err := r.connections.GetActive()
	if err != nil {
		log.Printf("reconciler: failed to list active connections: %v", err)
		return
	}

	for _, conn := range connections {
		if err := r.SyncConnection(ctx, conn.ID); err != nil {
			if err == ErrSyncInProgress {
				continue
			}
			log.Printf("reconciler: connection %d sync failed: %v", conn.ID, err)
		}
	}
}
