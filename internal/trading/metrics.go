package trading

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах

// OrdersSubmitted - количество попыток размещения по провайдерам и исходам
var OrdersSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradedesk",
		Subsystem: "trading",
		Name:      "orders_submitted_total",
		Help:      "Total order placement attempts by provider and outcome",
	},
	[]string{"provider", "outcome"},
)

// OrderExecutionLatency - время исполнения ордера на бирже
var OrderExecutionLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tradedesk",
		Subsystem: "trading",
		Name:      "order_execution_latency_ms",
		Help:      "Time to submit order to exchange in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000, 10000},
	},
	[]string{"provider", "side"},
)

// RiskDenials - отказы risk gate по причинам
var RiskDenials = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradedesk",
		Subsystem: "trading",
		Name:      "risk_denials_total",
		Help:      "Total orders denied by the risk gate, by reason",
	},
	[]string{"reason"},
)

// BalanceSyncs - сверки балансов по провайдерам и результатам
var BalanceSyncs = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradedesk",
		Subsystem: "reconciler",
		Name:      "balance_syncs_total",
		Help:      "Total balance reconciliation runs by provider and result",
	},
	[]string{"provider", "result"},
)

// BalanceSyncLatency - длительность одной сверки
var BalanceSyncLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "tradedesk",
		Subsystem: "reconciler",
		Name:      "balance_sync_latency_ms",
		Help:      "Duration of a single balance reconciliation in milliseconds",
		Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000},
	},
)

// IdempotentReplays - повторные запросы, перехваченные ключом идемпотентности
var IdempotentReplays = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradedesk",
		Subsystem: "trading",
		Name:      "idempotent_replays_total",
		Help:      "Total order requests answered from an existing idempotency key",
	},
)
