package trading

import (
	"fmt"
	"time"

	"tradedesk/internal/models"
)

// dailyWindow - скользящее окно дневного лимита.
// Именно скользящие 24 часа, а не календарный день: сброс в полночь
// позволял бы удвоить экспозицию на границе суток.
const dailyWindow = 24 * time.Hour

// RiskGate авторизует ордера по risk-лимитам пользователя.
//
// Порядок проверок:
//  1. выбор самого специфичного лимита для (стратегия, подключение);
//  2. execution mode: кто и где имеет право исполняться;
//  3. whitelist символов;
//  4. notional на ордер;
//  5. скользящий 24-часовой бюджет notional.
//
// Любой отказ - *DenialError с причиной для журнала ордера.
type RiskGate struct {
	limits RiskLimitRepositoryInterface
	orders OrderRepositoryInterface
}

// NewRiskGate создает новый risk gate
func NewRiskGate(limits RiskLimitRepositoryInterface, orders OrderRepositoryInterface) *RiskGate {
	return &RiskGate{limits: limits, orders: orders}
}

// ResolveLimit возвращает самый специфичный лимит для ордера.
// При равной специфичности выигрывает лимит с меньшим ID: выбор должен
// быть детерминированным между перезапусками.
// Возвращает nil если ни один лимит не подходит.
func (g *RiskGate) ResolveLimit(userID string, strategyID *int, connectionID int) (*models.RiskLimit, error) {
	limits, err := g.limits.GetForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("load risk limits: %w", err)
	}

	var best *models.RiskLimit
	for _, limit := range limits {
		if !limit.Matches(strategyID, connectionID) {
			continue
		}
		if best == nil {
			best = limit
			continue
		}
		if limit.Specificity() > best.Specificity() {
			best = limit
			continue
		}
		if limit.Specificity() == best.Specificity() && limit.ID < best.ID {
			best = limit
		}
	}

	return best, nil
}

// Authorize проверяет ордер по лимитам и возвращает nil либо *DenialError.
// orderID - id уже записанной pending-строки этого ордера; она исключается
// из подсчета дневного бюджета, иначе ордер считался бы дважды (0 - записи нет).
func (g *RiskGate) Authorize(conn *models.Connection, req *models.OrderRequest, orderID int) error {
	limit, err := g.ResolveLimit(conn.UserID, req.StrategyID, conn.ID)
	if err != nil {
		return err
	}

	// Без подходящего лимита автоматика запрещена: автономный ордер
	// без явно настроенных границ - это ошибка конфигурации, а не свобода.
	// Ручные ордера пользователя разрешены.
	if limit == nil {
		if !req.UserInitiated {
			RiskDenials.WithLabelValues("no_limit_for_automation").Inc()
			return &DenialError{Reason: "no risk limit configured for automated execution"}
		}
		return nil
	}

	if err := g.checkExecutionMode(limit, conn, req); err != nil {
		return err
	}

	if !limit.AllowsSymbol(req.Symbol) {
		RiskDenials.WithLabelValues("symbol_not_allowed").Inc()
		return &DenialError{
			Reason:  fmt.Sprintf("symbol %s is not in the allowed list", req.Symbol),
			LimitID: limit.ID,
		}
	}

	return g.checkNotional(limit, conn, req, orderID)
}

func (g *RiskGate) checkExecutionMode(limit *models.RiskLimit, conn *models.Connection, req *models.OrderRequest) error {
	switch limit.ExecutionMode {
	case models.ExecutionModeDisabled:
		RiskDenials.WithLabelValues("execution_disabled").Inc()
		return &DenialError{Reason: "execution is disabled by risk limit", LimitID: limit.ID}

	case models.ExecutionModeManual:
		if !req.UserInitiated {
			RiskDenials.WithLabelValues("automation_not_allowed").Inc()
			return &DenialError{Reason: "only user-initiated orders are allowed", LimitID: limit.ID}
		}

	case models.ExecutionModeAutoSandbox:
		if !req.UserInitiated && !conn.IsSandbox() {
			RiskDenials.WithLabelValues("automation_sandbox_only").Inc()
			return &DenialError{Reason: "automated execution is allowed on sandbox connections only", LimitID: limit.ID}
		}

	case models.ExecutionModeAutoProd:
		// автоматика разрешена везде

	default:
		RiskDenials.WithLabelValues("unknown_execution_mode").Inc()
		return &DenialError{
			Reason:  fmt.Sprintf("unknown execution mode %q", limit.ExecutionMode),
			LimitID: limit.ID,
		}
	}

	return nil
}

func (g *RiskGate) checkNotional(limit *models.RiskLimit, conn *models.Connection, req *models.OrderRequest, orderID int) error {
	hasNotionalCaps := limit.MaxNotionalPerOrder > 0 || limit.MaxDailyNotional > 0
	notional := req.Notional()

	// Market-ордер без reference price имеет notional 0: при настроенных
	// notional-лимитах такой ордер отклоняется (fail closed), потому что
	// его экспозицию невозможно посчитать до исполнения.
	if hasNotionalCaps && notional == 0 {
		RiskDenials.WithLabelValues("unpriced_order").Inc()
		return &DenialError{
			Reason:  "order has no reference price, cannot evaluate notional limits",
			LimitID: limit.ID,
		}
	}

	if limit.MaxNotionalPerOrder > 0 && notional > limit.MaxNotionalPerOrder {
		RiskDenials.WithLabelValues("per_order_notional").Inc()
		return &DenialError{
			Reason:  fmt.Sprintf("order notional %.2f exceeds per-order limit %.2f", notional, limit.MaxNotionalPerOrder),
			LimitID: limit.ID,
		}
	}

	if limit.MaxDailyNotional > 0 {
		since := time.Now().Add(-dailyWindow)
		used, err := g.orders.SumNotionalSince(conn.UserID, limit.StrategyID, limit.ConnectionID, since, orderID)
		if err != nil {
			return fmt.Errorf("compute daily notional usage: %w", err)
		}

		if used+notional > limit.MaxDailyNotional {
			RiskDenials.WithLabelValues("daily_notional").Inc()
			return &DenialError{
				Reason: fmt.Sprintf("daily notional %.2f + order %.2f exceeds limit %.2f",
					used, notional, limit.MaxDailyNotional),
				LimitID: limit.ID,
			}
		}
	}

	return nil
}
