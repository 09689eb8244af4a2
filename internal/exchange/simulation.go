package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"
)

// Simulation реализует ExchangeClient без сетевых вызовов.
// Используется для paper-trading подключений: детерминированные балансы,
// мгновенные заполнения, никаких учетных данных.
type Simulation struct {
	seq atomic.Int64
}

func newSimulation(cfg ClientConfig) (ExchangeClient, error) {
	return &Simulation{}, nil
}

func (s *Simulation) Provider() string { return "simulation" }

// GetBalances возвращает фиксированный стартовый портфель
func (s *Simulation) GetBalances(ctx context.Context) ([]Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return []Balance{
		{Currency: "USD", Total: 100000, Available: 100000},
		{Currency: "USDT", Total: 50000, Available: 50000},
		{Currency: "BTC", Total: 1.5, Available: 1.5},
		{Currency: "ETH", Total: 20, Available: 20},
	}, nil
}

// CreateOrder принимает любой валидный ордер и сразу помечает его заполненным.
// ID детерминированно выводится из client order id, чтобы повтор того же
// запроса дал тот же exchange order id.
func (s *Simulation) CreateOrder(ctx context.Context, params OrderParams) (*OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if params.Quantity <= 0 {
		return nil, &RejectionError{Provider: "simulation", Code: "invalid_quantity", Message: "quantity must be positive"}
	}

	seed := params.ClientOrderID
	if seed == "" {
		seed = params.Symbol + strconv.FormatInt(s.seq.Add(1), 10) + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	sum := sha256.Sum256([]byte(seed))

	return &OrderAck{
		ExchangeOrderID: "sim-" + hex.EncodeToString(sum[:8]),
		Status:          "filled",
	}, nil
}

func (s *Simulation) TestConnection(ctx context.Context) bool {
	return ctx.Err() == nil
}
