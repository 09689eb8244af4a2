package exchange

import (
	"context"
	"errors"
	"net"
	"time"
)

// Ошибки конфигурации фабрики
var (
	ErrUnsupportedConfiguration = errors.New("unsupported provider/api-family configuration")
	ErrMissingCredentials       = errors.New("missing credentials for exchange client")
)

// AuthError - биржа отклонила учетные данные.
// Не retry'ится; подключение помечается статусом error.
type AuthError struct {
	Provider string
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	return e.Provider + ": authentication failed: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError - биржа ответила превышением лимита запросов.
// Retryable: исполнитель повторяет с экспоненциальным backoff
// в пределах бюджета попыток.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration // 0 если биржа не сообщила
	Err        error
}

func (e *RateLimitError) Error() string {
	return e.Provider + ": rate limit exceeded"
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// Retryable реализует retry.RetryableError
func (e *RateLimitError) Retryable() bool { return true }

// RejectionError - биржа приняла запрос, но отклонила ордер
// (валидация на стороне биржи, недостаточно средств и т.п.).
// Причина сохраняется в записи ордера.
type RejectionError struct {
	Provider string
	Code     string
	Message  string
}

func (e *RejectionError) Error() string {
	return e.Provider + ": order rejected [" + e.Code + "]: " + e.Message
}

// IsTimeout возвращает true для таймаут-класса ошибок.
// Биржа могла получить ордер несмотря на клиентский таймаут, поэтому
// такие ошибки отличаются от жестких отказов: последующая сверка
// может запросить статус ордера на стороне биржи.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsAuth возвращает true если ошибка вызвана невалидными учетными данными
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsRateLimit возвращает true для ошибок превышения лимита запросов
func IsRateLimit(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// IsRejection возвращает true если биржа отклонила ордер
func IsRejection(err error) bool {
	var rejErr *RejectionError
	return errors.As(err, &rejErr)
}
