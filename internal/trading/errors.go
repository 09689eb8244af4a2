package trading

import "errors"

// ErrSyncInProgress - сверка балансов этого подключения уже выполняется.
// Конкурентный запрос не запускает вторую: single-flight на подключение.
var ErrSyncInProgress = errors.New("balance sync already in progress for connection")

// ValidationError - запрос отклонен до обращения к risk-лимитам и бирже
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Field + ": " + e.Message
}

// DenialError - risk gate запретил исполнение.
// Причина попадает в reject_reason ордера и в ответ API.
type DenialError struct {
	Reason string
	// LimitID - лимит, вынесший решение; 0 если подходящего лимита нет
	LimitID int
}

func (e *DenialError) Error() string {
	return "risk denied: " + e.Reason
}

// IsDenial возвращает true если ошибка - отказ risk gate
func IsDenial(err error) bool {
	var denial *DenialError
	return errors.As(err, &denial)
}

// IsValidation возвращает true если ошибка - отказ валидации входа
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}
