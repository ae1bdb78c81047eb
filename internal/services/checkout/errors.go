package checkout

import "errors"

var (
	// ErrCardInputInvalid: данные карты заполнены не полностью.
	ErrCardInputInvalid = errors.New("Please complete your card details.")
	// ErrConfirmationIncomplete: провайдер вернул статус, отличный от succeeded.
	ErrConfirmationIncomplete = errors.New("Payment not completed. Please try again.")
	// ErrSessionUsed: сессия уже запускалась. Сессии не возобновляются.
	ErrSessionUsed = errors.New("payment session already used")
)

// TokenizationError: провайдер отказался токенизировать карту.
type TokenizationError struct {
	Message string
	Err     error
}

func (e *TokenizationError) Error() string { return e.Message }

func (e *TokenizationError) Unwrap() error { return e.Err }

// ConfirmationFailedError: провайдер сообщил об ошибке подтверждения.
type ConfirmationFailedError struct {
	Message string
	Err     error
}

func (e *ConfirmationFailedError) Error() string { return e.Message }

func (e *ConfirmationFailedError) Unwrap() error { return e.Err }
