// Package paymentprovider содержит адаптер платёжного провайдера: токенизация карты
// и подтверждение первого списания по секрету намерения.
package paymentprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator"
)

// StatusSucceeded: единственный статус подтверждения, означающий успех.
const StatusSucceeded = "succeeded"

// Provider: поверхность провайдера, которой пользуется сессия оплаты.
type Provider interface {
	TokenizeCard(ctx context.Context, card CardInput) (PaymentMethod, error)
	ConfirmPayment(ctx context.Context, clientSecret, paymentMethodID string) (Confirmation, error)
}

// CardInput: данные карты, введённые пользователем.
type CardInput struct {
	Number   string `json:"number" validate:"required,numeric,min=12,max=19"`
	ExpMonth int64  `json:"expMonth" validate:"required,min=1,max=12"`
	ExpYear  int64  `json:"expYear" validate:"required,min=2000,max=2100"`
	CVC      string `json:"cvc" validate:"required,numeric,min=3,max=4"`
}

var validate = validator.New()

// Validate проверяет заполненность и формат полей карты.
func (c CardInput) Validate() error {
	return validate.Struct(c)
}

// Complete сообщает, что карта заполнена полностью.
func (c CardInput) Complete() bool {
	return c.Validate() == nil
}

// PaymentMethod: токенизированная карта.
type PaymentMethod struct {
	ID    string
	Brand string
	Last4 string
}

// Confirmation: результат подтверждения у провайдера.
type Confirmation struct {
	IntentID string
	Status   string
}

// Succeeded сообщает о завершённом списании.
func (c Confirmation) Succeeded() bool {
	return c.Status == StatusSucceeded
}

// ErrUnavailable: провайдер временно недоступен, вызовы не выполняются.
var ErrUnavailable = errors.New("payment provider unavailable")

// ProviderError: отказ провайдера с текстом, пригодным для показа пользователю.
type ProviderError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AsProviderError достаёт ProviderError из цепочки.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
