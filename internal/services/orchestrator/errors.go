package orchestrator

import (
	"errors"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/checkout"
)

var (
	// ErrIllegalTransition: операция недопустима для текущей записи о подписке.
	// Сеть при этом не вызывается.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrOperationInProgress: другая изменяющая операция ещё не завершилась.
	ErrOperationInProgress = errors.New("operation in progress")
	// ErrNoActiveSession: платёжная сессия не найдена или уже закрыта.
	ErrNoActiveSession = errors.New("no active payment session")
	// ErrSessionDismissed: сессию закрыли до завершения, результат отброшен.
	ErrSessionDismissed = errors.New("payment session dismissed")
	// ErrUnknownPlan: тарифа нет в каталоге.
	ErrUnknownPlan = errors.New("unknown plan")
)

const (
	msgIllegal         = "This action is not available for your current subscription."
	msgInProgress      = "Another operation is already in progress."
	msgUnauthenticated = "Your session has expired. Please sign in again."
	msgUnknownPlan     = "Selected plan is not available."

	fallbackCheckout = "Payment failed. Please try again."
	fallbackCancel   = "Failed to cancel subscription"
	fallbackResume   = "Failed to resume subscription"
	fallbackSwitch   = "Failed to change plan"
)

// Message переводит ошибку операции в одно сообщение для пользователя.
// fallback используется, когда у ошибки нет собственного текста.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var (
		te *checkout.TokenizationError
		cf *checkout.ConfirmationFailedError
	)
	switch {
	case errors.Is(err, ErrIllegalTransition):
		return msgIllegal
	case errors.Is(err, ErrOperationInProgress):
		return msgInProgress
	case errors.Is(err, ErrUnknownPlan):
		return msgUnknownPlan
	case errors.Is(err, apiclient.ErrUnauthenticated):
		return msgUnauthenticated
	case errors.Is(err, checkout.ErrCardInputInvalid), errors.Is(err, checkout.ErrConfirmationIncomplete):
		return err.Error()
	case errors.As(err, &te):
		return te.Message
	case errors.As(err, &cf):
		return cf.Message
	}
	if rej, ok := apiclient.IsServerRejected(err); ok && rej.Message != "" {
		return rej.Message
	}
	return fallback
}

// result: метка исхода операции для метрик.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal"
	case errors.Is(err, ErrOperationInProgress):
		return "in_progress"
	case errors.Is(err, apiclient.ErrUnauthenticated):
		return "unauthenticated"
	}
	if _, ok := apiclient.IsServerRejected(err); ok {
		return "rejected"
	}
	return "error"
}
