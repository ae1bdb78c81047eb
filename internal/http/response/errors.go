package response

import (
	"errors"
	"net/http"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/paymentprovider"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/checkout"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/enrollment"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/orchestrator"
)

// FromError подбирает HTTP-статус и тело ответа для ошибки операции.
// fallback — текст для ошибок без собственного сообщения.
//
//	409  недопустимый переход, операция уже выполняется
//	402  карта, токенизация, подтверждение платежа
//	401  платформа не приняла токен
//	502  платформа отклонила изменение или не ответила
//	503  платёжный провайдер недоступен
func FromError(err error, fallback string) (int, ErrorResponse) {
	return statusOf(err), Error(orchestrator.Message(err, fallback))
}

func statusOf(err error) int {
	var (
		te *checkout.TokenizationError
		cf *checkout.ConfirmationFailedError
		fe *apiclient.FetchError
	)
	switch {
	case errors.Is(err, orchestrator.ErrIllegalTransition),
		errors.Is(err, orchestrator.ErrOperationInProgress),
		errors.Is(err, enrollment.ErrOperationInProgress),
		errors.Is(err, orchestrator.ErrSessionDismissed),
		errors.Is(err, checkout.ErrSessionUsed):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrUnknownPlan),
		errors.Is(err, enrollment.ErrEmptyCourseID):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apiclient.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, paymentprovider.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, checkout.ErrCardInputInvalid),
		errors.Is(err, checkout.ErrConfirmationIncomplete),
		errors.As(err, &te),
		errors.As(err, &cf):
		return http.StatusPaymentRequired
	case errors.Is(err, apiclient.ErrTransport), errors.As(err, &fe):
		return http.StatusBadGateway
	}
	if _, ok := apiclient.IsServerRejected(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
