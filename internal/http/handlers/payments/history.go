// Package payments отдаёт историю платежей пользователя с платформы.
package payments

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/response"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

// Handler управляет запросом истории платежей.
type Handler struct {
	log *slog.Logger
}

// Service: клиент платформы с токеном пользователя.
type Service interface {
	PaymentHistory(ctx context.Context) ([]models.PaymentHistoryEntry, error)
}

// New создает новый Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// ServeHTTP godoc
// @Summary История платежей
// @Tags Payments
// @Produce json
// @Success 200 {object} response.Response "Платежи пользователя"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 502 {object} response.ErrorResponse "Платформа недоступна"
// @Router /payments/history [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payments.History"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	svc, ok := r.Context().Value(middlewarectx.Payments).(Service)
	if !ok {
		log.Error("session not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	history, err := svc.PaymentHistory(r.Context())
	if err != nil {
		status, resp := response.FromError(err, "Failed to load payment history")
		log.Error("failed to load payment history", sl.Err(err))
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}
	if history == nil {
		history = []models.PaymentHistoryEntry{}
	}
	render.JSON(w, r, response.StatusOKWithData(history))
}
