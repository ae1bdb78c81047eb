// Package plans отдаёт каталог тарифов пользователя.
package plans

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/response"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

// Handler управляет запросами каталога тарифов.
type Handler struct {
	log *slog.Logger
}

// Service: источник каталога из сессии пользователя.
type Service interface {
	Plans() []models.PlanOffer
}

// New создает новый Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// ServeHTTP godoc
// @Summary Каталог тарифов
// @Description Возвращает тарифы, загруженные при открытии сессии. Недоступный каталог отдаётся пустым списком.
// @Tags Plans
// @Produce json
// @Success 200 {object} response.Response "Список тарифов"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /plans [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plans.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	svc, ok := r.Context().Value(middlewarectx.Subscriptions).(Service)
	if !ok {
		log.Error("session not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	plans := svc.Plans()
	log.Debug("plans listed", slog.Int("count", len(plans)))
	render.JSON(w, r, response.StatusOKWithData(plans))
}
