// Package enrollment реализует HTTP-обработчики зачислений на курсы.
package enrollment

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/response"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

// Handler управляет HTTP-запросами зачислений.
type Handler struct {
	log *slog.Logger
}

// Service описывает зеркало зачислений пользователя.
type Service interface {
	List() []models.EnrollmentRecord
	Enroll(ctx context.Context, courseID string) error
	Unenroll(ctx context.Context, courseID string) error
	Summary(ctx context.Context) []models.EnrollmentSummary
}

// New создает новый Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

func (h *Handler) service(w http.ResponseWriter, r *http.Request, op string) (Service, *slog.Logger, bool) {
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	svc, ok := r.Context().Value(middlewarectx.Enrollments).(Service)
	if !ok {
		log.Error("session not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return nil, log, false
	}
	return svc, log, true
}

// List godoc
// @Summary Мои зачисления
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Response "Список зачислений, новые первыми"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /enrollments [get]
// @Security BearerAuth
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	svc, _, ok := h.service(w, r, "handlers.enrollment.List")
	if !ok {
		return
	}
	render.JSON(w, r, response.StatusOKWithData(svc.List()))
}

// Enroll godoc
// @Summary Записаться на курс
// @Tags Enrollments
// @Produce json
// @Param courseID path string true "ID курса"
// @Success 200 {object} response.Response "Список зачислений после записи"
// @Failure 409 {object} response.ErrorResponse "Операция по курсу уже выполняется"
// @Failure 502 {object} response.ErrorResponse "Платформа отклонила запись"
// @Router /enrollments/{courseID} [post]
// @Security BearerAuth
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	svc, log, ok := h.service(w, r, "handlers.enrollment.Enroll")
	if !ok {
		return
	}
	courseID := chi.URLParam(r, "courseID")

	if err := svc.Enroll(context.WithoutCancel(r.Context()), courseID); err != nil {
		status, resp := response.FromError(err, "Failed to enroll")
		log.Warn("enroll failed", slog.String("course", courseID), sl.Err(err))
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(svc.List()))
}

// Unenroll godoc
// @Summary Отписаться от курса
// @Tags Enrollments
// @Produce json
// @Param courseID path string true "ID курса"
// @Success 200 {object} response.Response "Список зачислений после отчисления"
// @Failure 409 {object} response.ErrorResponse "Операция по курсу уже выполняется"
// @Failure 502 {object} response.ErrorResponse "Платформа отклонила отчисление"
// @Router /enrollments/{courseID} [delete]
// @Security BearerAuth
func (h *Handler) Unenroll(w http.ResponseWriter, r *http.Request) {
	svc, log, ok := h.service(w, r, "handlers.enrollment.Unenroll")
	if !ok {
		return
	}
	courseID := chi.URLParam(r, "courseID")

	if err := svc.Unenroll(context.WithoutCancel(r.Context()), courseID); err != nil {
		status, resp := response.FromError(err, "Failed to unenroll")
		log.Warn("unenroll failed", slog.String("course", courseID), sl.Err(err))
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(svc.List()))
}

// Summary godoc
// @Summary Сводка зачислений
// @Description Число зачислений по курсам. Ошибка платформы даёт пустой список.
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Response "Сводка"
// @Router /enrollments/summary [get]
// @Security BearerAuth
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	svc, _, ok := h.service(w, r, "handlers.enrollment.Summary")
	if !ok {
		return
	}
	render.JSON(w, r, response.StatusOKWithData(svc.Summary(r.Context())))
}
