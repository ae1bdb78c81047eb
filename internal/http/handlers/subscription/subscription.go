// Package subscription реализует HTTP-обработчики текущей подписки:
// просмотр записи и доступных операций, отмену в конце периода,
// возобновление и смену тарифа.
//
// Изменяющие запросы выполняются с контекстом без отмены: обрыв соединения
// с браузером не должен прерывать уже начатое изменение на платформе.
package subscription

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/response"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

// Handler управляет HTTP-запросами по текущей подписке.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	validate *validator.Validate // Валидатор тела запроса смены тарифа
}

// Service описывает операции оркестратора подписки, доступные по HTTP.
type Service interface {
	Current() models.SubscriptionRecord
	LegalActions() []models.Action
	ViewState() models.ViewState
	CancelAtPeriodEnd(ctx context.Context) error
	Resume(ctx context.Context) error
	SwitchPlan(ctx context.Context, planType string) error
}

// SwitchRequest: тело запроса смены тарифа.
type SwitchRequest struct {
	PlanType string `json:"planType" validate:"required,max=64"`
}

// New создает новый Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{
		log:      log,
		validate: validator.New(),
	}
}

func (h *Handler) service(w http.ResponseWriter, r *http.Request, op string) (Service, *slog.Logger, bool) {
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	svc, ok := r.Context().Value(middlewarectx.Subscriptions).(Service)
	if !ok {
		log.Error("session not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return nil, log, false
	}
	return svc, log, true
}

// Current godoc
// @Summary Текущая подписка
// @Description Возвращает запись о подписке. Без подписки поле data отсутствует.
// @Tags Subscription
// @Produce json
// @Success 200 {object} response.Response "Запись о подписке"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /subscription [get]
// @Security BearerAuth
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	svc, _, ok := h.service(w, r, "handlers.subscription.Current")
	if !ok {
		return
	}
	rec := svc.Current()
	if rec.IsNone() {
		render.JSON(w, r, response.OK())
		return
	}
	render.JSON(w, r, response.StatusOKWithData(rec))
}

// Actions godoc
// @Summary Доступные операции
// @Description Перечисляет операции, допустимые для текущей записи о подписке.
// @Tags Subscription
// @Produce json
// @Success 200 {object} response.Response "Список операций"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /subscription/actions [get]
// @Security BearerAuth
func (h *Handler) Actions(w http.ResponseWriter, r *http.Request) {
	svc, _, ok := h.service(w, r, "handlers.subscription.Actions")
	if !ok {
		return
	}
	render.JSON(w, r, response.StatusOKWithData(svc.LegalActions()))
}

// Cancel godoc
// @Summary Отменить в конце периода
// @Description Ставит флаг отмены в конце оплаченного периода. Возвращает новое состояние.
// @Tags Subscription
// @Produce json
// @Success 200 {object} response.Response "Состояние после отмены"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Операция недопустима или уже выполняется"
// @Failure 502 {object} response.ErrorResponse "Платформа отклонила изменение"
// @Router /subscription/cancel [post]
// @Security BearerAuth
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	svc, log, ok := h.service(w, r, "handlers.subscription.Cancel")
	if !ok {
		return
	}
	err := svc.CancelAtPeriodEnd(context.WithoutCancel(r.Context()))
	h.respond(w, r, log, svc, err, "Failed to cancel subscription")
}

// Resume godoc
// @Summary Возобновить подписку
// @Description Снимает флаг отмены или возобновляет отменённую подписку.
// @Tags Subscription
// @Produce json
// @Success 200 {object} response.Response "Состояние после возобновления"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Операция недопустима или уже выполняется"
// @Failure 502 {object} response.ErrorResponse "Платформа отклонила изменение"
// @Router /subscription/resume [post]
// @Security BearerAuth
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	svc, log, ok := h.service(w, r, "handlers.subscription.Resume")
	if !ok {
		return
	}
	err := svc.Resume(context.WithoutCancel(r.Context()))
	h.respond(w, r, log, svc, err, "Failed to resume subscription")
}

// Switch godoc
// @Summary Сменить тариф
// @Description Переводит оплачиваемую подписку на другой тариф.
// @Tags Subscription
// @Accept json
// @Produce json
// @Param request body SwitchRequest true "Новый тариф"
// @Success 200 {object} response.Response "Состояние после смены тарифа"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Операция недопустима или уже выполняется"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации или неизвестный тариф"
// @Failure 502 {object} response.ErrorResponse "Платформа отклонила изменение"
// @Router /subscription/switch [post]
// @Security BearerAuth
func (h *Handler) Switch(w http.ResponseWriter, r *http.Request) {
	svc, log, ok := h.service(w, r, "handlers.subscription.Switch")
	if !ok {
		return
	}

	var req SwitchRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	err := svc.SwitchPlan(context.WithoutCancel(r.Context()), req.PlanType)
	h.respond(w, r, log, svc, err, "Failed to change plan")
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, log *slog.Logger, svc Service, err error, fallback string) {
	if err != nil {
		status, resp := response.FromError(err, fallback)
		log.Warn("subscription operation failed", slog.Int("status", status), sl.Err(err))
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(svc.ViewState()))
}
