// Package checkout реализует HTTP-обработчики оформления подписки:
// выбор тарифа открывает платёжную сессию, оплата проводит её по фазам,
// закрытие бросает сессию без ожидания результата.
package checkout

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/response"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
	"github.com/magabrotheeeer/course-subscriptions/internal/paymentprovider"
	checkoutsvc "github.com/magabrotheeeer/course-subscriptions/internal/services/checkout"
)

const fallbackPayment = "Payment failed. Please try again."

// Handler управляет HTTP-запросами платёжной сессии.
type Handler struct {
	log      *slog.Logger
	validate *validator.Validate
}

// Service описывает операции оркестратора, связанные с оформлением.
type Service interface {
	SelectPlan(planType string) (*checkoutsvc.Session, error)
	SubmitPayment(ctx context.Context, sessionID string, card paymentprovider.CardInput) error
	DismissCheckout(sessionID string) error
	ViewState() models.ViewState
}

// StartRequest: тело запроса выбора тарифа.
type StartRequest struct {
	PlanType string `json:"planType" validate:"required,max=64"`
}

// StartResponse описывает открытую платёжную сессию.
type StartResponse struct {
	SessionID string               `json:"sessionId"`
	PlanType  string               `json:"planType"`
	Phase     models.CheckoutPhase `json:"phase"`
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

// Start godoc
// @Summary Выбрать тариф
// @Description Открывает платёжную сессию для тарифа. Допустимо только без подписки.
// @Tags Checkout
// @Accept json
// @Produce json
// @Param request body StartRequest true "Тариф"
// @Success 201 {object} response.Response "Открытая сессия"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 409 {object} response.ErrorResponse "Подписка уже есть или идёт другая операция"
// @Failure 422 {object} response.ErrorResponse "Неизвестный тариф"
// @Router /subscription/checkout [post]
// @Security BearerAuth
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	svc, log, ok := h.service(w, r, "handlers.checkout.Start")
	if !ok {
		return
	}

	var req StartRequest
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

	session, err := svc.SelectPlan(req.PlanType)
	if err != nil {
		status, resp := response.FromError(err, fallbackPayment)
		log.Warn("plan selection rejected", slog.String("plan", req.PlanType), sl.Err(err))
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("checkout started", slog.String("session", session.ID), slog.String("plan", req.PlanType))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(StartResponse{
		SessionID: session.ID,
		PlanType:  session.PlanType,
		Phase:     session.Phase(),
	}))
}

// Pay godoc
// @Summary Оплатить
// @Description Токенизирует карту, создаёт подписку на платформе и подтверждает первый платёж.
// @Tags Checkout
// @Accept json
// @Produce json
// @Param id path string true "ID платёжной сессии"
// @Param request body paymentprovider.CardInput true "Данные карты"
// @Success 200 {object} response.Response "Состояние после оплаты"
// @Failure 402 {object} response.ErrorResponse "Карта отклонена или платёж не завершён"
// @Failure 404 {object} response.ErrorResponse "Сессия не найдена"
// @Failure 409 {object} response.ErrorResponse "Сессия закрыта или идёт другая операция"
// @Failure 502 {object} response.ErrorResponse "Платформа отклонила подписку"
// @Router /subscription/checkout/{id}/pay [post]
// @Security BearerAuth
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	svc, log, ok := h.service(w, r, "handlers.checkout.Pay")
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "id")

	// неполная карта отклоняется сессией с пользовательским текстом
	var card paymentprovider.CardInput
	if err := render.DecodeJSON(r.Body, &card); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}

	if err := svc.SubmitPayment(context.WithoutCancel(r.Context()), sessionID, card); err != nil {
		status, resp := response.FromError(err, fallbackPayment)
		log.Warn("payment failed", slog.String("session", sessionID), slog.Int("status", status), sl.Err(err))
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("payment confirmed", slog.String("session", sessionID))
	render.JSON(w, r, response.StatusOKWithData(svc.ViewState()))
}

// Dismiss godoc
// @Summary Закрыть оплату
// @Description Бросает платёжную сессию. Поздний результат брошенной сессии не применяется.
// @Tags Checkout
// @Produce json
// @Param id path string true "ID платёжной сессии"
// @Success 200 {object} response.Response "Сессия закрыта"
// @Failure 404 {object} response.ErrorResponse "Сессия не найдена"
// @Router /subscription/checkout/{id} [delete]
// @Security BearerAuth
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	svc, log, ok := h.service(w, r, "handlers.checkout.Dismiss")
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "id")

	if err := svc.DismissCheckout(sessionID); err != nil {
		status, resp := response.FromError(err, "Failed to close payment")
		log.Warn("dismiss failed", slog.String("session", sessionID), sl.Err(err))
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}
	log.Info("checkout dismissed", slog.String("session", sessionID))
	render.JSON(w, r, response.OK())
}
