package checkout

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
	"github.com/magabrotheeeer/course-subscriptions/internal/paymentprovider"
	checkoutsvc "github.com/magabrotheeeer/course-subscriptions/internal/services/checkout"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/orchestrator"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) SelectPlan(planType string) (*checkoutsvc.Session, error) {
	args := m.Called(planType)
	s, _ := args.Get(0).(*checkoutsvc.Session)
	return s, args.Error(1)
}

func (m *MockService) SubmitPayment(ctx context.Context, sessionID string, card paymentprovider.CardInput) error {
	return m.Called(ctx, sessionID, card).Error(0)
}

func (m *MockService) DismissCheckout(sessionID string) error {
	return m.Called(sessionID).Error(0)
}

func (m *MockService) ViewState() models.ViewState {
	return m.Called().Get(0).(models.ViewState)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRequest(method, body, sessionID string, svc Service) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/subscription/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ctx := context.WithValue(req.Context(), middleware.RequestIDKey, "req-id")
	ctx = context.WithValue(ctx, middlewarectx.Subscriptions, svc)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", sessionID)
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

var validCard = paymentprovider.CardInput{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2030, CVC: "123"}

func TestHandler_Start(t *testing.T) {
	session := checkoutsvc.NewSession("basic", nil, nil, newNoopLogger())

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "сессия открыта",
			body: `{"planType":"basic"}`,
			setupMock: func(m *MockService) {
				m.On("SelectPlan", "basic").Return(session, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   `"sessionId":"` + session.ID + `"`,
		},
		{
			name: "подписка уже есть",
			body: `{"planType":"basic"}`,
			setupMock: func(m *MockService) {
				m.On("SelectPlan", "basic").Return(nil, orchestrator.ErrIllegalTransition)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"error":"This action is not available for your current subscription."`,
		},
		{
			name: "неизвестный тариф",
			body: `{"planType":"gold"}`,
			setupMock: func(m *MockService) {
				m.On("SelectPlan", "gold").Return(nil, orchestrator.ErrUnknownPlan)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"error":"Selected plan is not available."`,
		},
		{
			name:           "тариф не указан",
			body:           `{"planType":""}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `"error":"field PlanType is a required field"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			w := httptest.NewRecorder()
			New(newNoopLogger()).Start(w, newRequest(http.MethodPost, tt.body, "", svc))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_Pay(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "платёж подтверждён",
			body: `{"number":"4242424242424242","expMonth":12,"expYear":2030,"cvc":"123"}`,
			setupMock: func(m *MockService) {
				m.On("SubmitPayment", mock.Anything, "s-1", validCard).Return(nil)
				m.On("ViewState").Return(models.ViewState{SessionPhase: models.PhaseIdle})
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"sessionPhase":"idle"`,
		},
		{
			name: "карта заполнена не полностью",
			body: `{"number":"4242"}`,
			setupMock: func(m *MockService) {
				m.On("SubmitPayment", mock.Anything, "s-1", paymentprovider.CardInput{Number: "4242"}).
					Return(checkoutsvc.ErrCardInputInvalid)
			},
			expectedStatus: http.StatusPaymentRequired,
			expectedBody:   `"error":"Please complete your card details."`,
		},
		{
			name: "карта отклонена",
			body: `{"number":"4000000000000002","expMonth":12,"expYear":2030,"cvc":"123"}`,
			setupMock: func(m *MockService) {
				m.On("SubmitPayment", mock.Anything, "s-1", mock.Anything).
					Return(&checkoutsvc.TokenizationError{Message: "Your card was declined."})
			},
			expectedStatus: http.StatusPaymentRequired,
			expectedBody:   `"error":"Your card was declined."`,
		},
		{
			name: "платформа отклонила подписку",
			body: `{"number":"4242424242424242","expMonth":12,"expYear":2030,"cvc":"123"}`,
			setupMock: func(m *MockService) {
				m.On("SubmitPayment", mock.Anything, "s-1", mock.Anything).
					Return(&apiclient.ServerRejectedError{StatusCode: 400, Message: "Invalid plan type"})
			},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `"error":"Invalid plan type"`,
		},
		{
			name: "сессия закрыта пользователем",
			body: `{"number":"4242424242424242","expMonth":12,"expYear":2030,"cvc":"123"}`,
			setupMock: func(m *MockService) {
				m.On("SubmitPayment", mock.Anything, "s-1", mock.Anything).Return(orchestrator.ErrSessionDismissed)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"error":"Payment failed. Please try again."`,
		},
		{
			name:           "некорректный JSON",
			body:           `{`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"failed to decode request"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			w := httptest.NewRecorder()
			New(newNoopLogger()).Pay(w, newRequest(http.MethodPost, tt.body, "s-1", svc))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_PayOutlivesRequest(t *testing.T) {
	svc := new(MockService)
	svc.On("SubmitPayment", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), "s-1", validCard).Return(nil)
	svc.On("ViewState").Return(models.ViewState{})

	req := newRequest(http.MethodPost, `{"number":"4242424242424242","expMonth":12,"expYear":2030,"cvc":"123"}`, "s-1", svc)
	ctx, cancel := context.WithCancel(req.Context())
	cancel()

	w := httptest.NewRecorder()
	New(newNoopLogger()).Pay(w, req.WithContext(ctx))

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestHandler_Dismiss(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "сессия закрыта", expectedStatus: http.StatusOK},
		{name: "сессия не найдена", err: orchestrator.ErrNoActiveSession, expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("DismissCheckout", "s-1").Return(tt.err)

			w := httptest.NewRecorder()
			New(newNoopLogger()).Dismiss(w, newRequest(http.MethodDelete, "", "s-1", svc))

			assert.Equal(t, tt.expectedStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}
