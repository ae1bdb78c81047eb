// Package checkout реализует платёжную сессию: токенизация карты, создание
// подписки на сервере и подтверждение первого списания у провайдера.
package checkout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
	"github.com/magabrotheeeer/course-subscriptions/internal/paymentprovider"
)

// IntentCreator: эндпоинт создания подписки на платформе.
type IntentCreator interface {
	CreateSubscription(ctx context.Context, req apiclient.CreateSubscriptionRequest, idempotencyKey string) (*apiclient.CreateSubscriptionResponse, error)
}

// PhaseObserver получает каждую смену фазы.
type PhaseObserver func(s *Session, phase models.CheckoutPhase)

// Session: одноразовая попытка оформить подписку на тариф. Запись о
// подписке сессия не трогает: после Confirmed её перечитывает оркестратор.
type Session struct {
	ID       string
	PlanType string

	provider paymentprovider.Provider
	server   IntentCreator
	log      *slog.Logger

	mu                 sync.Mutex
	phase              models.CheckoutPhase
	started            bool
	paymentMethodToken string
	serverIntentSecret string
	serverStatus       string
	lastErr            error
	observers          []PhaseObserver
}

// NewSession создаёт сессию в фазе idle.
func NewSession(planType string, provider paymentprovider.Provider, server IntentCreator, log *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:       id,
		PlanType: planType,
		provider: provider,
		server:   server,
		log:      log.With(slog.String("session", id), slog.String("plan", planType)),
		phase:    models.PhaseIdle,
	}
}

// OnPhaseChange регистрирует наблюдателя фаз.
func (s *Session) OnPhaseChange(o PhaseObserver) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Phase возвращает текущую фазу.
func (s *Session) Phase() models.CheckoutPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// LastError возвращает ошибку, которой завершилась сессия.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// PaymentMethodToken возвращает токен карты после токенизации.
func (s *Session) PaymentMethodToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paymentMethodToken
}

// ServerIntentSecret возвращает секрет подтверждения. В логи не попадает.
func (s *Session) ServerIntentSecret() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverIntentSecret
}

// ServerStatus возвращает статус подписки из ответа на создание.
func (s *Session) ServerStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverStatus
}

// Run проводит сессию от idle до confirmed или failed. Повторный запуск
// возвращает ErrSessionUsed.
func (s *Session) Run(ctx context.Context, card paymentprovider.CardInput) error {
	const op = "checkout.Run"

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSessionUsed
	}
	s.started = true
	s.mu.Unlock()

	if !card.Complete() {
		return s.fail(op, ErrCardInputInvalid)
	}

	s.transition(models.PhaseTokenizingCard)
	pm, err := s.provider.TokenizeCard(ctx, card)
	if err != nil {
		msg := "Card could not be processed."
		if pe, ok := paymentprovider.AsProviderError(err); ok && pe.Message != "" {
			msg = pe.Message
		}
		return s.fail(op, &TokenizationError{Message: msg, Err: err})
	}
	s.mu.Lock()
	s.paymentMethodToken = pm.ID
	s.mu.Unlock()

	s.transition(models.PhaseCreatingServerIntent)
	resp, err := s.server.CreateSubscription(ctx, apiclient.CreateSubscriptionRequest{
		PlanType:        s.PlanType,
		PaymentMethodID: pm.ID,
	}, s.ID)
	if err != nil {
		return s.fail(op, err)
	}
	s.mu.Lock()
	s.serverStatus = resp.Status
	s.serverIntentSecret = resp.ClientSecret
	s.mu.Unlock()

	if resp.ClientSecret == "" {
		s.log.Info("subscription created without immediate charge", sl.Op(op), slog.String("status", resp.Status))
		s.transition(models.PhaseConfirmed)
		return nil
	}

	s.transition(models.PhaseAwaitingConfirmation)
	conf, err := s.provider.ConfirmPayment(ctx, resp.ClientSecret, pm.ID)
	if err != nil {
		msg := "Payment confirmation failed."
		if pe, ok := paymentprovider.AsProviderError(err); ok && pe.Message != "" {
			msg = pe.Message
		}
		return s.fail(op, &ConfirmationFailedError{Message: msg, Err: err})
	}
	if !conf.Succeeded() {
		s.log.Warn("payment confirmation incomplete", sl.Op(op), slog.String("status", conf.Status))
		return s.fail(op, ErrConfirmationIncomplete)
	}

	s.transition(models.PhaseConfirmed)
	return nil
}

func (s *Session) transition(phase models.CheckoutPhase) {
	s.mu.Lock()
	s.phase = phase
	observers := s.observers
	s.mu.Unlock()

	s.log.Debug("checkout phase changed", slog.String("phase", string(phase)))
	for _, o := range observers {
		o(s, phase)
	}
}

func (s *Session) fail(op string, err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	s.log.Warn("checkout failed", sl.Op(op), sl.Err(err))
	s.transition(models.PhaseFailed)
	return err
}
