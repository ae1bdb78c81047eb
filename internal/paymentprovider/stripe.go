package paymentprovider

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/magabrotheeeer/course-subscriptions/internal/config"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
)

type paymentMethods interface {
	New(params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
}

type paymentIntents interface {
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

// Stripe реализует Provider поверх stripe-go.
type Stripe struct {
	methods paymentMethods
	intents paymentIntents
	breaker *gobreaker.CircuitBreaker[any]
	log     *slog.Logger
}

// NewStripe создаёт адаптер с клиентом Stripe SDK.
func NewStripe(secretKey string, cfg config.CircuitBreaker, log *slog.Logger) *Stripe {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return newStripe(sc.PaymentMethods, sc.PaymentIntents, cfg, log)
}

func newStripe(methods paymentMethods, intents paymentIntents, cfg config.CircuitBreaker, log *slog.Logger) *Stripe {
	s := &Stripe{methods: methods, intents: intents, log: log}
	s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// отказы по карте не говорят о недоступности провайдера
		IsSuccessful: func(err error) bool {
			var stripeErr *stripe.Error
			if errors.As(err, &stripeErr) {
				return stripeErr.HTTPStatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return s
}

// TokenizeCard создаёт платёжный метод типа card.
func (s *Stripe) TokenizeCard(ctx context.Context, card CardInput) (PaymentMethod, error) {
	const op = "paymentprovider.TokenizeCard"
	params := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(card.Number),
			ExpMonth: stripe.Int64(card.ExpMonth),
			ExpYear:  stripe.Int64(card.ExpYear),
			CVC:      stripe.String(card.CVC),
		},
	}
	params.Context = ctx

	res, err := s.execute(op, func() (any, error) {
		return s.methods.New(params)
	})
	if err != nil {
		return PaymentMethod{}, err
	}
	pm := res.(*stripe.PaymentMethod)
	out := PaymentMethod{ID: pm.ID}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
	}
	s.log.Info("card tokenized", sl.Op(op), slog.String("payment_method", pm.ID))
	return out, nil
}

// ConfirmPayment подтверждает платёжное намерение, выданное сервером платформы.
func (s *Stripe) ConfirmPayment(ctx context.Context, clientSecret, paymentMethodID string) (Confirmation, error) {
	const op = "paymentprovider.ConfirmPayment"
	intentID, ok := intentIDFromSecret(clientSecret)
	if !ok {
		return Confirmation{}, &ProviderError{Code: "invalid_client_secret", Message: "Payment could not be confirmed."}
	}
	params := &stripe.PaymentIntentConfirmParams{}
	if paymentMethodID != "" {
		params.PaymentMethod = stripe.String(paymentMethodID)
	}
	params.Context = ctx

	res, err := s.execute(op, func() (any, error) {
		return s.intents.Confirm(intentID, params)
	})
	if err != nil {
		return Confirmation{}, err
	}
	pi := res.(*stripe.PaymentIntent)
	s.log.Info("payment intent confirmed", sl.Op(op), slog.String("intent", pi.ID), slog.String("status", string(pi.Status)))
	return Confirmation{IntentID: pi.ID, Status: string(pi.Status)}, nil
}

func (s *Stripe) execute(op string, fn func() (any, error)) (any, error) {
	res, err := s.breaker.Execute(fn)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.log.Warn("payment provider call rejected by breaker", sl.Op(op), sl.Err(err))
		return nil, &ProviderError{Code: "provider_unavailable", Message: "Payment provider is temporarily unavailable.", Err: ErrUnavailable}
	}
	logStripeError(s.log, op, err)
	return nil, toProviderError(err)
}

func toProviderError(err error) *ProviderError {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		msg := stripeErr.Msg
		if msg == "" {
			msg = "Payment was declined."
		}
		code := string(stripeErr.Code)
		if stripeErr.DeclineCode != "" {
			code = string(stripeErr.DeclineCode)
		}
		return &ProviderError{Code: code, Message: msg, Err: err}
	}
	return &ProviderError{Code: "provider_error", Message: "Payment provider request failed.", Err: err}
}

// intentIDFromSecret выделяет id намерения из секрета вида pi_XXX_secret_YYY.
func intentIDFromSecret(secret string) (string, bool) {
	id, _, found := strings.Cut(secret, "_secret_")
	if !found || !strings.HasPrefix(id, "pi_") || len(id) == len("pi_") {
		return "", false
	}
	return id, true
}

func logStripeError(log *slog.Logger, op string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Error("stripe api error",
			sl.Op(op),
			slog.String("type", string(stripeErr.Type)),
			slog.String("code", string(stripeErr.Code)),
			slog.String("message", stripeErr.Msg),
			slog.String("request_id", stripeErr.RequestID),
			slog.Int("status_code", stripeErr.HTTPStatusCode),
		)
		return
	}
	log.Error("non-stripe error during stripe call", sl.Op(op), sl.Err(err))
}
