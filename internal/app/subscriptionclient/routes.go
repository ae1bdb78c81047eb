// Package subscriptionclient собирает BFF подписок: маршруты, сессии
// пользователей, брокер, кэш и платёжного провайдера.
package subscriptionclient

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/course-subscriptions/internal/http/handlers/checkout"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/handlers/enrollment"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/handlers/health"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/handlers/payments"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/handlers/plans"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/handlers/state"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/handlers/subscription"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
)

// RouteDeps: зависимости маршрутов.
type RouteDeps struct {
	Tokens       middlewarectx.TokenParser
	Sessions     middlewarectx.SessionSource
	Limiter      *middlewarectx.RateLimiter
	Metrics      http.Handler
	SessionCount func() int
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps RouteDeps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	subscriptionHandler := subscription.New(logger)
	checkoutHandler := checkout.New(logger)
	enrollmentHandler := enrollment.New(logger)
	stateHandler := state.New(logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.JWTMiddleware(deps.Tokens, logger))
		r.Use(deps.Limiter.Middleware(logger))
		r.Use(middlewarectx.SessionMiddleware(logger, deps.Sessions))

		r.Get("/plans", plans.New(logger).ServeHTTP)

		r.Get("/subscription", subscriptionHandler.Current)
		r.Get("/subscription/actions", subscriptionHandler.Actions)
		r.Post("/subscription/cancel", subscriptionHandler.Cancel)
		r.Post("/subscription/resume", subscriptionHandler.Resume)
		r.Post("/subscription/switch", subscriptionHandler.Switch)

		r.Post("/subscription/checkout", checkoutHandler.Start)
		r.Post("/subscription/checkout/{id}/pay", checkoutHandler.Pay)
		r.Delete("/subscription/checkout/{id}", checkoutHandler.Dismiss)

		r.Get("/enrollments", enrollmentHandler.List)
		r.Get("/enrollments/summary", enrollmentHandler.Summary)
		r.Post("/enrollments/{courseID}", enrollmentHandler.Enroll)
		r.Delete("/enrollments/{courseID}", enrollmentHandler.Unenroll)

		r.Get("/payments/history", payments.New(logger).ServeHTTP)

		r.Get("/state", stateHandler.Snapshot)
		r.Get("/state/ws", stateHandler.Stream)
	})

	r.Get("/health", health.New(logger, deps.SessionCount).ServeHTTP)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
