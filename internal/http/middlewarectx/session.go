package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/response"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/session"
)

const (
	// Subscriptions — ключ для оркестратора подписки пользователя
	Subscriptions Key = "subscriptions"
	// Enrollments — ключ для зеркала зачислений пользователя
	Enrollments Key = "enrollments"
	// Payments — ключ для истории платежей пользователя
	Payments Key = "payments"
)

// SessionSource выдаёт сессию пользователя, создавая её при первом запросе.
type SessionSource interface {
	Get(ctx context.Context, userUID, token string, admin bool) (*session.Session, error)
}

// SessionMiddleware создает middleware, который поднимает сессию пользователя
// и кладёт её части в контекст. Ставится после JWTMiddleware.
func SessionMiddleware(log *slog.Logger, sessions SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.SessionMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			userUID, ok := r.Context().Value(UserUID).(string)
			if !ok || userUID == "" {
				log.Error("user identification missing")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}
			token, _ := r.Context().Value(Token).(string)
			admin, _ := r.Context().Value(Admin).(bool)

			s, err := sessions.Get(r.Context(), userUID, token, admin)
			if err != nil {
				if errors.Is(err, apiclient.ErrUnauthenticated) {
					log.Warn("platform rejected token", slog.String("user", userUID))
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, response.Error("session expired"))
					return
				}
				log.Error("failed to open session", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal service error"))
				return
			}

			ctx := context.WithValue(r.Context(), Subscriptions, s.Orchestrator)
			ctx = context.WithValue(ctx, Enrollments, s.Enrollments)
			ctx = context.WithValue(ctx, Payments, s.Client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
