package subscriptionclient

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/jwt"
	"github.com/magabrotheeeer/course-subscriptions/internal/metrics"
	"github.com/magabrotheeeer/course-subscriptions/internal/session"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newPlatform поднимает API платформы: тариф basic, активная подписка на
// него, без зачислений. Отмена принимается.
func newPlatform(t *testing.T) *httptest.Server {
	t.Helper()
	var canceled atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/subscriptions/plans", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"basic","price":9.99,"currency":"usd","interval":"month"},{"id":"pro","price":19.99,"currency":"usd","interval":"month"}]`))
	})
	mux.HandleFunc("/api/subscriptions/current", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"subscription": map[string]any{
			"planType": "basic", "status": "active", "cancelAtPeriodEnd": canceled.Load(),
		}})
	})
	mux.HandleFunc("/api/subscriptions/cancel", func(w http.ResponseWriter, _ *http.Request) {
		canceled.Store(true)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/api/enrollments/me", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newRouter(t *testing.T) (http.Handler, *jwt.MakerImpl, *session.Registry) {
	t.Helper()
	platform := newPlatform(t)
	logger := newNoopLogger()

	registry := prometheus.NewRegistry()
	sessions := session.NewRegistry(session.Deps{
		Client:  apiclient.NewClient(platform.URL, nil),
		Metrics: metrics.New(registry),
		Log:     logger,
	})
	maker := jwt.NewJWTMaker("secret", time.Hour)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, RouteDeps{
		Tokens:       maker,
		Sessions:     sessions,
		Limiter:      middlewarectx.NewRateLimiter(100, 100),
		Metrics:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		SessionCount: sessions.Len,
	})
	return router, maker, sessions
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutes_RequireToken(t *testing.T) {
	router, _, _ := newRouter(t)

	w := do(t, router, http.MethodGet, "/api/v1/plans", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","data":{"status":"ok","sessions":0}}`, w.Body.String())
}

func TestRoutes_SubscriptionFlow(t *testing.T) {
	router, maker, sessions := newRouter(t)
	token, err := maker.GenerateToken("u-1", "u@example.com", "user")
	require.NoError(t, err)

	w := do(t, router, http.MethodGet, "/api/v1/subscription/actions", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","data":["switch_plan","cancel_at_period_end"]}`, w.Body.String())
	assert.Equal(t, 1, sessions.Len())

	w = do(t, router, http.MethodPost, "/api/v1/subscription/checkout", token, `{"planType":"pro"}`)
	assert.Equal(t, http.StatusConflict, w.Code, "checkout is illegal with an active subscription")

	w = do(t, router, http.MethodPost, "/api/v1/subscription/cancel", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelAtPeriodEnd":true`)
	assert.Contains(t, w.Body.String(), `"actions":["switch_plan","resume"]`)

	w = do(t, router, http.MethodPost, "/api/v1/subscription/cancel", token, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodGet, "/metrics", "", "")
	assert.Contains(t, w.Body.String(), `subscription_operations_total{operation="cancel_at_period_end",result="ok"} 1`)
}
