package plans

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

type stubService []models.PlanOffer

func (s stubService) Plans() []models.PlanOffer { return s }

func TestHandler_ServeHTTP(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("каталог", func(t *testing.T) {
		svc := stubService{{ID: "basic", PlanType: "basic", Features: []string{}}}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
		req = req.WithContext(context.WithValue(req.Context(), middlewarectx.Subscriptions, svc))
		w := httptest.NewRecorder()

		New(logger).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"OK"`)
		assert.Contains(t, w.Body.String(), `basic`)
	})

	t.Run("нет сессии", func(t *testing.T) {
		w := httptest.NewRecorder()
		New(logger).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
