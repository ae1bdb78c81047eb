package middlewarectx_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/jwt"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/enrollment"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/orchestrator"
	"github.com/magabrotheeeer/course-subscriptions/internal/session"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestJWTMiddleware(t *testing.T) {
	maker := jwt.NewJWTMaker("secret", time.Hour)
	userToken, err := maker.GenerateToken("u-1", "u@example.com", "user")
	require.NoError(t, err)
	adminToken, err := maker.GenerateToken("a-1", "a@example.com", jwt.RoleAdmin)
	require.NoError(t, err)
	foreignToken, err := jwt.NewJWTMaker("other", time.Hour).GenerateToken("u-1", "", "user")
	require.NoError(t, err)

	tests := []struct {
		name           string
		authHeader     string
		query          string
		wantStatusCode int
		wantUser       string
		wantAdmin      bool
	}{
		{
			name:           "missing Authorization header",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "invalid Authorization header prefix",
			authHeader:     "Basic sometoken",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "foreign signature",
			authHeader:     "Bearer " + foreignToken,
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "valid user token",
			authHeader:     "Bearer " + userToken,
			wantStatusCode: http.StatusOK,
			wantUser:       "u-1",
		},
		{
			name:           "valid admin token",
			authHeader:     "Bearer " + adminToken,
			wantStatusCode: http.StatusOK,
			wantUser:       "a-1",
			wantAdmin:      true,
		},
		{
			name:           "token in query",
			query:          "?access_token=" + userToken,
			wantStatusCode: http.StatusOK,
			wantUser:       "u-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				assert.Equal(t, tt.wantUser, r.Context().Value(middlewarectx.UserUID))
				assert.Equal(t, tt.wantAdmin, r.Context().Value(middlewarectx.Admin))
				assert.NotEmpty(t, r.Context().Value(middlewarectx.Token))
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/somepath"+tt.query, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			middlewarectx.JWTMiddleware(maker, newNoopLogger())(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantStatusCode == http.StatusOK, handlerCalled)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := middlewarectx.NewRateLimiter(0.001, 2)
	handler := limiter.Middleware(newNoopLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserUID, user))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("u-1"))
	assert.Equal(t, http.StatusOK, call("u-1"))
	assert.Equal(t, http.StatusTooManyRequests, call("u-1"))
	assert.Equal(t, http.StatusOK, call("u-2"), "limits are per user")

	limiter.Forget("user:u-1")
	assert.Equal(t, http.StatusOK, call("u-1"))
}

type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) Get(ctx context.Context, userUID, token string, admin bool) (*session.Session, error) {
	args := m.Called(ctx, userUID, token, admin)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

func TestSessionMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		user           string
		setupMock      func(*MockSessions)
		wantStatusCode int
	}{
		{
			name:           "no user in context",
			setupMock:      func(_ *MockSessions) {},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name: "session opened",
			user: "u-1",
			setupMock: func(m *MockSessions) {
				m.On("Get", mock.Anything, "u-1", "tok", true).Return(&session.Session{UserUID: "u-1"}, nil)
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name: "platform rejects token",
			user: "u-1",
			setupMock: func(m *MockSessions) {
				m.On("Get", mock.Anything, "u-1", "tok", true).Return(nil, apiclient.ErrUnauthenticated)
			},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name: "unexpected error",
			user: "u-1",
			setupMock: func(m *MockSessions) {
				m.On("Get", mock.Anything, "u-1", "tok", true).Return(nil, errors.New("boom"))
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := new(MockSessions)
			tt.setupMock(sessions)

			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, ok := r.Context().Value(middlewarectx.Subscriptions).(*orchestrator.Orchestrator)
				assert.True(t, ok)
				_, ok = r.Context().Value(middlewarectx.Enrollments).(*enrollment.Mirror)
				assert.True(t, ok)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			ctx := context.WithValue(req.Context(), middlewarectx.Token, "tok")
			ctx = context.WithValue(ctx, middlewarectx.Admin, true)
			if tt.user != "" {
				ctx = context.WithValue(ctx, middlewarectx.UserUID, tt.user)
			}
			rec := httptest.NewRecorder()

			middlewarectx.SessionMiddleware(newNoopLogger(), sessions)(next).ServeHTTP(rec, req.WithContext(ctx))

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			sessions.AssertExpectations(t)
		})
	}
}
