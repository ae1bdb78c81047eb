package state

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

type fakeService struct {
	mu           sync.Mutex
	state        models.ViewState
	ch           chan models.ViewState
	unsubscribed chan struct{}
}

func newFakeService(initial models.ViewState) *fakeService {
	return &fakeService{
		state:        initial,
		ch:           make(chan models.ViewState, 1),
		unsubscribed: make(chan struct{}),
	}
}

func (f *fakeService) ViewState() models.ViewState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeService) Subscribe() (<-chan models.ViewState, func()) {
	f.ch <- f.ViewState()
	var once sync.Once
	return f.ch, func() { once.Do(func() { close(f.unsubscribed) }) }
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func withService(svc Service, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next(w, r.WithContext(context.WithValue(r.Context(), middlewarectx.Subscriptions, svc)))
	})
}

func TestHandler_Snapshot(t *testing.T) {
	svc := newFakeService(models.ViewState{SessionPhase: models.PhaseIdle, Busy: true})

	w := httptest.NewRecorder()
	withService(svc, New(newNoopLogger()).Snapshot).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"busy":true`)
}

func TestHandler_Stream(t *testing.T) {
	svc := newFakeService(models.ViewState{SessionPhase: models.PhaseIdle})
	srv := httptest.NewServer(withService(svc, New(newNoopLogger()).Stream))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first models.ViewState
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, models.PhaseIdle, first.SessionPhase)

	svc.ch <- models.ViewState{SessionPhase: models.PhaseTokenizingCard, Busy: true}
	var next models.ViewState
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, models.PhaseTokenizingCard, next.SessionPhase)
	assert.True(t, next.Busy)

	require.NoError(t, conn.Close())
	select {
	case <-svc.unsubscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not unsubscribe after client left")
	}
}

func TestHandler_StreamClosedSession(t *testing.T) {
	svc := newFakeService(models.ViewState{})
	srv := httptest.NewServer(withService(svc, New(newNoopLogger()).Stream))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first models.ViewState
	require.NoError(t, conn.ReadJSON(&first))

	close(svc.ch)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func TestHandler_StreamNoSession(t *testing.T) {
	w := httptest.NewRecorder()
	New(newNoopLogger()).Stream(w, httptest.NewRequest(http.MethodGet, "/api/v1/state/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
