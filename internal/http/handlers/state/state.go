// Package state отдаёт слою отображения состояние подписки: снимком по
// запросу и потоком снимков через WebSocket.
package state

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/magabrotheeeer/course-subscriptions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-subscriptions/internal/http/response"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

var (
	pingInterval = 30 * time.Second
	writeWait    = 5 * time.Second
	pongWait     = 2 * pingInterval
)

// Service: источник снимков состояния.
type Service interface {
	ViewState() models.ViewState
	Subscribe() (<-chan models.ViewState, func())
}

// Handler управляет запросами состояния.
type Handler struct {
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// New создает Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// токен проверяется JWTMiddleware, чужой странице он недоступен
			CheckOrigin: func(*http.Request) bool { return true },
		},
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

// Snapshot godoc
// @Summary Состояние подписки
// @Description Тарифы, текущая запись, фаза оплаты, последняя ошибка и доступные операции.
// @Tags State
// @Produce json
// @Success 200 {object} response.Response "Снимок состояния"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /state [get]
// @Security BearerAuth
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	svc, _, ok := h.service(w, r, "handlers.state.Snapshot")
	if !ok {
		return
	}
	render.JSON(w, r, response.StatusOKWithData(svc.ViewState()))
}

// Stream godoc
// @Summary Поток состояния
// @Description WebSocket: первым сообщением приходит текущий снимок, затем каждый новый. Медленный клиент пропускает промежуточные снимки.
// @Tags State
// @Param access_token query string false "Токен, если нельзя передать заголовок"
// @Success 101 {object} models.ViewState "Снимки состояния"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /state/ws [get]
// @Security BearerAuth
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	svc, log, ok := h.service(w, r, "handlers.state.Stream")
	if !ok {
		return
	}

	// дедлайны http.Server иначе оборвут долгое соединение
	rc := http.NewResponseController(w)
	if err := rc.SetReadDeadline(time.Time{}); err != nil {
		log.Debug("failed to clear read deadline", sl.Err(err))
	}
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("failed to clear write deadline", sl.Err(err))
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade failed", sl.Err(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go readLoop(conn, done)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	log.Info("state stream opened")
	for {
		select {
		case <-done:
			log.Info("state stream closed by client")
			return
		case vs, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(vs); err != nil {
				log.Warn("failed to write state", sl.Err(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn("failed to ping state stream", sl.Err(err))
				return
			}
		}
	}
}

// readLoop читает входящие кадры, чтобы обрабатывать pong и close, и
// закрывает done при разрыве.
func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
