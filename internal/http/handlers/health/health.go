// Package health отвечает на проверку живости процесса.
package health

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/course-subscriptions/internal/http/response"
)

// Handler отвечает на /health.
type Handler struct {
	log      *slog.Logger
	sessions func() int
}

// New создает Handler. sessions возвращает число открытых сессий.
func New(log *slog.Logger, sessions func() int) *Handler {
	return &Handler{
		log:      log,
		sessions: sessions,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"status": "ok"}
	if h.sessions != nil {
		data["sessions"] = h.sessions()
	}
	render.JSON(w, r, response.StatusOKWithData(data))
}
