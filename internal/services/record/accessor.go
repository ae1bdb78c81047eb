// Package record хранит снимок подписки пользователя и получает его от
// платформы. Снимок заменяется только целиком.
package record

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

// CurrentSource: эндпоинт текущей подписки.
type CurrentSource interface {
	CurrentSubscription(ctx context.Context) (json.RawMessage, error)
}

// Accessor читает авторитетную запись о подписке.
type Accessor struct {
	source CurrentSource
	log    *slog.Logger
}

// NewAccessor создаёт Accessor.
func NewAccessor(source CurrentSource, log *slog.Logger) *Accessor {
	return &Accessor{source: source, log: log}
}

// GetCurrent возвращает текущую подписку. Пустой ответ, null и 404 означают
// отсутствие подписки. Ошибки чтения возвращаются как есть, вызывающий
// сохраняет прежний снимок.
func (a *Accessor) GetCurrent(ctx context.Context) (models.SubscriptionRecord, error) {
	const op = "record.GetCurrent"

	body, err := a.source.CurrentSubscription(ctx)
	if err != nil {
		var fe *apiclient.FetchError
		if errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound {
			return models.NoSubscription(), nil
		}
		a.log.Warn("failed to fetch current subscription", sl.Op(op), sl.Err(err))
		return models.SubscriptionRecord{}, err
	}

	rec, err := parseCurrent(body)
	if err != nil {
		a.log.Error("malformed subscription payload", sl.Op(op), sl.Err(err))
		return models.SubscriptionRecord{}, &apiclient.FetchError{Op: op, Err: err}
	}
	return rec, nil
}

func parseCurrent(body []byte) (models.SubscriptionRecord, error) {
	body = bytes.TrimSpace(body)
	if isEmpty(body) {
		return models.NoSubscription(), nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return models.SubscriptionRecord{}, fmt.Errorf("subscription payload is not an object: %w", err)
	}
	if len(envelope) == 0 {
		return models.NoSubscription(), nil
	}
	if inner, ok := envelope["subscription"]; ok {
		body = bytes.TrimSpace(inner)
		if isEmpty(body) {
			return models.NoSubscription(), nil
		}
	}

	var rec models.SubscriptionRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return models.SubscriptionRecord{}, err
	}
	if rec.Status == "" {
		return models.SubscriptionRecord{}, errors.New("subscription without status")
	}
	if err := rec.Validate(); err != nil {
		return models.SubscriptionRecord{}, err
	}
	return rec, nil
}

func isEmpty(body []byte) bool {
	return len(body) == 0 || bytes.Equal(body, []byte("null")) || bytes.Equal(body, []byte("{}"))
}
