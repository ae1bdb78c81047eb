package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

// CreateSubscriptionRequest: тело POST /subscriptions/create.
type CreateSubscriptionRequest struct {
	PlanType        string `json:"planType"`
	PaymentMethodID string `json:"paymentMethodId,omitempty"`
}

// CreateSubscriptionResponse: ответ на создание подписки. ClientSecret
// присутствует, если первое списание требует подтверждения у провайдера.
type CreateSubscriptionResponse struct {
	Status       string `json:"status"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

// Plans возвращает сырой каталог тарифов: массив или объект по id.
func (c *Client) Plans(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "apiclient.Plans", "/subscriptions/plans")
}

// CurrentSubscription возвращает сырой ответ о текущей подписке.
func (c *Client) CurrentSubscription(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "apiclient.CurrentSubscription", "/subscriptions/current")
}

// CreateSubscription создаёт подписку. idempotencyKey передаётся в
// заголовке Idempotency-Key, чтобы повтор попытки не создал вторую подписку.
func (c *Client) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest, idempotencyKey string) (*CreateSubscriptionResponse, error) {
	const op = "apiclient.CreateSubscription"
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}
	body, err := c.mutate(ctx, op, http.MethodPost, "/subscriptions/create", req, headers)
	if err != nil {
		return nil, err
	}
	var resp CreateSubscriptionResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return &resp, nil
}

// CancelSubscription ставит отмену в конце периода. Тело ответа не
// используется: после изменения запись перечитывается целиком.
func (c *Client) CancelSubscription(ctx context.Context) error {
	_, err := c.mutate(ctx, "apiclient.CancelSubscription", http.MethodPost, "/subscriptions/cancel", nil, nil)
	return err
}

// ResumeSubscription снимает отмену.
func (c *Client) ResumeSubscription(ctx context.Context) error {
	_, err := c.mutate(ctx, "apiclient.ResumeSubscription", http.MethodPost, "/subscriptions/resume", nil, nil)
	return err
}

// ChangePlan меняет тариф, пересчёт стоимости выполняет сервер.
func (c *Client) ChangePlan(ctx context.Context, planType string) error {
	body := struct {
		PlanType string `json:"planType"`
	}{PlanType: planType}
	_, err := c.mutate(ctx, "apiclient.ChangePlan", http.MethodPost, "/subscriptions/change-plan", body, nil)
	return err
}

// PaymentHistory возвращает историю платежей пользователя.
func (c *Client) PaymentHistory(ctx context.Context) ([]models.PaymentHistoryEntry, error) {
	const op = "apiclient.PaymentHistory"
	body, err := c.get(ctx, op, "/payments/history")
	if err != nil {
		return nil, err
	}
	var entries []models.PaymentHistoryEntry
	if err := decodeList(body, "payments", &entries); err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}
	return entries, nil
}

// decodeList разбирает массив, возможно обёрнутый в поле wrapper.
func decodeList(body []byte, wrapper string, out any) error {
	if len(body) == 0 || string(body) == "null" {
		return nil
	}
	if body[0] == '{' {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return err
		}
		inner, ok := wrapped[wrapper]
		if !ok {
			return fmt.Errorf("expected %q field in response", wrapper)
		}
		body = inner
	}
	return json.Unmarshal(body, out)
}
