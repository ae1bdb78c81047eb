// Package events связывает сессии подписок с брокером: публикует итоги
// платёжных сессий и обрабатывает уведомления платформы об изменении подписки.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
	"github.com/magabrotheeeer/course-subscriptions/internal/rabbitmq"
)

type publishFunc func(exchange, routingKey, messageID string, message any) error

// Publisher публикует события в обменник подписок.
type Publisher struct {
	mu      sync.Mutex
	publish publishFunc
	log     *slog.Logger
}

// NewPublisher создаёт Publisher поверх канала RabbitMQ.
func NewPublisher(ch *amqp.Channel, log *slog.Logger) *Publisher {
	return &Publisher{
		publish: func(exchange, routingKey, messageID string, message any) error {
			return rabbitmq.PublishMessage(ch, exchange, routingKey, messageID, message)
		},
		log: log,
	}
}

// PublishCheckout публикует итог платёжной сессии. id сообщения совпадает с
// id сессии: у сессии ровно один итог.
func (p *Publisher) PublishCheckout(ctx context.Context, event models.CheckoutEvent) error {
	const op = "events.PublishCheckout"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	err := p.publish(rabbitmq.Exchange, rabbitmq.CheckoutRoutingKey, event.SessionID, event)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p.log.Debug("checkout event published", sl.Op(op), slog.String("session", event.SessionID), slog.String("phase", string(event.Phase)))
	return nil
}

// Refresher перечитывает подписку пользователя, если у него есть сессия.
type Refresher interface {
	Refresh(ctx context.Context, userUID string) error
}

// SubscriptionUpdatedHandler возвращает обработчик очереди уведомлений об
// изменении подписки. Некорректные сообщения подтверждаются и отбрасываются,
// ошибка чтения с платформы возвращает сообщение в очередь.
func SubscriptionUpdatedHandler(refresher Refresher, log *slog.Logger) rabbitmq.Handler {
	const op = "events.SubscriptionUpdated"
	return func(ctx context.Context, body []byte) error {
		var event models.SubscriptionUpdatedEvent
		if err := json.Unmarshal(body, &event); err != nil {
			log.Warn("dropping malformed subscription event", sl.Op(op), sl.Err(err))
			return nil
		}
		if event.UserUID == "" {
			log.Warn("dropping subscription event without user", sl.Op(op))
			return nil
		}

		err := refresher.Refresh(ctx, event.UserUID)
		if errors.Is(err, apiclient.ErrUnauthenticated) {
			log.Info("session expired before refresh", sl.Op(op), slog.String("user", event.UserUID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		log.Info("subscription refreshed from event", sl.Op(op), slog.String("user", event.UserUID), slog.String("status", event.Status))
		return nil
	}
}
