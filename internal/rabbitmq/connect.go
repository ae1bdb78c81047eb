// Package rabbitmq: подключение к RabbitMQ, объявление очередей,
// публикация и потребление JSON-сообщений.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
)

// AppID подписывает соединение и исходящие сообщения.
const AppID = "course-subscriptions"

const heartbeat = 10 * time.Second

// Connect подключается к брокеру, делая до retries попыток с паузой delay.
// Ожидание между попытками прерывается отменой ctx.
func Connect(ctx context.Context, uri string, retries int, delay time.Duration, log *slog.Logger) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"

	cfg := amqp.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Properties: amqp.Table{"connection_name": AppID},
	}

	attempts := max(retries, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var conn *amqp.Connection
		conn, err = amqp.DialConfig(uri, cfg)
		if err == nil {
			log.Info("connected to rabbitmq", sl.Op(op), slog.Int("attempt", attempt))
			return conn, nil
		}
		log.Warn("rabbitmq dial failed", sl.Op(op), slog.Int("attempt", attempt), slog.Int("of", attempts), sl.Err(err))
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("%s: %d attempts: %w", op, attempts, err)
}

// SetupChannel открывает канал, объявляет обменник exchange и привязывает к
// нему очереди. prefetch ограничивает число неподтверждённых доставок.
func SetupChannel(conn *amqp.Connection, exchange string, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("%s: qos: %w", op, err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("%s: exchange %s: %w", op, exchange, err)
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.QueueName, true, false, false, false, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("%s: queue %s: %w", op, q.QueueName, err)
		}
		if err := ch.QueueBind(q.QueueName, q.RoutingKey, exchange, false, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("%s: bind %s to %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}

	return ch, nil
}
