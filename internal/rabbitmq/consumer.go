package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
)

// prefetch: сколько доставок обрабатывается одновременно.
const prefetch = 10

// Handler обрабатывает тело сообщения. Ошибка возвращает сообщение в очередь.
type Handler func(ctx context.Context, body []byte) error

// ConsumerMessage запускает потребителя очереди queueName. Одновременно
// обрабатывается не больше prefetch сообщений. После отмены ctx потребитель
// снимается с очереди, а ещё не взятые в работу доставки возвращаются брокеру.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, handler Handler, log *slog.Logger) error {
	const op = "rabbitmq.ConsumerMessage"

	tag := fmt.Sprintf("%s-%s", AppID, uuid.NewString())
	delivery, err := ch.Consume(queueName, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log = log.With(sl.Op(op), slog.String("queue", queueName))

	go func() {
		var wg sync.WaitGroup
		defer wg.Wait()

		sem := make(chan struct{}, prefetch)
		for {
			select {
			case <-ctx.Done():
				if err := ch.Cancel(tag, false); err != nil {
					log.Warn("failed to cancel consumer", sl.Err(err))
					return
				}
				// после Cancel канал доставок закрывается, остаток отдаём брокеру
				for d := range delivery {
					requeue(log, d)
				}
				return
			case d, ok := <-delivery:
				if !ok {
					log.Info("delivery channel closed")
					return
				}
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					requeue(log, d)
					continue
				}
				wg.Add(1)
				go func(d amqp.Delivery) {
					defer wg.Done()
					defer func() { <-sem }()
					process(ctx, log, handler, d)
				}(d)
			}
		}
	}()
	return nil
}

func process(ctx context.Context, log *slog.Logger, handler Handler, d amqp.Delivery) {
	if err := handler(ctx, d.Body); err != nil {
		log.Warn("message handling failed, requeueing", slog.String("message", d.MessageId), sl.Err(err))
		requeue(log, d)
		return
	}
	if err := d.Ack(false); err != nil {
		log.Error("failed to ack message", slog.String("message", d.MessageId), sl.Err(err))
	}
}

func requeue(log *slog.Logger, d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		log.Error("failed to nack message", slog.String("message", d.MessageId), sl.Err(err))
	}
}
