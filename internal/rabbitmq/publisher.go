package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// PublishMessage публикует message как постоянное JSON-сообщение.
// messageID позволяет получателю отбросить повтор; пустой заменяется на uuid.
func PublishMessage(ch *amqp.Channel, exchange, routingKey, messageID string, message any) error {
	const op = "rabbitmq.PublishMessage"

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ch == nil {
		return fmt.Errorf("%s: %w", op, amqp.ErrClosed)
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		AppId:        AppID,
		Type:         routingKey,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.Publish(exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("%s: publish to %s/%s: %w", op, exchange, routingKey, err)
	}
	return nil
}
