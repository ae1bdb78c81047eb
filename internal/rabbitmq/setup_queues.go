package rabbitmq

// Exchange: обменник событий подписок.
const Exchange = "subscriptions"

const (
	// CheckoutQueue получает итоги платёжных сессий.
	CheckoutQueue      = "subscriptions.checkout"
	CheckoutRoutingKey = "checkout"
	// UpdatedQueue получает уведомления платформы об изменении подписки.
	UpdatedQueue      = "subscriptions.updated"
	UpdatedRoutingKey = "updated"
)

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

func GetSubscriptionQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: CheckoutQueue, RoutingKey: CheckoutRoutingKey},
		{QueueName: UpdatedQueue, RoutingKey: UpdatedRoutingKey},
	}
}
