package models

import "time"

// CheckoutEvent: итог платёжной сессии, публикуемый в брокер.
type CheckoutEvent struct {
	UserUID   string        `json:"userUid"`
	SessionID string        `json:"sessionId"`
	PlanType  string        `json:"planType"`
	Phase     CheckoutPhase `json:"phase"`
	Status    string        `json:"status,omitempty"` // Статус подписки из ответа сервера
	Error     string        `json:"error,omitempty"`
	At        time.Time     `json:"at"`
}

// SubscriptionUpdatedEvent: уведомление платформы об изменении подписки
// пользователя, например после вебхука провайдера.
type SubscriptionUpdatedEvent struct {
	UserUID string `json:"userUid"`
	Status  string `json:"status,omitempty"`
}
