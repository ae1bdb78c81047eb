package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SubscriptionStatus: закрытое перечисление статусов подписки.
type SubscriptionStatus string

const (
	// StatusNone: клиентский признак «записи нет», сервер его не присылает.
	StatusNone       SubscriptionStatus = "none"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusActive     SubscriptionStatus = "active"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCanceled   SubscriptionStatus = "canceled"
	StatusUnpaid     SubscriptionStatus = "unpaid"
	StatusIncomplete SubscriptionStatus = "incomplete"
)

// AllStatuses перечисляет все статусы, включая StatusNone.
var AllStatuses = []SubscriptionStatus{
	StatusNone, StatusTrialing, StatusActive, StatusPastDue,
	StatusCanceled, StatusUnpaid, StatusIncomplete,
}

// ParseStatus разбирает статус сервера. Неизвестные значения — ошибка.
func ParseStatus(s string) (SubscriptionStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown subscription status %q", s)
}

// UnmarshalJSON не пропускает статусы вне перечисления.
func (s *SubscriptionStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Billable сообщает, относится ли статус к оплачиваемому циклу:
// active, trialing или past_due.
func (s SubscriptionStatus) Billable() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusPastDue:
		return true
	}
	return false
}

// SubscriptionRecord: снимок подписки пользователя. Меняется только целиком
// по ответу сервера; локально допускаются лишь оптимистичные подсказки.
type SubscriptionRecord struct {
	PlanType           string             `json:"planType,omitempty"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"currentPeriodStart,omitzero"`
	CurrentPeriodEnd   time.Time          `json:"currentPeriodEnd,omitzero"`
	CancelAtPeriodEnd  bool               `json:"cancelAtPeriodEnd"`
	TrialEnd           *time.Time         `json:"trialEnd,omitempty"`
}

// NoSubscription возвращает запись-признак отсутствия подписки.
func NoSubscription() SubscriptionRecord {
	return SubscriptionRecord{Status: StatusNone}
}

// IsNone сообщает, что подписки нет.
func (r SubscriptionRecord) IsNone() bool {
	return r.Status == StatusNone || r.Status == ""
}

// EffectiveCancelAtPeriodEnd возвращает флаг отмены с учётом статуса:
// для canceled флаг не имеет смысла и всегда false.
func (r SubscriptionRecord) EffectiveCancelAtPeriodEnd() bool {
	return r.Status.Billable() && r.CancelAtPeriodEnd
}

var (
	// ErrInvalidPeriod: начало периода не раньше его конца.
	ErrInvalidPeriod = errors.New("current period start must be before its end")
	// ErrCancelFlagNotAllowed: флаг отмены у статуса, к которому он не применим.
	ErrCancelFlagNotAllowed = errors.New("cancelAtPeriodEnd is only allowed for active, trialing or past_due")
)

// Validate проверяет инварианты записи. Флаг отмены у canceled не считается
// ошибкой: он просто игнорируется.
func (r SubscriptionRecord) Validate() error {
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	if !r.CurrentPeriodStart.IsZero() && !r.CurrentPeriodEnd.IsZero() &&
		!r.CurrentPeriodStart.Before(r.CurrentPeriodEnd) {
		return ErrInvalidPeriod
	}
	if r.CancelAtPeriodEnd && !r.Status.Billable() && r.Status != StatusCanceled {
		return ErrCancelFlagNotAllowed
	}
	return nil
}
