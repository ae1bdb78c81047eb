package models

import "time"

// EnrollmentRecord: зачисление пользователя на курс.
type EnrollmentRecord struct {
	CourseID   string    `json:"courseId"`
	EnrolledAt time.Time `json:"enrolledAt,omitzero"`
	Pending    bool      `json:"pending,omitempty"` // Оптимистичная запись, сервер ещё не ответил
}

// EnrollmentSummary: агрегат зачислений по курсу.
type EnrollmentSummary struct {
	CourseID   string `json:"courseId"`
	Title      string `json:"title"`
	Count      int    `json:"count"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
}

// PaymentHistoryEntry: строка истории платежей пользователя.
type PaymentHistoryEntry struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	PlanType  string    `json:"planType,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}
