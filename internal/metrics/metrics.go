// Package metrics — метрики Prometheus для операций над подписками.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

// SubscriptionMetrics собирает исходы операций оркестратора, платёжных
// сессий и зачислений.
type SubscriptionMetrics struct {
	operations  *prometheus.CounterVec
	checkouts   *prometheus.CounterVec
	enrollments *prometheus.CounterVec
	sessions    prometheus.Gauge
}

// New регистрирует метрики в registry.
func New(registry prometheus.Registerer) *SubscriptionMetrics {
	factory := promauto.With(registry)
	return &SubscriptionMetrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_operations_total",
				Help: "The total number of subscription operations by result",
			},
			[]string{"operation", "result"},
		),
		checkouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_checkouts_total",
				Help: "The total number of finished payment sessions by final phase",
			},
			[]string{"phase"},
		),
		enrollments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enrollment_operations_total",
				Help: "The total number of enrollment operations by result",
			},
			[]string{"operation", "result"},
		),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "subscription_client_sessions",
			Help: "Number of live user sessions",
		}),
	}
}

// OperationCompleted учитывает завершённую операцию над подпиской.
func (m *SubscriptionMetrics) OperationCompleted(op, result string) {
	m.operations.WithLabelValues(op, result).Inc()
}

// CheckoutCompleted учитывает завершённую платёжную сессию.
func (m *SubscriptionMetrics) CheckoutCompleted(phase models.CheckoutPhase) {
	m.checkouts.WithLabelValues(string(phase)).Inc()
}

// EnrollmentCompleted учитывает операцию зачисления.
func (m *SubscriptionMetrics) EnrollmentCompleted(op, result string) {
	m.enrollments.WithLabelValues(op, result).Inc()
}

// SessionOpened увеличивает число живых сессий.
func (m *SubscriptionMetrics) SessionOpened() { m.sessions.Inc() }

// SessionClosed уменьшает число живых сессий.
func (m *SubscriptionMetrics) SessionClosed() { m.sessions.Dec() }
