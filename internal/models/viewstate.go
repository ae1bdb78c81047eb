package models

// CheckoutPhase: фаза платёжной сессии.
type CheckoutPhase string

const (
	PhaseIdle                 CheckoutPhase = "idle"
	PhaseTokenizingCard       CheckoutPhase = "tokenizing_card"
	PhaseCreatingServerIntent CheckoutPhase = "creating_server_intent"
	PhaseAwaitingConfirmation CheckoutPhase = "awaiting_external_confirmation"
	PhaseConfirmed            CheckoutPhase = "confirmed"
	PhaseFailed               CheckoutPhase = "failed"
)

// Terminal сообщает, что из фазы переходов больше нет.
func (p CheckoutPhase) Terminal() bool {
	return p == PhaseConfirmed || p == PhaseFailed
}

// Action: операция над подпиской, которую может предложить интерфейс.
type Action string

const (
	ActionSelectPlan        Action = "select_plan"
	ActionSwitchPlan        Action = "switch_plan"
	ActionCancelAtPeriodEnd Action = "cancel_at_period_end"
	ActionResume            Action = "resume"
)

// ViewState: состояние подписки и оплаты, на которое подписан слой
// отображения. Current равен nil, если подписки нет.
type ViewState struct {
	Plans        []PlanOffer         `json:"plans"`
	Current      *SubscriptionRecord `json:"current"`
	SessionPhase CheckoutPhase       `json:"sessionPhase"`
	SessionID    string              `json:"sessionId,omitempty"`
	Error        string              `json:"error,omitempty"`
	Busy         bool                `json:"busy"`
	Actions      []Action            `json:"actions"`
	Admin        bool                `json:"admin"`
	Enrollments  []EnrollmentRecord  `json:"enrollments,omitempty"`
}
