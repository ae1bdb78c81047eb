package orchestrator

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/course-subscriptions/internal/models"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/checkout"
)

// checkLegal проверяет предусловие операции по текущей записи.
//
//	select_plan           status == none
//	switch_plan           active | trialing | past_due, тариф отличается
//	cancel_at_period_end  active | trialing | past_due, флаг отмены не стоит
//	resume                canceled, либо оплачиваемый статус с флагом отмены
func checkLegal(rec models.SubscriptionRecord, action models.Action, planType string) error {
	ok := false
	switch action {
	case models.ActionSelectPlan:
		ok = rec.IsNone() && planType != ""
	case models.ActionSwitchPlan:
		ok = rec.Status.Billable() && planType != "" && planType != rec.PlanType
	case models.ActionCancelAtPeriodEnd:
		ok = rec.Status.Billable() && !rec.CancelAtPeriodEnd
	case models.ActionResume:
		ok = rec.Status == models.StatusCanceled || (rec.Status.Billable() && rec.CancelAtPeriodEnd)
	}
	if !ok {
		return fmt.Errorf("%w: %s while %s", ErrIllegalTransition, action, statusOf(rec))
	}
	return nil
}

func statusOf(rec models.SubscriptionRecord) models.SubscriptionStatus {
	if rec.Status == "" {
		return models.StatusNone
	}
	return rec.Status
}

// legalActions перечисляет операции, допустимые для записи. Смена тарифа
// предлагается, если в каталоге есть хотя бы один другой тариф.
func legalActions(rec models.SubscriptionRecord, plans []models.PlanOffer) []models.Action {
	actions := []models.Action{}
	if rec.IsNone() {
		return append(actions, models.ActionSelectPlan)
	}
	for _, p := range plans {
		if checkLegal(rec, models.ActionSwitchPlan, p.PlanType) == nil {
			actions = append(actions, models.ActionSwitchPlan)
			break
		}
	}
	if checkLegal(rec, models.ActionCancelAtPeriodEnd, "") == nil {
		actions = append(actions, models.ActionCancelAtPeriodEnd)
	}
	if checkLegal(rec, models.ActionResume, "") == nil {
		actions = append(actions, models.ActionResume)
	}
	return actions
}

// LegalActions возвращает операции, доступные сейчас.
func (o *Orchestrator) LegalActions() []models.Action {
	return legalActions(o.store.Current(), o.Plans())
}

// ViewState возвращает снимок состояния для слоя отображения.
func (o *Orchestrator) ViewState() models.ViewState {
	rec := o.store.Current()

	o.mu.Lock()
	plans := append([]models.PlanOffer{}, o.plans...)
	vs := models.ViewState{
		Plans:        plans,
		SessionPhase: models.PhaseIdle,
		Error:        o.lastErr,
		Busy:         o.inFlight,
		Admin:        o.admin,
	}
	if o.lastPhase != "" {
		vs.SessionPhase = o.lastPhase
	}
	active := o.active
	enrollments := o.enrollments
	o.mu.Unlock()

	if !rec.IsNone() {
		vs.Current = &rec
	}
	if active != nil {
		vs.SessionPhase = active.Phase()
		vs.SessionID = active.ID
	}
	vs.Actions = legalActions(rec, plans)
	if enrollments != nil {
		vs.Enrollments = enrollments()
	}
	return vs
}

// Subscribe возвращает канал снимков состояния и функцию отписки. В канале
// держится только последний снимок: медленный читатель пропускает
// промежуточные.
func (o *Orchestrator) Subscribe() (<-chan models.ViewState, func()) {
	ch := make(chan models.ViewState, 1)
	ch <- o.ViewState()

	o.subMu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = ch
	o.subMu.Unlock()

	return ch, func() {
		o.subMu.Lock()
		if _, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(ch)
		}
		o.subMu.Unlock()
	}
}

// Notify рассылает свежий снимок подписчикам.
func (o *Orchestrator) Notify() {
	vs := o.ViewState()

	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- vs:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- vs:
			default:
			}
		}
	}
}

// Hooks: обработчики действий пользователя для слоя отображения.
type Hooks struct {
	OnPlanSelected func(planType string) (*checkout.Session, error)
	OnCancel       func(ctx context.Context) error
	OnResume       func(ctx context.Context) error
	OnSwitchPlan   func(ctx context.Context, planType string) error
}

// Hooks возвращает обработчики, привязанные к оркестратору.
func (o *Orchestrator) Hooks() Hooks {
	return Hooks{
		OnPlanSelected: o.SelectPlan,
		OnCancel:       o.CancelAtPeriodEnd,
		OnResume:       o.Resume,
		OnSwitchPlan:   o.SwitchPlan,
	}
}
