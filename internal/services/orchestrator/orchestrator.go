// Package orchestrator реализует конечный автомат подписки пользователя: проверяет
// допустимость операций по текущей записи, сериализует изменяющие вызовы и
// перечитывает запись после каждого подтверждённого изменения.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/optimistic"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
	"github.com/magabrotheeeer/course-subscriptions/internal/paymentprovider"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/checkout"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/record"
)

// Directory отдаёт каталог тарифов.
type Directory interface {
	ListPlans(ctx context.Context) []models.PlanOffer
}

// RecordFetcher читает авторитетную запись о подписке.
type RecordFetcher interface {
	GetCurrent(ctx context.Context) (models.SubscriptionRecord, error)
}

// Mutator: изменяющие эндпоинты подписки.
type Mutator interface {
	CancelSubscription(ctx context.Context) error
	ResumeSubscription(ctx context.Context) error
	ChangePlan(ctx context.Context, planType string) error
}

// SessionFactory открывает платёжную сессию для тарифа.
type SessionFactory func(planType string) *checkout.Session

// EventPublisher публикует итоги платёжных сессий.
type EventPublisher interface {
	PublishCheckout(ctx context.Context, event models.CheckoutEvent) error
}

// Metrics принимает исходы операций.
type Metrics interface {
	OperationCompleted(op, result string)
	CheckoutCompleted(phase models.CheckoutPhase)
}

// Deps: зависимости оркестратора.
type Deps struct {
	Directory  Directory
	Fetcher    RecordFetcher
	Mutator    Mutator
	NewSession SessionFactory
	Store      *record.Store
	Publisher  EventPublisher // может быть nil
	Metrics    Metrics        // может быть nil
	Log        *slog.Logger
}

// Orchestrator владеет состоянием подписки одного пользователя.
type Orchestrator struct {
	userUID    string
	directory  Directory
	fetcher    RecordFetcher
	mutator    Mutator
	newSession SessionFactory
	store      *record.Store
	publisher  EventPublisher
	metrics    Metrics
	log        *slog.Logger

	mu          sync.Mutex
	plans       []models.PlanOffer
	active      *checkout.Session
	lastPhase   models.CheckoutPhase
	inFlight    bool
	lastErr     string
	admin       bool
	enrollments func() []models.EnrollmentRecord

	subMu  sync.Mutex
	subs   map[int]chan models.ViewState
	nextID int
}

// New создаёт оркестратор для пользователя userUID.
func New(userUID string, deps Deps) *Orchestrator {
	o := &Orchestrator{
		userUID:    userUID,
		directory:  deps.Directory,
		fetcher:    deps.Fetcher,
		mutator:    deps.Mutator,
		newSession: deps.NewSession,
		store:      deps.Store,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		log:        deps.Log.With(slog.String("user", userUID)),
		plans:      []models.PlanOffer{},
		subs:       make(map[int]chan models.ViewState),
	}
	o.store.OnChange(func(_, _ models.SubscriptionRecord) { o.Notify() })
	return o
}

// SetAdmin выставляет признак администратора для слоя отображения.
func (o *Orchestrator) SetAdmin(admin bool) {
	o.mu.Lock()
	changed := o.admin != admin
	o.admin = admin
	o.mu.Unlock()
	if changed {
		o.Notify()
	}
}

// SetEnrollmentSource подключает список зачислений к состоянию отображения.
func (o *Orchestrator) SetEnrollmentSource(fn func() []models.EnrollmentRecord) {
	o.mu.Lock()
	o.enrollments = fn
	o.mu.Unlock()
}

// Load читает каталог и текущую подписку. Ошибки чтения поглощаются:
// каталог становится пустым, запись остаётся прежней. Наружу выходит
// только ErrUnauthenticated.
func (o *Orchestrator) Load(ctx context.Context) error {
	plans := o.directory.ListPlans(ctx)
	o.mu.Lock()
	o.plans = plans
	o.mu.Unlock()

	err := o.Refresh(ctx)
	if errors.Is(err, apiclient.ErrUnauthenticated) {
		return err
	}
	o.Notify()
	return nil
}

// Refresh перечитывает запись о подписке и заменяет её целиком.
// При ошибке прежняя запись сохраняется.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	const op = "orchestrator.Refresh"
	rec, err := o.fetcher.GetCurrent(ctx)
	if err != nil {
		o.log.Warn("keeping previous subscription record", sl.Op(op), sl.Err(err))
		return err
	}
	o.store.Replace(rec)
	return nil
}

// Plans возвращает загруженный каталог.
func (o *Orchestrator) Plans() []models.PlanOffer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.PlanOffer{}, o.plans...)
}

// Current возвращает текущую запись о подписке.
func (o *Orchestrator) Current() models.SubscriptionRecord {
	return o.store.Current()
}

// SelectPlan открывает новую платёжную сессию. Допустимо только без подписки.
// Прежняя незапущенная сессия при этом отбрасывается.
func (o *Orchestrator) SelectPlan(planType string) (*checkout.Session, error) {
	const op = "orchestrator.SelectPlan"

	s, err := o.selectPlan(planType)
	o.finish(op, err, fallbackCheckout)
	if err != nil {
		return nil, err
	}
	o.log.Info("payment session opened", sl.Op(op), slog.String("session", s.ID), slog.String("plan", planType))
	return s, nil
}

func (o *Orchestrator) selectPlan(planType string) (*checkout.Session, error) {
	if err := checkLegal(o.store.Current(), models.ActionSelectPlan, planType); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight {
		return nil, ErrOperationInProgress
	}
	if len(o.plans) > 0 && !hasPlan(o.plans, planType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planType)
	}

	s := o.newSession(planType)
	s.OnPhaseChange(func(sess *checkout.Session, _ models.CheckoutPhase) {
		if o.isActive(sess) {
			o.Notify()
		}
	})
	o.active = s
	o.lastPhase = ""
	return s, nil
}

// ActiveSession возвращает открытую платёжную сессию по id.
func (o *Orchestrator) ActiveSession(id string) (*checkout.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil || o.active.ID != id {
		return nil, false
	}
	return o.active, true
}

// SubmitPayment проводит открытую сессию. Допустимость выбора тарифа
// проверяется заново: запись могла измениться после открытия сессии.
// После Confirmed запись перечитывается ровно один раз, после Failed не
// перечитывается. Завершённая сессия закрывается, её фаза остаётся в
// состоянии отображения. Если сессию закрыли до завершения, её результат
// отбрасывается.
func (o *Orchestrator) SubmitPayment(ctx context.Context, sessionID string, card paymentprovider.CardInput) error {
	const op = "orchestrator.SubmitPayment"

	o.mu.Lock()
	s := o.active
	if s == nil || s.ID != sessionID {
		o.mu.Unlock()
		return ErrNoActiveSession
	}
	if o.inFlight {
		o.mu.Unlock()
		o.finish(op, ErrOperationInProgress, fallbackCheckout)
		return ErrOperationInProgress
	}
	if err := checkLegal(o.store.Current(), models.ActionSelectPlan, s.PlanType); err != nil {
		o.active = nil
		o.mu.Unlock()
		o.log.Info("closing stale payment session", sl.Op(op), slog.String("session", s.ID))
		o.finish(op, err, fallbackCheckout)
		return err
	}
	o.inFlight = true
	o.lastErr = ""
	o.mu.Unlock()
	o.Notify()

	runErr := s.Run(ctx, card)

	o.mu.Lock()
	o.inFlight = false
	orphaned := o.active != s
	if !orphaned {
		o.active = nil
		o.lastPhase = s.Phase()
	}
	o.mu.Unlock()

	if orphaned {
		o.log.Info("dropping result of dismissed session", sl.Op(op), slog.String("session", s.ID), slog.String("phase", string(s.Phase())))
		o.Notify()
		return ErrSessionDismissed
	}

	if o.metrics != nil {
		o.metrics.CheckoutCompleted(s.Phase())
	}
	o.publishCheckout(ctx, s, runErr)

	if runErr != nil {
		o.finish(op, runErr, fallbackCheckout)
		return runErr
	}

	if err := o.Refresh(ctx); err != nil {
		o.log.Warn("subscription re-fetch after checkout failed", sl.Op(op), sl.Err(err))
	}
	o.finish(op, nil, "")
	return nil
}

// DismissCheckout закрывает сессию. Запущенная сессия доработает, но её
// результат будет отброшен.
func (o *Orchestrator) DismissCheckout(sessionID string) error {
	o.mu.Lock()
	if o.active == nil || o.active.ID != sessionID {
		o.mu.Unlock()
		return ErrNoActiveSession
	}
	o.active = nil
	o.lastErr = ""
	o.mu.Unlock()

	o.log.Info("payment session dismissed", slog.String("session", sessionID))
	o.Notify()
	return nil
}

// CancelAtPeriodEnd ставит отмену подписки в конце оплаченного периода.
func (o *Orchestrator) CancelAtPeriodEnd(ctx context.Context) error {
	return o.mutate(ctx, "orchestrator.CancelAtPeriodEnd", models.ActionCancelAtPeriodEnd, "", fallbackCancel,
		func(rec *models.SubscriptionRecord) { rec.CancelAtPeriodEnd = true },
		o.mutator.CancelSubscription,
	)
}

// Resume снимает отмену подписки.
func (o *Orchestrator) Resume(ctx context.Context) error {
	return o.mutate(ctx, "orchestrator.Resume", models.ActionResume, "", fallbackResume,
		func(rec *models.SubscriptionRecord) { rec.CancelAtPeriodEnd = false },
		o.mutator.ResumeSubscription,
	)
}

// SwitchPlan меняет тариф действующей подписки. Пересчёт стоимости
// выполняет сервер, новая платёжная сессия не открывается.
func (o *Orchestrator) SwitchPlan(ctx context.Context, planType string) error {
	return o.mutate(ctx, "orchestrator.SwitchPlan", models.ActionSwitchPlan, planType, fallbackSwitch,
		func(rec *models.SubscriptionRecord) { rec.PlanType = planType },
		func(ctx context.Context) error { return o.mutator.ChangePlan(ctx, planType) },
	)
}

// mutate выполняет изменение по единой оптимистичной схеме: подсказка в
// записи, вызов, откат при ошибке, полное перечитывание при успехе.
func (o *Orchestrator) mutate(
	ctx context.Context,
	op string,
	action models.Action,
	planType string,
	fallback string,
	hint func(rec *models.SubscriptionRecord),
	call func(ctx context.Context) error,
) error {
	if err := o.acquire(); err != nil {
		o.finish(op, err, fallback)
		return err
	}

	if err := checkLegal(o.store.Current(), action, planType); err != nil {
		o.release()
		o.finish(op, err, fallback)
		return err
	}
	if action == models.ActionSwitchPlan {
		o.mu.Lock()
		known := len(o.plans) == 0 || hasPlan(o.plans, planType)
		o.mu.Unlock()
		if !known {
			o.release()
			err := fmt.Errorf("%w: %s", ErrUnknownPlan, planType)
			o.finish(op, err, fallback)
			return err
		}
	}
	o.Notify()

	var callErr error
	_, err := optimistic.Do(ctx, optimistic.Step[struct{}]{
		Apply: func() func() {
			return o.store.Hint(hint)
		},
		Call: func(ctx context.Context) (struct{}, error) {
			callErr = call(ctx)
			return struct{}{}, callErr
		},
		Merge: func(ctx context.Context, _ struct{}) error {
			return o.Refresh(ctx)
		},
	})
	o.release()

	if callErr != nil {
		o.log.Warn("mutation failed, optimistic hint rolled back", sl.Op(op), sl.Err(callErr))
		o.finish(op, callErr, fallback)
		return callErr
	}
	if err != nil {
		// сервер изменение принял, не удалось только перечитать запись
		o.log.Warn("re-fetch after mutation failed, keeping optimistic hint", sl.Op(op), sl.Err(err))
	}
	o.finish(op, nil, "")
	return nil
}

func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight {
		return ErrOperationInProgress
	}
	o.inFlight = true
	o.lastErr = ""
	o.lastPhase = ""
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.inFlight = false
	o.mu.Unlock()
}

// operationLabels: метки операций в метриках.
var operationLabels = map[string]string{
	"orchestrator.SelectPlan":        "select_plan",
	"orchestrator.SubmitPayment":     "submit_payment",
	"orchestrator.CancelAtPeriodEnd": "cancel_at_period_end",
	"orchestrator.Resume":            "resume",
	"orchestrator.SwitchPlan":        "switch_plan",
}

// finish записывает сообщение об ошибке и исход операции.
func (o *Orchestrator) finish(op string, err error, fallback string) {
	o.mu.Lock()
	o.lastErr = Message(err, fallback)
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.OperationCompleted(operationLabels[op], result(err))
	}
	if err == nil {
		o.log.Info("operation completed", sl.Op(op))
	} else {
		o.log.Info("operation rejected", sl.Op(op), sl.Err(err))
	}
	o.Notify()
}

func (o *Orchestrator) isActive(s *checkout.Session) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active == s
}

func (o *Orchestrator) publishCheckout(ctx context.Context, s *checkout.Session, runErr error) {
	if o.publisher == nil {
		return
	}
	event := models.CheckoutEvent{
		UserUID:   o.userUID,
		SessionID: s.ID,
		PlanType:  s.PlanType,
		Phase:     s.Phase(),
		Status:    s.ServerStatus(),
		Error:     Message(runErr, fallbackCheckout),
		At:        time.Now().UTC(),
	}
	if err := o.publisher.PublishCheckout(ctx, event); err != nil {
		o.log.Warn("failed to publish checkout event", slog.String("session", s.ID), sl.Err(err))
	}
}

func hasPlan(plans []models.PlanOffer, planType string) bool {
	for _, p := range plans {
		if p.PlanType == planType {
			return true
		}
	}
	return false
}
