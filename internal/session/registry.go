// Package session хранит состояние подписки каждого пользователя между
// запросами: токен, запись о подписке, оркестратор и зеркало зачислений.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
	"github.com/magabrotheeeer/course-subscriptions/internal/paymentprovider"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/checkout"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/directory"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/enrollment"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/orchestrator"
	"github.com/magabrotheeeer/course-subscriptions/internal/services/record"
)

const enrollmentRefreshTimeout = 10 * time.Second

// Metrics: метрики, которые собирают сессии.
type Metrics interface {
	orchestrator.Metrics
	enrollment.Metrics
	SessionOpened()
	SessionClosed()
}

// Deps: общие для всех сессий зависимости.
type Deps struct {
	Client     *apiclient.Client
	Provider   paymentprovider.Provider
	Publisher  orchestrator.EventPublisher // может быть nil
	Metrics    Metrics                     // может быть nil
	PlansCache directory.Cache             // может быть nil
	PlansTTL   time.Duration
	Log        *slog.Logger
}

// Session: состояние одного пользователя.
type Session struct {
	UserUID      string
	Token        *apiclient.BearerToken
	Client       *apiclient.Client // клиент платформы с токеном пользователя
	Store        *record.Store
	Orchestrator *orchestrator.Orchestrator
	Enrollments  *enrollment.Mirror

	mu       sync.Mutex
	lastSeen time.Time

	// ready закрывается после первой загрузки, loadErr читается только после него
	ready   chan struct{}
	loadErr error
}

// wait блокирует до окончания первой загрузки сессии.
func (s *Session) wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Registry: сессии по идентификатору пользователя из JWT.
type Registry struct {
	deps Deps
	log  *slog.Logger
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		log:      deps.Log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get возвращает сессию пользователя, создавая и загружая её при первом
// обращении. Токен обновляется при каждом вызове. Параллельные запросы того
// же пользователя ждут окончания первой загрузки.
func (r *Registry) Get(ctx context.Context, userUID, token string, admin bool) (*Session, error) {
	const op = "session.Get"

	r.mu.Lock()
	s, ok := r.sessions[userUID]
	if !ok {
		s = r.build(userUID, token)
		r.sessions[userUID] = s
	}
	r.mu.Unlock()

	s.touch(r.now())
	s.Token.Set(token)
	s.Orchestrator.SetAdmin(admin)
	if ok {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}

	if r.deps.Metrics != nil {
		r.deps.Metrics.SessionOpened()
	}
	r.log.Info("session opened", sl.Op(op), slog.String("user", userUID))

	// сессию делят все запросы пользователя, отмена одного из них не должна
	// оставить её незагруженной
	s.loadErr = r.load(context.WithoutCancel(ctx), s)
	close(s.ready)
	if s.loadErr != nil {
		r.remove(userUID, s)
		return nil, s.loadErr
	}
	return s, nil
}

func (r *Registry) load(ctx context.Context, s *Session) error {
	if err := s.Orchestrator.Load(ctx); err != nil {
		return err
	}
	if err := s.Enrollments.Refresh(ctx); err != nil && errors.Is(err, apiclient.ErrUnauthenticated) {
		return err
	}
	return nil
}

func (r *Registry) build(userUID, token string) *Session {
	log := r.log.With(slog.String("user", userUID))
	var sess *Session
	bearer := apiclient.NewBearerToken(token, func() { r.remove(userUID, sess) })
	client := r.deps.Client.WithTokens(bearer)
	store := record.NewStore()

	var enrollMetrics enrollment.Metrics
	var orchMetrics orchestrator.Metrics
	if r.deps.Metrics != nil {
		enrollMetrics = r.deps.Metrics
		orchMetrics = r.deps.Metrics
	}

	mirror := enrollment.New(client, enrollMetrics, log)
	orch := orchestrator.New(userUID, orchestrator.Deps{
		Directory: directory.New(client, r.deps.PlansCache, r.deps.PlansTTL, log),
		Fetcher:   record.NewAccessor(client, log),
		Mutator:   client,
		NewSession: func(planType string) *checkout.Session {
			return checkout.NewSession(planType, r.deps.Provider, client, log)
		},
		Store:     store,
		Publisher: r.deps.Publisher,
		Metrics:   orchMetrics,
		Log:       log,
	})
	orch.SetEnrollmentSource(mirror.List)
	mirror.OnChange(orch.Notify)

	// доступ к курсам зависит от статуса подписки
	store.OnChange(func(prev, next models.SubscriptionRecord) {
		if prev.Status == next.Status {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), enrollmentRefreshTimeout)
			defer cancel()
			if err := mirror.Refresh(ctx); err != nil {
				log.Warn("enrollment refresh after status change failed", sl.Err(err))
			}
		}()
	})

	sess = &Session{
		UserUID:      userUID,
		Token:        bearer,
		Client:       client,
		Store:        store,
		Orchestrator: orch,
		Enrollments:  mirror,
		ready:        make(chan struct{}),
	}
	return sess
}

// Lookup возвращает сессию без создания.
func (r *Registry) Lookup(userUID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userUID]
	return s, ok
}

// Drop закрывает сессию пользователя.
func (r *Registry) Drop(userUID string) {
	r.remove(userUID, nil)
}

// remove удаляет сессию пользователя. Если задан only, удаляется только
// эта сессия, а не созданная позже на её месте.
func (r *Registry) remove(userUID string, only *Session) {
	r.mu.Lock()
	cur, ok := r.sessions[userUID]
	if ok && only != nil && cur != only {
		ok = false
	}
	if ok {
		delete(r.sessions, userUID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.SessionClosed()
	}
	r.log.Info("session closed", slog.String("user", userUID))
}

// Refresh перечитывает подписку пользователя, если у него есть сессия.
func (r *Registry) Refresh(ctx context.Context, userUID string) error {
	s, ok := r.Lookup(userUID)
	if !ok {
		return nil
	}
	return s.Orchestrator.Refresh(ctx)
}

// Len возвращает число сессий.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep закрывает сессии, к которым не обращались дольше idle.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []string
	for uid, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, uid)
		}
	}
	r.mu.Unlock()

	for _, uid := range stale {
		r.Drop(uid)
	}
	return len(stale)
}

// RunSweeper периодически закрывает простаивающие сессии до отмены ctx.
func (r *Registry) RunSweeper(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				r.log.Info("idle sessions closed", slog.Int("count", n))
			}
		}
	}
}
