// Package enrollment держит локальное зеркало зачислений пользователя на
// курсы с оптимистичными изменениями и сверкой по серверу.
package enrollment

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/optimistic"
	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

var (
	// ErrOperationInProgress: по этому курсу уже выполняется операция.
	ErrOperationInProgress = errors.New("enrollment operation in progress")
	// ErrEmptyCourseID: не указан курс.
	ErrEmptyCourseID = errors.New("course id is required")
)

// Source: эндпоинты зачислений платформы.
type Source interface {
	MyEnrollments(ctx context.Context) ([]models.EnrollmentRecord, error)
	Enroll(ctx context.Context, courseID string) (*apiclient.EnrollResponse, error)
	Unenroll(ctx context.Context, courseID string) error
	EnrollmentSummary(ctx context.Context) ([]models.EnrollmentSummary, error)
}

// Metrics принимает исходы операций зачисления.
type Metrics interface {
	EnrollmentCompleted(op, result string)
}

// Mirror: упорядоченный список зачислений и множество курсов.
// Новые зачисления добавляются в начало.
type Mirror struct {
	source  Source
	metrics Metrics
	log     *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	list      []models.EnrollmentRecord
	members   map[string]struct{}
	inFlight  map[string]struct{}
	listeners []func()
}

// New создаёт пустое зеркало. metrics может быть nil.
func New(source Source, metrics Metrics, log *slog.Logger) *Mirror {
	return &Mirror{
		source:   source,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
		members:  make(map[string]struct{}),
		inFlight: make(map[string]struct{}),
	}
}

// OnChange регистрирует слушателя изменений списка.
func (m *Mirror) OnChange(fn func()) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// List возвращает копию списка.
func (m *Mirror) List() []models.EnrollmentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.list)
}

// IsEnrolled сообщает, числится ли курс в зеркале, включая ожидающие ответа.
func (m *Mirror) IsEnrolled(courseID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[courseID]
	return ok
}

// Refresh заменяет зеркало авторитетным списком сервера. Оптимистичные
// записи, которых там нет, пропадают.
func (m *Mirror) Refresh(ctx context.Context) error {
	const op = "enrollment.Refresh"
	records, err := m.source.MyEnrollments(ctx)
	if err != nil {
		m.log.Warn("keeping previous enrollments", sl.Op(op), sl.Err(err))
		return err
	}

	m.mu.Lock()
	m.list = make([]models.EnrollmentRecord, 0, len(records))
	m.members = make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := m.members[r.CourseID]; dup {
			continue
		}
		r.Pending = false
		m.list = append(m.list, r)
		m.members[r.CourseID] = struct{}{}
	}
	m.mu.Unlock()

	m.changed()
	return nil
}

// Enroll зачисляет на курс. Курс появляется в зеркале сразу, до ответа
// сервера, и убирается, если сервер отказал.
func (m *Mirror) Enroll(ctx context.Context, courseID string) error {
	const op = "enrollment.Enroll"
	if courseID == "" {
		return ErrEmptyCourseID
	}
	if err := m.acquire(courseID); err != nil {
		m.record(op, err)
		return err
	}
	defer m.release(courseID)
	if m.IsEnrolled(courseID) {
		return nil
	}

	_, err := optimistic.Do(ctx, optimistic.Step[*apiclient.EnrollResponse]{
		Apply: func() func() {
			m.insertFront(models.EnrollmentRecord{CourseID: courseID, EnrolledAt: m.now().UTC(), Pending: true})
			return func() { m.removePending(courseID) }
		},
		Call: func(ctx context.Context) (*apiclient.EnrollResponse, error) {
			return m.source.Enroll(ctx, courseID)
		},
		Merge: func(_ context.Context, resp *apiclient.EnrollResponse) error {
			m.confirm(courseID, resp)
			return nil
		},
	})
	m.record(op, err)
	if err != nil {
		m.log.Warn("enroll failed, rolled back", sl.Op(op), slog.String("course", courseID), sl.Err(err))
		return err
	}
	return nil
}

// Unenroll отчисляет с курса. При отказе сервера запись возвращается на
// прежнее место.
func (m *Mirror) Unenroll(ctx context.Context, courseID string) error {
	const op = "enrollment.Unenroll"
	if courseID == "" {
		return ErrEmptyCourseID
	}
	if err := m.acquire(courseID); err != nil {
		m.record(op, err)
		return err
	}
	defer m.release(courseID)
	if !m.IsEnrolled(courseID) {
		return nil
	}

	_, err := optimistic.Do(ctx, optimistic.Step[struct{}]{
		Apply: func() func() {
			idx, rec, ok := m.remove(courseID)
			if !ok {
				return nil
			}
			return func() { m.insertAt(idx, rec) }
		},
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, m.source.Unenroll(ctx, courseID)
		},
	})
	m.record(op, err)
	if err != nil {
		m.log.Warn("unenroll failed, rolled back", sl.Op(op), slog.String("course", courseID), sl.Err(err))
		return err
	}
	return nil
}

// Summary возвращает агрегат зачислений. Ошибки чтения дают пустой список.
func (m *Mirror) Summary(ctx context.Context) []models.EnrollmentSummary {
	const op = "enrollment.Summary"
	summary, err := m.source.EnrollmentSummary(ctx)
	if err != nil {
		m.log.Warn("failed to fetch enrollment summary", sl.Op(op), sl.Err(err))
		return []models.EnrollmentSummary{}
	}
	if summary == nil {
		return []models.EnrollmentSummary{}
	}
	return summary
}

func (m *Mirror) acquire(courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[courseID]; busy {
		return ErrOperationInProgress
	}
	m.inFlight[courseID] = struct{}{}
	return nil
}

func (m *Mirror) release(courseID string) {
	m.mu.Lock()
	delete(m.inFlight, courseID)
	m.mu.Unlock()
}

func (m *Mirror) insertFront(rec models.EnrollmentRecord) {
	m.insertAt(0, rec)
}

func (m *Mirror) insertAt(idx int, rec models.EnrollmentRecord) {
	m.mu.Lock()
	if _, ok := m.members[rec.CourseID]; ok {
		m.mu.Unlock()
		return
	}
	idx = min(idx, len(m.list))
	m.list = slices.Insert(m.list, idx, rec)
	m.members[rec.CourseID] = struct{}{}
	m.mu.Unlock()
	m.changed()
}

func (m *Mirror) remove(courseID string) (int, models.EnrollmentRecord, bool) {
	m.mu.Lock()
	idx := m.indexOf(courseID)
	if idx < 0 {
		m.mu.Unlock()
		return 0, models.EnrollmentRecord{}, false
	}
	rec := m.list[idx]
	m.list = slices.Delete(m.list, idx, idx+1)
	delete(m.members, courseID)
	m.mu.Unlock()
	m.changed()
	return idx, rec, true
}

// removePending откатывает оптимистичное зачисление. Запись, уже
// подтверждённую обновлением с сервера, не трогает.
func (m *Mirror) removePending(courseID string) {
	m.mu.Lock()
	idx := m.indexOf(courseID)
	if idx < 0 || !m.list[idx].Pending {
		m.mu.Unlock()
		return
	}
	m.list = slices.Delete(m.list, idx, idx+1)
	delete(m.members, courseID)
	m.mu.Unlock()
	m.changed()
}

func (m *Mirror) confirm(courseID string, resp *apiclient.EnrollResponse) {
	m.mu.Lock()
	idx := m.indexOf(courseID)
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	m.list[idx].Pending = false
	if resp != nil && resp.EnrolledAt != nil {
		m.list[idx].EnrolledAt = *resp.EnrolledAt
	}
	m.mu.Unlock()
	m.changed()
}

func (m *Mirror) indexOf(courseID string) int {
	return slices.IndexFunc(m.list, func(r models.EnrollmentRecord) bool {
		return r.CourseID == courseID
	})
}

func (m *Mirror) changed() {
	m.mu.Lock()
	listeners := m.listeners
	m.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (m *Mirror) record(op string, err error) {
	if m.metrics == nil {
		return
	}
	res := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrOperationInProgress):
		res = "in_progress"
	case errors.Is(err, apiclient.ErrUnauthenticated):
		res = "unauthenticated"
	default:
		res = "error"
	}
	m.metrics.EnrollmentCompleted(strings.ToLower(strings.TrimPrefix(op, "enrollment.")), res)
}
