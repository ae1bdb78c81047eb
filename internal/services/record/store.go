package record

import (
	"sync"

	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

// Listener получает прежний и новый снимок после каждого изменения.
type Listener func(prev, next models.SubscriptionRecord)

// Store: единственный владелец снимка подписки в сессии.
type Store struct {
	mu        sync.RWMutex
	current   models.SubscriptionRecord
	version   uint64
	listeners []Listener
}

// NewStore создаёт хранилище без подписки.
func NewStore() *Store {
	return &Store{current: models.NoSubscription()}
}

// Current возвращает копию снимка.
func (s *Store) Current() models.SubscriptionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.current)
}

// Version растёт при каждом изменении снимка.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// OnChange регистрирует слушателя изменений.
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Replace заменяет снимок ответом сервера целиком.
func (s *Store) Replace(rec models.SubscriptionRecord) {
	s.mu.Lock()
	prev := s.current
	s.current = clone(rec)
	s.version++
	listeners := s.listeners
	s.mu.Unlock()

	s.notify(listeners, prev, rec)
}

// Hint применяет оптимистичную подсказку к копии снимка и возвращает
// функцию восстановления. Восстановление срабатывает, только если с момента
// подсказки снимок никто не менял.
func (s *Store) Hint(fn func(rec *models.SubscriptionRecord)) (restore func()) {
	s.mu.Lock()
	prev := s.current
	next := clone(prev)
	fn(&next)
	s.current = next
	s.version++
	hinted := s.version
	listeners := s.listeners
	s.mu.Unlock()

	s.notify(listeners, prev, next)

	return func() {
		s.mu.Lock()
		if s.version != hinted {
			s.mu.Unlock()
			return
		}
		cur := s.current
		s.current = prev
		s.version++
		listeners := s.listeners
		s.mu.Unlock()

		s.notify(listeners, cur, prev)
	}
}

func (s *Store) notify(listeners []Listener, prev, next models.SubscriptionRecord) {
	for _, l := range listeners {
		l(clone(prev), clone(next))
	}
}

func clone(rec models.SubscriptionRecord) models.SubscriptionRecord {
	if rec.TrialEnd != nil {
		t := *rec.TrialEnd
		rec.TrialEnd = &t
	}
	return rec
}
