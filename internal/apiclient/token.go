package apiclient

import "sync"

// TokenSource отдаёт bearer-токен для каждого запроса и сбрасывает его
// после 401.
type TokenSource interface {
	Token() string
	Clear()
}

// BearerToken: потокобезопасный TokenSource с возможностью обновления.
type BearerToken struct {
	mu      sync.RWMutex
	token   string
	onClear func()
}

// NewBearerToken создаёт источник токена. onClear вызывается после сброса.
func NewBearerToken(token string, onClear func()) *BearerToken {
	return &BearerToken{token: token, onClear: onClear}
}

// Set заменяет токен.
func (b *BearerToken) Set(token string) {
	b.mu.Lock()
	b.token = token
	b.mu.Unlock()
}

// Token возвращает текущий токен.
func (b *BearerToken) Token() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token
}

// Clear сбрасывает токен.
func (b *BearerToken) Clear() {
	b.mu.Lock()
	b.token = ""
	onClear := b.onClear
	b.mu.Unlock()
	if onClear != nil {
		onClear()
	}
}
