// Package jwt разбирает bearer-токены платформы курсов.
//
// Токен выпускает платформа (вход через Google), BFF лишь проверяет подпись
// общим секретом и достаёт из него идентификатор пользователя и роль.
package jwt

import (
	"time"
)

// RoleAdmin: роль администратора платформы.
const RoleAdmin = "admin"

// Maker описывает генерацию и разбор токенов.
type Maker interface {
	GenerateToken(userUID, email, role string) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует Maker на HS256 с общим секретом.
type MakerImpl struct {
	secretKey string        // Секретный ключ для подписи токенов.
	tokenTTL  time.Duration // Время жизни токена.
}

// NewJWTMaker создаёт MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
