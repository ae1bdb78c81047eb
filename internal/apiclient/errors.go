package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthenticated: платформа ответила 401. Токен уже сброшен,
	// операцию нужно бросить без повторов.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrTransport: изменяющий запрос не дошёл до платформы.
	ErrTransport = errors.New("platform unreachable")
)

// FetchError: сетевая ошибка или ошибка разбора на читающем эндпоинте.
type FetchError struct {
	Op         string
	StatusCode int // 0, если ответа не было
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: fetch failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: fetch failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ServerRejectedError: ответ 4xx/5xx изменяющего эндпоинта.
// Message берётся из тела ответа дословно, если оно есть.
type ServerRejectedError struct {
	StatusCode int
	Message    string
}

func (e *ServerRejectedError) Error() string {
	return e.Message
}

func rejected(status int, body []byte) *ServerRejectedError {
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &ServerRejectedError{StatusCode: status, Message: msg}
}

// IsServerRejected сообщает, отклонил ли сервер изменение, и возвращает ошибку.
func IsServerRejected(err error) (*ServerRejectedError, bool) {
	var rej *ServerRejectedError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
