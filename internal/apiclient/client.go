// Package apiclient — HTTP-клиент API платформы курсов: подписки, зачисления
// и история платежей. Токен подставляется в каждый запрос из TokenSource.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/magabrotheeeer/course-subscriptions/internal/lib/sl"
)

const maxBodySize = 1 << 20

// Client обращается к API платформы.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	readRetries    int
	readRetryDelay time.Duration
	log            *slog.Logger
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient задаёт http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithReadRetry включает повторы для читающих запросов.
func WithReadRetry(retries int, delay time.Duration) Option {
	return func(c *Client) {
		c.readRetries = retries
		c.readRetryDelay = delay
	}
}

// WithLogger задаёт логгер.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient создаёт клиент. baseURL — адрес шлюза без префикса /api.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tokens:     tokens,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTokens возвращает копию клиента с другим источником токена.
// Транспорт и настройки повторов общие.
func (c *Client) WithTokens(tokens TokenSource) *Client {
	cp := *c
	cp.tokens = tokens
	return &cp
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, headers map[string]string) (*http.Request, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func (c *Client) unauthenticated(op string) error {
	c.log.Warn("platform rejected bearer token", sl.Op(op))
	if c.tokens != nil {
		c.tokens.Clear()
	}
	return fmt.Errorf("%s: %w", op, ErrUnauthenticated)
}

// get выполняет читающий запрос с повторами по политике клиента.
// Повторяются только сетевые ошибки и 5xx.
func (c *Client) get(ctx context.Context, op, path string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.readRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &FetchError{Op: op, Err: ctx.Err()}
			case <-time.After(c.readRetryDelay):
			}
			c.log.Debug("retrying read", sl.Op(op), slog.Int("attempt", attempt))
		}

		req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
		if err != nil {
			return nil, &FetchError{Op: op, Err: err}
		}
		status, body, err := c.send(req)
		switch {
		case err != nil:
			lastErr = &FetchError{Op: op, StatusCode: status, Err: err}
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		case status == http.StatusUnauthorized:
			return nil, c.unauthenticated(op)
		case status >= http.StatusInternalServerError:
			lastErr = &FetchError{Op: op, StatusCode: status, Err: errors.New(http.StatusText(status))}
			continue
		case status < 200 || status > 299:
			return nil, &FetchError{Op: op, StatusCode: status, Err: errors.New(orStatus(errorMessage(body), status))}
		}
		return json.RawMessage(body), nil
	}
	return nil, lastErr
}

// mutate выполняет изменяющий запрос. Повторов нет никогда.
func (c *Client) mutate(ctx context.Context, op, method, path string, body any, headers map[string]string) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, method, path, body, headers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	status, data, err := c.send(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
	}
	if status == http.StatusUnauthorized {
		return nil, c.unauthenticated(op)
	}
	if status < 200 || status > 299 {
		rej := rejected(status, data)
		c.log.Warn("platform rejected request", sl.Op(op), slog.Int("status", status), slog.String("message", rej.Message))
		return nil, rej
	}
	return json.RawMessage(data), nil
}

// errorMessage достаёт текст ошибки из тела вида {"error": "..."} или {"message": "..."}.
func errorMessage(body []byte) string {
	var payload struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	switch v := payload.Error.(type) {
	case string:
		if v != "" {
			return v
		}
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return payload.Message
}

func orStatus(msg string, status int) string {
	if msg != "" {
		return msg
	}
	return http.StatusText(status)
}
