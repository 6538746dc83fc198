// Package client содержит REST-клиент backend магазина: общий транспорт с заголовками,
// логированием ошибок и метриками, плюс доменные обёртки над эндпоинтами.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/alebrije/pos/internal/metrics"
)

const (
	// DefaultPlatform уходит в заголовке X-Client-Platform.
	DefaultPlatform = "mobile"
	// DefaultTimeout: таймаут запроса, если в Config он не задан.
	DefaultTimeout = 15 * time.Second
)

var (
	// ErrUnauthorized: backend ответил 401.
	ErrUnauthorized = errors.New("backend: unauthorized")
	// ErrForbidden: backend ответил 403.
	ErrForbidden = errors.New("backend: forbidden")
	// ErrNotFound: backend ответил 404.
	ErrNotFound = errors.New("backend: not found")
	// ErrBaseURLRequired: не задан адрес backend.
	ErrBaseURLRequired = errors.New("backend base url is required")
)

// APIError описывает ответ backend со статусом вне диапазона 2xx.
type APIError struct {
	Status  int
	Method  string
	Path    string
	Message string
	Body    []byte

	kind error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d %s %s: %s", e.Status, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("HTTP %d %s %s", e.Status, e.Method, e.Path)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrUnauthorized) и т.п.
func (e *APIError) Unwrap() error {
	return e.kind
}

// Config задаёт параметры подключения к backend.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Platform  string
	CSRFToken string
	UserAgent string
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет транспорт (например, для httptest).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics подключает гистограмму запросов к backend.
func WithMetrics(m *metrics.POSMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client: общий транспорт. Токен хранится внутри и подставляется во все
// запросы, кроме входа и выхода.
type Client struct {
	baseURL   string
	platform  string
	csrfToken string
	userAgent string
	http      *http.Client
	logger    *log.Entry
	metrics   *metrics.POSMetrics

	mu    sync.RWMutex
	token string
}

// New создаёт клиент backend.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := NormalizeBaseURL(cfg.BaseURL)
	if base == "" {
		return nil, ErrBaseURLRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	platform := cfg.Platform
	if platform == "" {
		platform = DefaultPlatform
	}

	c := &Client{
		baseURL:   base,
		platform:  platform,
		csrfToken: cfg.CSRFToken,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: timeout},
		logger:    log.WithField("component", "backend-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NormalizeBaseURL убирает хвостовые слэши и суффикс /api: пути эндпоинтов
// уже начинаются от корня API.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	base = strings.TrimSuffix(base, "/api")
	return strings.TrimRight(base, "/")
}

// BaseURL возвращает нормализованный адрес backend.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken задаёт bearer-токен; пустая строка снимает заголовок Authorization.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token возвращает текущий bearer-токен.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Ping проверяет доступность backend; используется readiness-проверкой.
// Любой HTTP-ответ, даже 401, считается признаком живого backend.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/check-auth", nil)
	if err != nil {
		return err
	}
	c.setCommonHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend ping: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("X-Client-Platform", c.platform)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func skipsAuthorization(path string) bool {
	return strings.HasPrefix(path, "/auth/login") || strings.HasPrefix(path, "/auth/logout")
}

// do выполняет запрос. route: шаблон пути для метрик (например, "/ventas/{id}").
// Если out != nil, тело успешного ответа декодируется в него.
func (c *Client) do(ctx context.Context, method, route, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.setCommonHeaders(req)
	if c.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", c.csrfToken)
	}
	if token := c.Token(); token != "" && !skipsAuthorization(path) {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordBackendRequest(method, route, "error", time.Since(started))
		c.logTransportError(method, path, err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.metrics.RecordBackendRequest(method, route, strconv.Itoa(resp.StatusCode), time.Since(started))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, method, path, raw)
		c.logAPIError(apiErr)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func newAPIError(status int, method, path string, raw []byte) *APIError {
	apiErr := &APIError{
		Status: status,
		Method: method,
		Path:   path,
		Body:   raw,
	}

	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		apiErr.Message = envelope.Message
		if apiErr.Message == "" {
			apiErr.Message = envelope.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	switch status {
	case http.StatusUnauthorized:
		apiErr.kind = ErrUnauthorized
	case http.StatusForbidden:
		apiErr.kind = ErrForbidden
	case http.StatusNotFound:
		apiErr.kind = ErrNotFound
	}
	return apiErr
}

func (c *Client) logAPIError(e *APIError) {
	entry := c.logger.WithFields(log.Fields{
		"status": e.Status,
		"method": e.Method,
		"path":   e.Path,
	})
	entry.WithField("body", string(e.Body)).Errorf("[HTTP %d] %s %s", e.Status, e.Method, e.Path)

	switch e.Status {
	case http.StatusUnauthorized:
		entry.Warn("unauthorized: token is missing, invalid or expired")
	case http.StatusForbidden:
		entry.Warn("forbidden: user has no access to this resource")
	}
}

func (c *Client) logTransportError(method, path string, err error) {
	entry := c.logger.WithFields(log.Fields{
		"method": method,
		"path":   path,
	}).WithError(err)

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		entry.Warn("backend request timed out")
		return
	}
	entry.Error("backend unreachable: no response received")
}

// Message извлекает текст ошибки backend для показа продавцу.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
