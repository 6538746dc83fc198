// Package session хранит авторизацию продавца: пользователя, bearer-токен и его
// копию в локальном хранилище.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"github.com/alebrije/pos/internal/client"
	"github.com/alebrije/pos/internal/domain"
)

// TokenKey: ключ KV с сохранённым токеном.
const TokenKey = "auth_token"

// DefaultLoginError: сообщение, если backend не объяснил причину отказа.
const DefaultLoginError = "Error en login"

// LoginError: отказ во входе с сообщением для продавца.
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string {
	return e.Message
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// Option настраивает Session.
type Option func(*Session)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени для проверки срока токена.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithProfiles подключает запрос профиля, если check-auth вернул только токен.
func WithProfiles(profiles domain.ProfileGateway) Option {
	return func(s *Session) {
		s.profiles = profiles
	}
}

// Session: состояние авторизации терминала. Безопасна для конкурентного использования.
type Session struct {
	auth     domain.AuthGateway
	profiles domain.ProfileGateway
	kv       domain.KeyValueStore
	logger   *log.Entry
	now      func() time.Time

	mu    sync.RWMutex
	user  *domain.User
	token string
}

// New создаёт сессию.
func New(auth domain.AuthGateway, kv domain.KeyValueStore, opts ...Option) *Session {
	s := &Session{
		auth:   auth,
		kv:     kv,
		logger: log.WithField("component", "session"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login выполняет вход. Без токена в ответе сессия работает только через cookie.
func (s *Session) Login(ctx context.Context, creds domain.Credentials) (domain.LoginResult, error) {
	res, err := s.auth.Login(ctx, creds)
	if err != nil {
		msg := client.Message(err)
		if msg == "" {
			msg = DefaultLoginError
		}
		s.logger.WithError(err).WithField("email", creds.Email).Warn("login rejected")
		return domain.LoginResult{}, &LoginError{Message: msg, Err: err}
	}

	s.apply(res.User, res.Token)
	if res.Token != "" {
		if err := s.kv.Set(ctx, TokenKey, []byte(res.Token)); err != nil {
			s.logger.WithError(err).Warn("failed to persist auth token")
		}
	}
	return res, nil
}

// CheckAuth восстанавливает сохранённый токен и проверяет сессию в backend.
// Токен из ответа backend важнее сохранённого. Любая ошибка сбрасывает сессию.
func (s *Session) CheckAuth(ctx context.Context) (domain.LoginResult, error) {
	stored := s.storedToken(ctx)
	if stored != "" {
		if TokenExpired(stored, s.now()) {
			s.logger.Info("stored auth token is expired, dropping it")
			s.forgetToken(ctx)
			stored = ""
		} else {
			s.auth.SetToken(stored)
		}
	}

	res, err := s.auth.CheckAuth(ctx)
	if err != nil {
		s.apply(nil, "")
		return domain.LoginResult{}, err
	}

	if res.Token == "" {
		res.Token = stored
	}
	if res.User == nil && s.profiles != nil {
		user, err := s.profiles.UserInfo(ctx)
		if err != nil {
			s.apply(nil, "")
			return domain.LoginResult{}, err
		}
		res.User = &user
	}
	s.apply(res.User, res.Token)
	return res, nil
}

// Logout очищает пользователя, токен, заголовок и сохранённую копию.
// Вызов backend выполняется по возможности, его ошибка только логируется.
func (s *Session) Logout(ctx context.Context) {
	if err := s.auth.Logout(ctx); err != nil {
		s.logger.WithError(err).Debug("backend logout failed")
	}
	s.apply(nil, "")
	s.forgetToken(ctx)
}

// Current возвращает копию пользователя и токен.
func (s *Session) Current() (*domain.User, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil, s.token
	}
	user := *s.user
	return &user, s.token
}

// UserID возвращает id продавца или 0 без авторизации.
func (s *Session) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return 0
	}
	return s.user.ID
}

// TokenExpired сообщает, истёк ли текущий токен к моменту now.
func (s *Session) TokenExpired(now time.Time) bool {
	_, token := s.Current()
	return TokenExpired(token, now)
}

func (s *Session) apply(user *domain.User, token string) {
	s.mu.Lock()
	if user != nil {
		u := *user
		user = &u
	}
	s.user = user
	s.token = token
	s.mu.Unlock()

	s.auth.SetToken(token)
}

func (s *Session) storedToken(ctx context.Context) string {
	raw, err := s.kv.Get(ctx, TokenKey)
	if err != nil {
		if !errors.Is(err, domain.ErrKeyNotFound) {
			s.logger.WithError(err).Warn("failed to read stored auth token")
		}
		return ""
	}
	return string(raw)
}

func (s *Session) forgetToken(ctx context.Context) {
	if err := s.kv.Delete(ctx, TokenKey); err != nil {
		s.logger.WithError(err).Warn("failed to remove stored auth token")
	}
}

// TokenExpired читает claim exp без проверки подписи. Непрозрачные токены
// и JWT без exp считаются действующими: их срок проверит backend.
func TokenExpired(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
