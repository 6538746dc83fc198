package client

import (
	"context"
	"net/http"

	"github.com/alebrije/pos/internal/domain"
)

// Auth: обёртка над /auth/*.
type Auth struct {
	c *Client
}

// NewAuth создаёт клиент авторизации поверх общего транспорта.
func NewAuth(c *Client) *Auth {
	return &Auth{c: c}
}

var _ domain.AuthGateway = (*Auth)(nil)

type credentialsWire struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequestWire struct {
	Credentials credentialsWire `json:"credenciales"`
}

type authUserWire struct {
	UserID         int64  `json:"userId"`
	ID             int64  `json:"id"`
	Name           string `json:"nombre"`
	FirstLastName  string `json:"apellido_paterno"`
	SecondLastName string `json:"apellido_materno"`
	Email          string `json:"email"`
	Phone          string `json:"telefono"`
	RoleID         int64  `json:"rol_id"`
}

func (w *authUserWire) toDomain() *domain.User {
	if w == nil {
		return nil
	}
	id := w.UserID
	if id == 0 {
		id = w.ID
	}
	return &domain.User{
		ID:             id,
		Name:           w.Name,
		FirstLastName:  w.FirstLastName,
		SecondLastName: w.SecondLastName,
		Email:          w.Email,
		Phone:          w.Phone,
		RoleID:         w.RoleID,
	}
}

type authResponseWire struct {
	Message string        `json:"message"`
	Token   string        `json:"token"`
	User    *authUserWire `json:"user"`
}

func (w authResponseWire) toDomain() domain.LoginResult {
	return domain.LoginResult{
		Token:   w.Token,
		User:    w.User.toDomain(),
		Message: w.Message,
	}
}

// Login выполняет POST /auth/login. Токен может отсутствовать, если backend
// выдаёт сессию только в HttpOnly cookie.
func (a *Auth) Login(ctx context.Context, creds domain.Credentials) (domain.LoginResult, error) {
	var resp authResponseWire
	body := loginRequestWire{Credentials: credentialsWire{Email: creds.Email, Password: creds.Password}}
	if err := a.c.do(ctx, http.MethodPost, "/auth/login", "/auth/login", body, &resp); err != nil {
		return domain.LoginResult{}, err
	}
	return resp.toDomain(), nil
}

// CheckAuth выполняет GET /auth/check-auth.
func (a *Auth) CheckAuth(ctx context.Context) (domain.LoginResult, error) {
	var resp authResponseWire
	if err := a.c.do(ctx, http.MethodGet, "/auth/check-auth", "/auth/check-auth", nil, &resp); err != nil {
		return domain.LoginResult{}, err
	}
	return resp.toDomain(), nil
}

// Logout выполняет POST /auth/logout.
func (a *Auth) Logout(ctx context.Context) error {
	return a.c.do(ctx, http.MethodPost, "/auth/logout", "/auth/logout", nil, nil)
}

// SetToken передаёт токен общему транспорту.
func (a *Auth) SetToken(token string) {
	a.c.SetToken(token)
}
