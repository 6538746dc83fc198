package client

import (
	"context"
	"net/http"

	"github.com/alebrije/pos/internal/domain"
)

// Users: профиль текущего продавца.
type Users struct {
	c *Client
}

// NewUsers создаёт клиент пользователей.
func NewUsers(c *Client) *Users {
	return &Users{c: c}
}

type userResponseWire struct {
	User *authUserWire `json:"user"`
}

// UserInfo выполняет GET /users и возвращает профиль владельца токена.
// Backend отдаёт либо {"user": {...}}, либо объект пользователя целиком.
func (u *Users) UserInfo(ctx context.Context) (domain.User, error) {
	var raw struct {
		userResponseWire
		authUserWire
	}
	if err := u.c.do(ctx, http.MethodGet, "/users", "/users", nil, &raw); err != nil {
		return domain.User{}, err
	}
	if raw.User != nil {
		return *raw.User.toDomain(), nil
	}
	return *raw.authUserWire.toDomain(), nil
}
