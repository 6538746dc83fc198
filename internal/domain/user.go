package domain

// Credentials: учётные данные продавца.
type Credentials struct {
	Email    string
	Password string
}

// User: профиль продавца.
type User struct {
	ID             int64
	Name           string
	FirstLastName  string
	SecondLastName string
	Email          string
	Phone          string
	RoleID         int64
}

// LoginResult: результат /auth/login и /auth/check-auth.
// Token пустой, если backend работает только через HttpOnly cookie.
type LoginResult struct {
	Token   string
	User    *User
	Message string
}
