package domain

import (
	"context"
	"time"
)

// ProductCatalog описывает поиск товара по отсканированному коду.
type ProductCatalog interface {
	// ProductByQR возвращает товар с вариациями и остатками.
	ProductByQR(ctx context.Context, code string) (Product, error)
}

// SalesGateway описывает взаимодействие с backend продаж.
type SalesGateway interface {
	// CreateSale регистрирует продажу и возвращает её идентификатор в backend.
	CreateSale(ctx context.Context, req SaleRequest) (int64, error)
	// SalesByUser возвращает продажи продавца в порядке backend.
	SalesByUser(ctx context.Context, userID int64) ([]SaleSummary, error)
	// SaleByID возвращает детальную карточку продажи.
	SaleByID(ctx context.Context, id int64) (SaleDetail, error)
}

// AuthGateway описывает сессионные вызовы backend.
type AuthGateway interface {
	Login(ctx context.Context, creds Credentials) (LoginResult, error)
	CheckAuth(ctx context.Context) (LoginResult, error)
	Logout(ctx context.Context) error
	// SetToken задаёт bearer-токен для последующих запросов; пустая строка снимает заголовок.
	SetToken(token string)
}

// ProfileGateway возвращает профиль владельца текущего токена.
type ProfileGateway interface {
	UserInfo(ctx context.Context) (User, error)
}

// KeyValueStore: локальное key-value хранилище терминала.
type KeyValueStore interface {
	// Get возвращает значение или ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete не считает отсутствие ключа ошибкой.
	Delete(ctx context.Context, key string) error
	// List возвращает все пары, ключ которых начинается с prefix.
	List(ctx context.Context, prefix string) (map[string][]byte, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	// TerminalID: терминал, на котором возникло событие. Пустое значение
	// заполняет хранилище outbox.
	TerminalID string
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
