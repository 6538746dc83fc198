package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alebrije/pos/internal/domain"
)

const defaultPullLimit = 100

// OutboxOption настраивает PostgreSQL outbox.
type OutboxOption func(*saleOutbox)

// WithOutboxTerminal привязывает outbox к терминалу: новые события получают
// его terminal_id, а выборка pending и статистика видят только их.
func WithOutboxTerminal(terminalID string) OutboxOption {
	return func(r *saleOutbox) {
		r.terminalID = terminalID
	}
}

// saleOutbox хранит события продаж в outbox_messages. Несколько терминалов
// могут делить одну базу: воркер каждого публикует только свои события.
type saleOutbox struct {
	db         *sql.DB
	terminalID string
	now        func() time.Time
}

// NewOutboxRepository создаёт PostgreSQL-реализацию outbox событий продаж.
// Без WithOutboxTerminal выборка охватывает события всех терминалов.
func NewOutboxRepository(store *Store, opts ...OutboxOption) domain.OutboxRepository {
	r := &saleOutbox{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *saleOutbox) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.TerminalID == "" {
		msg.TerminalID = r.terminalID
	}
	payload := msg.Payload
	if payload == nil {
		payload = []byte{}
	}

	at := r.now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_messages
			(id, terminal_id, aggregate_type, aggregate_id, event_type, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, msg.ID, msg.TerminalID, msg.AggregateType, msg.AggregateID, msg.EventType, payload, at)
	switch {
	case isUniqueViolation(err):
		return domain.OutboxMessage{}, fmt.Errorf("%w: sale event %s is already in outbox", domain.ErrOutboxPublish, msg.ID)
	case err != nil:
		return domain.OutboxMessage{}, fmt.Errorf("insert sale event %s: %w", msg.ID, err)
	}
	return msg, nil
}

// PullPending возвращает pending-события терминала в порядке постановки.
func (r *saleOutbox) PullPending(limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultPullLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, terminal_id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox_messages
		WHERE status = 'pending' AND ($1 = '' OR terminal_id = $1)
		ORDER BY created_at, id
		LIMIT $2
	`, r.terminalID, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending sale events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.TerminalID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload); err != nil {
			return nil, fmt.Errorf("scan sale event: %w", err)
		}
		events = append(events, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pending sale events: %w", err)
	}
	return events, nil
}

// Stats считает backlog терминала.
func (r *saleOutbox) Stats() (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		count  int
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM outbox_messages
		WHERE status = 'pending' AND ($1 = '' OR terminal_id = $1)
	`, r.terminalID).Scan(&count, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("count pending sale events: %w", err)
	}

	stats := domain.OutboxStats{PendingCount: count}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *saleOutbox) MarkSent(id string) error {
	return r.setStatus(id, "sent")
}

// MarkFailed переводит событие в failed; воркер делает это после отправки в DLQ.
func (r *saleOutbox) MarkFailed(id string) error {
	return r.setStatus(id, "failed")
}

func (r *saleOutbox) setStatus(id, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
		WHERE id = $1
	`, id, status, r.now())
	if err != nil {
		return fmt.Errorf("set sale event %s to %s: %w", id, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set sale event %s to %s: %w", id, status, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: sale event %s not found", domain.ErrOutboxPublish, id)
	}
	return nil
}

var _ domain.OutboxRepository = (*saleOutbox)(nil)
