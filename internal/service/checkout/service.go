// Package checkout оформляет продажу: проверяет оплату, отправляет продажу в backend
// и закрывает черновик.
package checkout

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/alebrije/pos/internal/domain"
	"github.com/alebrije/pos/internal/draft"
	"github.com/alebrije/pos/internal/messaging/kafka"
	"github.com/alebrije/pos/internal/metrics"
)

// SaleMethodKeyPrefix: префикс ключей со способом оплаты проданных чеков.
const SaleMethodKeyPrefix = "sale_method:"

// SaleMethodKey возвращает ключ KV, под которым хранится способ оплаты продажи.
func SaleMethodKey(saleID int64) string {
	return SaleMethodKeyPrefix + strconv.FormatInt(saleID, 10)
}

// Request: данные для оформления продажи. Заполняется только блок выбранного способа оплаты.
type Request struct {
	DraftID string
	// UserID 0: берётся владелец черновика.
	UserID   int64
	Method   domain.PaymentMethod
	Cash     CashPayment
	Card     CardPayment
	Transfer TransferPayment
}

// Receipt: результат оформления.
type Receipt struct {
	SaleID      int64
	OrderNumber string
	Total       decimal.Decimal
	Change      decimal.Decimal
	Method      domain.PaymentMethod
	Draft       domain.DraftSale
}

// Option настраивает Service.
type Option func(*Service)

// WithOutbox включает публикацию событий продаж через outbox.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = repo
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики продаж.
func WithMetrics(m *metrics.POSMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service оформляет продажи из черновиков.
type Service struct {
	sales   domain.SalesGateway
	drafts  *draft.Store
	kv      domain.KeyValueStore
	outbox  domain.OutboxRepository
	logger  *log.Entry
	metrics *metrics.POSMetrics
	now     func() time.Time
}

// New создаёт сервис оформления продаж.
func New(sales domain.SalesGateway, drafts *draft.Store, kv domain.KeyValueStore, opts ...Option) *Service {
	s := &Service{
		sales:  sales,
		drafts: drafts,
		kv:     kv,
		logger: log.WithField("component", "checkout-service"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout проверяет черновик и оплату, регистрирует продажу в backend и закрывает
// черновик. При ошибке backend черновик не меняется.
func (s *Service) Checkout(ctx context.Context, req Request) (Receipt, error) {
	started := s.now()
	defer func() {
		s.metrics.RecordCheckoutDuration(s.now().Sub(started))
	}()

	receipt, err := s.checkout(ctx, req)
	if err != nil {
		s.metrics.RecordSaleFailed()
		return Receipt{}, err
	}
	s.metrics.RecordSaleSubmitted(string(receipt.Method))
	return receipt, nil
}

func (s *Service) checkout(ctx context.Context, req Request) (Receipt, error) {
	d, err := s.drafts.Claim(req.DraftID)
	if err != nil {
		return Receipt{}, err
	}
	sold := false
	defer func() {
		if !sold {
			s.drafts.Release(d.ID)
		}
	}()

	if err := d.ValidateItems(); err != nil {
		return Receipt{}, err
	}
	total := d.Total.Round(2)
	if len(d.Items) == 0 || !total.IsPositive() {
		return Receipt{}, domain.ErrDraftEmpty
	}

	userID := req.UserID
	if userID == 0 && d.OwnerID != nil {
		userID = *d.OwnerID
	}
	if userID == 0 {
		return Receipt{}, domain.ErrUnauthenticated
	}

	change, err := ValidatePayment(req, total)
	if err != nil {
		return Receipt{}, err
	}

	entry := s.logger.WithFields(log.Fields{
		"draft_id":     d.ID,
		"order_number": d.OrderNumber,
		"method":       req.Method,
	})

	saleID, err := s.sales.CreateSale(ctx, domain.NewSaleRequest(d, userID, req.Method))
	if err != nil {
		entry.WithError(err).Warn("sale rejected by backend")
		return Receipt{}, err
	}
	sold = true
	entry = entry.WithField("sale_id", saleID)

	if saleID != 0 {
		if err := s.kv.Set(ctx, SaleMethodKey(saleID), []byte(req.Method)); err != nil {
			entry.WithError(err).Warn("failed to remember sale payment method")
		}
	}

	if finalized, err := s.drafts.Finalize(d.ID); err != nil {
		entry.WithError(err).Warn("draft removed during checkout")
		d.Status = domain.DraftStatusFinalized
	} else {
		d = finalized
	}

	s.emitEvent(kafka.NewSaleCompletedEvent(d, saleID, userID, req.Method, s.now()))
	entry.Info("sale registered")

	return Receipt{
		SaleID:      saleID,
		OrderNumber: d.OrderNumber,
		Total:       total,
		Change:      change,
		Method:      req.Method,
		Draft:       d,
	}, nil
}

// Cancel удаляет черновик без продажи и публикует событие об отмене.
func (s *Service) Cancel(ctx context.Context, draftID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := s.drafts.Get(draftID)
	if err != nil {
		return err
	}
	if err := s.drafts.Discard(draftID); err != nil {
		return err
	}
	s.emitEvent(kafka.NewDraftDiscardedEvent(d, s.now()))
	return nil
}

func (s *Service) emitEvent(event *kafka.SaleEvent) {
	if s.outbox == nil {
		return
	}
	entry := s.logger.WithFields(log.Fields{
		"draft_id": event.DraftID,
		"event":    event.EventType,
	})

	data, err := json.Marshal(event)
	if err != nil {
		entry.WithError(err).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: kafka.AggregateSale,
		AggregateID:   event.DraftID,
		EventType:     string(event.EventType),
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		entry.WithError(err).Error("enqueue event failed")
	}
}
