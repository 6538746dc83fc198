// Package history отдаёт историю продаж продавца с фильтрами и постраничной подгрузкой.
package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/alebrije/pos/internal/domain"
	"github.com/alebrije/pos/internal/service/checkout"
)

// DefaultPageSize: размер страницы истории.
const DefaultPageSize = 20

// Filter: фильтры истории. Пустые поля не ограничивают выборку.
type Filter struct {
	// Method пустой означает «все способы».
	Method domain.PaymentMethod
	// Query ищется без учёта регистра в номере заказа, а без номера в id продажи.
	Query string
	// From и To сравниваются по календарным дням включительно.
	From time.Time
	To   time.Time
}

// Page: одна порция истории.
type Page struct {
	Sales   []domain.SaleSummary
	Matched int
	HasMore bool
}

// Option настраивает Service.
type Option func(*Service)

// WithLocation задаёт часовой пояс, в котором считаются границы дней.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithPageSize задаёт размер страницы.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
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

// Service: история продаж.
type Service struct {
	sales    domain.SalesGateway
	kv       domain.KeyValueStore
	loc      *time.Location
	pageSize int
	logger   *log.Entry
}

// New создаёт сервис истории. kv может быть nil, тогда способ оплаты не дополняется.
func New(sales domain.SalesGateway, kv domain.KeyValueStore, opts ...Option) *Service {
	s := &Service{
		sales:    sales,
		kv:       kv,
		loc:      time.Local,
		pageSize: DefaultPageSize,
		logger:   log.WithField("component", "history-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List загружает продажи продавца, фильтрует их и возвращает первые page*pageSize.
// Нумерация страниц начинается с 1.
func (s *Service) List(ctx context.Context, userID int64, filter Filter, page int) (Page, error) {
	if userID == 0 {
		return Page{}, domain.ErrUnauthenticated
	}
	if page < 1 {
		page = 1
	}

	sales, err := s.sales.SalesByUser(ctx, userID)
	if err != nil {
		return Page{}, fmt.Errorf("load sales of user %d: %w", userID, err)
	}

	sortNewestFirst(sales)
	s.backfillMethods(ctx, sales)

	matched := Apply(sales, filter, s.loc)
	limit := min(page*s.pageSize, len(matched))
	return Page{
		Sales:   matched[:limit],
		Matched: len(matched),
		HasMore: limit < len(matched),
	}, nil
}

// Detail возвращает карточку продажи.
func (s *Service) Detail(ctx context.Context, saleID int64) (domain.SaleDetail, error) {
	detail, err := s.sales.SaleByID(ctx, saleID)
	if err != nil {
		return domain.SaleDetail{}, fmt.Errorf("load sale %d: %w", saleID, err)
	}
	return detail, nil
}

// backfillMethods подставляет способ оплаты, запомненный при оформлении,
// если backend его не вернул.
func (s *Service) backfillMethods(ctx context.Context, sales []domain.SaleSummary) {
	if s.kv == nil {
		return
	}
	var stored map[string][]byte
	for i := range sales {
		if sales[i].PaymentMethod != domain.PaymentMethodUnknown {
			continue
		}
		if stored == nil {
			var err error
			stored, err = s.kv.List(ctx, checkout.SaleMethodKeyPrefix)
			if err != nil {
				s.logger.WithError(err).Warn("failed to read stored payment methods")
				return
			}
		}
		if raw, ok := stored[checkout.SaleMethodKey(sales[i].ID)]; ok {
			sales[i].PaymentMethod = domain.NormalizePaymentMethod(string(raw))
		}
	}
}

// Apply фильтрует продажи, сохраняя порядок. Продажи без даты проходят фильтр по датам.
func Apply(sales []domain.SaleSummary, filter Filter, loc *time.Location) []domain.SaleSummary {
	if loc == nil {
		loc = time.Local
	}
	needle := strings.ToLower(strings.TrimSpace(filter.Query))

	var from, to time.Time
	if !filter.From.IsZero() {
		from = startOfDay(filter.From, loc)
	}
	if !filter.To.IsZero() {
		to = startOfDay(filter.To, loc).Add(24*time.Hour - time.Second)
	}

	out := make([]domain.SaleSummary, 0, len(sales))
	for _, sale := range sales {
		if filter.Method != "" && sale.PaymentMethod != filter.Method {
			continue
		}
		if needle != "" && !strings.Contains(sale.SearchKey(), needle) {
			continue
		}
		if !sale.SoldAt.IsZero() {
			if !from.IsZero() && sale.SoldAt.Before(from) {
				continue
			}
			if !to.IsZero() && sale.SoldAt.After(to) {
				continue
			}
		}
		out = append(out, sale)
	}
	return out
}

// ParseDay разбирает дату YYYY-MM-DD в заданном часовом поясе. Пустая строка даёт нулевое время.
func ParseDay(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", raw, err)
	}
	return day, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// sortNewestFirst сортирует по дате продажи; продажи без даты уходят в конец.
func sortNewestFirst(sales []domain.SaleSummary) {
	sort.SliceStable(sales, func(i, j int) bool {
		return sales[i].SoldAt.After(sales[j].SoldAt)
	})
}
