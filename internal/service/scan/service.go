// Package scan связывает сканирование QR, поиск товара и добавление позиции
// в черновик с проверкой остатков.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/alebrije/pos/internal/domain"
	"github.com/alebrije/pos/internal/draft"
	"github.com/alebrije/pos/internal/metrics"
	"github.com/alebrije/pos/internal/qr"
)

// Option настраивает Service.
type Option func(*Service)

// WithAppID задаёт идентификатор приложения для проверки поля app в QR.
func WithAppID(appID string) Option {
	return func(s *Service) {
		s.appID = appID
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

// WithMetrics подключает счётчик сканирований.
func WithMetrics(m *metrics.POSMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service: сценарий «отсканировать и положить в корзину».
type Service struct {
	catalog domain.ProductCatalog
	drafts  *draft.Store
	appID   string
	logger  *log.Entry
	metrics *metrics.POSMetrics
}

// New создаёт сервис сканирования.
func New(catalog domain.ProductCatalog, drafts *draft.Store, opts ...Option) *Service {
	s := &Service{
		catalog: catalog,
		drafts:  drafts,
		logger:  log.WithField("component", "scan-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result: проверенный QR и найденный по нему товар.
type Result struct {
	Payload qr.Payload
	Product domain.Product
}

// Scan проверяет QR и загружает товар из каталога.
func (s *Service) Scan(ctx context.Context, text string) (Result, error) {
	payload, err := qr.Parse(text, s.appID)
	if err != nil {
		s.metrics.RecordQRScan(qr.Kind(err))
		s.logger.WithField("qr_error", qr.Kind(err)).Debug("qr rejected")
		return Result{}, err
	}

	product, err := s.catalog.ProductByQR(ctx, payload.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			s.metrics.RecordQRScan("product_not_found")
		} else {
			s.metrics.RecordQRScan("error")
		}
		return Result{}, fmt.Errorf("lookup product %s: %w", payload.ProductID, err)
	}

	s.metrics.RecordQRScan("ok")
	return Result{Payload: payload, Product: product}, nil
}

// AddRequest описывает добавление товара в черновик.
// Пустые SizeLabel и ColorLabel означают первую вариацию товара.
type AddRequest struct {
	// DraftID пустой: используется активный черновик, а без него создаётся новый.
	DraftID    string
	OwnerID    *int64
	Product    domain.Product
	SizeLabel  string
	ColorLabel string
	Quantity   int32
}

// AddToDraft добавляет товар в черновик. Если в черновике уже есть позиция с тем же
// товаром, размером и цветом, увеличивается её количество. Суммарное количество
// не может превысить остаток вариации.
func (s *Service) AddToDraft(ctx context.Context, req AddRequest) (domain.DraftSale, error) {
	if err := ctx.Err(); err != nil {
		return domain.DraftSale{}, err
	}

	variant, err := resolveVariant(req)
	if err != nil {
		return domain.DraftSale{}, err
	}
	if req.Quantity <= 0 {
		return domain.DraftSale{}, domain.ErrItemQtyInvalid
	}
	if variant.Stock <= 0 {
		return domain.DraftSale{}, domain.ErrOutOfStock
	}
	if req.Quantity > variant.Stock {
		return domain.DraftSale{}, fmt.Errorf("%w: requested %d, available %d", domain.ErrInsufficientStock, req.Quantity, variant.Stock)
	}

	target, err := s.targetDraft(req)
	if err != nil {
		return domain.DraftSale{}, err
	}

	item := lineItem(req.Product, variant, req.Quantity)
	updated, err := s.drafts.MergeItem(target.ID, item, variant.Stock)
	if err != nil {
		return domain.DraftSale{}, err
	}
	s.logger.WithFields(log.Fields{
		"draft_id":   updated.ID,
		"product_id": item.ProductID,
		"qty":        item.Quantity,
	}).Debug("product added to draft")
	return updated, nil
}

// StartWithProduct открывает новый черновик и кладёт в него товар.
// Количество ограничивается остатком вариации.
func (s *Service) StartWithProduct(ctx context.Context, req AddRequest) (domain.DraftSale, error) {
	if err := ctx.Err(); err != nil {
		return domain.DraftSale{}, err
	}

	variant, err := resolveVariant(req)
	if err != nil {
		return domain.DraftSale{}, err
	}
	if variant.Stock <= 0 {
		return domain.DraftSale{}, domain.ErrOutOfStock
	}
	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}
	if qty > variant.Stock {
		qty = variant.Stock
	}

	created, err := s.drafts.Create(req.OwnerID)
	if err != nil {
		return domain.DraftSale{}, err
	}
	return s.drafts.AddItem(created.ID, lineItem(req.Product, variant, qty))
}

func (s *Service) targetDraft(req AddRequest) (domain.DraftSale, error) {
	if req.DraftID != "" {
		return s.drafts.Get(req.DraftID)
	}
	if active, ok := s.drafts.Active(); ok {
		return active, nil
	}
	return s.drafts.Create(req.OwnerID)
}

func resolveVariant(req AddRequest) (domain.Variant, error) {
	size := strings.TrimSpace(req.SizeLabel)
	color := strings.TrimSpace(req.ColorLabel)
	if size == "" && color == "" {
		if v, ok := req.Product.FirstVariant(); ok {
			return v, nil
		}
		return domain.Variant{}, domain.ErrVariantNotFound
	}
	if v, ok := req.Product.FindVariant(size, color); ok {
		return v, nil
	}
	return domain.Variant{}, fmt.Errorf("%w: size %q color %q", domain.ErrVariantNotFound, size, color)
}

func lineItem(p domain.Product, v domain.Variant, qty int32) domain.LineItem {
	price := p.Price
	return domain.LineItem{
		ProductID:   p.ID,
		SizeID:      v.Size.ID,
		ColorID:     v.Color.ID,
		Quantity:    qty,
		UnitPrice:   &price,
		SizeLabel:   v.Size.Label,
		ColorLabel:  v.Color.Label,
		ProductName: p.DisplayName(),
	}
}
