package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alebrije/pos/internal/domain"
)

// Sales: создание продаж и история продавца.
type Sales struct {
	c *Client
}

// NewSales создаёт клиент продаж.
func NewSales(c *Client) *Sales {
	return &Sales{c: c}
}

var _ domain.SalesGateway = (*Sales)(nil)

type createSaleResponseWire struct {
	Message string `json:"message"`
	Sale    struct {
		ID int64 `json:"id"`
	} `json:"venta"`
}

// CreateSale выполняет POST /ventas/crear и возвращает id созданной продажи.
func (s *Sales) CreateSale(ctx context.Context, req domain.SaleRequest) (int64, error) {
	var resp createSaleResponseWire
	if err := s.c.do(ctx, http.MethodPost, "/ventas/crear", "/ventas/crear", req, &resp); err != nil {
		return 0, err
	}
	if resp.Sale.ID == 0 {
		return 0, fmt.Errorf("create sale: backend returned no sale id (%s)", resp.Message)
	}
	return resp.Sale.ID, nil
}

type paymentRefWire struct {
	Method string `json:"metodo_pago"`
}

type saleSummaryWire struct {
	ID               int64            `json:"id"`
	SoldAt           string           `json:"fecha_venta"`
	CreatedAt        string           `json:"created_at"`
	Total            decimal.Decimal  `json:"total"`
	State            string           `json:"estado"`
	OrderNumber      string           `json:"orderNumber"`
	OrderNumberAlt   string           `json:"numeroOrden"`
	OrderNumberSnake string           `json:"numero_orden"`
	Method           string           `json:"metodo_pago"`
	MethodShort      string           `json:"metodo"`
	MethodEnglish    string           `json:"payment_method"`
	MethodCamel      string           `json:"metodoPago"`
	Transaction      *paymentRefWire  `json:"transaccion"`
	Transactions     []paymentRefWire `json:"transacciones"`
}

// paymentMethod перебирает поля, в которых разные версии backend отдают способ оплаты.
func (w saleSummaryWire) paymentMethod() domain.PaymentMethod {
	candidates := []string{w.Method, w.MethodShort, w.MethodEnglish, w.MethodCamel}
	if w.Transaction != nil {
		candidates = append(candidates, w.Transaction.Method)
	}
	if len(w.Transactions) > 0 {
		candidates = append(candidates, w.Transactions[0].Method)
	}
	for _, raw := range candidates {
		if strings.TrimSpace(raw) != "" {
			return domain.NormalizePaymentMethod(raw)
		}
	}
	return domain.PaymentMethodUnknown
}

func (w saleSummaryWire) orderNumber() string {
	for _, v := range []string{w.OrderNumber, w.OrderNumberAlt, w.OrderNumberSnake} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (w saleSummaryWire) toDomain() domain.SaleSummary {
	soldAt := parseTimestamp(w.SoldAt)
	if soldAt.IsZero() {
		soldAt = parseTimestamp(w.CreatedAt)
	}
	return domain.SaleSummary{
		ID:            w.ID,
		OrderNumber:   w.orderNumber(),
		Total:         w.Total,
		State:         w.State,
		PaymentMethod: w.paymentMethod(),
		SoldAt:        soldAt,
	}
}

type salesByUserResponseWire struct {
	Sales []saleSummaryWire `json:"ventas"`
}

// SalesByUser выполняет GET /ventas/usuario/{id}. Порядок сохраняется как у backend.
func (s *Sales) SalesByUser(ctx context.Context, userID int64) ([]domain.SaleSummary, error) {
	var resp salesByUserResponseWire
	path := "/ventas/usuario/" + strconv.FormatInt(userID, 10)
	if err := s.c.do(ctx, http.MethodGet, "/ventas/usuario/{id}", path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.SaleSummary, 0, len(resp.Sales))
	for _, w := range resp.Sales {
		out = append(out, w.toDomain())
	}
	return out, nil
}

type saleDetailItemWire struct {
	ID       int64           `json:"id"`
	Quantity int32           `json:"cantidad"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Product  *struct {
		ID          int64           `json:"id"`
		Price       decimal.Decimal `json:"precio"`
		ProductType *struct {
			Name string `json:"nombre"`
		} `json:"tipoProducto"`
		Images []struct {
			URL string `json:"imagen_url"`
		} `json:"imagenes"`
	} `json:"producto"`
	Size *struct {
		Label string `json:"talla"`
	} `json:"talla"`
	Color *struct {
		Label string `json:"color"`
		Hex   string `json:"colorHex"`
	} `json:"color"`
}

func (w saleDetailItemWire) toDomain() domain.SaleDetailItem {
	item := domain.SaleDetailItem{
		ID:       w.ID,
		Quantity: w.Quantity,
		Subtotal: w.Subtotal,
	}
	if w.Product != nil {
		item.ProductID = w.Product.ID
		item.UnitPrice = w.Product.Price
		if w.Product.ProductType != nil {
			item.ProductType = w.Product.ProductType.Name
		}
		for _, img := range w.Product.Images {
			if img.URL != "" {
				item.ImageURLs = append(item.ImageURLs, img.URL)
			}
		}
	}
	if w.Size != nil {
		item.SizeLabel = w.Size.Label
	}
	if w.Color != nil {
		item.ColorLabel = w.Color.Label
		item.ColorHex = w.Color.Hex
	}
	return item
}

type saleDetailWire struct {
	ID          int64                `json:"id"`
	Total       decimal.Decimal      `json:"total"`
	State       string               `json:"estado"`
	OrderNumber string               `json:"orderNumber"`
	SoldAt      string               `json:"fecha_venta"`
	CreatedAt   string               `json:"created_at"`
	Items       []saleDetailItemWire `json:"detalles"`
}

type saleByIDResponseWire struct {
	Sale *saleDetailWire `json:"venta"`
}

// SaleByID выполняет GET /ventas/{id}.
func (s *Sales) SaleByID(ctx context.Context, id int64) (domain.SaleDetail, error) {
	var resp saleByIDResponseWire
	path := "/ventas/" + strconv.FormatInt(id, 10)
	if err := s.c.do(ctx, http.MethodGet, "/ventas/{id}", path, nil, &resp); err != nil {
		return domain.SaleDetail{}, err
	}
	if resp.Sale == nil {
		return domain.SaleDetail{}, fmt.Errorf("sale %d: %w", id, ErrNotFound)
	}

	w := resp.Sale
	soldAt := parseTimestamp(w.SoldAt)
	if soldAt.IsZero() {
		soldAt = parseTimestamp(w.CreatedAt)
	}
	detail := domain.SaleDetail{
		ID:          w.ID,
		Total:       w.Total,
		State:       w.State,
		OrderNumber: w.OrderNumber,
		SoldAt:      soldAt,
		Items:       make([]domain.SaleDetailItem, 0, len(w.Items)),
	}
	for _, item := range w.Items {
		detail.Items = append(detail.Items, item.toDomain())
	}
	return detail, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp возвращает нулевое время для пустых и нераспознанных значений.
func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
