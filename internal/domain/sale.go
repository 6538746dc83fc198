package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod: способ оплаты продажи.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "efectivo"
	PaymentMethodCard     PaymentMethod = "tarjeta"
	PaymentMethodTransfer PaymentMethod = "transferencia"
	// PaymentMethodUnknown используется в истории, когда backend не вернул способ оплаты.
	PaymentMethodUnknown PaymentMethod = "desconocido"
)

// Valid проверяет, что способ оплаты можно передать при оформлении продажи.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer:
		return true
	default:
		return false
	}
}

// NormalizePaymentMethod приводит произвольную строку backend к PaymentMethod.
// Разные версии backend присылают "Efectivo", "tarjeta", "card", "SPEI" и т.п.
func NormalizePaymentMethod(raw string) PaymentMethod {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case v == "":
		return PaymentMethodUnknown
	case strings.HasPrefix(v, "efec"):
		return PaymentMethodCash
	case strings.HasPrefix(v, "tarj"), v == "card":
		return PaymentMethodCard
	case strings.HasPrefix(v, "trans"), strings.Contains(v, "spei"), strings.Contains(v, "transfer"):
		return PaymentMethodTransfer
	default:
		return PaymentMethodUnknown
	}
}

// Amount: денежная сумма в запросах к backend. В JSON пишется числом,
// а не строкой, как по умолчанию делает decimal.
type Amount struct {
	decimal.Decimal
}

// MarshalJSON сериализует сумму числом.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// SaleLine: плоская позиция в запросе на создание продажи.
type SaleLine struct {
	ProductID int64  `json:"producto_id"`
	SizeID    int64  `json:"talla_id"`
	ColorID   int64  `json:"color_id"`
	Quantity  int32  `json:"cantidad"`
	UnitPrice Amount `json:"precio_unitario"`
}

// SaleRequest: тело POST /ventas/crear.
type SaleRequest struct {
	UserID        *int64        `json:"usuario_id"`
	Total         Amount        `json:"total"`
	Lines         []SaleLine    `json:"productos"`
	PickupInStore bool          `json:"recogerEnTienda"`
	AddressID     *int64        `json:"direccion_id"`
	PaymentMethod PaymentMethod `json:"metodo_pago,omitempty"`
}

// NewSaleRequest собирает плоский запрос из черновика.
// Пустая цена позиции превращается в 0, сумма округляется до копеек.
func NewSaleRequest(draft DraftSale, userID int64, method PaymentMethod) SaleRequest {
	lines := make([]SaleLine, 0, len(draft.Items))
	for _, item := range draft.Items {
		price := decimal.Zero
		if item.UnitPrice != nil {
			price = *item.UnitPrice
		}
		lines = append(lines, SaleLine{
			ProductID: item.ProductID,
			SizeID:    item.SizeID,
			ColorID:   item.ColorID,
			Quantity:  item.Quantity,
			UnitPrice: Amount{price},
		})
	}

	var addressID *int64
	if draft.AddressID != nil {
		addr := *draft.AddressID
		addressID = &addr
	}

	return SaleRequest{
		UserID:        &userID,
		Total:         Amount{draft.Total.Round(2)},
		Lines:         lines,
		PickupInStore: draft.PickupInStore,
		AddressID:     addressID,
		PaymentMethod: method,
	}
}

// SaleSummary: строка истории продаж пользователя.
type SaleSummary struct {
	ID            int64
	OrderNumber   string
	Total         decimal.Decimal
	State         string
	PaymentMethod PaymentMethod
	// SoldAt пустое, если backend не вернул ни fecha_venta, ни created_at.
	SoldAt time.Time
}

// Completed сообщает, завершена ли продажа по статусу backend.
func (s SaleSummary) Completed() bool {
	return strings.HasPrefix(strings.ToLower(s.State), "complet")
}

// SearchKey возвращает строку, по которой работает текстовый фильтр истории.
func (s SaleSummary) SearchKey() string {
	if s.OrderNumber != "" {
		return strings.ToLower(s.OrderNumber)
	}
	return strconv.FormatInt(s.ID, 10)
}

// SaleDetailItem: позиция детальной карточки продажи.
type SaleDetailItem struct {
	ID          int64
	Quantity    int32
	Subtotal    decimal.Decimal
	ProductID   int64
	UnitPrice   decimal.Decimal
	ProductType string
	ImageURLs   []string
	SizeLabel   string
	ColorLabel  string
	ColorHex    string
}

// SaleDetail: детальная карточка продажи из GET /ventas/{id}.
type SaleDetail struct {
	ID          int64
	Total       decimal.Decimal
	State       string
	OrderNumber string
	SoldAt      time.Time
	Items       []SaleDetailItem
}
