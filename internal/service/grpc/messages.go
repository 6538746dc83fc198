package grpcsvc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alebrije/pos/internal/domain"
	"github.com/alebrije/pos/internal/qr"
)

// Empty: пустое сообщение.
type Empty struct{}

type CreateDraftRequest struct {
	OwnerID *int64 `json:"owner_id,omitempty"`
}

type DraftRequest struct {
	DraftID string `json:"draft_id"`
}

type DraftResponse struct {
	Draft domain.DraftSale `json:"draft"`
}

type ListDraftsResponse struct {
	Drafts    []domain.DraftSale `json:"drafts"`
	ActiveID  *string            `json:"active_id,omitempty"`
	MaxDrafts int                `json:"max_drafts"`
}

type AddItemRequest struct {
	DraftID string          `json:"draft_id"`
	Item    domain.LineItem `json:"item"`
}

// ItemPatch: частичное обновление позиции; отсутствующие поля не меняются.
type ItemPatch struct {
	ProductID   *int64           `json:"producto_id,omitempty"`
	SizeID      *int64           `json:"talla_id,omitempty"`
	ColorID     *int64           `json:"color_id,omitempty"`
	Quantity    *int32           `json:"cantidad,omitempty"`
	UnitPrice   *decimal.Decimal `json:"precio_unitario,omitempty"`
	SizeLabel   *string          `json:"talla_label,omitempty"`
	ColorLabel  *string          `json:"color_label,omitempty"`
	ProductName *string          `json:"producto_nombre,omitempty"`
}

func (p ItemPatch) toDomain() domain.LineItemPatch {
	return domain.LineItemPatch{
		ProductID:   p.ProductID,
		SizeID:      p.SizeID,
		ColorID:     p.ColorID,
		Quantity:    p.Quantity,
		UnitPrice:   p.UnitPrice,
		SizeLabel:   p.SizeLabel,
		ColorLabel:  p.ColorLabel,
		ProductName: p.ProductName,
	}
}

type UpdateItemRequest struct {
	DraftID string    `json:"draft_id"`
	Index   int       `json:"index"`
	Patch   ItemPatch `json:"patch"`
}

type RemoveItemRequest struct {
	DraftID string `json:"draft_id"`
	Index   int    `json:"index"`
}

type SetStatusRequest struct {
	DraftID string `json:"draft_id"`
	Status  string `json:"status"`
}

// SetActiveRequest: пустой DraftID снимает активный черновик.
type SetActiveRequest struct {
	DraftID string `json:"draft_id,omitempty"`
}

// SetOwnerRequest: пустой OwnerID снимает продавца с черновика.
type SetOwnerRequest struct {
	DraftID string `json:"draft_id"`
	OwnerID *int64 `json:"owner_id,omitempty"`
}

// SetDeliveryRequest: самовывоз или доставка по id адреса покупателя.
type SetDeliveryRequest struct {
	DraftID       string `json:"draft_id"`
	PickupInStore bool   `json:"recogerEnTienda"`
	AddressID     *int64 `json:"direccion_id,omitempty"`
}

// SetContactRequest: пустой Contact снимает контакт покупателя.
type SetContactRequest struct {
	DraftID string          `json:"draft_id"`
	Contact *domain.Contact `json:"contacto,omitempty"`
}

type DiscardAllResponse struct {
	Discarded int `json:"discarded"`
}

type ParseQRRequest struct {
	Text string `json:"text"`
}

type ParseQRResponse struct {
	Payload qr.Payload `json:"payload"`
}

// ScanAndAddRequest: отсканировать QR и положить товар в черновик.
// NewDraft открывает новый черновик вместо текущего.
type ScanAndAddRequest struct {
	Text       string `json:"text"`
	DraftID    string `json:"draft_id,omitempty"`
	SizeLabel  string `json:"talla,omitempty"`
	ColorLabel string `json:"color,omitempty"`
	Quantity   int32  `json:"cantidad"`
	NewDraft   bool   `json:"new_draft,omitempty"`
}

type ScanAndAddResponse struct {
	Draft   domain.DraftSale `json:"draft"`
	Product domain.Product   `json:"product"`
}

type CardDetails struct {
	Holder string `json:"nombre"`
	Number string `json:"numero"`
	Expiry string `json:"vencimiento"`
	CVV    string `json:"cvv"`
}

type TransferDetails struct {
	Bank      string `json:"banco"`
	Reference string `json:"referencia"`
	Holder    string `json:"titular"`
}

// CheckoutRequest: оформление продажи. CashReceived принимает запятую как разделитель.
type CheckoutRequest struct {
	DraftID      string          `json:"draft_id"`
	Method       string          `json:"metodo_pago"`
	CashReceived string          `json:"monto_recibido,omitempty"`
	Card         CardDetails     `json:"tarjeta"`
	Transfer     TransferDetails `json:"transferencia"`
}

type CheckoutResponse struct {
	SaleID      int64           `json:"sale_id"`
	OrderNumber string          `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
	Change      decimal.Decimal `json:"cambio"`
	Method      string          `json:"metodo_pago"`
}

// SalesHistoryRequest: фильтры истории; даты в формате YYYY-MM-DD.
type SalesHistoryRequest struct {
	Method string `json:"metodo,omitempty"`
	Query  string `json:"q,omitempty"`
	From   string `json:"desde,omitempty"`
	To     string `json:"hasta,omitempty"`
	Page   int    `json:"page,omitempty"`
}

type SaleSummary struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"order_number,omitempty"`
	Total         decimal.Decimal `json:"total"`
	State         string          `json:"estado"`
	Completed     bool            `json:"completada"`
	PaymentMethod string          `json:"metodo_pago"`
	SoldAt        *time.Time      `json:"fecha_venta,omitempty"`
}

func toSaleSummary(s domain.SaleSummary) SaleSummary {
	out := SaleSummary{
		ID:            s.ID,
		OrderNumber:   s.OrderNumber,
		Total:         s.Total,
		State:         s.State,
		Completed:     s.Completed(),
		PaymentMethod: string(s.PaymentMethod),
	}
	if !s.SoldAt.IsZero() {
		soldAt := s.SoldAt
		out.SoldAt = &soldAt
	}
	return out
}

type SalesHistoryResponse struct {
	Sales   []SaleSummary `json:"sales"`
	Matched int           `json:"matched"`
	HasMore bool          `json:"has_more"`
}

type SaleDetailRequest struct {
	SaleID int64 `json:"sale_id"`
}

type SaleDetailItem struct {
	ID          int64           `json:"id"`
	Quantity    int32           `json:"cantidad"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ProductID   int64           `json:"producto_id"`
	UnitPrice   decimal.Decimal `json:"precio_unitario"`
	ProductType string          `json:"tipo,omitempty"`
	ImageURLs   []string        `json:"imagenes,omitempty"`
	SizeLabel   string          `json:"talla,omitempty"`
	ColorLabel  string          `json:"color,omitempty"`
	ColorHex    string          `json:"color_hex,omitempty"`
}

type SaleDetailResponse struct {
	ID          int64            `json:"id"`
	Total       decimal.Decimal  `json:"total"`
	State       string           `json:"estado"`
	OrderNumber string           `json:"order_number,omitempty"`
	SoldAt      *time.Time       `json:"fecha_venta,omitempty"`
	Items       []SaleDetailItem `json:"detalles"`
}

func toSaleDetail(d domain.SaleDetail) *SaleDetailResponse {
	out := &SaleDetailResponse{
		ID:          d.ID,
		Total:       d.Total,
		State:       d.State,
		OrderNumber: d.OrderNumber,
		Items:       make([]SaleDetailItem, 0, len(d.Items)),
	}
	if !d.SoldAt.IsZero() {
		soldAt := d.SoldAt
		out.SoldAt = &soldAt
	}
	for _, item := range d.Items {
		out.Items = append(out.Items, SaleDetailItem(item))
	}
	return out
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	ID             int64  `json:"userId"`
	Name           string `json:"nombre"`
	FirstLastName  string `json:"apellido_paterno,omitempty"`
	SecondLastName string `json:"apellido_materno,omitempty"`
	Email          string `json:"email"`
	Phone          string `json:"telefono,omitempty"`
	RoleID         int64  `json:"rol_id,omitempty"`
}

func toUser(u *domain.User) *User {
	if u == nil {
		return nil
	}
	out := User(*u)
	return &out
}

// SessionResponse: текущий продавец. Токен наружу не отдаётся.
type SessionResponse struct {
	User    *User  `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
}
