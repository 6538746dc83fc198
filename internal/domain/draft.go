package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DraftStatus описывает жизненный цикл черновика продажи на терминале.
type DraftStatus string

const (
	// DraftStatusInProgress: продажа собирается, позиции можно менять.
	DraftStatusInProgress DraftStatus = "in_progress"
	// DraftStatusFinalized: продажа оплачена и отправлена в backend.
	DraftStatusFinalized DraftStatus = "finalized"
	// DraftStatusCancelled: продажа отменена продавцом.
	DraftStatusCancelled DraftStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s DraftStatus) Valid() bool {
	switch s {
	case DraftStatusInProgress, DraftStatusFinalized, DraftStatusCancelled:
		return true
	default:
		return false
	}
}

// Label возвращает подпись статуса для экрана продавца.
func (s DraftStatus) Label() string {
	switch s {
	case DraftStatusInProgress:
		return "En proceso"
	case DraftStatusFinalized:
		return "Finalizada"
	case DraftStatusCancelled:
		return "Cancelada"
	default:
		return string(s)
	}
}

// LineItem представляет одну позицию черновика.
type LineItem struct {
	ProductID int64 `json:"producto_id"`
	SizeID    int64 `json:"talla_id"`
	ColorID   int64 `json:"color_id"`
	Quantity  int32 `json:"cantidad"`
	// UnitPrice фиксируется в момент добавления и повторно не запрашивается.
	// nil означает «цена неизвестна» и при подсчёте суммы даёт 0.
	UnitPrice *decimal.Decimal `json:"precio_unitario,omitempty"`

	// Подписи денормализованы для экрана и не являются источником истины.
	SizeLabel   string `json:"talla_label,omitempty"`
	ColorLabel  string `json:"color_label,omitempty"`
	ProductName string `json:"producto_nombre,omitempty"`
}

// Subtotal возвращает unit_price * quantity с приведением пустой цены к нулю.
func (i LineItem) Subtotal() decimal.Decimal {
	if i.UnitPrice == nil {
		return decimal.Zero
	}
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}

// Validate проверяет, что количество позиции положительно.
func (i LineItem) Validate() error {
	if i.Quantity <= 0 {
		return fmt.Errorf("%w: product %d qty %d", ErrItemQtyInvalid, i.ProductID, i.Quantity)
	}
	return nil
}

// SameVariant сообщает, указывают ли позиции на один товар, размер и цвет.
func (i LineItem) SameVariant(other LineItem) bool {
	return i.ProductID == other.ProductID && i.SizeID == other.SizeID && i.ColorID == other.ColorID
}

// LineItemPatch содержит частичное обновление позиции: применяются только заданные поля.
type LineItemPatch struct {
	ProductID   *int64
	SizeID      *int64
	ColorID     *int64
	Quantity    *int32
	UnitPrice   *decimal.Decimal
	SizeLabel   *string
	ColorLabel  *string
	ProductName *string
}

// Apply возвращает копию позиции с применёнными полями патча.
func (p LineItemPatch) Apply(item LineItem) LineItem {
	if p.ProductID != nil {
		item.ProductID = *p.ProductID
	}
	if p.SizeID != nil {
		item.SizeID = *p.SizeID
	}
	if p.ColorID != nil {
		item.ColorID = *p.ColorID
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.UnitPrice != nil {
		price := *p.UnitPrice
		item.UnitPrice = &price
	}
	if p.SizeLabel != nil {
		item.SizeLabel = *p.SizeLabel
	}
	if p.ColorLabel != nil {
		item.ColorLabel = *p.ColorLabel
	}
	if p.ProductName != nil {
		item.ProductName = *p.ProductName
	}
	return item
}

// Contact: необязательные контактные данные покупателя.
type Contact struct {
	Name  string `json:"nombre,omitempty"`
	Phone string `json:"telefono,omitempty"`
	Email string `json:"email,omitempty"`
}

const (
	contactNameMinLen  = 3
	contactPhoneMinLen = 7
	contactPhoneMaxLen = 15
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate проверяет заполненные поля контакта. Пустые поля допустимы:
// имя не короче 3 символов, в телефоне от 7 до 15 цифр, email вида a@b.c.
func (c Contact) Validate() error {
	if name := strings.TrimSpace(c.Name); name != "" && len([]rune(name)) < contactNameMinLen {
		return fmt.Errorf("%w: name must have at least %d characters", ErrContactInvalid, contactNameMinLen)
	}
	if c.Phone != "" {
		digits := 0
		for _, r := range c.Phone {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits < contactPhoneMinLen || digits > contactPhoneMaxLen {
			return fmt.Errorf("%w: phone must have %d-%d digits", ErrContactInvalid, contactPhoneMinLen, contactPhoneMaxLen)
		}
	}
	if c.Email != "" && !emailPattern.MatchString(c.Email) {
		return fmt.Errorf("%w: email %q", ErrContactInvalid, c.Email)
	}
	return nil
}

// DraftSale агрегирует состояние незавершённой (или только что завершённой) продажи.
type DraftSale struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"orderNumber"`
	CreatedAt   time.Time       `json:"createdAt"`
	OwnerID     *int64          `json:"usuario_id"`
	Items       []LineItem      `json:"productos"`
	Total       decimal.Decimal `json:"total"`
	Status      DraftStatus     `json:"status"`

	PickupInStore bool     `json:"recogerEnTienda"`
	AddressID     *int64   `json:"direccion_id"`
	Contact       *Contact `json:"contacto,omitempty"`
}

// RecalculateTotal считает сумму позиций: Σ unit_price * quantity.
// Отсутствующая цена приводится к нулю, функция никогда не возвращает ошибку.
func RecalculateTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Clone возвращает глубокую копию черновика.
func (d DraftSale) Clone() DraftSale {
	out := d
	if d.Items != nil {
		out.Items = make([]LineItem, len(d.Items))
		for i, item := range d.Items {
			if item.UnitPrice != nil {
				price := *item.UnitPrice
				item.UnitPrice = &price
			}
			out.Items[i] = item
		}
	}
	if d.OwnerID != nil {
		owner := *d.OwnerID
		out.OwnerID = &owner
	}
	if d.AddressID != nil {
		addr := *d.AddressID
		out.AddressID = &addr
	}
	if d.Contact != nil {
		contact := *d.Contact
		out.Contact = &contact
	}
	return out
}

// ValidateItems проверяет все позиции черновика.
func (d DraftSale) ValidateItems() error {
	for idx, item := range d.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", idx, err)
		}
	}
	return nil
}

// ItemCount возвращает суммарное количество единиц во всех позициях.
func (d DraftSale) ItemCount() int {
	var n int
	for _, item := range d.Items {
		n += int(item.Quantity)
	}
	return n
}
