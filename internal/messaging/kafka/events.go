package kafka

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alebrije/pos/internal/domain"
)

// EventType определяет тип события терминала.
type EventType string

const (
	// EventTypeSaleCompleted: продажа создана в backend и черновик закрыт.
	EventTypeSaleCompleted EventType = "sale.completed"
	// EventTypeDraftDiscarded: продавец отменил черновик.
	EventTypeDraftDiscarded EventType = "draft.discarded"
)

// Topics для Kafka.
const (
	TopicSaleEvents      = "pos.sale.events"
	TopicDeadLetterQueue = "pos.dlq"
)

// AggregateSale: aggregate_type сообщений outbox терминала.
const AggregateSale = "sale"

// SaleEventItem: позиция продажи в событии.
type SaleEventItem struct {
	ProductID int64           `json:"producto_id"`
	SizeID    int64           `json:"talla_id"`
	ColorID   int64           `json:"color_id"`
	Quantity  int32           `json:"cantidad"`
	UnitPrice decimal.Decimal `json:"precio_unitario"`
}

// SaleEvent: событие о продаже или отмене черновика.
type SaleEvent struct {
	EventType     EventType            `json:"event_type"`
	DraftID       string               `json:"draft_id"`
	OrderNumber   string               `json:"order_number"`
	SaleID        int64                `json:"sale_id,omitempty"`
	UserID        *int64               `json:"user_id,omitempty"`
	Total         decimal.Decimal      `json:"total"`
	PaymentMethod domain.PaymentMethod `json:"payment_method,omitempty"`
	Items         []SaleEventItem      `json:"items"`
	Timestamp     time.Time            `json:"timestamp"`
}

// NewSaleCompletedEvent собирает событие завершённой продажи.
func NewSaleCompletedEvent(d domain.DraftSale, saleID, userID int64, method domain.PaymentMethod, at time.Time) *SaleEvent {
	event := newSaleEvent(EventTypeSaleCompleted, d, at)
	event.SaleID = saleID
	event.UserID = &userID
	event.PaymentMethod = method
	return event
}

// NewDraftDiscardedEvent собирает событие отмены черновика.
func NewDraftDiscardedEvent(d domain.DraftSale, at time.Time) *SaleEvent {
	event := newSaleEvent(EventTypeDraftDiscarded, d, at)
	if d.OwnerID != nil {
		owner := *d.OwnerID
		event.UserID = &owner
	}
	return event
}

func newSaleEvent(eventType EventType, d domain.DraftSale, at time.Time) *SaleEvent {
	items := make([]SaleEventItem, 0, len(d.Items))
	for _, item := range d.Items {
		price := decimal.Zero
		if item.UnitPrice != nil {
			price = *item.UnitPrice
		}
		items = append(items, SaleEventItem{
			ProductID: item.ProductID,
			SizeID:    item.SizeID,
			ColorID:   item.ColorID,
			Quantity:  item.Quantity,
			UnitPrice: price,
		})
	}
	return &SaleEvent{
		EventType:   eventType,
		DraftID:     d.ID,
		OrderNumber: d.OrderNumber,
		Total:       d.Total.Round(2),
		Items:       items,
		Timestamp:   at.UTC(),
	}
}
