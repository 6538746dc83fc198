package domain

import "errors"

var (
	// ErrDraftNotFound возвращается, если черновика с таким ID нет.
	ErrDraftNotFound = errors.New("draft not found")
	// ErrDraftLimitReached: достигнут лимит одновременно открытых черновиков.
	ErrDraftLimitReached = errors.New("draft limit reached")
	// ErrItemIndexOutOfRange: индекс позиции за пределами списка.
	ErrItemIndexOutOfRange = errors.New("item index out of range")
	// ErrDraftStatusInvalid: неизвестное значение статуса черновика.
	ErrDraftStatusInvalid = errors.New("draft status is invalid")
	// ErrDraftBusy: по черновику уже идёт оформление продажи.
	ErrDraftBusy = errors.New("draft checkout is in progress")
	// ErrDraftNotOpen: черновик уже закрыт или отменён и не может быть продан.
	ErrDraftNotOpen = errors.New("draft is not in progress")
	// ErrDraftEmpty: в черновике нет позиций или сумма равна нулю.
	ErrDraftEmpty = errors.New("draft has no items to sell")
	// ErrItemQtyInvalid: количество должно быть больше нуля.
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// ErrVariantNotFound: у товара нет выбранного сочетания размера и цвета.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrOutOfStock: у вариации нулевой остаток.
	ErrOutOfStock = errors.New("variant is out of stock")
	// ErrInsufficientStock: запрошено больше, чем есть на складе.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPaymentInvalid: данные способа оплаты не прошли проверку.
	ErrPaymentInvalid = errors.New("payment data is invalid")
	// ErrContactInvalid: контактные данные покупателя не прошли проверку.
	ErrContactInvalid = errors.New("customer contact is invalid")
	// ErrAddressInvalid: id адреса доставки должен быть положительным.
	ErrAddressInvalid = errors.New("delivery address is invalid")
	// ErrUnauthenticated: операция требует авторизованного продавца.
	ErrUnauthenticated = errors.New("user is not authenticated")
	// ErrProductNotFound: backend не нашёл товар по QR.
	ErrProductNotFound = errors.New("product not found")
	// ErrKeyNotFound: ключ отсутствует в key-value хранилище.
	ErrKeyNotFound = errors.New("key not found")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsNotFound проверяет, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDraftNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrVariantNotFound) ||
		errors.Is(err, ErrKeyNotFound)
}

// IsLimitReached проверяет, упёрлась ли операция в лимит черновиков.
func IsLimitReached(err error) bool {
	return errors.Is(err, ErrDraftLimitReached)
}

// IsValidation проверяет, является ли ошибка ошибкой входных данных.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrItemIndexOutOfRange,
		ErrDraftStatusInvalid,
		ErrDraftEmpty,
		ErrItemQtyInvalid,
		ErrOutOfStock,
		ErrInsufficientStock,
		ErrPaymentInvalid,
		ErrContactInvalid,
		ErrAddressInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict проверяет, конфликтует ли операция с текущим состоянием черновика.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDraftBusy) || errors.Is(err, ErrDraftNotOpen)
}
