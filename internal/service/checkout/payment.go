package checkout

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/alebrije/pos/internal/domain"
)

var (
	cardNumberRe = regexp.MustCompile(`^[0-9]{13,19}$`)
	cardExpiryRe = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cardCVVRe    = regexp.MustCompile(`^[0-9]{3,4}$`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// CashPayment: оплата наличными.
type CashPayment struct {
	Received decimal.Decimal
}

// CardPayment: данные карты. Терминал только проверяет формат и никуда их не передаёт.
type CardPayment struct {
	Holder string
	Number string
	Expiry string
	CVV    string
}

// TransferPayment: банковский перевод.
type TransferPayment struct {
	Bank      string
	Reference string
	Holder    string
}

// ParseAmount разбирает сумму, введённую продавцом. Запятая считается десятичным
// разделителем, пустая или нечисловая строка даёт ноль.
func ParseAmount(raw string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."))
	if err != nil {
		return decimal.Zero
	}
	return v
}

// Change возвращает сдачу max(0, received - total), округлённую до копеек.
func Change(received, total decimal.Decimal) decimal.Decimal {
	change := received.Sub(total).Round(2)
	if change.IsNegative() {
		return decimal.Zero
	}
	return change
}

// ValidatePayment проверяет данные выбранного способа оплаты и возвращает сдачу
// (для безналичных способов она нулевая).
func ValidatePayment(req Request, total decimal.Decimal) (decimal.Decimal, error) {
	switch req.Method {
	case domain.PaymentMethodCash:
		if req.Cash.Received.LessThan(total) {
			return decimal.Zero, fmt.Errorf("%w: received %s is less than total %s",
				domain.ErrPaymentInvalid, req.Cash.Received.StringFixed(2), total.StringFixed(2))
		}
		return Change(req.Cash.Received, total), nil
	case domain.PaymentMethodCard:
		return decimal.Zero, validateCard(req.Card)
	case domain.PaymentMethodTransfer:
		return decimal.Zero, validateTransfer(req.Transfer)
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown method %q", domain.ErrPaymentInvalid, req.Method)
	}
}

func validateCard(card CardPayment) error {
	switch {
	case runeLen(card.Holder) < 3:
		return fmt.Errorf("%w: card holder is too short", domain.ErrPaymentInvalid)
	case !cardNumberRe.MatchString(spacesRe.ReplaceAllString(card.Number, "")):
		return fmt.Errorf("%w: card number must have 13-19 digits", domain.ErrPaymentInvalid)
	case !cardExpiryRe.MatchString(strings.TrimSpace(card.Expiry)):
		return fmt.Errorf("%w: card expiry must be MM/YY", domain.ErrPaymentInvalid)
	case !cardCVVRe.MatchString(strings.TrimSpace(card.CVV)):
		return fmt.Errorf("%w: card cvv must have 3-4 digits", domain.ErrPaymentInvalid)
	}
	return nil
}

func validateTransfer(tr TransferPayment) error {
	switch {
	case runeLen(tr.Bank) < 2:
		return fmt.Errorf("%w: bank is too short", domain.ErrPaymentInvalid)
	case runeLen(tr.Reference) < 6:
		return fmt.Errorf("%w: reference must have at least 6 characters", domain.ErrPaymentInvalid)
	case runeLen(tr.Holder) < 3:
		return fmt.Errorf("%w: transfer holder is too short", domain.ErrPaymentInvalid)
	}
	return nil
}

func runeLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
