// Package qr разбирает и проверяет содержимое отсканированного QR-кода товара.
package qr

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
)

// Коды ошибок отдаются на экран продавца как есть.
var (
	ErrMalformed   = errors.New("QR_JSON_MALFORMED")
	ErrIncomplete  = errors.New("QR_INCOMPLETE")
	ErrExpired     = errors.New("QR_EXPIRED")
	ErrAlreadyUsed = errors.New("QR_ALREADY_USED")
	ErrWrongApp    = errors.New("QR_WRONG_APP")
)

// Payload: проверенное содержимое QR. Необязательные поля остаются nil,
// если их не было в коде.
type Payload struct {
	ProductID string  `json:"productId"`
	Store     string  `json:"store"`
	Exp       *int64  `json:"exp,omitempty"`
	Used      *bool   `json:"used,omitempty"`
	App       *string `json:"app,omitempty"`
}

// ExpiresAt возвращает срок действия кода, если он задан.
func (p Payload) ExpiresAt() (time.Time, bool) {
	if p.Exp == nil || *p.Exp == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(*p.Exp), true
}

// Parse проверяет text на текущий момент времени.
func Parse(text, expectedApp string) (Payload, error) {
	return ParseAt(text, expectedApp, time.Now())
}

// ParseAt проверяет text относительно момента now. Проверки идут строго по порядку:
// формат, обязательные поля, срок действия, повторное использование, приложение.
func ParseAt(text, expectedApp string, now time.Time) (Payload, error) {
	raw, err := decodeObject(text)
	if err != nil {
		return Payload{}, err
	}

	var p Payload
	if p.ProductID, err = productID(raw["productId"]); err != nil {
		return Payload{}, err
	}
	if p.Store, err = optionalString(raw["store"]); err != nil {
		return Payload{}, err
	}
	if p.Exp, err = optionalInt(raw["exp"]); err != nil {
		return Payload{}, err
	}
	if p.Used, err = optionalBool(raw["used"]); err != nil {
		return Payload{}, err
	}
	app, err := optionalString(raw["app"])
	if err != nil {
		return Payload{}, err
	}
	if _, present := raw["app"]; present && !isNull(raw["app"]) {
		p.App = &app
	}

	if p.ProductID == "" || p.Store == "" {
		return Payload{}, ErrIncomplete
	}
	if p.Exp != nil && *p.Exp != 0 && *p.Exp < now.UnixMilli() {
		return Payload{}, ErrExpired
	}
	if p.Used != nil && *p.Used {
		return Payload{}, ErrAlreadyUsed
	}
	if expectedApp != "" && p.App != nil && *p.App != "" && *p.App != expectedApp {
		return Payload{}, ErrWrongApp
	}
	return p, nil
}

// Kind возвращает код ошибки QR или пустую строку, если err не относится к QR.
func Kind(err error) string {
	for _, target := range []error{ErrMalformed, ErrIncomplete, ErrExpired, ErrAlreadyUsed, ErrWrongApp} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return ""
}

// IsQRError сообщает, является ли err одной из ошибок проверки QR.
func IsQRError(err error) bool {
	return Kind(err) != ""
}

func decodeObject(text string) (map[string]json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, ErrMalformed
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, ErrMalformed
	}
	return raw, nil
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// productID принимает как строку, так и число: генераторы этикеток пишут оба варианта.
func productID(v json.RawMessage) (string, error) {
	if isNull(v) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if n.String() == "0" {
			return "", nil
		}
		return n.String(), nil
	}
	return "", ErrMalformed
}

func optionalString(v json.RawMessage) (string, error) {
	if isNull(v) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", ErrMalformed
	}
	return s, nil
}

// optionalInt читает число; значения вне диапазона int64 прижимаются к его границам.
func optionalInt(v json.RawMessage) (*int64, error) {
	if isNull(v) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return nil, ErrMalformed
	}
	var n int64
	switch {
	case f >= math.MaxInt64:
		n = math.MaxInt64
	case f <= math.MinInt64:
		n = math.MinInt64
	default:
		n = int64(f)
	}
	return &n, nil
}

func optionalBool(v json.RawMessage) (*bool, error) {
	if isNull(v) {
		return nil, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return nil, ErrMalformed
	}
	return &b, nil
}
