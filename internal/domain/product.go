package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Size: размер товара в каталоге.
type Size struct {
	ID    int64  `json:"id"`
	Label string `json:"talla"`
}

// Image: изображение цвета.
type Image struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// Color: цвет товара вместе с картинками.
type Color struct {
	ID     int64   `json:"id"`
	Label  string  `json:"color"`
	Hex    string  `json:"colorHex"`
	Images []Image `json:"imagenes"`
}

// Variant: сочетание размера и цвета со своим остатком.
type Variant struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"producto_id"`
	Stock     int32 `json:"stock"`
	Size      Size  `json:"talla"`
	Color     Color `json:"coloresStock"`
}

// NamedRef: справочная сущность каталога (сезон, категория, тип, бренд).
type NamedRef struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
}

// Product описывает товар так, как его отдаёт backend по QR.
type Product struct {
	ID            int64           `json:"id"`
	Season        NamedRef        `json:"temporada"`
	Category      NamedRef        `json:"categoria"`
	Type          NamedRef        `json:"tipo"`
	Brand         NamedRef        `json:"marca"`
	Price         decimal.Decimal `json:"precio"`
	Active        bool            `json:"estado"`
	Rating        string          `json:"calificacion"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
	Variants      []Variant       `json:"tallasColoresStock"`
	AverageRating float64         `json:"calificacionPromedio"`
	TotalRatings  int             `json:"totalCalificaciones"`
	// Promotion передаётся как есть: формат акций backend не фиксирует.
	Promotion json.RawMessage `json:"promocion,omitempty"`
}

// DisplayName собирает подпись товара для позиции черновика.
func (p Product) DisplayName() string {
	switch {
	case p.Type.Name != "" && p.Brand.Name != "":
		return p.Type.Name + " " + p.Brand.Name
	case p.Type.Name != "":
		return p.Type.Name
	default:
		return p.Brand.Name
	}
}

// FirstVariant возвращает первую вариацию: её экран выбирает по умолчанию.
func (p Product) FirstVariant() (Variant, bool) {
	if len(p.Variants) == 0 {
		return Variant{}, false
	}
	return p.Variants[0], true
}

// FindVariant ищет вариацию по подписям размера и цвета.
func (p Product) FindVariant(sizeLabel, colorLabel string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.Size.Label == sizeLabel && v.Color.Label == colorLabel {
			return v, true
		}
	}
	return Variant{}, false
}
