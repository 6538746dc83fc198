package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/alebrije/pos/internal/domain"
)

// Products: поиск товара по коду из QR.
type Products struct {
	c *Client
}

// NewProducts создаёт клиент каталога.
func NewProducts(c *Client) *Products {
	return &Products{c: c}
}

var _ domain.ProductCatalog = (*Products)(nil)

type productResponseWire struct {
	Product *domain.Product `json:"producto"`
	Message string          `json:"message"`
}

// ProductByQR выполняет GET /producto/{code}. Пустой producto и 404
// превращаются в domain.ErrProductNotFound.
func (p *Products) ProductByQR(ctx context.Context, code string) (domain.Product, error) {
	var resp productResponseWire
	err := p.c.do(ctx, http.MethodGet, "/producto/{code}", "/producto/"+url.PathEscape(code), nil, &resp)
	if errors.Is(err, ErrNotFound) {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, Message(err))
	}
	if err != nil {
		return domain.Product{}, err
	}
	if resp.Product == nil {
		if resp.Message != "" {
			return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, resp.Message)
		}
		return domain.Product{}, domain.ErrProductNotFound
	}
	return *resp.Product, nil
}
