package iap

import (
	"context"

	"github.com/GTDGit/iap_core/internal/models"
)

// ProductsResponse is the store's answer to a product-metadata request.
type ProductsResponse struct {
	Products           []models.ProductInfo
	InvalidIdentifiers []models.ProductIdentifier
}

// ProductCatalog is the boundary to the store's product-metadata service.
// One call resolves a set of identifiers into recognized products and
// rejected identifiers. Implementations must honor context cancellation.
type ProductCatalog interface {
	RequestProducts(ctx context.Context, ids models.ProductIdentifierSet) (*ProductsResponse, error)
}

// StaticCatalog is a ProductCatalog backed by a fixed product table. It
// stands in for the platform catalog in the CLI and in tests.
type StaticCatalog struct {
	products map[models.ProductIdentifier]models.ProductInfo
}

// NewStaticCatalog builds a catalog recognizing exactly the given products.
func NewStaticCatalog(products ...models.ProductInfo) *StaticCatalog {
	c := &StaticCatalog{products: make(map[models.ProductIdentifier]models.ProductInfo, len(products))}
	for _, p := range products {
		c.products[p.Identifier] = p
	}
	return c
}

// RequestProducts splits the requested identifiers into recognized products
// and invalid identifiers.
func (c *StaticCatalog) RequestProducts(ctx context.Context, ids models.ProductIdentifierSet) (*ProductsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &ProductsResponse{}
	for _, id := range ids.Sorted() {
		if p, ok := c.products[id]; ok {
			resp.Products = append(resp.Products, p)
		} else {
			resp.InvalidIdentifiers = append(resp.InvalidIdentifiers, id)
		}
	}
	return resp, nil
}
