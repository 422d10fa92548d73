package models

import (
	"sort"
	"time"
)

// ProductIdentifier is the opaque string key the store uses to name a
// purchasable item. It is used as a map key throughout.
type ProductIdentifier string

// ProductIdentifierSet is an unordered set of product identifiers.
type ProductIdentifierSet map[ProductIdentifier]struct{}

// NewProductIdentifierSet builds a set from the given identifiers.
func NewProductIdentifierSet(ids ...ProductIdentifier) ProductIdentifierSet {
	s := make(ProductIdentifierSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts an identifier into the set.
func (s ProductIdentifierSet) Add(id ProductIdentifier) {
	s[id] = struct{}{}
}

// Contains reports whether the identifier is in the set.
func (s ProductIdentifierSet) Contains(id ProductIdentifier) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the identifiers in lexical order, for stable output.
func (s ProductIdentifierSet) Sorted() []ProductIdentifier {
	ids := make([]ProductIdentifier, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ProductInfo is the store's metadata for one purchasable product.
type ProductInfo struct {
	Identifier ProductIdentifier `json:"identifier"`
	Title      string            `json:"title"`
	Price      string            `json:"price"` // localized, already formatted
}

// ProductExpirationMap maps each product to the point in time its
// entitlement lapses. A product cancelled at or after its recorded
// expiration is pinned to the epoch, meaning "never active". The map holds
// exactly one timestamp per product, so a cancellation overwrites the
// expiration slot rather than living beside it; downstream consumers rely
// on that merge policy.
type ProductExpirationMap map[ProductIdentifier]time.Time
